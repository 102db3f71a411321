package dataverse

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"dvbox/internal/dverrors"
	"dvbox/pkg/logging"
)

// importJobColumns is what GetImportJobStatus selects. The data column
// carries the full result XML; progress is a 0 to 100 float.
var importJobColumns = []string{
	"importjobid", "progress", "completedon", "startedon",
	"data", "solutionname", "createdon", "modifiedon",
}

// NormalizeSolutionPayload turns the two accepted payload shapes into
// the base64 string ImportSolution sends. Strings are assumed to be
// base64 already; raw bytes are encoded here.
func NormalizeSolutionPayload(payload interface{}) (string, error) {
	switch v := payload.(type) {
	case string:
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			return "", dverrors.New(dverrors.KindValidation, "the solution payload is empty")
		}
		return trimmed, nil
	case []byte:
		if len(v) == 0 {
			return "", dverrors.New(dverrors.KindValidation, "the solution payload is empty")
		}
		return base64.StdEncoding.EncodeToString(v), nil
	default:
		return "", dverrors.Newf(dverrors.KindValidation,
			"unsupported solution payload type %T; pass a base64 string or raw bytes", payload)
	}
}

// ImportSolutionOptions shape an ImportSolution call. Payload is the
// solution zip, either base64 or raw bytes. The *bool options are
// three-state so the service defaults apply when they are nil.
type ImportSolutionOptions struct {
	Payload                          interface{}
	PublishWorkflows                 bool
	OverwriteUnmanagedCustomizations bool
	SkipProductUpdateDependencies    *bool
	ConvertToManaged                 *bool

	// ImportJobID lets the caller pick the job id up front so status
	// polling can start before the import returns. Generated when empty.
	ImportJobID string
}

// ImportSolution uploads a solution zip and returns the import job id
// to poll for completion.
func (s *Service) ImportSolution(ctx context.Context, connectionID string, opts ImportSolutionOptions) (string, error) {
	encoded, err := NormalizeSolutionPayload(opts.Payload)
	if err != nil {
		return "", err
	}

	jobID := opts.ImportJobID
	if jobID == "" {
		jobID = uuid.NewString()
	}

	params := map[string]interface{}{
		"CustomizationFile":                encoded,
		"PublishWorkflows":                 opts.PublishWorkflows,
		"OverwriteUnmanagedCustomizations": opts.OverwriteUnmanagedCustomizations,
		"ImportJobId":                      jobID,
	}
	if opts.SkipProductUpdateDependencies != nil {
		params["SkipProductUpdateDependencies"] = *opts.SkipProductUpdateDependencies
	}
	if opts.ConvertToManaged != nil {
		params["ConvertToManaged"] = *opts.ConvertToManaged
	}

	if _, err := s.ExecuteAction(ctx, connectionID, Action{Name: "ImportSolution", Parameters: params}); err != nil {
		return "", fmt.Errorf("solution import failed: %w", err)
	}
	return jobID, nil
}

// GetImportJobStatus reads one snapshot of an import job row.
func (s *Service) GetImportJobStatus(ctx context.Context, connectionID, importJobID string) (map[string]interface{}, error) {
	job, err := s.Retrieve(ctx, connectionID, "importjob", importJobID, importJobColumns)
	if err != nil {
		return nil, fmt.Errorf("import job status failed: %w", err)
	}
	return job, nil
}

// WaitForImportJob polls an import job until it completes or the
// context ends. The returned map is the final job snapshot.
func (s *Service) WaitForImportJob(ctx context.Context, connectionID, importJobID string, interval time.Duration) (map[string]interface{}, error) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		job, err := s.GetImportJobStatus(ctx, connectionID, importJobID)
		if err != nil {
			return nil, err
		}
		if completed, ok := job["completedon"].(string); ok && completed != "" {
			return job, nil
		}
		if progress, ok := job["progress"].(float64); ok {
			logging.Debug("Dataverse", "Import job %s at %.0f%%", importJobID, progress)
		}

		select {
		case <-ctx.Done():
			return nil, dverrors.Wrap(dverrors.KindTimeout,
				fmt.Sprintf("gave up waiting for import job %s", importJobID), ctx.Err())
		case <-ticker.C:
		}
	}
}
