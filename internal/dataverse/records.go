package dataverse

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"dvbox/internal/dverrors"
	"dvbox/internal/httpclient"
)

// entityIDPattern pulls the GUID out of an OData-EntityId header value
// such as https://org.crm.dynamics.com/api/data/v9.2/accounts(guid).
var entityIDPattern = regexp.MustCompile(`\(([0-9a-fA-F-]{36})\)`)

// Create inserts a record and returns its id. The id comes from the
// OData-EntityId response header; when representation is returned
// instead, the body's <entity>id field is the fallback.
func (s *Service) Create(ctx context.Context, connectionID, entity string, record map[string]interface{}) (string, error) {
	set := EntitySetName(entity)
	resp, err := s.call(ctx, connectionID, func(baseURL string) httpclient.Request {
		return httpclient.Request{
			Method: http.MethodPost,
			URL:    httpclient.APIURL(baseURL, set),
			Body:   record,
		}
	})
	if err != nil {
		return "", fmt.Errorf("create failed: %w", err)
	}

	if id := extractEntityID(resp.Headers["odata-entityid"]); id != "" {
		return id, nil
	}
	if id, ok := resp.Data[entity+"id"].(string); ok && id != "" {
		return id, nil
	}
	return "", dverrors.Newf(dverrors.KindService,
		"create succeeded but no id came back for %s", entity)
}

// Retrieve fetches one record, optionally narrowing to the given
// columns.
func (s *Service) Retrieve(ctx context.Context, connectionID, entity, id string, columns []string) (map[string]interface{}, error) {
	set := EntitySetName(entity)
	resp, err := s.call(ctx, connectionID, func(baseURL string) httpclient.Request {
		target := fmt.Sprintf("%s(%s)", set, id)
		if len(columns) > 0 {
			// Logical names are lowercase identifiers; the list needs
			// no escaping.
			target += "?$select=" + strings.Join(columns, ",")
		}
		return httpclient.Request{
			Method:        http.MethodGet,
			URL:           httpclient.APIURL(baseURL, target),
			PreferOptions: []string{includeAnnotations},
		}
	})
	if err != nil {
		return nil, fmt.Errorf("retrieve failed: %w", err)
	}
	return resp.Data, nil
}

// Update patches a record with the supplied fields.
func (s *Service) Update(ctx context.Context, connectionID, entity, id string, record map[string]interface{}) error {
	set := EntitySetName(entity)
	_, err := s.call(ctx, connectionID, func(baseURL string) httpclient.Request {
		return httpclient.Request{
			Method: http.MethodPatch,
			URL:    httpclient.APIURL(baseURL, fmt.Sprintf("%s(%s)", set, id)),
			Body:   record,
		}
	})
	if err != nil {
		return fmt.Errorf("update failed: %w", err)
	}
	return nil
}

// Delete removes a record.
func (s *Service) Delete(ctx context.Context, connectionID, entity, id string) error {
	set := EntitySetName(entity)
	_, err := s.call(ctx, connectionID, func(baseURL string) httpclient.Request {
		return httpclient.Request{
			Method: http.MethodDelete,
			URL:    httpclient.APIURL(baseURL, fmt.Sprintf("%s(%s)", set, id)),
		}
	})
	if err != nil {
		return fmt.Errorf("delete failed: %w", err)
	}
	return nil
}

// CreateMultiple inserts a batch of records in one call. Every record
// must carry @odata.type; the batch is rejected before any request when
// one does not.
func (s *Service) CreateMultiple(ctx context.Context, connectionID, entity string, records []map[string]interface{}) (map[string]interface{}, error) {
	if err := validateBatch(entity, records, false); err != nil {
		return nil, err
	}
	return s.executeBatch(ctx, connectionID, entity, "CreateMultiple", records)
}

// UpdateMultiple patches a batch of records in one call. Every record
// must carry @odata.type and its <entity>id key.
func (s *Service) UpdateMultiple(ctx context.Context, connectionID, entity string, records []map[string]interface{}) (map[string]interface{}, error) {
	if err := validateBatch(entity, records, true); err != nil {
		return nil, err
	}
	return s.executeBatch(ctx, connectionID, entity, "UpdateMultiple", records)
}

func (s *Service) executeBatch(ctx context.Context, connectionID, entity, operation string, records []map[string]interface{}) (map[string]interface{}, error) {
	set := EntitySetName(entity)
	resp, err := s.call(ctx, connectionID, func(baseURL string) httpclient.Request {
		return httpclient.Request{
			Method: http.MethodPost,
			URL:    httpclient.APIURL(baseURL, fmt.Sprintf("%s/Microsoft.Dynamics.CRM.%s", set, operation)),
			Body:   map[string]interface{}{"Targets": records},
		}
	})
	if err != nil {
		return nil, fmt.Errorf("%s failed: %w", strings.ToLower(operation), err)
	}
	return resp.Data, nil
}

// validateBatch counts the records missing required keys so the error
// names every problem at once.
func validateBatch(entity string, records []map[string]interface{}, forUpdate bool) error {
	if len(records) == 0 {
		return dverrors.New(dverrors.KindValidation, "the batch is empty")
	}

	idField := entity + "id"
	missingType := 0
	missingID := 0
	for _, record := range records {
		if t, ok := record["@odata.type"].(string); !ok || t == "" {
			missingType++
		}
		if forUpdate {
			if id, ok := record[idField].(string); !ok || id == "" {
				missingID++
			}
		}
	}

	var problems []string
	if missingType > 0 {
		problems = append(problems, fmt.Sprintf("@odata.type missing on %d of %d records", missingType, len(records)))
	}
	if missingID > 0 {
		problems = append(problems, fmt.Sprintf("%s missing on %d of %d records", idField, missingID, len(records)))
	}
	if len(problems) > 0 {
		return dverrors.Newf(dverrors.KindValidation, "batch validation failed: %s", strings.Join(problems, "; "))
	}
	return nil
}

func extractEntityID(headerValue string) string {
	if headerValue == "" {
		return ""
	}
	match := entityIDPattern.FindStringSubmatch(headerValue)
	if match == nil {
		return ""
	}
	return match[1]
}
