package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/briandowns/spinner"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"dvbox/internal/dataverse"
	"dvbox/internal/dverrors"
)

var (
	importWait             bool
	importInterval         time.Duration
	importPublishWorkflows bool
	importOverwrite        bool
	importJobID            string
)

// solutionCmd groups solution deployment subcommands.
var solutionCmd = &cobra.Command{
	Use:   "solution",
	Short: "Import solutions and inspect import jobs",
}

var solutionImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import a solution zip",
	Long: `Import a solution zip into the current connection's environment.

The import runs asynchronously in Dataverse; the returned job id can be
polled with 'dvbox solution status', or pass --wait to poll until the
job completes.

Examples:
  dvbox solution import ./contoso_1_0_0_0.zip
  dvbox solution import ./contoso_1_0_0_0.zip --wait
  dvbox solution import ./contoso_1_0_0_0.zip --overwrite --publish-workflows=false`,
	Args: cobra.ExactArgs(1),
	RunE: runSolutionImport,
}

var solutionStatusCmd = &cobra.Command{
	Use:   "status <job-id>",
	Short: "Show the state of a solution import job",
	Args:  cobra.ExactArgs(1),
	RunE:  runSolutionStatus,
}

func init() {
	rootCmd.AddCommand(solutionCmd)
	solutionCmd.AddCommand(solutionImportCmd)
	solutionCmd.AddCommand(solutionStatusCmd)

	solutionImportCmd.Flags().BoolVar(&importWait, "wait", false, "poll the import job until it completes")
	solutionImportCmd.Flags().DurationVar(&importInterval, "interval", 5*time.Second, "polling interval used with --wait")
	solutionImportCmd.Flags().BoolVar(&importPublishWorkflows, "publish-workflows", false, "activate processes included in the solution")
	solutionImportCmd.Flags().BoolVar(&importOverwrite, "overwrite", false, "overwrite unmanaged customizations")
	solutionImportCmd.Flags().StringVar(&importJobID, "job-id", "", "import job id to use (default a fresh GUID)")
}

func runSolutionImport(cmd *cobra.Command, args []string) error {
	a, err := ensureApp(cmd)
	if err != nil {
		return err
	}
	conn, err := resolveConnection(a, flagConnection)
	if err != nil {
		return err
	}

	payload, err := os.ReadFile(args[0])
	if err != nil {
		return dverrors.Wrap(dverrors.KindValidation, "could not read the solution file", err)
	}

	ctx := cmd.Context()

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	s.Suffix = " Submitting solution import..."
	s.Start()

	var jobID string
	err = withReauth(ctx, a, conn, func() error {
		var opErr error
		jobID, opErr = a.dataverse.ImportSolution(ctx, conn.ID, dataverse.ImportSolutionOptions{
			Payload:                          payload,
			PublishWorkflows:                 importPublishWorkflows,
			OverwriteUnmanagedCustomizations: importOverwrite,
			ImportJobID:                      importJobID,
		})
		return opErr
	})
	if err != nil {
		s.FinalMSG = text.FgRed.Sprint("Solution import failed to start") + "\n"
		s.Stop()
		return err
	}

	if !importWait {
		s.Stop()
		fmt.Fprintf(cmd.OutOrStdout(), "Import started, job %s\n", jobID)
		fmt.Fprintf(cmd.OutOrStdout(), "Track it with 'dvbox solution status %s'\n", jobID)
		return nil
	}

	s.Suffix = fmt.Sprintf(" Importing solution (job %s)...", jobID)
	job, err := a.dataverse.WaitForImportJob(ctx, conn.ID, jobID, importInterval)
	if err != nil {
		s.FinalMSG = text.FgRed.Sprint("Solution import did not complete") + "\n"
		s.Stop()
		return err
	}
	s.Stop()

	fmt.Fprintf(cmd.OutOrStdout(), "%s Import complete, job %s\n", text.FgGreen.Sprint("✓"), jobID)
	printImportJob(cmd, job)
	return nil
}

func runSolutionStatus(cmd *cobra.Command, args []string) error {
	a, err := ensureApp(cmd)
	if err != nil {
		return err
	}
	conn, err := resolveConnection(a, flagConnection)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	var job map[string]interface{}
	err = withReauth(ctx, a, conn, func() error {
		var opErr error
		job, opErr = a.dataverse.GetImportJobStatus(ctx, conn.ID, args[0])
		return opErr
	})
	if err != nil {
		return err
	}

	printImportJob(cmd, job)
	return nil
}

// printImportJob renders the fields users actually look at on an
// import job record.
func printImportJob(cmd *cobra.Command, job map[string]interface{}) {
	out := cmd.OutOrStdout()
	if name, ok := job["solutionname"].(string); ok && name != "" {
		fmt.Fprintf(out, "  solution:  %s\n", name)
	}
	if progress, ok := job["progress"].(float64); ok {
		fmt.Fprintf(out, "  progress:  %.0f%%\n", progress)
	}
	if started, ok := job["startedon"].(string); ok && started != "" {
		fmt.Fprintf(out, "  started:   %s\n", started)
	}
	if completed, ok := job["completedon"].(string); ok && completed != "" {
		fmt.Fprintf(out, "  completed: %s\n", completed)
	}
}
