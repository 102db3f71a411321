package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"dvbox/internal/dverrors"
)

var (
	recordColumns  string
	recordDataFile string
)

// recordCmd groups single-record operations.
var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Read and write individual records",
	Long: `Read and write individual records by table name and id.

Table names are logical names (account, contact); dvbox derives the
entity-set name the Web API expects.`,
}

var recordGetCmd = &cobra.Command{
	Use:   "get <table> <id>",
	Short: "Retrieve a record",
	Args:  cobra.ExactArgs(2),
	RunE:  runRecordGet,
}

var recordCreateCmd = &cobra.Command{
	Use:   "create <table>",
	Short: "Create a record from a JSON document",
	Long: `Create a record. The attribute document comes from --data, either a
file path or '-' for stdin.

Example:
  echo '{"name":"Contoso"}' | dvbox record create account --data -`,
	Args: cobra.ExactArgs(1),
	RunE: runRecordCreate,
}

var recordUpdateCmd = &cobra.Command{
	Use:   "update <table> <id>",
	Short: "Update a record from a JSON document",
	Args:  cobra.ExactArgs(2),
	RunE:  runRecordUpdate,
}

var recordDeleteCmd = &cobra.Command{
	Use:   "delete <table> <id>",
	Short: "Delete a record",
	Args:  cobra.ExactArgs(2),
	RunE:  runRecordDelete,
}

func init() {
	rootCmd.AddCommand(recordCmd)
	recordCmd.AddCommand(recordGetCmd)
	recordCmd.AddCommand(recordCreateCmd)
	recordCmd.AddCommand(recordUpdateCmd)
	recordCmd.AddCommand(recordDeleteCmd)

	recordGetCmd.Flags().StringVar(&recordColumns, "columns", "", "comma-separated columns to select (default all)")
	recordCreateCmd.Flags().StringVar(&recordDataFile, "data", "", "JSON document: a file path or '-' for stdin")
	recordUpdateCmd.Flags().StringVar(&recordDataFile, "data", "", "JSON document: a file path or '-' for stdin")
}

func runRecordGet(cmd *cobra.Command, args []string) error {
	a, err := ensureApp(cmd)
	if err != nil {
		return err
	}
	conn, err := resolveConnection(a, flagConnection)
	if err != nil {
		return err
	}

	var columns []string
	if recordColumns != "" {
		for _, col := range strings.Split(recordColumns, ",") {
			if col = strings.TrimSpace(col); col != "" {
				columns = append(columns, col)
			}
		}
	}

	ctx := cmd.Context()
	var record map[string]interface{}
	err = withReauth(ctx, a, conn, func() error {
		var opErr error
		record, opErr = a.dataverse.Retrieve(ctx, conn.ID, args[0], args[1], columns)
		return opErr
	})
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), record)
}

func runRecordCreate(cmd *cobra.Command, args []string) error {
	a, err := ensureApp(cmd)
	if err != nil {
		return err
	}
	conn, err := resolveConnection(a, flagConnection)
	if err != nil {
		return err
	}

	record, err := readRecordDocument(cmd.InOrStdin())
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	var id string
	err = withReauth(ctx, a, conn, func() error {
		var opErr error
		id, opErr = a.dataverse.Create(ctx, conn.ID, args[0], record)
		return opErr
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Created %s %s\n", args[0], id)
	return nil
}

func runRecordUpdate(cmd *cobra.Command, args []string) error {
	a, err := ensureApp(cmd)
	if err != nil {
		return err
	}
	conn, err := resolveConnection(a, flagConnection)
	if err != nil {
		return err
	}

	record, err := readRecordDocument(cmd.InOrStdin())
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	err = withReauth(ctx, a, conn, func() error {
		return a.dataverse.Update(ctx, conn.ID, args[0], args[1], record)
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Updated %s %s\n", args[0], args[1])
	return nil
}

func runRecordDelete(cmd *cobra.Command, args []string) error {
	a, err := ensureApp(cmd)
	if err != nil {
		return err
	}
	conn, err := resolveConnection(a, flagConnection)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	err = withReauth(ctx, a, conn, func() error {
		return a.dataverse.Delete(ctx, conn.ID, args[0], args[1])
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s %s\n", args[0], args[1])
	return nil
}

// readRecordDocument loads the --data JSON document.
func readRecordDocument(stdin io.Reader) (map[string]interface{}, error) {
	if recordDataFile == "" {
		return nil, dverrors.New(dverrors.KindValidation,
			"no record document given; pass --data <file> or --data -")
	}

	var raw []byte
	var err error
	if recordDataFile == "-" {
		raw, err = io.ReadAll(stdin)
	} else {
		raw, err = os.ReadFile(recordDataFile)
	}
	if err != nil {
		return nil, dverrors.Wrap(dverrors.KindValidation, "could not read the record document", err)
	}

	var record map[string]interface{}
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, dverrors.Wrap(dverrors.KindValidation, "the record document is not a JSON object", err)
	}
	return record, nil
}
