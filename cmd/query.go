package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"dvbox/internal/dverrors"
)

var queryFetchXMLFile string

// queryCmd represents the query command.
var queryCmd = &cobra.Command{
	Use:   "query [odata-query]",
	Short: "Run an OData or FetchXML query",
	Long: `Run a read-only query against the current connection.

The positional argument is an OData query relative to the Web API root.
Alternatively --fetchxml reads a FetchXML document from a file; the
target table is taken from its <entity name=...> element.

Examples:
  dvbox query 'accounts?$select=name&$top=10'
  dvbox query 'contacts?$filter=lastname eq %27Smith%27'
  dvbox query --fetchxml ./active-accounts.xml`,
	Args: cobra.MaximumNArgs(1),
	RunE: runQuery,
}

func init() {
	rootCmd.AddCommand(queryCmd)
	queryCmd.Flags().StringVar(&queryFetchXMLFile, "fetchxml", "", "path to a FetchXML document to execute")
}

func runQuery(cmd *cobra.Command, args []string) error {
	a, err := ensureApp(cmd)
	if err != nil {
		return err
	}

	conn, err := resolveConnection(a, flagConnection)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	var result map[string]interface{}

	switch {
	case queryFetchXMLFile != "":
		if len(args) > 0 {
			return dverrors.New(dverrors.KindValidation,
				"pass either an OData query or --fetchxml, not both")
		}
		raw, err := os.ReadFile(queryFetchXMLFile)
		if err != nil {
			return dverrors.Wrap(dverrors.KindValidation, "could not read the FetchXML file", err)
		}
		err = withReauth(ctx, a, conn, func() error {
			var opErr error
			result, opErr = a.dataverse.FetchXML(ctx, conn.ID, string(raw))
			return opErr
		})
		if err != nil {
			return err
		}

	case len(args) == 1:
		err = withReauth(ctx, a, conn, func() error {
			var opErr error
			result, opErr = a.dataverse.QueryData(ctx, conn.ID, args[0])
			return opErr
		})
		if err != nil {
			return err
		}

	default:
		return dverrors.New(dverrors.KindValidation,
			"no query given; pass an OData query or --fetchxml <file>")
	}

	return printJSON(cmd.OutOrStdout(), result)
}
