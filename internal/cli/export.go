package cli

import (
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export every unit as JSON",
		Long:  "Export every unit, archived ones included, as a JSON array. Pipe into import to restore.",
		Run:   runExport,
	}

	RootCmd.AddCommand(cmd)
}

func runExport(cmd *cobra.Command, args []string) {
	a := openApp(cmd)
	defer a.Close()

	units, err := a.store.ExportAll(cmd.Context())
	if err != nil {
		a.fail("export", err)
	}
	printJSON(units)
}
