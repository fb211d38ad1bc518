package cli

import (
	"github.com/spf13/cobra"
)

func init() {
	get := &cobra.Command{
		Use:   "get <id>",
		Short: "Show a memory unit",
		Args:  cobra.ExactArgs(1),
		Run:   runGet,
	}

	provenance := &cobra.Command{
		Use:   "provenance <id>",
		Short: "Show a unit with its consolidation sources and summary",
		Args:  cobra.ExactArgs(1),
		Run:   runProvenance,
	}

	RootCmd.AddCommand(get, provenance)
}

func runGet(cmd *cobra.Command, args []string) {
	a := openApp(cmd)
	defer a.Close()

	u, err := a.store.Get(cmd.Context(), args[0])
	if err != nil {
		a.fail("get", err)
	}
	printJSON(u)
}

func runProvenance(cmd *cobra.Command, args []string) {
	a := openApp(cmd)
	defer a.Close()

	p, err := a.store.Provenance(cmd.Context(), args[0])
	if err != nil {
		a.fail("provenance", err)
	}
	printJSON(p)
}
