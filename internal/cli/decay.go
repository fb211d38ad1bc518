package cli

import (
	"time"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "decay",
		Short: "Run one importance decay sweep",
		Run:   runDecay,
	}

	cmd.Flags().String("at", "", "Sweep as of this RFC 3339 time (default: now)")

	RootCmd.AddCommand(cmd)
}

func runDecay(cmd *cobra.Command, args []string) {
	at, _ := cmd.Flags().GetString("at")

	now := time.Now()
	if at != "" {
		t, err := time.Parse(time.RFC3339, at)
		if err != nil {
			exitErr("parse --at", err)
		}
		now = t
	}

	a := openApp(cmd)
	defer a.Close()

	res, err := a.store.DecaySweep(cmd.Context(), now)
	if err != nil {
		a.fail("decay", err)
	}
	printJSON(res)
}
