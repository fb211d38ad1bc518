package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rcliao/recall/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List memory units in insertion order",
		Run:   runList,
	}

	cmd.Flags().StringP("tags", "t", "", "Filter by tags (comma-separated, any match)")
	cmd.Flags().Bool("archived", false, "Include units archived by consolidation")
	cmd.Flags().IntP("limit", "l", 20, "Max results")
	cmd.Flags().Bool("ids-only", false, "Only output unit ids")

	RootCmd.AddCommand(cmd)
}

func runList(cmd *cobra.Command, args []string) {
	tags, _ := cmd.Flags().GetString("tags")
	archived, _ := cmd.Flags().GetBool("archived")
	limit, _ := cmd.Flags().GetInt("limit")
	idsOnly, _ := cmd.Flags().GetBool("ids-only")

	a := openApp(cmd)
	defer a.Close()

	units, err := a.store.List(cmd.Context(), store.ListParams{
		Tags:            splitTags(tags),
		IncludeArchived: archived,
		Limit:           limit,
	})
	if err != nil {
		a.fail("list", err)
	}

	if idsOnly {
		for _, u := range units {
			fmt.Println(u.ID)
		}
		return
	}
	if len(units) == 0 {
		fmt.Println("[]")
		return
	}
	printJSON(units)
}
