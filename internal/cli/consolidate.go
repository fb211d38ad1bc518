package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rcliao/recall/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "consolidate <id> <id> [id...]",
		Short: "Fold units into a summary unit",
		Long: "Create a summary unit from two or more active units. The sources are archived and " +
			"link to the summary. Summary content comes from --content or stdin.",
		Args: cobra.MinimumNArgs(2),
		Run:  runConsolidate,
	}

	cmd.Flags().String("content", "", "Summary content (default: read from stdin)")

	RootCmd.AddCommand(cmd)
}

func runConsolidate(cmd *cobra.Command, args []string) {
	content, _ := cmd.Flags().GetString("content")
	if content == "" {
		content = readContent(nil)
	}
	if content == "" {
		exitErr("consolidate", fmt.Errorf("summary content is required (--content or stdin)"))
	}

	a := openApp(cmd)
	defer a.Close()

	vec, err := a.embedder.Embed(cmd.Context(), content)
	if err != nil {
		a.fail("embed", err)
	}

	u, err := a.store.Consolidate(cmd.Context(), store.ConsolidateParams{
		SourceIDs: args,
		Content:   content,
		Embedding: vec,
	})
	if err != nil {
		a.fail("consolidate", err)
	}
	printJSON(u)
}
