package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rcliao/recall/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "insert [content]",
		Short: "Store a memory unit",
		Long:  "Store a memory unit. Content can be a positional arg or piped via stdin; it is embedded with the configured provider.",
		Run:   runInsert,
	}

	cmd.Flags().StringP("tags", "t", "", "Comma-separated tags (intellectual, relational, creative, reflective, practical, ...)")
	cmd.Flags().Float64P("emotion", "e", 0, "Emotional weight in [0,1]")

	RootCmd.AddCommand(cmd)
}

func runInsert(cmd *cobra.Command, args []string) {
	tags, _ := cmd.Flags().GetString("tags")
	emotion, _ := cmd.Flags().GetFloat64("emotion")

	content := readContent(args)
	if content == "" {
		exitErr("insert", fmt.Errorf("content is required (positional arg or stdin)"))
	}

	a := openApp(cmd)
	defer a.Close()

	vec, err := a.embedder.Embed(cmd.Context(), content)
	if err != nil {
		a.fail("embed", err)
	}

	u, err := a.store.Insert(cmd.Context(), store.InsertParams{
		Content:         content,
		Embedding:       vec,
		EmotionalWeight: emotion,
		Tags:            splitTags(tags),
	})
	if err != nil {
		a.fail("insert", err)
	}

	printJSON(u)
}
