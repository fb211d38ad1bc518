package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rcliao/recall/internal/orchestrator"
	"github.com/rcliao/recall/internal/store"
)

func init() {
	retrieve := &cobra.Command{
		Use:   "retrieve [query]",
		Short: "Rank memory units against a query",
		Long: "Embed the query, rank active units by similarity, importance and emotional weight, " +
			"and reinforce the ones returned. Use --preview to rank without reinforcing.",
		Args: cobra.MinimumNArgs(1),
		Run:  runRetrieve,
	}
	addRetrieveFlags(retrieve)

	handle := &cobra.Command{
		Use:   "handle [query]",
		Short: "Dispatch a query and assemble echo-filtered context",
		Long: "Run the full query path: pick a response strategy from the rule table, retrieve " +
			"memory units and replace any that merely echo the query.",
		Args: cobra.MinimumNArgs(1),
		Run:  runHandle,
	}
	addRetrieveFlags(handle)
	handle.Flags().String("session", "", "Session id carried into the response")

	RootCmd.AddCommand(retrieve, handle)
}

func addRetrieveFlags(cmd *cobra.Command) {
	cmd.Flags().Int("k", 0, "Max results (default: ranking.default_k)")
	cmd.Flags().Float64("min-importance", 0, "Skip units below this importance")
	cmd.Flags().StringP("tags", "t", "", "Only consider units with one of these tags")
	cmd.Flags().String("emphasis", "", "Amplify emotional weight of returned units with these tags")
	cmd.Flags().Bool("preview", false, "Rank without reinforcing")
}

func runRetrieve(cmd *cobra.Command, args []string) {
	k, _ := cmd.Flags().GetInt("k")
	minImp, _ := cmd.Flags().GetFloat64("min-importance")
	tags, _ := cmd.Flags().GetString("tags")
	emphasis, _ := cmd.Flags().GetString("emphasis")
	preview, _ := cmd.Flags().GetBool("preview")
	query := strings.Join(args, " ")

	a := openApp(cmd)
	defer a.Close()

	vec, err := a.embedder.Embed(cmd.Context(), query)
	if err != nil {
		a.fail("embed", err)
	}

	p := store.RetrieveParams{
		Embedding:     vec,
		K:             k,
		MinImportance: minImp,
		Tags:          splitTags(tags),
		Emphasis:      splitTags(emphasis),
	}
	retrieve := a.store.Retrieve
	if preview {
		retrieve = a.store.Rank
	}
	results, err := retrieve(cmd.Context(), p)
	if err != nil {
		a.fail("retrieve", err)
	}

	if len(results) == 0 {
		fmt.Println("[]")
		return
	}
	printJSON(results)
}

func runHandle(cmd *cobra.Command, args []string) {
	k, _ := cmd.Flags().GetInt("k")
	minImp, _ := cmd.Flags().GetFloat64("min-importance")
	tags, _ := cmd.Flags().GetString("tags")
	emphasis, _ := cmd.Flags().GetString("emphasis")
	preview, _ := cmd.Flags().GetBool("preview")
	session, _ := cmd.Flags().GetString("session")

	a := openApp(cmd)
	defer a.Close()

	resp, err := a.orch.Handle(cmd.Context(), orchestrator.Request{
		SessionID:     session,
		Query:         strings.Join(args, " "),
		K:             k,
		MinImportance: minImp,
		Tags:          splitTags(tags),
		Emphasis:      splitTags(emphasis),
		Preview:       preview,
	})
	if err != nil {
		a.fail("handle", err)
	}
	printJSON(resp)
}
