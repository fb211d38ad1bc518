package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rcliao/recall/internal/dispatch"
)

func init() {
	rules := &cobra.Command{
		Use:   "rules",
		Short: "Inspect the dispatch rule table",
	}

	check := &cobra.Command{
		Use:   "check [file]",
		Short: "Validate a rule table",
		Long: "Load a rule table (the configured one, or the built-in table when none is set) and " +
			"reject ambiguous rules: two rules at the same specificity that can match one query.",
		Args: cobra.MaximumNArgs(1),
		Run:  runRulesCheck,
	}

	explain := &cobra.Command{
		Use:   "explain [query]",
		Short: "Show which rule a query dispatches to",
		Args:  cobra.MinimumNArgs(1),
		Run:   runRulesExplain,
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the built-in rule table",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Print(string(dispatch.DefaultRulesYAML()))
		},
	}

	rules.AddCommand(check, explain, show)
	RootCmd.AddCommand(rules)
}

type ruleSummary struct {
	ID          string `json:"id"`
	StrategyID  string `json:"strategy_id"`
	Specificity int    `json:"specificity"`
	Match       string `json:"match"`
}

func loadRules(cmd *cobra.Command, args []string) *dispatch.RuleSet {
	var path string
	if len(args) == 1 {
		path = args[0]
	} else {
		cfg, err := loadConfig(cmd)
		if err != nil {
			exitErr("load config", err)
		}
		path = cfg.Dispatch.RulesFile
	}

	rs, err := dispatch.Load(path)
	if err != nil {
		exitErr("rules", err)
	}
	return rs
}

func runRulesCheck(cmd *cobra.Command, args []string) {
	rs := loadRules(cmd, args)

	out := struct {
		OK       bool          `json:"ok"`
		Fallback string        `json:"fallback"`
		Rules    []ruleSummary `json:"rules"`
	}{OK: true, Fallback: rs.Fallback()}
	for _, r := range rs.Rules() {
		out.Rules = append(out.Rules, ruleSummary{
			ID:          r.ID,
			StrategyID:  r.StrategyID,
			Specificity: r.EffectiveSpecificity(),
			Match:       r.Predicate.String(),
		})
	}
	printJSON(out)
}

func runRulesExplain(cmd *cobra.Command, args []string) {
	rs := loadRules(cmd, nil)
	printJSON(rs.Dispatch(strings.Join(args, " ")))
}
