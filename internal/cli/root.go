// Package cli implements the recall CLI commands.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/rcliao/recall/internal/config"
	"github.com/rcliao/recall/internal/dispatch"
	"github.com/rcliao/recall/internal/echo"
	"github.com/rcliao/recall/internal/embedding"
	"github.com/rcliao/recall/internal/logging"
	"github.com/rcliao/recall/internal/metrics"
	"github.com/rcliao/recall/internal/orchestrator"
	"github.com/rcliao/recall/internal/store"
)

var (
	configPath string
	dbPath     string
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "recall",
	Short: "Weighted memory with echo filtering and rule dispatch",
	Long: "recall stores memory units with an embedding, importance and emotional weight, " +
		"ranks them against a query, decays and consolidates them, and routes queries " +
		"to response strategies.",
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default: ./recall.yaml or ~/.recall/config.yaml)")
	RootCmd.PersistentFlags().StringVarP(&dbPath, "db", "d", "", "Database path (default: $RECALL_STORE__PATH or ~/.recall/recall.db)")
	RootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error")
}

// app is everything a command may need, built from the loaded config.
type app struct {
	cfg      *config.Config
	log      zerolog.Logger
	metrics  *metrics.Manager
	store    *store.SQLiteStore
	embedder embedding.Embedder
	rules    *dispatch.RuleSet
	orch     *orchestrator.Orchestrator
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	overrides := make(map[string]interface{})
	if dbPath != "" {
		overrides["store.path"] = dbPath
	}
	if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
		overrides["log.level"] = lvl
	}
	return config.NewLoader().Load(configPath, overrides)
}

// openApp loads config and wires the store, embedder, rules and orchestrator.
func openApp(cmd *cobra.Command) *app {
	cfg, err := loadConfig(cmd)
	if err != nil {
		exitErr("load config", err)
	}

	a := &app{
		cfg:     cfg,
		log:     logging.New(cfg.Log),
		metrics: metrics.NewManager(cfg.Metrics.Enabled),
	}

	opts := store.OptionsFromConfig(cfg)
	opts.Logger = a.log
	opts.Metrics = a.metrics
	a.store, err = store.NewSQLiteStore(cfg.Store.Path, opts)
	if err != nil {
		exitErr("open store", err)
	}

	a.embedder, err = embedding.New(cfg.Embedding, cfg.Store.Dimension)
	if err != nil {
		a.store.Close()
		exitErr("embedder", err)
	}

	a.rules, err = dispatch.Load(cfg.Dispatch.RulesFile)
	if err != nil {
		a.store.Close()
		exitErr("load rules", err)
	}

	filter, err := echo.NewFilter(cfg.Echo)
	if err != nil {
		a.store.Close()
		exitErr("echo filter", err)
	}

	a.orch, err = orchestrator.New(orchestrator.Deps{
		Store:    a.store,
		Embedder: a.embedder,
		Filter:   filter,
		Rules:    a.rules,
		Logger:   a.log,
		Metrics:  a.metrics,
	})
	if err != nil {
		a.store.Close()
		exitErr("orchestrator", err)
	}
	return a
}

func (a *app) Close() {
	a.store.Close()
}

// fail closes the store, then reports err and exits.
func (a *app) fail(msg string, err error) {
	a.Close()
	exitErr(msg, err)
}

// readContent takes content from args, falling back to piped stdin.
func readContent(args []string) string {
	if len(args) > 0 {
		return strings.TrimSpace(strings.Join(args, " "))
	}
	stat, _ := os.Stdin.Stat()
	if (stat.Mode() & os.ModeCharDevice) == 0 {
		b, err := io.ReadAll(os.Stdin)
		if err != nil {
			exitErr("read stdin", err)
		}
		return strings.TrimSpace(string(b))
	}
	return ""
}

func splitTags(s string) []string {
	var tags []string
	for _, t := range strings.Split(s, ",") {
		t = strings.TrimSpace(t)
		if t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

func printJSON(v interface{}) {
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
}

var osExit = os.Exit

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	osExit(1)
}
