package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rcliao/recall/internal/server"
	"github.com/rcliao/recall/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and run periodic decay",
		Run:   runServe,
	}

	cmd.Flags().String("addr", "", "Listen address (default: server.addr)")
	cmd.Flags().Bool("no-decay", false, "Disable the background decay sweep")

	RootCmd.AddCommand(cmd)
}

func runServe(cmd *cobra.Command, args []string) {
	addr, _ := cmd.Flags().GetString("addr")
	noDecay, _ := cmd.Flags().GetBool("no-decay")

	a := openApp(cmd)
	defer a.Close()

	cfg := a.cfg.Server
	if addr != "" {
		cfg.Addr = addr
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if !noDecay {
		decayer := store.NewDecayer(a.store, a.cfg.Decay.Interval, time.Now, a.log)
		if err := decayer.Start(ctx); err != nil {
			a.fail("start decay", err)
		}
		defer decayer.Stop()
	}

	h := server.NewHandler(a.store, a.embedder, a.orch, a.log)
	router := server.NewRouter(h, a.metrics, a.cfg.Metrics.Path, a.log)
	srv := server.New(cfg, router, a.log)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			a.log.Error().Err(err).Msg("server stopped")
		}
		return
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error().Err(err).Msg("shutdown failed")
	}
}
