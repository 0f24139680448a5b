package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Sghirate/SlackSwarmBot/internal/api"
	"github.com/Sghirate/SlackSwarmBot/internal/daemon"
)

var serveStop bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the event intake server",
	Long: `Run the HTTP server that accepts Swarm activity events and relays
them to Slack. By default it listens on :8389. Use --listen to change it.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		pf := daemon.NewPIDFile(filepath.Join(viper.GetString("state_dir"), "swarmbot.pid"))

		if serveStop {
			return stopServer(pf)
		}

		if pid, running := pf.IsRunning(); running {
			return fmt.Errorf("swarmbot is already running (pid %d)", pid)
		}

		logger := newLogger()
		engine, err := buildEngine(logger)
		if err != nil {
			return err
		}
		s, err := getStore()
		if err != nil {
			return err
		}
		defer s.Close()

		if err := pf.Write(); err != nil {
			return fmt.Errorf("write pid file: %w", err)
		}
		defer func() { _ = pf.Remove() }()

		addr := viper.GetString("listen")
		server := &http.Server{
			Addr:    addr,
			Handler: api.NewServer(s, engine, logger).Router(),
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), shutdownSignals()...)
		defer stop()

		errCh := make(chan error, 1)
		go func() {
			logger.Info("intake server listening", "addr", addr)
			errCh <- server.ListenAndServe()
		}()

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
		}

		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	},
}

// stopServer signals a running instance via its pid file.
func stopServer(pf *daemon.PIDFile) error {
	pid, running := pf.IsRunning()
	if !running {
		return fmt.Errorf("swarmbot is not running")
	}
	if err := pf.Signal(sigTERM()); err != nil {
		return fmt.Errorf("stop pid %d: %w", pid, err)
	}
	ui.Success("Sent shutdown signal to pid %d", pid)
	return nil
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("listen", ":8389", "address to listen on")
	serveCmd.Flags().BoolVar(&serveStop, "stop", false, "stop a running server")
	_ = viper.BindPFlag("listen", serveCmd.Flags().Lookup("listen"))
}
