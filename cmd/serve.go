package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/chanlink/internal/config"
	chttp "github.com/nextlevelbuilder/chanlink/internal/http"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the pairing API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			app, err := buildApp(cfg)
			if err != nil {
				return err
			}
			defer app.Close()

			api := chttp.NewServer(app.svc, cfg.HTTP.AuthToken, cfg.HTTP.UserRPM)
			defer api.Close()

			// Hot reload: auth token changes apply without restart.
			watcher, err := config.NewWatcher(flagConfig)
			if err == nil {
				watcher.OnChange(func(next *config.Config) {
					api.SetAuthToken(next.HTTP.AuthToken)
				})
				if err := watcher.Start(); err != nil {
					slog.Warn("config watcher unavailable", "error", err)
				} else {
					defer watcher.Stop()
				}
			}

			srv := &http.Server{
				Addr:              cfg.HTTP.Addr,
				Handler:           api.Handler(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				slog.Info("pairing API listening", "addr", cfg.HTTP.Addr)
				errCh <- srv.ListenAndServe()
			}()

			stop := make(chan os.Signal, 1)
			signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("serve: %w", err)
				}
			case sig := <-stop:
				slog.Info("shutting down", "signal", sig.String())
				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := srv.Shutdown(ctx); err != nil {
					return fmt.Errorf("shutdown: %w", err)
				}
			}
			return nil
		},
	}
}
