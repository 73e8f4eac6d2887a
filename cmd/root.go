// Package cmd implements the chanlink CLI.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/chanlink/internal/artifact"
	"github.com/nextlevelbuilder/chanlink/internal/config"
	"github.com/nextlevelbuilder/chanlink/internal/gateway"
	"github.com/nextlevelbuilder/chanlink/internal/pairing"
	"github.com/nextlevelbuilder/chanlink/internal/store"
	"github.com/nextlevelbuilder/chanlink/internal/store/pg"
	"github.com/nextlevelbuilder/chanlink/internal/store/sqlite"
	"github.com/nextlevelbuilder/chanlink/internal/webhook"
)

var (
	flagConfig  string
	flagVerbose bool
)

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chanlink",
		Short: "Messaging-channel pairing and webhook provisioning",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelInfo
			if flagVerbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
		},
	}

	cmd.PersistentFlags().StringVar(&flagConfig, "config", config.DefaultPath(), "config file path")
	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "debug logging")

	cmd.AddCommand(serveCmd())
	cmd.AddCommand(pairCmd())
	cmd.AddCommand(connectionsCmd())

	return cmd
}

// Execute runs the CLI.
func Execute() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// openStore picks the backend from config: Postgres in managed mode,
// SQLite otherwise. Mode "memory" keeps everything in process for throwaway
// runs.
func openStore(cfg *config.Config) (store.ConnectionStore, error) {
	sc := store.StoreConfig{
		PostgresDSN: cfg.Store.PostgresDSN,
		Mode:        cfg.Store.Mode,
		SQLitePath:  cfg.Store.SQLitePath,
	}
	if sc.Mode == "memory" {
		return store.NewMemoryConnectionStore(), nil
	}
	if sc.IsManaged() {
		db, err := pg.OpenDB(sc.PostgresDSN)
		if err != nil {
			return nil, err
		}
		return pg.NewConnectionStore(db)
	}
	return sqlite.NewConnectionStore(sc.SQLitePath)
}

// app is the wired object graph shared by the commands.
type app struct {
	conns    store.ConnectionStore
	gw       *gateway.Client
	provider *artifact.Provider
	svc      *pairing.Service
}

func (a *app) Close() { a.conns.Close() }

// buildApp wires the pairing service and its collaborators from config.
func buildApp(cfg *config.Config) (*app, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	conns, err := openStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	gw := gateway.NewClient(cfg.Gateway.BaseURL, cfg.Gateway.RPM)
	provider := artifact.NewProvider(gw, conns)
	registrar := webhook.NewRegistrar(gw, conns, cfg.CallbackBaseURL)
	svc := pairing.NewService(conns, gw, provider, registrar)
	return &app{conns: conns, gw: gw, provider: provider, svc: svc}, nil
}

func loadConfig() (*config.Config, error) {
	return config.Load(flagConfig)
}
