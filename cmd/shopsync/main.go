// Command shopsync is the operational CLI for the local sync store: it
// inspects connectivity and queue state, drains pending mutations, and
// manages the local account.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/liyuan/shopsync/internal/auth"
	"github.com/liyuan/shopsync/internal/config"
	"github.com/liyuan/shopsync/internal/connectivity"
	"github.com/liyuan/shopsync/internal/gateway"
	"github.com/liyuan/shopsync/internal/ledger"
	"github.com/liyuan/shopsync/internal/logging"
	"github.com/liyuan/shopsync/internal/remote"
	"github.com/liyuan/shopsync/internal/store"
	syncengine "github.com/liyuan/shopsync/internal/sync"
)

var (
	flagConfig  string
	flagDataDir string
	flagBaseURL string
)

var rootCmd = &cobra.Command{
	Use:           "shopsync",
	Short:         "Offline-first shop data synchronizer",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "path to a YAML config file")
	rootCmd.PersistentFlags().StringVar(&flagDataDir, "data-dir", "", "directory holding the local database")
	rootCmd.PersistentFlags().StringVar(&flagBaseURL, "base-url", "", "remote API base URL")
}

// app bundles the wired components a command needs.
type app struct {
	cfg      *config.Config
	store    *store.Store
	ledger   *ledger.Ledger
	auth     *auth.Simulator
	observer *connectivity.Prober
	engine   *syncengine.Engine
	gateway  *gateway.Gateway
}

// openApp resolves configuration and wires the full component graph.
// Callers must Close it.
func openApp() (*app, error) {
	var opts []config.Option
	if flagDataDir != "" {
		opts = append(opts, config.WithDataDir(flagDataDir))
	}
	if flagBaseURL != "" {
		opts = append(opts, config.WithBaseURL(flagBaseURL))
	}

	cfg, err := config.Load(flagConfig, opts...)
	if err != nil {
		return nil, fmt.Errorf("resolve config: %w", err)
	}

	logging.Init(os.Stderr, cfg.LogLevel)
	log := logging.Get()

	s, err := store.Open(cfg.DataDir, store.DefaultSchema(), log)
	if err != nil {
		return nil, fmt.Errorf("open local store: %w", err)
	}

	l := ledger.New(s.DB(), log)
	minter := auth.NewTokenMinter(cfg.TokenSecret, cfg.AccessTokenTTL, cfg.RefreshTTL)
	sim := auth.NewSimulator(s, minter, log)
	obs := connectivity.NewProber(cfg.BaseURL, cfg.SyncInterval, log)
	rc := remote.NewHTTPClient(cfg.BaseURL, log)

	engine := syncengine.NewEngine(l, rc, obs, syncengine.Options{
		Interval:       cfg.SyncInterval,
		RequestTimeout: cfg.RequestTimeout,
		BackoffBase:    cfg.BackoffBase,
		BackoffCap:     cfg.BackoffCap,
	}, log)

	gw := gateway.New(s, l, sim, rc, obs, gateway.Options{
		RequestTimeout: cfg.RequestTimeout,
	}, log)
	gw.RegisterReconcilers(engine)

	return &app{
		cfg:      cfg,
		store:    s,
		ledger:   l,
		auth:     sim,
		observer: obs,
		engine:   engine,
		gateway:  gw,
	}, nil
}

func (a *app) Close() {
	a.store.Close()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
