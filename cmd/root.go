// Package cmd defines and implements the CLI commands for the bizq executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/bizq-orchestrator/internal/api"
	"github.com/JakeFAU/bizq-orchestrator/internal/app"
	"github.com/JakeFAU/bizq-orchestrator/internal/config"
	"github.com/JakeFAU/bizq-orchestrator/internal/logging"
)

// appKeyType is the key for storing the session in the context.
type appKeyType string

const appKey appKeyType = "app"

// App defines the application interface that commands use.
// Tests inject a fake through newApp.
type App interface {
	Close()
	GetLogger() *zap.Logger
	Handler() http.Handler
	CacheAdmin() api.CacheAdmin
	Probe(ctx context.Context) (string, error)
}

// session is what PersistentPreRunE hands to subcommands.
type session struct {
	cfg config.Config
	app App
}

// newApp is the application factory. It is a variable so tests can replace it.
var newApp = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (App, error) {
	return app.New(ctx, cfg, logger)
}

// loadConfig is swapped in tests to avoid touching the environment.
var loadConfig = config.Load

func newRootCmd() *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "bizq",
		Short: "Request orchestration service for AI-generated business suggestions.",
		Long: `bizq sits between clients and an AI text generator. It caches generated
candidates, rate-limits clients over a sliding window, falls back to canned
content when the generator fails, and optionally checks domain availability.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cfgFile)
			if err != nil {
				return err
			}
			logger, err := logging.New(logging.Options{
				Development: cfg.Logging.Development,
				Level:       cfg.Logging.Level,
			})
			if err != nil {
				return err
			}
			zap.ReplaceGlobals(logger)

			appInstance, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, &session{cfg: cfg, app: appInstance}))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			s, err := resolveSession(cmd.Context())
			if err != nil {
				return
			}
			s.app.Close()
			_ = s.app.GetLogger().Sync()
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to a config file (env vars use the BIZQ_ prefix)")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newCacheCmd())
	cmd.AddCommand(newProbeCmd())

	return cmd
}

func resolveSession(ctx context.Context) (*session, error) {
	if ctx == nil {
		return nil, errors.New("command context is nil")
	}
	s, ok := ctx.Value(appKey).(*session)
	if !ok || s == nil || s.app == nil {
		return nil, errors.New("application not initialized")
	}
	return s, nil
}

// Execute is the main entry point.
func Execute(ctx context.Context) error {
	return newRootCmd().ExecuteContext(ctx)
}
