// Package cmd defines and implements the CLI commands for the contact-intake executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/contact-intake/internal/config"
	"github.com/JakeFAU/contact-intake/internal/crm"
	"github.com/JakeFAU/contact-intake/internal/server"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// App defines the application interface that commands will use.
// This allows us to inject a fake app during tests.
type App interface {
	Run(ctx context.Context) error
	Reconcile(ctx context.Context) (crm.Report, error)
	Close(ctx context.Context)
}

// newApp is the application factory. It's a variable so tests can replace it.
var newApp = func(ctx context.Context, cfg *config.Config) (App, error) {
	app, err := server.Build(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return app, nil
}

type rootOptions struct {
	cfgFile string
	envFile string
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "contact-intake",
		Short: "Contact form intake with rate limiting and CRM reconciliation.",
		Long: `contact-intake accepts contact form submissions, filters bots and
abusive senders, stores every admitted lead, and mirrors it into HubSpot.
Leads the CRM could not take are marked needs_sync and can be replayed with
the reconcile command.`,
		SilenceUsage: true,

		// Builds the application after flags are parsed and before the
		// subcommand's RunE.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.LoadDotEnv(opts.envFile); err != nil {
				return err
			}
			cfg, err := config.Load(opts.cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			appInstance, err := newApp(cmd.Context(), &cfg)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if appInstance, ok := cmd.Context().Value(appKey).(App); ok && appInstance != nil {
				appInstance.Close(context.WithoutCancel(cmd.Context()))
			}
		},
	}

	cmd.PersistentFlags().StringVar(&opts.cfgFile, "config", "", "path to a config file (yaml, json or toml)")
	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "dotenv file loaded before reading the environment")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newReconcileCmd())

	return cmd
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "command execution failed:", err)
		os.Exit(1)
	}
}
