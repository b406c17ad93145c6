// Package cmd implements the fedsearchctl commands.
package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kailas-cloud/fedsearch/internal/app"
	"github.com/kailas-cloud/fedsearch/internal/config"
	logpkg "github.com/kailas-cloud/fedsearch/internal/logger"
	"github.com/kailas-cloud/fedsearch/internal/version"
)

// globalFlags are shared by every command.
type globalFlags struct {
	env        string
	configPath string
	tenant     string
	jsonOutput bool
	verbose    bool
}

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	g := &globalFlags{}

	cmd := &cobra.Command{
		Use:   "fedsearchctl",
		Short: "Administer fedsearch indexes",
		Long: `fedsearchctl runs maintenance operations against the search engine
and the job queue configured for a fedsearch deployment.

The configuration is read the same way the server reads it: config/{ENV}.yaml,
or the file given with --config.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	cmd.SetVersionTemplate("fedsearchctl version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&g.env, "env", config.GetEnv(), "Environment name (selects config/{env}.yaml)")
	cmd.PersistentFlags().StringVar(&g.configPath, "config", "", "Path to a config file (overrides --env)")
	cmd.PersistentFlags().StringVar(&g.tenant, "tenant", "", "Tenant (empty: default tenant, or every configured tenant)")
	cmd.PersistentFlags().BoolVar(&g.jsonOutput, "json", false, "Output as JSON")
	cmd.PersistentFlags().BoolVarP(&g.verbose, "verbose", "v", false, "Log at debug level")

	cmd.AddCommand(
		newReindexCmd(g),
		newIndexCmd(g),
		newDeleteCmd(g),
		newFlushCmd(g),
		newSyncSettingsCmd(g),
		newWarmCacheCmd(g),
		newDoctorCmd(g),
		newStatusCmd(g),
		newTenantsCmd(g),
		newVersionCmd(),
	)
	return cmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

func (g *globalFlags) loadConfig() (config.Config, error) {
	if g.configPath != "" {
		return config.LoadFile(g.configPath)
	}
	return config.Load(g.env)
}

// withApp builds the application, runs fn and releases everything afterwards.
func (g *globalFlags) withApp(ctx context.Context, fn func(ctx context.Context, a *app.App) error) error {
	cfg, err := g.loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	level := "warn"
	if g.verbose {
		level = "debug"
	}
	logger, err := logpkg.NewLogger(g.env, level)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	a, err := app.New(ctx, cfg, logger.With(zap.String("component", "fedsearchctl")))
	if err != nil {
		return err
	}
	defer a.Close()

	return fn(ctx, a)
}

func requireIndexing(a *app.App) error {
	if a.Indexing == nil {
		return app.ErrIndexingDisabled
	}
	return nil
}
