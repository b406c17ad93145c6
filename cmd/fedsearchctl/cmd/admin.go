package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kailas-cloud/fedsearch/internal/app"
)

func newReindexCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "reindex",
		Short: "Enqueue index jobs for every record of every mapping",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return g.withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if err := requireIndexing(a); err != nil {
					return err
				}
				n, err := a.Indexing.ReindexAll(ctx, g.tenant)
				if err != nil {
					return fmt.Errorf("reindex: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Enqueued %d jobs\n", n)
				return drain(ctx, cmd, a)
			})
		},
	}
}

func newIndexCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "index <source-type> <id>...",
		Short: "Enqueue index jobs for specific records",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if err := requireIndexing(a); err != nil {
					return err
				}
				jobs, err := a.Indexing.IndexRecords(ctx, args[0], args[1:], g.tenant)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Enqueued %d jobs\n", len(jobs))
				return drain(ctx, cmd, a)
			})
		},
	}
}

func newDeleteCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <source-type> <id>...",
		Short: "Enqueue delete jobs for specific records",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if err := requireIndexing(a); err != nil {
					return err
				}
				jobs, err := a.Indexing.DeleteRecords(ctx, args[0], args[1:], g.tenant)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Enqueued %d jobs\n", len(jobs))
				return drain(ctx, cmd, a)
			})
		},
	}
}

func newFlushCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "flush <index>",
		Short: "Remove every document from an index and invalidate its cached results",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if err := requireIndexing(a); err != nil {
					return err
				}
				if err := a.Indexing.FlushIndex(ctx, args[0], g.tenant); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Flushed %s\n", args[0])
				return nil
			})
		},
	}
}

func newSyncSettingsCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "sync-settings",
		Short: "Create missing indexes and push mapping settings to every index",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return g.withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if err := requireIndexing(a); err != nil {
					return err
				}
				if err := a.Indexing.SyncSettings(ctx, g.tenant); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Settings synchronized")
				return nil
			})
		},
	}
}

// drain waits for in-process jobs; with a durable queue the server's workers process them.
func drain(ctx context.Context, cmd *cobra.Command, a *app.App) error {
	waited, err := a.Drain(ctx)
	if err != nil {
		return fmt.Errorf("wait for jobs: %w", err)
	}
	if !waited {
		return nil
	}
	failed := len(a.Failures.Failures())
	fmt.Fprintf(cmd.OutOrStdout(), "Processed in-process, %d failed\n", failed)
	if failed > 0 {
		return fmt.Errorf("%d jobs failed", failed)
	}
	return nil
}
