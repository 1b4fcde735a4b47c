package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/civicband/clerk-sub001/internal/cli"
	"github.com/civicband/clerk-sub001/internal/config"
	"github.com/civicband/clerk-sub001/internal/reconciler"
)

// newReconcilePipelineCmd implements `reconcile-pipeline`, spec.md §6.
func newReconcilePipelineCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile-pipeline",
		Short: "Run the self-healing reconciler once",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			rt, err := cli.NewRuntime(ctx, cfg)
			if err != nil {
				return err
			}
			defer rt.Close()

			rec := reconciler.New(rt.Store, rt.Queue, cfg.StorageDir)
			if err := rec.Sweep(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "reconcile sweep complete")
			return nil
		},
	}
}
