package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/civicband/clerk-sub001/internal/cli"
	"github.com/civicband/clerk-sub001/internal/config"
	"github.com/civicband/clerk-sub001/internal/model"
	"github.com/civicband/clerk-sub001/internal/scheduler"
)

var enqueuePriority string

// newEnqueueCmd implements `enqueue SUBDOMAIN...`, spec.md §6.
func newEnqueueCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "enqueue SUBDOMAIN...",
		Short: "Queue a fetch run for one or more sites",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runEnqueue,
	}
	c.Flags().StringVar(&enqueuePriority, "priority", string(model.PriorityNormal), "high, normal or low")
	return c
}

func runEnqueue(cmd *cobra.Command, args []string) error {
	priority := model.Priority(enqueuePriority)
	switch priority {
	case model.PriorityHigh, model.PriorityNormal, model.PriorityLow:
	default:
		return newUsageError(fmt.Sprintf("--priority must be high, normal or low, got %q", enqueuePriority))
	}

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

	for _, subdomain := range args {
		runID, err := scheduler.EnqueueFetch(ctx, rt.Queue, rt.Store, subdomain, priority, scheduler.FetchOptions{})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "enqueued %s run %s at %s priority\n", subdomain, runID, priority)
	}
	return nil
}
