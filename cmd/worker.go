package cmd

import (
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/civicband/clerk-sub001/internal/cli"
	"github.com/civicband/clerk-sub001/internal/config"
	"github.com/civicband/clerk-sub001/internal/logging"
	"github.com/civicband/clerk-sub001/internal/queue"
	"github.com/civicband/clerk-sub001/internal/worker"
)

var (
	workerQueues string
	workerName   string
)

// newWorkerCmd implements `worker --queues=... --name=...`, spec.md §6.
func newWorkerCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "worker",
		Short: "Run a worker loop claiming jobs from one or more queues",
		RunE:  runWorker,
	}
	c.Flags().StringVar(&workerQueues, "queues", "", "comma-separated queue names to claim from (default: all stage queues plus high)")
	c.Flags().StringVar(&workerName, "name", "", "worker id recorded on claimed jobs (default: a random id)")
	c.Flags().String("stage", "", "convenience alias for --queues=<stage>,high, used by systemd units")
	c.Flags().String("worker-id", "", "alias for --name, used by systemd units")
	return c
}

func runWorker(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	queues, err := resolveWorkerQueues(cmd)
	if err != nil {
		return err
	}
	workerID, err := resolveWorkerID(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := cli.NewRuntime(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	log := logging.New("worker")
	log.Info("worker_starting", map[string]any{"worker_id": workerID, "queues": queues})

	runner := worker.New(rt.Queue, rt.PipelineContext(), queues, workerID)
	return runner.Run(ctx)
}

func resolveWorkerQueues(cmd *cobra.Command) ([]string, error) {
	if workerQueues != "" {
		var queues []string
		for _, q := range strings.Split(workerQueues, ",") {
			q = strings.TrimSpace(q)
			if q != "" {
				queues = append(queues, q)
			}
		}
		return queues, nil
	}
	if stage, _ := cmd.Flags().GetString("stage"); stage != "" {
		return []string{queue.HighQueueName, stage}, nil
	}
	return []string{queue.HighQueueName, "fetch", "ocr", "compilation", "extraction", "deploy"}, nil
}

func resolveWorkerID(cmd *cobra.Command) (string, error) {
	if workerName != "" {
		return workerName, nil
	}
	if id, _ := cmd.Flags().GetString("worker-id"); id != "" {
		return id, nil
	}
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
