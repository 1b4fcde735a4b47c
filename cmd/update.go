package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/civicband/clerk-sub001/internal/cli"
	"github.com/civicband/clerk-sub001/internal/config"
	"github.com/civicband/clerk-sub001/internal/model"
	"github.com/civicband/clerk-sub001/internal/scheduler"
)

var (
	updateSubdomain  string
	updateNextSite   bool
	updateAllYears   bool
	updateAllAgendas bool
	updateSkipFetch  bool
	updateOCRBackend string
)

// newUpdateCmd implements `update`, spec.md §6.
func newUpdateCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "update",
		Short: "Trigger a pipeline run, either for one site or the next eligible one",
		RunE:  runUpdate,
	}
	c.Flags().StringVarP(&updateSubdomain, "subdomain", "s", "", "subdomain to run immediately, at high priority")
	c.Flags().BoolVar(&updateNextSite, "next-site", false, "pick the oldest eligible site via the scheduler")
	c.Flags().BoolVar(&updateAllYears, "all-years", false, "re-scrape every year, not just the current one")
	c.Flags().BoolVar(&updateAllAgendas, "all-agendas", false, "re-scrape agendas in addition to minutes")
	c.Flags().BoolVar(&updateSkipFetch, "skip-fetch", false, "assume PDFs and OCR output are already on disk and recover from ocr-coordinator onward")
	c.Flags().StringVar(&updateOCRBackend, "ocr-backend", "", "tesseract or vision; defaults to DEFAULT_OCR_BACKEND")
	return c
}

func runUpdate(cmd *cobra.Command, args []string) error {
	if updateSubdomain == "" && !updateNextSite {
		return newUsageError("update requires either -s SUBDOMAIN or --next-site")
	}
	if updateSubdomain != "" && updateNextSite {
		return newUsageError("update accepts either -s SUBDOMAIN or --next-site, not both")
	}
	if updateOCRBackend != "" && updateOCRBackend != string(config.BackendTesseract) && updateOCRBackend != string(config.BackendVision) {
		return newUsageError(fmt.Sprintf("--ocr-backend must be %q or %q, got %q", config.BackendTesseract, config.BackendVision, updateOCRBackend))
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

	if updateNextSite {
		sched := scheduler.New(rt.Store, rt.Queue)
		if err := sched.Tick(ctx); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "scheduler tick complete")
		return nil
	}

	if updateSkipFetch {
		return enqueueRecoveryCoordinator(ctx, rt, updateSubdomain)
	}

	runID, err := scheduler.EnqueueManualFetchWithOptions(ctx, rt.Queue, rt.Store, updateSubdomain, scheduler.FetchOptions{
		AllYears:   updateAllYears,
		AllAgendas: updateAllAgendas,
		Backend:    updateOCRBackend,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "enqueued fetch run %s for %s\n", runID, updateSubdomain)
	return nil
}

// enqueueRecoveryCoordinator implements --skip-fetch: rather than
// enqueueing a fetch job (which would re-run the extractor), assume the
// site's PDFs and OCR output are already on disk and re-enter the
// pipeline at ocr-coordinator, the same recovery path the reconciler
// uses for a stuck site.
func enqueueRecoveryCoordinator(ctx context.Context, rt *cli.Runtime, subdomain string) error {
	id, err := uuid.NewRandom()
	if err != nil {
		return err
	}
	job := model.Job{
		ID:        id.String(),
		Type:      model.JobOCRCoordinator,
		Subdomain: subdomain,
		RunID:     subdomain + "_" + fmt.Sprint(time.Now().UTC().Unix()),
		Stage:     model.StageCompilation,
		Priority:  model.PriorityHigh,
		Payload:   map[string]any{"subdomain": subdomain},
		Status:    model.JobQueued,
	}
	if err := rt.Queue.Enqueue(ctx, job); err != nil {
		return err
	}
	return rt.Store.TrackJob(ctx, job.ID, subdomain, model.JobOCRCoordinator, model.StageCompilation, "")
}
