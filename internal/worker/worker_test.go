package worker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/civicband/clerk-sub001/internal/config"
	"github.com/civicband/clerk-sub001/internal/extract"
	"github.com/civicband/clerk-sub001/internal/model"
	"github.com/civicband/clerk-sub001/internal/ocr"
	"github.com/civicband/clerk-sub001/internal/pipeline"
	"github.com/civicband/clerk-sub001/internal/plugin"
	"github.com/civicband/clerk-sub001/internal/queue"
	"github.com/civicband/clerk-sub001/internal/store"
)

func TestRunner_ProcessesFetchJobThenStopsOnCancel(t *testing.T) {
	dir := t.TempDir()
	st := store.NewMemory()
	q := queue.NewInMemory()
	reg := plugin.NewRegistry(st)
	reg.Register(&noopExtractor{})
	ocrReg := ocr.NewRegistry()
	cfg := config.Config{StorageDir: dir, EnableExtraction: false}
	pc := pipeline.New(cfg, st, q, reg, ocrReg, extract.NewMock())

	ctx := context.Background()
	require.NoError(t, st.CreateSite(ctx, model.Site{
		Subdomain: "site1", Pipeline: &model.PipelineConfig{Extractor: strPtr("noop")},
	}))
	require.NoError(t, q.Enqueue(ctx, model.Job{
		ID: "job-1", Type: model.JobFetch, Subdomain: "site1",
		Payload: map[string]any{"subdomain": "site1", "run_id": "run-1"}, Status: model.JobQueued,
	}))

	r := New(q, pc, []string{"fetch"}, "worker-1")

	runCtx, cancel := context.WithTimeout(ctx, 200*time.Millisecond)
	defer cancel()
	require.NoError(t, r.Run(runCtx))

	// The fetch handler found zero PDFs and should have marked the site
	// completed without leaving the job in a failed state.
	site, _, err := st.GetSite(ctx, "site1")
	require.NoError(t, err)
	require.Equal(t, model.StageCompleted, site.CurrentStage)
}

func TestRunner_UnknownJobTypeIsFailedNotPanicked(t *testing.T) {
	dir := t.TempDir()
	st := store.NewMemory()
	q := queue.NewInMemory()
	reg := plugin.NewRegistry(st)
	ocrReg := ocr.NewRegistry()
	cfg := config.Config{StorageDir: dir}
	pc := pipeline.New(cfg, st, q, reg, ocrReg, extract.NewMock())

	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, model.Job{
		ID: "job-unknown", Type: model.JobType("bogus"), Payload: map[string]any{}, Status: model.JobQueued,
	}))

	r := New(q, pc, []string{"default"}, "worker-1")
	runCtx, cancel := context.WithTimeout(ctx, 200*time.Millisecond)
	defer cancel()
	require.NoError(t, r.Run(runCtx))

	failed, err := q.FailedRegistry(ctx)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	require.Equal(t, "job-unknown", failed[0].ID)
}

type noopExtractor struct{}

func (n *noopExtractor) Label() string { return "noop" }
func (n *noopExtractor) Fetch(ctx context.Context, req plugin.FetchRequest) error { return nil }

func strPtr(s string) *string { return &s }
