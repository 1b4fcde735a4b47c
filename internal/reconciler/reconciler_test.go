package reconciler

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/civicband/clerk-sub001/internal/layout"
	"github.com/civicband/clerk-sub001/internal/model"
	"github.com/civicband/clerk-sub001/internal/queue"
	"github.com/civicband/clerk-sub001/internal/store"
)

func TestSweep_SkipsCompletedAndFreshSites(t *testing.T) {
	dir := t.TempDir()
	st := store.NewMemory()
	q := queue.NewInMemory()
	r := New(st, q, dir)
	ctx := context.Background()

	require.NoError(t, st.CreateSite(ctx, model.Site{Subdomain: "done"}))
	completed := model.StageCompleted
	require.NoError(t, st.UpdateSite(ctx, "done", store.SiteUpdate{CurrentStage: &completed}))

	fresh := time.Now().Add(-10 * time.Minute)
	require.NoError(t, st.CreateSite(ctx, model.Site{Subdomain: "fresh", UpdatedAt: fresh}))
	ocrStage := model.StageOCR
	require.NoError(t, st.UpdateSite(ctx, "fresh", store.SiteUpdate{CurrentStage: &ocrStage}))

	require.NoError(t, r.Sweep(ctx))

	_, ok, err := q.Claim(ctx, []string{"compilation"}, "worker-1", 0)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestSweep_ReEnqueuesCoordinatorForStuckSiteWithProgress(t *testing.T) {
	dir := t.TempDir()
	st := store.NewMemory()
	q := queue.NewInMemory()
	r := New(st, q, dir)
	ctx := context.Background()

	l := layout.New(dir, "stuck")
	pdfPath := l.PDFPath(false, "council", "2024-01-01")
	require.NoError(t, os.MkdirAll(filepath.Dir(pdfPath), 0o755))
	require.NoError(t, os.WriteFile(pdfPath, []byte("pdf"), 0o644))
	txtDir := l.TxtMeetingDateDir(false, "council", "2024-01-01")
	require.NoError(t, os.MkdirAll(txtDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(txtDir, "page-1.txt"), []byte("hi"), 0o644))

	stale := time.Now().Add(-3 * time.Hour)
	ocrStage := model.StageOCR
	require.NoError(t, st.CreateSite(ctx, model.Site{Subdomain: "stuck", UpdatedAt: stale}))
	require.NoError(t, st.UpdateSite(ctx, "stuck", store.SiteUpdate{CurrentStage: &ocrStage}))

	require.NoError(t, r.Sweep(ctx))

	job, ok, err := q.Claim(ctx, []string{"compilation"}, "worker-1", 0)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, model.JobOCRCoordinator, job.Type)

	site, _, err := st.GetSite(ctx, "stuck")
	require.NoError(t, err)
	require.True(t, site.CoordinatorEnqueued)
}

func TestSweep_DoesNotDoubleEnqueueLiveCoordinator(t *testing.T) {
	dir := t.TempDir()
	st := store.NewMemory()
	q := queue.NewInMemory()
	r := New(st, q, dir)
	ctx := context.Background()

	l := layout.New(dir, "busy")
	txtDir := l.TxtMeetingDateDir(false, "council", "2024-01-01")
	require.NoError(t, os.MkdirAll(txtDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(txtDir, "page-1.txt"), []byte("hi"), 0o644))
	pdfPath := l.PDFPath(false, "council", "2024-01-01")
	require.NoError(t, os.MkdirAll(filepath.Dir(pdfPath), 0o755))
	require.NoError(t, os.WriteFile(pdfPath, []byte("pdf"), 0o644))

	stale := time.Now().Add(-3 * time.Hour)
	ocrStage := model.StageOCR
	alreadyEnqueued := true
	require.NoError(t, st.CreateSite(ctx, model.Site{Subdomain: "busy", UpdatedAt: stale}))
	require.NoError(t, st.UpdateSite(ctx, "busy", store.SiteUpdate{
		CurrentStage: &ocrStage, CoordinatorEnqueued: &alreadyEnqueued,
	}))

	require.NoError(t, r.Sweep(ctx))

	_, ok, err := q.Claim(ctx, []string{"compilation"}, "worker-1", 0)
	require.NoError(t, err)
	require.False(t, ok)
}
