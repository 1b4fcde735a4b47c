package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/civicband/clerk-sub001/internal/config"
	"github.com/civicband/clerk-sub001/internal/extract"
	"github.com/civicband/clerk-sub001/internal/layout"
	"github.com/civicband/clerk-sub001/internal/model"
	"github.com/civicband/clerk-sub001/internal/ocr"
	"github.com/civicband/clerk-sub001/internal/plugin"
	"github.com/civicband/clerk-sub001/internal/queue"
	"github.com/civicband/clerk-sub001/internal/store"
)

// fakeExtractor writes one PDF onto disk per Fetch call, simulating an
// upstream scrape without any network access.
type fakeExtractor struct {
	label string
	pdfs  []string // meeting/date pairs, e.g. "council/2024-01-01"
}

func (f *fakeExtractor) Label() string { return f.label }

func (f *fakeExtractor) Fetch(ctx context.Context, req plugin.FetchRequest) error {
	l := layout.New(req.StorageDir, req.Subdomain)
	for _, pair := range f.pdfs {
		meeting := filepath.Dir(pair)
		date := filepath.Base(pair)
		path := l.PDFPath(false, meeting, date)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(path, []byte("fake pdf"), 0o644); err != nil {
			return err
		}
	}
	return nil
}

func newTestContext(t *testing.T, extractor plugin.Extractor) (*Context, store.Store, queue.Queue, string) {
	t.Helper()
	dir := t.TempDir()
	st := store.NewMemory()
	q := queue.NewInMemory()
	reg := plugin.NewRegistry(st)
	reg.Register(extractor)
	ocrReg := ocr.NewRegistry()
	ocrReg.Register(ocr.NewMock("tesseract"))
	cfg := config.Config{StorageDir: dir, EnableExtraction: false}
	c := New(cfg, st, q, reg, ocrReg, extract.NewMock())
	return c, st, q, dir
}

func TestFetch_NoDocumentsMarksCompleted(t *testing.T) {
	c, st, _, _ := newTestContext(t, &fakeExtractor{label: "empty-site"})
	ctx := context.Background()

	require.NoError(t, st.CreateSite(ctx, model.Site{
		Subdomain: "emptytown",
		Pipeline:  &model.PipelineConfig{Extractor: strPtr("empty-site")},
	}))

	err := c.Fetch(ctx, model.Job{ID: "job-1", Type: model.JobFetch, Payload: map[string]any{
		"subdomain": "emptytown", "run_id": "run-1",
	}})
	require.NoError(t, err)

	site, ok, err := st.GetSite(ctx, "emptytown")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, model.StageCompleted, site.CurrentStage)
}

func TestFetch_EnqueuesOCRPagesAndCoordinator(t *testing.T) {
	c, st, q, _ := newTestContext(t, &fakeExtractor{
		label: "two-doc-site",
		pdfs:  []string{"council/2024-01-01", "council/2024-02-01"},
	})
	ctx := context.Background()

	require.NoError(t, st.CreateSite(ctx, model.Site{
		Subdomain: "twodocs",
		Pipeline:  &model.PipelineConfig{Extractor: strPtr("two-doc-site")},
	}))

	err := c.Fetch(ctx, model.Job{ID: "job-1", Type: model.JobFetch, Priority: model.PriorityNormal, Payload: map[string]any{
		"subdomain": "twodocs", "run_id": "run-1",
	}})
	require.NoError(t, err)

	counters, err := st.ReadCounters(ctx, "twodocs")
	require.NoError(t, err)
	require.Equal(t, 2, counters[model.CounterOCR].Total)
	require.Equal(t, 0, counters[model.CounterOCR].Completed)

	site, _, err := st.GetSite(ctx, "twodocs")
	require.NoError(t, err)
	require.True(t, site.CoordinatorEnqueued)

	job1, ok, err := q.Claim(ctx, []string{string(model.StageOCR)}, "worker-1", 0)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, model.JobOCRPage, job1.Type)
}

func TestOCRPage_SuccessIncrementsCompleted(t *testing.T) {
	c, st, _, dir := newTestContext(t, &fakeExtractor{label: "site"})
	ctx := context.Background()
	require.NoError(t, st.CreateSite(ctx, model.Site{Subdomain: "site1"}))
	require.NoError(t, st.SetCounter(ctx, "site1", model.CounterOCR, store.FieldTotal, 1))

	l := layout.New(dir, "site1")
	pdfPath := l.PDFPath(false, "council", "2024-01-01")
	require.NoError(t, os.MkdirAll(filepath.Dir(pdfPath), 0o755))
	require.NoError(t, os.WriteFile(pdfPath, []byte("fake"), 0o644))

	err := c.OCRPage(ctx, model.Job{ID: "job-2", Type: model.JobOCRPage, Payload: map[string]any{
		"subdomain": "site1", "pdf_path": pdfPath, "backend": "tesseract", "run_id": "run-1",
	}})
	require.NoError(t, err)

	counters, err := st.ReadCounters(ctx, "site1")
	require.NoError(t, err)
	require.Equal(t, 1, counters[model.CounterOCR].Completed)
}

func TestOCRPage_FailureDoesNotIncrementFailed(t *testing.T) {
	mockOCR := ocr.NewMock("tesseract")
	dir := t.TempDir()
	pdfPath := filepath.Join(dir, "broken.pdf")
	require.NoError(t, os.WriteFile(pdfPath, []byte("fake"), 0o644))
	mockOCR.Fail = map[string]bool{pdfPath: true}

	st := store.NewMemory()
	q := queue.NewInMemory()
	reg := plugin.NewRegistry(st)
	ocrReg := ocr.NewRegistry()
	ocrReg.Register(mockOCR)
	cfg := config.Config{StorageDir: dir, EnableExtraction: false}
	c := New(cfg, st, q, reg, ocrReg, extract.NewMock())
	ctx := context.Background()
	require.NoError(t, st.CreateSite(ctx, model.Site{Subdomain: "site1"}))
	require.NoError(t, st.SetCounter(ctx, "site1", model.CounterOCR, store.FieldTotal, 1))

	err := c.OCRPage(ctx, model.Job{ID: "job-2", Type: model.JobOCRPage, Payload: map[string]any{
		"subdomain": "site1", "pdf_path": pdfPath, "backend": "tesseract", "run_id": "run-1",
	}})
	require.Error(t, err)

	counters, err := st.ReadCounters(ctx, "site1")
	require.NoError(t, err)
	require.Equal(t, 0, counters[model.CounterOCR].Failed)
	require.Equal(t, 0, counters[model.CounterOCR].Completed)
}

func TestOCRCoordinator_CreatesCompileAndExtractWhenEnabled(t *testing.T) {
	dir := t.TempDir()
	st := store.NewMemory()
	q := queue.NewInMemory()
	reg := plugin.NewRegistry(st)
	ocrReg := ocr.NewRegistry()
	cfg := config.Config{StorageDir: dir, EnableExtraction: true}
	c := New(cfg, st, q, reg, ocrReg, extract.NewMock())
	ctx := context.Background()

	require.NoError(t, st.CreateSite(ctx, model.Site{Subdomain: "site1"}))

	err := c.OCRCoordinator(ctx, model.Job{ID: "coord-1", Payload: map[string]any{
		"subdomain": "site1", "run_id": "run-1",
	}})
	require.NoError(t, err)

	site, _, err := st.GetSite(ctx, "site1")
	require.NoError(t, err)
	require.Equal(t, model.StageCompilation, site.CurrentStage)

	seen := map[model.JobType]bool{}
	for i := 0; i < 3; i++ {
		job, ok, err := q.Claim(ctx, []string{string(model.StageCompilation), string(model.StageExtraction), string(model.StageDeploy)}, "worker-1", 0)
		require.NoError(t, err)
		if !ok {
			break
		}
		seen[job.Type] = true
		if job.Type == model.JobDeploy {
			require.Len(t, job.DependsOn, 2)
		}
		// deploy stays deferred until both compile and extract are terminal.
		require.NoError(t, q.Complete(ctx, job.ID))
	}
	require.True(t, seen[model.JobCompile])
	require.True(t, seen[model.JobExtract])
	require.True(t, seen[model.JobDeploy])
}

func TestCompile_EnqueuesDeployWhenExtractionDisabled(t *testing.T) {
	c, st, q, dir := newTestContext(t, &fakeExtractor{label: "site"})
	ctx := context.Background()
	require.NoError(t, st.CreateSite(ctx, model.Site{Subdomain: "site1"}))

	l := layout.New(dir, "site1")
	pageDir := l.TxtMeetingDateDir(false, "council", "2024-01-01")
	require.NoError(t, os.MkdirAll(pageDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(pageDir, "page-1.txt"), []byte("hello world"), 0o644))

	err := c.Compile(ctx, model.Job{ID: "compile-1", Payload: map[string]any{
		"subdomain": "site1", "run_id": "run-1",
	}})
	require.NoError(t, err)

	job, ok, err := q.Claim(ctx, []string{string(model.StageDeploy)}, "worker-1", 0)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, model.JobDeploy, job.Type)
}

func TestDeploy_DispatchesHooksAndMarksDeployed(t *testing.T) {
	c, st, _, _ := newTestContext(t, &fakeExtractor{label: "site"})
	ctx := context.Background()
	require.NoError(t, st.CreateSite(ctx, model.Site{Subdomain: "site1"}))

	called := false
	c.Registry.Register(&recordingDeployObserver{called: &called})

	err := c.Deploy(ctx, model.Job{ID: "deploy-1", Payload: map[string]any{
		"subdomain": "site1", "run_id": "run-1",
	}})
	require.NoError(t, err)
	require.True(t, called)

	site, _, err := st.GetSite(ctx, "site1")
	require.NoError(t, err)
	require.Equal(t, model.StatusDeployed, site.Status)
	require.Equal(t, model.StageCompleted, site.CurrentStage)
}

type recordingDeployObserver struct {
	called *bool
}

func (r *recordingDeployObserver) DeployMunicipality(ctx context.Context, subdomain string) error {
	*r.called = true
	return nil
}

func (r *recordingDeployObserver) PostDeploy(ctx context.Context, site model.Site) error { return nil }

func strPtr(s string) *string { return &s }
