package testrunner

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
	"github.com/civicband/clerk-sub001/internal/pipeline"
	"github.com/civicband/clerk-sub001/internal/plugin"
	"github.com/civicband/clerk-sub001/internal/queue"
	"github.com/civicband/clerk-sub001/internal/store"
)

// fakeExtractor writes one fake PDF to disk per Fetch call, mirroring
// internal/pipeline's test fixture so this package's tests don't need to
// import pipeline's unexported test helpers.
type fakeExtractor struct{ label string }

func (f *fakeExtractor) Label() string { return f.label }

func (f *fakeExtractor) Fetch(ctx context.Context, req plugin.FetchRequest) error {
	l := layout.New(req.StorageDir, req.Subdomain)
	path := l.PDFPath(false, "council", "2024-01-01")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte("fake pdf"), 0o644)
}

func newTestContext(t *testing.T, enableExtraction bool) (*pipeline.Context, string) {
	t.Helper()
	dir := t.TempDir()
	st := store.NewMemory()
	q := queue.NewInMemory()
	reg := plugin.NewRegistry(st)
	reg.Register(&fakeExtractor{label: "town-hall"})
	ocrReg := ocr.NewRegistry()
	ocrReg.Register(ocr.NewMock("tesseract"))
	cfg := config.Config{StorageDir: dir, EnableExtraction: enableExtraction}
	pc := pipeline.New(cfg, st, q, reg, ocrReg, extract.NewMock())

	require.NoError(t, st.CreateSite(context.Background(), model.Site{
		Subdomain: "testtown",
		Pipeline:  &model.PipelineConfig{Extractor: strPtr("town-hall")},
	}))
	return pc, dir
}

func strPtr(s string) *string { return &s }

func TestRun_WithoutExtractionInvokesAllHandlersExceptExtract(t *testing.T) {
	pc, _ := newTestContext(t, false)

	report, err := Run(context.Background(), pc, "testtown", Options{})
	require.NoError(t, err)
	require.True(t, report.Passed(), "missing handlers: %v", report.Missing)
	require.NotContains(t, report.Invoked, "extract")
	require.Contains(t, report.Invoked, "fetch")
	require.Contains(t, report.Invoked, "ocr-page")
	require.Contains(t, report.Invoked, "ocr-coordinator")
	require.Contains(t, report.Invoked, "compile")
	require.Contains(t, report.Invoked, "deploy")
}

func TestRun_WithExtractionInvokesExtractHandler(t *testing.T) {
	pc, _ := newTestContext(t, true)

	report, err := Run(context.Background(), pc, "testtown", Options{})
	require.NoError(t, err)
	require.True(t, report.Passed(), "missing handlers: %v", report.Missing)
	require.Contains(t, report.Invoked, "extract")
}

func TestRun_NoExtractEntitiesOverridesConfig(t *testing.T) {
	pc, _ := newTestContext(t, true)

	report, err := Run(context.Background(), pc, "testtown", Options{NoExtractEntities: true})
	require.NoError(t, err)
	require.True(t, report.Passed(), "missing handlers: %v", report.Missing)
	require.NotContains(t, report.Invoked, "extract")
	require.NotContains(t, report.Expected, "extract")
}

func TestRun_DryRunInvokesNothing(t *testing.T) {
	pc, _ := newTestContext(t, true)

	report, err := Run(context.Background(), pc, "testtown", Options{DryRun: true})
	require.NoError(t, err)
	require.Empty(t, report.Invoked)
	require.Contains(t, report.Expected, "extract")
}

func TestRun_SkipOCRStillReachesDeploy(t *testing.T) {
	pc, _ := newTestContext(t, false)

	report, err := Run(context.Background(), pc, "testtown", Options{SkipOCR: true})
	require.NoError(t, err)
	require.True(t, report.Passed(), "missing handlers: %v", report.Missing)
	require.NotContains(t, report.Invoked, "ocr-page")
	require.Contains(t, report.Invoked, "deploy")
}
