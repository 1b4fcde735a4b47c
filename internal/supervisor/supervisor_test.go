package supervisor

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/coreos/go-systemd/v22/dbus"
	"github.com/stretchr/testify/require"

	"github.com/civicband/clerk-sub001/internal/config"
	"github.com/civicband/clerk-sub001/internal/logging"
)

type fakeSystemd struct {
	linked, enabled, disabled []string
	started, stopped          []string
	reloaded                  bool
}

func (f *fakeSystemd) LinkUnitFilesContext(ctx context.Context, files []string, runtime, force bool) ([]dbus.LinkUnitFileChange, error) {
	f.linked = append(f.linked, files...)
	return nil, nil
}

func (f *fakeSystemd) EnableUnitFilesContext(ctx context.Context, files []string, runtime, force bool) (bool, []dbus.EnableUnitFileChange, error) {
	f.enabled = append(f.enabled, files...)
	return false, nil, nil
}

func (f *fakeSystemd) DisableUnitFilesContext(ctx context.Context, files []string, runtime bool) ([]dbus.DisableUnitFileChange, error) {
	f.disabled = append(f.disabled, files...)
	return nil, nil
}

func (f *fakeSystemd) StartUnitContext(ctx context.Context, name, mode string, ch chan<- string) (int, error) {
	f.started = append(f.started, name)
	return 0, nil
}

func (f *fakeSystemd) StopUnitContext(ctx context.Context, name, mode string, ch chan<- string) (int, error) {
	f.stopped = append(f.stopped, name)
	return 0, nil
}

func (f *fakeSystemd) ReloadContext(ctx context.Context) error {
	f.reloaded = true
	return nil
}

func (f *fakeSystemd) Close() {}

func TestPlan_ExpandsCountsToOneSpecPerWorker(t *testing.T) {
	counts := config.WorkerCounts{Fetch: 1, OCR: 2, Compilation: 1, Extraction: 0, Deploy: 1}
	specs := Plan(counts, "/usr/bin/clerk", "/srv/sites", "/srv/clerk")
	require.Len(t, specs, 5)

	byStage := map[string]int{}
	for _, s := range specs {
		byStage[s.Stage]++
	}
	require.Equal(t, 1, byStage["fetch"])
	require.Equal(t, 2, byStage["ocr"])
	require.Equal(t, 1, byStage["compilation"])
	require.Equal(t, 0, byStage["extraction"])
	require.Equal(t, 1, byStage["deploy"])
}

func TestRenderUnit_IncludesStageAndBinary(t *testing.T) {
	content, err := RenderUnit(WorkerUnitSpec{
		Stage: "ocr", Index: 3, BinaryPath: "/usr/bin/clerk", StorageDir: "/srv/sites", WorkingDir: "/srv/clerk",
	})
	require.NoError(t, err)
	require.Contains(t, content, "clerk ocr worker 3")
	require.Contains(t, content, "/usr/bin/clerk worker --stage=ocr --worker-id=ocr-3")
	require.Contains(t, content, "STORAGE_DIR=/srv/sites")
}

func TestInstallWith_WritesUnitsAndStartsEach(t *testing.T) {
	dir := t.TempDir()
	fake := &fakeSystemd{}
	specs := Plan(config.WorkerCounts{Fetch: 1, OCR: 1}, "/usr/bin/clerk", "/srv/sites", "/srv/clerk")

	log := logging.New("supervisor-test")
	err := installWith(context.Background(), fake, log, dir, specs)
	require.NoError(t, err)

	require.True(t, fake.reloaded)
	require.Len(t, fake.started, 2)
	require.Len(t, fake.linked, 2)
	require.Len(t, fake.enabled, 2)

	for _, spec := range specs {
		path := filepath.Join(dir, UnitName(spec.Stage, spec.Index))
		_, err := os.Stat(path)
		require.NoError(t, err)
	}
}

func TestUninstallWith_StopsAndRemovesUnits(t *testing.T) {
	dir := t.TempDir()
	fake := &fakeSystemd{}
	specs := Plan(config.WorkerCounts{Fetch: 1}, "/usr/bin/clerk", "/srv/sites", "/srv/clerk")

	log := logging.New("supervisor-test")
	require.NoError(t, installWith(context.Background(), fake, log, dir, specs))
	require.NoError(t, uninstallWith(context.Background(), fake, log, dir, specs))

	require.Len(t, fake.stopped, 1)
	path := filepath.Join(dir, UnitName("fetch", 0))
	_, err := os.Stat(path)
	require.True(t, os.IsNotExist(err))
}
