package supervisor

import (
	"context"
	"os"
	"path/filepath"

	"github.com/coreos/go-systemd/v22/dbus"

	pkgerrors "github.com/civicband/clerk-sub001/internal/errors"
	"github.com/civicband/clerk-sub001/internal/logging"
)

// systemdClient is the subset of *dbus.Conn install/uninstall needs, so
// tests can exercise the unit-file and ordering logic against a fake
// without a running systemd.
type systemdClient interface {
	LinkUnitFilesContext(ctx context.Context, files []string, runtime, force bool) ([]dbus.LinkUnitFileChange, error)
	EnableUnitFilesContext(ctx context.Context, files []string, runtime, force bool) (bool, []dbus.EnableUnitFileChange, error)
	DisableUnitFilesContext(ctx context.Context, files []string, runtime bool) ([]dbus.DisableUnitFileChange, error)
	StartUnitContext(ctx context.Context, name, mode string, ch chan<- string) (int, error)
	StopUnitContext(ctx context.Context, name, mode string, ch chan<- string) (int, error)
	ReloadContext(ctx context.Context) error
	Close()
}

// connect opens a real systemd manager connection. Split out so
// Install/Uninstall can accept a fake systemdClient in tests.
func connect(ctx context.Context) (systemdClient, error) {
	return dbus.NewSystemdConnectionContext(ctx)
}

// Install implements install_workers: render every worker unit under
// unitDir, link and enable it with systemd, and start it.
func Install(ctx context.Context, unitDir string, specs []WorkerUnitSpec) error {
	log := logging.New("supervisor")
	conn, err := connect(ctx)
	if err != nil {
		return pkgerrors.New(pkgerrors.Fatal, "connecting to systemd", err, nil)
	}
	defer conn.Close()

	return installWith(ctx, conn, log, unitDir, specs)
}

func installWith(ctx context.Context, conn systemdClient, log *logging.Logger, unitDir string, specs []WorkerUnitSpec) error {
	if err := os.MkdirAll(unitDir, 0o755); err != nil {
		return pkgerrors.New(pkgerrors.Fatal, "creating unit directory", err, nil)
	}

	var paths []string
	for _, spec := range specs {
		content, err := RenderUnit(spec)
		if err != nil {
			return pkgerrors.New(pkgerrors.Configuration, "rendering worker unit", err, map[string]any{"stage": spec.Stage, "index": spec.Index})
		}
		path := filepath.Join(unitDir, UnitName(spec.Stage, spec.Index))
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			return pkgerrors.New(pkgerrors.Fatal, "writing unit file", err, map[string]any{"path": path})
		}
		paths = append(paths, path)
	}

	if len(paths) == 0 {
		log.Warn("install_workers called with zero configured workers", nil)
		return nil
	}

	if _, err := conn.LinkUnitFilesContext(ctx, paths, false, true); err != nil {
		return pkgerrors.New(pkgerrors.Fatal, "linking unit files", err, nil)
	}
	if err := conn.ReloadContext(ctx); err != nil {
		return pkgerrors.New(pkgerrors.Fatal, "reloading systemd daemon", err, nil)
	}
	if _, _, err := conn.EnableUnitFilesContext(ctx, paths, false, true); err != nil {
		return pkgerrors.New(pkgerrors.Fatal, "enabling unit files", err, nil)
	}
	for _, spec := range specs {
		name := UnitName(spec.Stage, spec.Index)
		if _, err := conn.StartUnitContext(ctx, name, "replace", nil); err != nil {
			return pkgerrors.New(pkgerrors.Fatal, "starting unit", err, map[string]any{"unit": name})
		}
		log.Info("worker_unit_started", map[string]any{"unit": name})
	}
	return nil
}

// Uninstall implements uninstall_workers: stop, disable, and remove
// every unit file install_workers would have created for these counts.
func Uninstall(ctx context.Context, unitDir string, specs []WorkerUnitSpec) error {
	log := logging.New("supervisor")
	conn, err := connect(ctx)
	if err != nil {
		return pkgerrors.New(pkgerrors.Fatal, "connecting to systemd", err, nil)
	}
	defer conn.Close()

	return uninstallWith(ctx, conn, log, unitDir, specs)
}

func uninstallWith(ctx context.Context, conn systemdClient, log *logging.Logger, unitDir string, specs []WorkerUnitSpec) error {
	var names, paths []string
	for _, spec := range specs {
		name := UnitName(spec.Stage, spec.Index)
		names = append(names, name)
		paths = append(paths, filepath.Join(unitDir, name))
	}

	for _, name := range names {
		if _, err := conn.StopUnitContext(ctx, name, "replace", nil); err != nil {
			log.Warn("stopping unit failed, continuing uninstall", map[string]any{"unit": name, "error": err.Error()})
		}
	}
	if len(paths) > 0 {
		if _, err := conn.DisableUnitFilesContext(ctx, paths, false); err != nil {
			log.Warn("disabling unit files failed, continuing uninstall", map[string]any{"error": err.Error()})
		}
	}
	if err := conn.ReloadContext(ctx); err != nil {
		return pkgerrors.New(pkgerrors.Fatal, "reloading systemd daemon", err, nil)
	}
	for _, path := range paths {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return pkgerrors.New(pkgerrors.Fatal, "removing unit file", err, map[string]any{"path": path})
		}
	}
	return nil
}
