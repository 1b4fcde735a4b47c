// Package supervisor implements spec.md §4.5's install_workers /
// uninstall_workers action: render one systemd unit per worker process
// (queue x count from config.WorkerCounts) and register them with the
// system's systemd manager. Grounded on the teacher's template engine
// (internal/template/engine.go, Go text/template + Masterminds/sprig)
// for rendering, and on github.com/coreos/go-systemd/v22 — already a
// teacher dependency, used there only for socket activation
// (internal/aggregator/server.go) — generalized here to its dbus
// subpackage for unit file (de)registration, since the teacher never
// had a use for systemd's unit management side.
package supervisor

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/Masterminds/sprig/v3"

	"github.com/civicband/clerk-sub001/internal/config"
)

// WorkerUnitSpec describes one worker process's systemd unit.
type WorkerUnitSpec struct {
	Stage      string // fetch, ocr, compilation, extraction, deploy
	Index      int    // 0-based instance number within the stage
	BinaryPath string
	StorageDir string
	WorkingDir string
}

// UnitName returns the systemd unit name for one worker instance,
// e.g. "clerk-worker-ocr@2.service".
func UnitName(stage string, index int) string {
	return fmt.Sprintf("clerk-worker-%s@%d.service", stage, index)
}

const unitTemplate = `[Unit]
Description=clerk {{ .Stage }} worker {{ .Index }}
After=network.target

[Service]
Type=simple
ExecStart={{ .BinaryPath }} worker --stage={{ .Stage }} --worker-id={{ .Stage }}-{{ .Index }}
WorkingDirectory={{ .WorkingDir | default "/" }}
Environment=STORAGE_DIR={{ .StorageDir }}
Restart=on-failure
RestartSec=5

[Install]
WantedBy=multi-user.target
`

// RenderUnit renders one worker's systemd unit file content.
func RenderUnit(spec WorkerUnitSpec) (string, error) {
	tmpl, err := template.New("unit").Funcs(sprig.TxtFuncMap()).Option("missingkey=error").Parse(unitTemplate)
	if err != nil {
		return "", fmt.Errorf("supervisor: parsing unit template: %w", err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, spec); err != nil {
		return "", fmt.Errorf("supervisor: rendering unit for %s/%d: %w", spec.Stage, spec.Index, err)
	}
	return buf.String(), nil
}

// Plan expands config.WorkerCounts into one WorkerUnitSpec per worker
// process spec.md §4.5 says install_workers must create.
func Plan(counts config.WorkerCounts, binaryPath, storageDir, workingDir string) []WorkerUnitSpec {
	var specs []WorkerUnitSpec
	for _, stage := range []struct {
		name string
		n    int
	}{
		{"fetch", counts.Fetch},
		{"ocr", counts.OCR},
		{"compilation", counts.Compilation},
		{"extraction", counts.Extraction},
		{"deploy", counts.Deploy},
	} {
		for i := 0; i < stage.n; i++ {
			specs = append(specs, WorkerUnitSpec{
				Stage: stage.name, Index: i, BinaryPath: binaryPath, StorageDir: storageDir, WorkingDir: workingDir,
			})
		}
	}
	return specs
}
