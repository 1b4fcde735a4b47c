package ocr

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// Mock is a deterministic Backend used by the Test-Mode Runner and unit
// tests in place of a real Tesseract/Vision subprocess. It writes
// page-1.txt through page-N.txt (N is the Pages field, default 1), each
// holding a fixed sentinel string derived from the PDF file name, the
// page number and the backend name, and optionally simulates a failure for a configured set of
// inputs so ocr-page's vision->tesseract fallback (spec.md §4.6.2 step 3)
// can be exercised without a real OCR engine.
type Mock struct {
	name   Name
	Fail   map[string]bool // pdf paths that should error
	Pages  int             // pages to emit per PDF; defaults to 1
}

func NewMock(name Name) *Mock {
	return &Mock{name: name, Fail: make(map[string]bool), Pages: 1}
}

func (m *Mock) Name() Name { return m.name }

func (m *Mock) Render(_ context.Context, req RenderRequest) (int, error) {
	if m.Fail[req.PDFPath] {
		return 0, fmt.Errorf("ocr: mock backend %s failed on %s", m.name, req.PDFPath)
	}

	pages := m.Pages
	if pages <= 0 {
		pages = 1
	}
	if err := os.MkdirAll(req.DestDir, 0o755); err != nil {
		return 0, err
	}
	for p := 1; p <= pages; p++ {
		path := filepath.Join(req.DestDir, fmt.Sprintf("page-%d.txt", p))
		text := fmt.Sprintf("mock ocr text for %s page %d (backend=%s)", filepath.Base(req.PDFPath), p, m.name)
		if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
			return 0, err
		}
	}
	return pages, nil
}
