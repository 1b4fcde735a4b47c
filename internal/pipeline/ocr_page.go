package pipeline

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	pkgerrors "github.com/civicband/clerk-sub001/internal/errors"
	"github.com/civicband/clerk-sub001/internal/layout"
	"github.com/civicband/clerk-sub001/internal/logging"
	"github.com/civicband/clerk-sub001/internal/manifest"
	"github.com/civicband/clerk-sub001/internal/model"
	"github.com/civicband/clerk-sub001/internal/ocr"
	"github.com/civicband/clerk-sub001/internal/store"
)

// OCRPage implements spec.md §4.6.2: render one PDF's pages to text,
// falling back from vision to tesseract exactly once on failure.
func (c *Context) OCRPage(ctx context.Context, job model.Job) error {
	start := time.Now()
	subdomain, err := requireString(job.Payload, "subdomain")
	if err != nil {
		return pkgerrors.New(pkgerrors.Configuration, "ocr-page job missing subdomain", err, nil)
	}
	pdfPath, err := requireString(job.Payload, "pdf_path")
	if err != nil {
		return pkgerrors.New(pkgerrors.Configuration, "ocr-page job missing pdf_path", err, nil)
	}
	backendName := ocr.Name(payloadString(job.Payload, "backend"))
	runID := payloadString(job.Payload, "run_id")

	log, ctx := logging.WithJob(ctx, "ocr-page", job.ID, job.ParentJobID, runID, subdomain, string(model.StageOCR))
	pdfName := filepath.Base(pdfPath)
	log.StageStarted("ocr", map[string]any{"pdf_name": pdfName, "backend": string(backendName)})

	destDir := destDirFor(c.StorageDir, subdomain, pdfPath)

	backend, err := c.OCR.Get(backendName)
	if err != nil {
		return pkgerrors.New(pkgerrors.Configuration, "no ocr backend registered", err,
			map[string]any{"pdf_name": pdfName, "backend": string(backendName)})
	}

	_, renderErr := backend.Render(ctx, ocr.RenderRequest{PDFPath: pdfPath, DestDir: destDir})
	usedBackend := backendName
	if renderErr != nil && backendName == "vision" {
		log.Warn("vision backend failed, falling back to tesseract once", map[string]any{
			"pdf_name": pdfName, "pdf_path": pdfPath, "vision_error": renderErr.Error(),
		})
		fallback, ferr := c.OCR.Get("tesseract")
		if ferr == nil {
			_, renderErr = fallback.Render(ctx, ocr.RenderRequest{PDFPath: pdfPath, DestDir: destDir})
			usedBackend = "tesseract"
		}
	}

	if renderErr != nil {
		wrapped := pkgerrors.New(pkgerrors.PermanentPerDocument, "ocr failed on all backends", renderErr, map[string]any{
			"pdf_path": pdfPath, "pdf_name": pdfName, "backend": string(usedBackend),
		})
		log.StageFailed("ocr", time.Since(start), string(wrapped.Kind), wrapped, map[string]any{
			"pdf_path": pdfPath, "pdf_name": pdfName, "backend": string(usedBackend),
		})
		if mErr := manifest.Append(layout.New(c.StorageDir, subdomain), runID, manifest.Entry{
			Subdomain: subdomain, RunID: runID, PDFPath: pdfPath,
			ErrorType: string(wrapped.Kind), ErrorMessage: wrapped.Error(), Timestamp: time.Now().UTC(),
		}); mErr != nil {
			log.Error("failed to append failure manifest entry", mErr, map[string]any{"pdf_path": pdfPath})
		}
		// spec.md §4.6.2 step 5: ocr_failed is NOT incremented here; the
		// coordinator re-derives it from ocr_total - ocr_completed.
		return wrapped
	}

	if err := c.Store.IncrementCounter(ctx, subdomain, model.CounterOCR, store.FieldCompleted, 1); err != nil {
		return pkgerrors.New(pkgerrors.Transient, "incrementing ocr_completed", err, map[string]any{"pdf_path": pdfPath})
	}
	log.StageCompleted("ocr", time.Since(start), map[string]any{"pdf_name": pdfName, "backend": string(usedBackend)})
	return nil
}

// destDirFor derives the txt directory a pdf_path's rendered pages are
// written into: the PDF's meeting/date path, rooted under the site's txt
// tree (mirroring the pdfs tree, with pdfs/ or _agendas/pdfs swapped for
// txt/ or _agendas/txt).
func destDirFor(storageDir, subdomain, pdfPath string) string {
	l := layout.New(storageDir, subdomain)
	for _, agendas := range []bool{false, true} {
		pdfRoot := l.PDFDir(agendas)
		rel, err := filepath.Rel(pdfRoot, pdfPath)
		if err != nil || strings.HasPrefix(rel, "..") {
			continue
		}
		meeting := filepath.Dir(rel)
		date := rel[len(meeting)+1:]
		date = date[:len(date)-len(filepath.Ext(date))]
		return l.TxtMeetingDateDir(agendas, meeting, date)
	}
	return filepath.Join(filepath.Dir(pdfPath), "txt")
}
