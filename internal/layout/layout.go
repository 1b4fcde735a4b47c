// Package layout implements the on-disk StorageLayout from spec.md §3.4 —
// the filesystem is the coordination medium between stages, so every
// package that needs to find a site's PDFs, page text or database goes
// through here rather than building paths ad hoc.
package layout

import (
	"os"
	"path/filepath"
)

// Layout resolves paths under one site's storage tree.
type Layout struct {
	Root      string
	Subdomain string
}

// New returns a Layout rooted at storageDir/subdomain.
func New(storageDir, subdomain string) Layout {
	return Layout{Root: storageDir, Subdomain: subdomain}
}

func (l Layout) siteDir() string { return filepath.Join(l.Root, l.Subdomain) }

// PDFDir returns the minutes PDF tree, or the agendas tree if agendas is true.
func (l Layout) PDFDir(agendas bool) string {
	if agendas {
		return filepath.Join(l.siteDir(), "_agendas", "pdfs")
	}
	return filepath.Join(l.siteDir(), "pdfs")
}

// TxtDir returns the OCR text tree, or the agendas tree if agendas is true.
func (l Layout) TxtDir(agendas bool) string {
	if agendas {
		return filepath.Join(l.siteDir(), "_agendas", "txt")
	}
	return filepath.Join(l.siteDir(), "txt")
}

// PDFPath returns the path for one meeting's PDF on a given date.
func (l Layout) PDFPath(agendas bool, meeting, date string) string {
	return filepath.Join(l.PDFDir(agendas), meeting, date+".pdf")
}

// TxtMeetingDateDir returns the directory that holds page-N.txt files for
// one meeting/date pair.
func (l Layout) TxtMeetingDateDir(agendas bool, meeting, date string) string {
	return filepath.Join(l.TxtDir(agendas), meeting, date)
}

// PagePath returns the path of one OCR'd page's text file.
func (l Layout) PagePath(agendas bool, meeting, date string, page int) string {
	return filepath.Join(l.TxtMeetingDateDir(agendas, meeting, date), pageFileName(page))
}

func pageFileName(page int) string {
	return "page-" + itoa(page) + ".txt"
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// DBPath returns the per-site output database path.
func (l Layout) DBPath() string {
	return filepath.Join(l.siteDir(), "meetings.db")
}

// FailureManifestPath returns the per-run failure manifest path.
func (l Layout) FailureManifestPath(runID string) string {
	return filepath.Join(l.siteDir(), "_failures", runID+".jsonl")
}

// ExtractionCacheDir returns the directory holding one cache entry per
// page, keyed by content hash, that the extract handler consults before
// re-running entity/vote extraction on unchanged text.
func (l Layout) ExtractionCacheDir() string {
	return filepath.Join(l.siteDir(), "_extraction_cache")
}

// ExtractionCachePath returns the cache file for one content hash.
func (l Layout) ExtractionCachePath(contentHash string) string {
	return filepath.Join(l.ExtractionCacheDir(), contentHash+".json")
}

// Document identifies one PDF by its meeting/date pair and whether it
// belongs to the agendas tree — the unit that ocr_total/ocr_completed
// count.
type Document struct {
	Agendas bool
	Meeting string
	Date    string
	PDFPath string
}

// ListPDFs walks both the minutes and agendas PDF trees and returns one
// Document per PDF file found, spec.md §4.6.1 step 4.
func (l Layout) ListPDFs() ([]Document, error) {
	var docs []Document
	for _, agendas := range []bool{false, true} {
		root := l.PDFDir(agendas)
		entries, err := walkPDFs(root)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}
		for _, e := range entries {
			docs = append(docs, Document{
				Agendas: agendas,
				Meeting: e.meeting,
				Date:    e.date,
				PDFPath: e.path,
			})
		}
	}
	return docs, nil
}

type pdfEntry struct {
	meeting, date, path string
}

func walkPDFs(root string) ([]pdfEntry, error) {
	meetingDirs, err := os.ReadDir(root)
	if err != nil {
		return nil, err
	}
	var out []pdfEntry
	for _, md := range meetingDirs {
		if !md.IsDir() {
			continue
		}
		meetingPath := filepath.Join(root, md.Name())
		files, err := os.ReadDir(meetingPath)
		if err != nil {
			continue
		}
		for _, f := range files {
			if f.IsDir() || filepath.Ext(f.Name()) != ".pdf" {
				continue
			}
			date := f.Name()[:len(f.Name())-len(".pdf")]
			out = append(out, pdfEntry{
				meeting: md.Name(),
				date:    date,
				path:    filepath.Join(meetingPath, f.Name()),
			})
		}
	}
	return out, nil
}

// DocumentCompleted reports whether a document's txt directory exists and
// contains at least one page-N.txt file — the "completed" predicate from
// spec.md §3.4.
func (l Layout) DocumentCompleted(d Document) bool {
	dir := l.TxtMeetingDateDir(d.Agendas, d.Meeting, d.Date)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false
	}
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".txt" {
			return true
		}
	}
	return false
}

// CountOnDisk re-derives (total, completed) by scanning the storage tree,
// the ground truth the reconciler and ocr-coordinator fall back to
// (spec.md §4.3, §4.8).
func (l Layout) CountOnDisk() (total, completed int, err error) {
	docs, err := l.ListPDFs()
	if err != nil {
		return 0, 0, err
	}
	total = len(docs)
	for _, d := range docs {
		if l.DocumentCompleted(d) {
			completed++
		}
	}
	return total, completed, nil
}

// EnsureDirs creates the directories a handler is about to write into.
func EnsureDirs(paths ...string) error {
	for _, p := range paths {
		if err := os.MkdirAll(p, 0o755); err != nil {
			return err
		}
	}
	return nil
}
