// Package manifest implements the per-run failure manifest: a JSON-lines
// append log recording every permanent per-document failure (spec.md §7's
// "Permanent per-document" error kind), so an operator can inspect what
// failed in a run without grepping logs. Supplemented feature (see
// SPEC_FULL.md) — spec.md names the kind but not a concrete artifact.
package manifest

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/civicband/clerk-sub001/internal/layout"
)

// Entry is one failure record.
type Entry struct {
	Subdomain    string    `json:"subdomain"`
	RunID        string    `json:"run_id"`
	PDFPath      string    `json:"pdf_path"`
	ErrorType    string    `json:"error_type"`
	ErrorMessage string    `json:"error_message"`
	Timestamp    time.Time `json:"timestamp"`
}

// mu serializes appends across goroutines within one process; concurrent
// ocr-page workers for the same run may all append to the same manifest
// file (one per site+run, spec.md §3.3's layout), so writes must not
// interleave their JSON lines.
var mu sync.Mutex

// Append writes one failure entry to the run's manifest file, creating
// the parent directory and file if needed.
func Append(l layout.Layout, runID string, entry Entry) error {
	mu.Lock()
	defer mu.Unlock()

	path := l.FailureManifestPath(runID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("manifest: creating directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("manifest: opening %s: %w", path, err)
	}
	defer f.Close()

	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("manifest: encoding entry: %w", err)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("manifest: writing entry: %w", err)
	}
	return nil
}

// Read loads every entry from a run's manifest file, returning an empty
// (not nil) slice and no error if no failures were ever recorded.
func Read(l layout.Layout, runID string) ([]Entry, error) {
	path := l.FailureManifestPath(runID)
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return []Entry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("manifest: opening %s: %w", path, err)
	}
	defer f.Close()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(line, &e); err != nil {
			return nil, fmt.Errorf("manifest: decoding %s: %w", path, err)
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// RunIDs lists every run_id that has a manifest file for this site, newest
// first by filename (run IDs embed a unix timestamp, so lexical and
// chronological order agree), used by `status -s` to show recent runs.
func RunIDs(l layout.Layout) ([]string, error) {
	dir := filepath.Dir(l.FailureManifestPath("x"))
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || filepath.Ext(name) != ".jsonl" {
			continue
		}
		ids = append(ids, name[:len(name)-len(".jsonl")])
	}
	for i, j := 0, len(ids)-1; i < j; i, j = i+1, j-1 {
		ids[i], ids[j] = ids[j], ids[i]
	}
	return ids, nil
}
