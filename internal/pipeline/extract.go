package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"time"

	pkgerrors "github.com/civicband/clerk-sub001/internal/errors"
	"github.com/civicband/clerk-sub001/internal/extract"
	"github.com/civicband/clerk-sub001/internal/fingerprint"
	"github.com/civicband/clerk-sub001/internal/layout"
	"github.com/civicband/clerk-sub001/internal/logging"
	"github.com/civicband/clerk-sub001/internal/model"
	"github.com/civicband/clerk-sub001/internal/sitedb"
)

// Extract implements spec.md §4.6.5: entity/vote extraction over the txt
// tree, running in parallel with compile. A per-page on-disk cache keyed
// by content hash skips reprocessing unchanged text. Extraction writes
// are additive against whichever of compile/extract reaches a page's row
// first — see the note on pending rows below.
func (c *Context) Extract(ctx context.Context, job model.Job) error {
	start := time.Now()
	subdomain, err := requireString(job.Payload, "subdomain")
	if err != nil {
		return pkgerrors.New(pkgerrors.Configuration, "extract job missing subdomain", err, nil)
	}
	runID := payloadString(job.Payload, "run_id")

	log, ctx := logging.WithJob(ctx, "extract", job.ID, job.ParentJobID, runID, subdomain, string(model.StageExtraction))
	log.StageStarted("extract", map[string]any{"subdomain": subdomain})

	l := layout.New(c.StorageDir, subdomain)
	db, err := sitedb.Open(l.DBPath())
	if err != nil {
		return pkgerrors.New(pkgerrors.Transient, "opening site database", err, map[string]any{"subdomain": subdomain})
	}
	defer db.Close()

	if err := layout.EnsureDirs(l.ExtractionCacheDir()); err != nil {
		return pkgerrors.New(pkgerrors.Transient, "creating extraction cache dir", err, nil)
	}

	processed, cacheHits, pendingRows := 0, 0, 0
	for _, kindInfo := range []struct {
		agendas bool
		kind    sitedb.Kind
	}{{false, sitedb.KindMinutes}, {true, sitedb.KindAgendas}} {
		docs, err := walkTxtTree(l, kindInfo.agendas)
		if err != nil {
			return pkgerrors.New(pkgerrors.Transient, "walking txt tree", err, map[string]any{"subdomain": subdomain})
		}
		for _, pg := range docs {
			result, cached, err := c.extractPage(ctx, l, kindInfo.kind, pg)
			if err != nil {
				return pkgerrors.New(pkgerrors.PermanentPerDocument, "extraction failed", err, map[string]any{
					"subdomain": subdomain, "meeting": pg.meeting, "date": pg.date, "page": pg.page,
				})
			}
			if cached {
				cacheHits++
			}
			processed++

			fp, err := fingerprint.Of(fingerprint.Record{
				Kind: string(kindInfo.kind), Meeting: pg.meeting, Date: pg.date, Page: pg.page, Text: pg.text,
				Subdomain: subdomain,
			})
			if err != nil {
				return pkgerrors.New(pkgerrors.Fatal, "computing fingerprint", err, nil)
			}
			extractionJSON, err := json.Marshal(result)
			if err != nil {
				return pkgerrors.New(pkgerrors.Fatal, "marshaling extraction result", err, nil)
			}
			if err := db.SetExtraction(ctx, kindInfo.kind, fp, string(extractionJSON)); err != nil {
				// compile runs concurrently and may not have inserted this
				// page's row yet: counted here and reported below as a
				// Transient error, which fails the job (the worker does
				// not retry it).
				pendingRows++
				continue
			}
		}
	}

	if pendingRows > 0 {
		return pkgerrors.New(pkgerrors.Transient, "some pages not yet compiled", nil, map[string]any{
			"subdomain": subdomain, "pending_rows": pendingRows,
		})
	}

	log.StageCompleted("extract", time.Since(start), map[string]any{
		"pages_processed": processed, "cache_hits": cacheHits,
	})
	return nil
}

// extractPage consults the content-addressed cache before invoking the
// extraction engine, and writes a fresh cache entry on a miss.
func (c *Context) extractPage(ctx context.Context, l layout.Layout, kind sitedb.Kind, pg txtPage) (map[string]any, bool, error) {
	hash := sha256.Sum256([]byte(pg.text))
	key := hex.EncodeToString(hash[:])
	cachePath := l.ExtractionCachePath(key)

	if raw, err := os.ReadFile(cachePath); err == nil {
		var cached map[string]any
		if err := json.Unmarshal(raw, &cached); err == nil {
			return cached, true, nil
		}
	}

	result, err := c.Extraction.Extract(ctx, extract.Request{
		Subdomain: l.Subdomain, Kind: string(kind), Meeting: pg.meeting, Date: pg.date, Page: pg.page, Text: pg.text,
	})
	if err != nil {
		return nil, false, err
	}

	if raw, err := json.Marshal(result); err == nil {
		_ = os.WriteFile(cachePath, raw, 0o644)
	}
	return result, false, nil
}
