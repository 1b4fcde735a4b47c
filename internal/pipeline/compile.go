package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"time"

	pkgerrors "github.com/civicband/clerk-sub001/internal/errors"
	"github.com/civicband/clerk-sub001/internal/fingerprint"
	"github.com/civicband/clerk-sub001/internal/layout"
	"github.com/civicband/clerk-sub001/internal/logging"
	"github.com/civicband/clerk-sub001/internal/model"
	"github.com/civicband/clerk-sub001/internal/sitedb"
)

// Compile implements spec.md §4.6.4: walk the txt tree, upsert every page
// into meetings.db keyed by its fingerprint, and (when extraction is
// disabled, so there is no parallel branch to join) enqueue deploy.
func (c *Context) Compile(ctx context.Context, job model.Job) error {
	start := time.Now()
	subdomain, err := requireString(job.Payload, "subdomain")
	if err != nil {
		return pkgerrors.New(pkgerrors.Configuration, "compile job missing subdomain", err, nil)
	}
	runID := payloadString(job.Payload, "run_id")

	log, ctx := logging.WithJob(ctx, "compile", job.ID, job.ParentJobID, runID, subdomain, string(model.StageCompilation))
	log.StageStarted("compile", map[string]any{"subdomain": subdomain})

	l := layout.New(c.StorageDir, subdomain)
	db, err := sitedb.Open(l.DBPath())
	if err != nil {
		return pkgerrors.New(pkgerrors.Transient, "opening site database", err, map[string]any{"subdomain": subdomain})
	}
	defer db.Close()

	compiled := 0
	for _, kindInfo := range []struct {
		agendas bool
		kind    sitedb.Kind
	}{{false, sitedb.KindMinutes}, {true, sitedb.KindAgendas}} {
		docs, err := walkTxtTree(l, kindInfo.agendas)
		if err != nil {
			return pkgerrors.New(pkgerrors.Transient, "walking txt tree", err, map[string]any{"subdomain": subdomain})
		}
		for _, pg := range docs {
			fp, err := fingerprint.Of(fingerprint.Record{
				Kind: string(kindInfo.kind), Meeting: pg.meeting, Date: pg.date, Page: pg.page, Text: pg.text,
				Subdomain: subdomain,
			})
			if err != nil {
				return pkgerrors.New(pkgerrors.Fatal, "computing fingerprint", err, nil)
			}
			if err := db.UpsertPage(ctx, sitedb.Page{
				Fingerprint: fp, Kind: kindInfo.kind, Meeting: pg.meeting, Date: pg.date, Page: pg.page, Text: pg.text,
			}); err != nil {
				return pkgerrors.New(pkgerrors.Transient, "upserting compiled page", err, map[string]any{"subdomain": subdomain})
			}
			compiled++
		}
	}

	if !c.EnableExtraction {
		deployID, err := newJobID()
		if err != nil {
			return pkgerrors.New(pkgerrors.Fatal, "generating deploy job id", err, nil)
		}
		deployJob := model.Job{
			ID: deployID, Type: model.JobDeploy, Subdomain: subdomain, RunID: runID,
			Stage: model.StageDeploy, Priority: job.Priority,
			Payload: map[string]any{"subdomain": subdomain, "run_id": runID},
			Status:  model.JobQueued,
		}
		if err := c.Queue.Enqueue(ctx, deployJob); err != nil {
			return pkgerrors.New(pkgerrors.Transient, "enqueueing deploy job", err, nil)
		}
		if err := c.Store.TrackJob(ctx, deployID, subdomain, model.JobDeploy, model.StageDeploy, job.ID); err != nil {
			return pkgerrors.New(pkgerrors.Transient, "tracking deploy job", err, nil)
		}
	}

	log.StageCompleted("compile", time.Since(start), map[string]any{"pages_compiled": compiled})
	return nil
}

type txtPage struct {
	meeting, date string
	page          int
	text          string
}

// walkTxtTree enumerates every page-N.txt file under a site's minutes or
// agendas txt tree.
func walkTxtTree(l layout.Layout, agendas bool) ([]txtPage, error) {
	root := l.TxtDir(agendas)
	meetingDirs, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var out []txtPage
	for _, md := range meetingDirs {
		if !md.IsDir() {
			continue
		}
		meeting := md.Name()
		dateDirs, err := os.ReadDir(filepath.Join(root, meeting))
		if err != nil {
			continue
		}
		for _, dd := range dateDirs {
			if !dd.IsDir() {
				continue
			}
			date := dd.Name()
			dir := filepath.Join(root, meeting, date)
			pages, err := os.ReadDir(dir)
			if err != nil {
				continue
			}
			for _, pf := range pages {
				if pf.IsDir() || filepath.Ext(pf.Name()) != ".txt" {
					continue
				}
				num := parsePageNumber(pf.Name())
				if num < 0 {
					continue
				}
				text, err := os.ReadFile(filepath.Join(dir, pf.Name()))
				if err != nil {
					continue
				}
				out = append(out, txtPage{meeting: meeting, date: date, page: num, text: string(text)})
			}
		}
	}
	return out, nil
}

// parsePageNumber extracts N from "page-N.txt", returning -1 if the name
// doesn't match that pattern.
func parsePageNumber(name string) int {
	const prefix, suffix = "page-", ".txt"
	if len(name) <= len(prefix)+len(suffix) || name[:len(prefix)] != prefix || name[len(name)-len(suffix):] != suffix {
		return -1
	}
	digits := name[len(prefix) : len(name)-len(suffix)]
	n := 0
	for _, r := range digits {
		if r < '0' || r > '9' {
			return -1
		}
		n = n*10 + int(r-'0')
	}
	return n
}
