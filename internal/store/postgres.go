package store

import (
	"context"
	stdsql "database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver, used only to drive migrate

	"github.com/civicband/clerk-sub001/internal/model"
)

//go:embed migrations
var migrationsFS embed.FS

// Postgres is the production Central Store, backed by a pgxpool connection
// pool and schema-migrated with golang-migrate, grounded on
// codeready-toolchain-tarsy's pkg/database/client.go migration pattern
// (embedded SQL files applied via iofs + the postgres driver) adapted from
// Ent/database-sql to a plain pgxpool-based Store.
type Postgres struct {
	pool  *pgxpool.Pool
	hooks Hooks
}

// NewPostgres connects to dsn, applies pending migrations, and returns a
// ready Store.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	if err := migrateUp(dsn); err != nil {
		return nil, fmt.Errorf("store: migrating schema: %w", err)
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("store: connecting: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}

	return &Postgres{pool: pool, hooks: noopHooks{}}, nil
}

func migrateUp(dsn string) error {
	db, err := stdsql.Open("pgx", dsn)
	if err != nil {
		return err
	}
	defer db.Close()

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return err
	}
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return err
	}
	m, err := migrate.NewWithInstance("iofs", sourceDriver, "clerk", driver)
	if err != nil {
		return err
	}
	defer sourceDriver.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

func (p *Postgres) SetHooks(hooks Hooks) { p.hooks = hooks }

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

func (p *Postgres) GetSite(ctx context.Context, subdomain string) (model.Site, bool, error) {
	row := p.pool.QueryRow(ctx, `
		SELECT subdomain, name, region, kind, starting_year, latitude, longitude,
		       extra, pipeline, scraper, current_stage, status, extraction_status,
		       started_at, updated_at, last_updated, last_extracted, pages,
		       coordinator_enqueued
		FROM sites WHERE subdomain = $1`, subdomain)

	site, err := scanSite(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Site{}, false, nil
	}
	if err != nil {
		return model.Site{}, false, err
	}

	site.Counters, err = p.ReadCounters(ctx, subdomain)
	if err != nil {
		return model.Site{}, false, err
	}
	return site, true, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSite(row rowScanner) (model.Site, error) {
	var s model.Site
	var extraRaw, pipelineRaw []byte
	var scraper *string

	err := row.Scan(
		&s.Subdomain, &s.Name, &s.Region, &s.Kind, &s.StartingYear, &s.Latitude, &s.Longitude,
		&extraRaw, &pipelineRaw, &scraper, &s.CurrentStage, &s.Status, &s.ExtractionStatus,
		&s.StartedAt, &s.UpdatedAt, &s.LastUpdated, &s.LastExtracted, &s.Pages,
		&s.CoordinatorEnqueued,
	)
	if err != nil {
		return model.Site{}, err
	}
	s.Scraper = scraper

	if len(extraRaw) > 0 {
		if err := json.Unmarshal(extraRaw, &s.Extra); err != nil {
			return model.Site{}, fmt.Errorf("store: decoding extra: %w", err)
		}
	}
	if len(pipelineRaw) > 0 {
		pc, err := model.ParsePipelineConfig(pipelineRaw)
		if err != nil {
			return model.Site{}, err
		}
		s.Pipeline = pc
	}
	return s, nil
}

func (p *Postgres) CreateSite(ctx context.Context, site model.Site) error {
	extraRaw, err := json.Marshal(site.Extra)
	if err != nil {
		return err
	}
	var pipelineRaw []byte
	if site.Pipeline != nil {
		pipelineRaw, err = json.Marshal(site.Pipeline)
		if err != nil {
			return err
		}
	}

	_, err = p.pool.Exec(ctx, `
		INSERT INTO sites (subdomain, name, region, kind, starting_year, latitude, longitude,
		                    extra, pipeline, scraper, current_stage, status, extraction_status,
		                    started_at, updated_at, last_updated, last_extracted, pages,
		                    coordinator_enqueued)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)`,
		site.Subdomain, site.Name, site.Region, site.Kind, site.StartingYear, site.Latitude, site.Longitude,
		extraRaw, nullableJSON(pipelineRaw), site.Scraper, site.CurrentStage, site.Status, site.ExtractionStatus,
		site.StartedAt, site.UpdatedAt, site.LastUpdated, site.LastExtracted, site.Pages,
		site.CoordinatorEnqueued,
	)
	if err != nil {
		return fmt.Errorf("store: inserting site %s: %w", site.Subdomain, err)
	}

	for stage, c := range site.Counters {
		if err := p.SetCounter(ctx, site.Subdomain, stage, FieldTotal, c.Total); err != nil {
			return err
		}
		if err := p.SetCounter(ctx, site.Subdomain, stage, FieldCompleted, c.Completed); err != nil {
			return err
		}
		if err := p.SetCounter(ctx, site.Subdomain, stage, FieldFailed, c.Failed); err != nil {
			return err
		}
	}

	p.hooks.DispatchCreateSite(ctx, site.Subdomain, site)
	return nil
}

func nullableJSON(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return raw
}

func (p *Postgres) UpdateSite(ctx context.Context, subdomain string, u SiteUpdate) error {
	sets := make([]string, 0, 8)
	args := make([]any, 0, 8)
	add := func(col string, val any) {
		args = append(args, val)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}

	if u.CurrentStage != nil {
		add("current_stage", *u.CurrentStage)
	}
	if u.Status != nil {
		add("status", *u.Status)
	}
	if u.ExtractionStatus != nil {
		add("extraction_status", *u.ExtractionStatus)
	}
	if u.StartedAt != nil {
		add("started_at", *u.StartedAt)
	}
	if u.LastUpdated != nil {
		add("last_updated", *u.LastUpdated)
	}
	if u.LastExtracted != nil {
		add("last_extracted", *u.LastExtracted)
	}
	if u.Pages != nil {
		add("pages", *u.Pages)
	}
	if u.CoordinatorEnqueued != nil {
		add("coordinator_enqueued", *u.CoordinatorEnqueued)
	}
	add("updated_at", time.Now().UTC())

	if len(sets) == 0 {
		return nil
	}

	query := "UPDATE sites SET "
	for i, s := range sets {
		if i > 0 {
			query += ", "
		}
		query += s
	}
	args = append(args, subdomain)
	query += fmt.Sprintf(" WHERE subdomain = $%d", len(args))

	tag, err := p.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("store: updating site %s: %w", subdomain, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("store: unknown site %s", subdomain)
	}

	p.hooks.DispatchUpdateSite(ctx, subdomain, u)
	return nil
}

func (p *Postgres) GetOldestSite(ctx context.Context, lookbackHours int, now time.Time) (string, bool, error) {
	cutoff := now.Add(-time.Duration(lookbackHours) * time.Hour)
	row := p.pool.QueryRow(ctx, `
		SELECT subdomain FROM sites
		WHERE last_updated IS NULL OR last_updated < $1
		ORDER BY (last_updated IS NULL) DESC, last_updated ASC, subdomain ASC
		LIMIT 1`, cutoff)

	var subdomain string
	err := row.Scan(&subdomain)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return subdomain, true, nil
}

func (p *Postgres) IncrementCounter(ctx context.Context, subdomain string, stage model.CounterStage, field CounterField, delta int) error {
	col, err := counterColumn(field)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`
		INSERT INTO site_counters (subdomain, stage, %s)
		VALUES ($1, $2, $3)
		ON CONFLICT (subdomain, stage) DO UPDATE SET %s = site_counters.%s + $3`, col, col, col)
	_, err = p.pool.Exec(ctx, query, subdomain, stage, delta)
	return err
}

func (p *Postgres) SetCounter(ctx context.Context, subdomain string, stage model.CounterStage, field CounterField, value int) error {
	col, err := counterColumn(field)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`
		INSERT INTO site_counters (subdomain, stage, %s)
		VALUES ($1, $2, $3)
		ON CONFLICT (subdomain, stage) DO UPDATE SET %s = $3`, col, col)
	_, err = p.pool.Exec(ctx, query, subdomain, stage, value)
	return err
}

func counterColumn(field CounterField) (string, error) {
	switch field {
	case FieldTotal:
		return "total", nil
	case FieldCompleted:
		return "completed", nil
	case FieldFailed:
		return "failed", nil
	default:
		return "", fmt.Errorf("store: unknown counter field %q", field)
	}
}

func (p *Postgres) ReadCounters(ctx context.Context, subdomain string) (map[model.CounterStage]model.Counter, error) {
	rows, err := p.pool.Query(ctx, `SELECT stage, total, completed, failed FROM site_counters WHERE subdomain = $1`, subdomain)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[model.CounterStage]model.Counter)
	for rows.Next() {
		var stage model.CounterStage
		var c model.Counter
		if err := rows.Scan(&stage, &c.Total, &c.Completed, &c.Failed); err != nil {
			return nil, err
		}
		out[stage] = c
	}
	return out, rows.Err()
}

func (p *Postgres) TrackJob(ctx context.Context, jobID, subdomain string, jobType model.JobType, stage model.Stage, parentJobID string) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO tracked_jobs (job_id, subdomain, job_type, stage, parent_job_id)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (job_id) DO NOTHING`, jobID, subdomain, jobType, stage, parentJobID)
	return err
}

func (p *Postgres) AllSites(ctx context.Context) ([]model.Site, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT subdomain, name, region, kind, starting_year, latitude, longitude,
		       extra, pipeline, scraper, current_stage, status, extraction_status,
		       started_at, updated_at, last_updated, last_extracted, pages,
		       coordinator_enqueued
		FROM sites ORDER BY subdomain`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Site
	for rows.Next() {
		site, err := scanSite(rows)
		if err != nil {
			return nil, err
		}
		site.Counters, err = p.ReadCounters(ctx, site.Subdomain)
		if err != nil {
			return nil, err
		}
		out = append(out, site)
	}
	return out, rows.Err()
}
