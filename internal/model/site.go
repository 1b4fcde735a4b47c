// Package model defines the data model from spec.md §3: Site, Job, Run
// and the stage/status enumerations shared by every other package.
package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// Stage is one of the pipeline stages a site can occupy, spec.md §3.1.
type Stage string

const (
	StageNone        Stage = "none"
	StageFetch       Stage = "fetch"
	StageOCR         Stage = "ocr"
	StageCompilation Stage = "compilation"
	StageExtraction  Stage = "extraction"
	StageDeploy      Stage = "deploy"
	StageCompleted   Stage = "completed"
	StageFailed      Stage = "failed"
)

// Status is the coarse, human-facing site status, spec.md §3.1.
type Status string

const (
	StatusNew             Status = "new"
	StatusNeedsFetch      Status = "needs_fetch"
	StatusNeedsExtraction Status = "needs_extraction"
	StatusNeedsDeploy     Status = "needs_deploy"
	StatusDeployed        Status = "deployed"
	StatusFailed          Status = "failed"
)

// ExtractionStatus tracks the independent extraction sub-pipeline state.
type ExtractionStatus string

const (
	ExtractionPending    ExtractionStatus = "pending"
	ExtractionInProgress ExtractionStatus = "in_progress"
	ExtractionCompleted  ExtractionStatus = "completed"
	ExtractionFailed     ExtractionStatus = "failed"
)

// CounterStage names one of the four stages with document-level atomic
// counters, spec.md §3.1.
type CounterStage string

const (
	CounterOCR         CounterStage = "ocr"
	CounterCompilation CounterStage = "compilation"
	CounterExtraction  CounterStage = "extraction"
	CounterDeploy      CounterStage = "deploy"
)

// Counter is the {total, completed, failed} triple tracked per
// CounterStage. Invariant (spec.md §3.1): 0 <= Completed <= Total and
// 0 <= Failed <= Total.
type Counter struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}

// Terminal reports whether every document in this stage has reached a
// terminal outcome — the coordinator fan-in trigger condition.
func (c Counter) Terminal() bool {
	return c.Completed+c.Failed >= c.Total
}

// Valid reports whether the counter satisfies spec.md §3.1's invariants.
func (c Counter) Valid() bool {
	return c.Completed >= 0 && c.Completed <= c.Total && c.Failed >= 0 && c.Failed <= c.Total
}

// PipelineConfig is the structured `pipeline` column, spec.md §3.1. A nil
// Transformer or Loader means "use the default plugin for this role";
// Resolve rejects a config whose Extractor is nil or empty.
type PipelineConfig struct {
	Extractor   *string `json:"extractor"`
	Transformer *string `json:"transformer"`
	Loader      *string `json:"loader"`
}

// Site is a civic jurisdiction being processed, spec.md §3.1.
type Site struct {
	Subdomain string `json:"subdomain"`

	Name          string         `json:"name"`
	Region        string         `json:"region"`
	Kind          string         `json:"kind"`
	StartingYear  int            `json:"starting_year"`
	Latitude      float64        `json:"latitude"`
	Longitude     float64        `json:"longitude"`
	Extra         map[string]any `json:"extra"`

	Pipeline *PipelineConfig `json:"pipeline"`
	Scraper  *string         `json:"scraper"`

	CurrentStage     Stage            `json:"current_stage"`
	Status           Status           `json:"status"`
	ExtractionStatus ExtractionStatus `json:"extraction_status"`

	StartedAt     *time.Time `json:"started_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	LastUpdated   *time.Time `json:"last_updated"`
	LastExtracted *time.Time `json:"last_extracted"`

	Pages int `json:"pages"`

	Counters map[CounterStage]Counter `json:"counters"`

	CoordinatorEnqueued bool `json:"coordinator_enqueued"`
}

// ResolvedPipeline is the authoritative {extractor, transformer, loader}
// triple after adapting a legacy `scraper` label, per spec.md §3.1 ("pipeline
// wins when both present") and §9 ("legacy FetcherAdapter ... treats the
// adapter as an opaque extractor and reuses the default loader").
type ResolvedPipeline struct {
	Extractor   string
	Transformer string
	Loader      string
	Legacy      bool
}

const (
	defaultTransformer = "identity"
	defaultLoader      = "generic"
)

// Resolve implements spec.md §4.6.1 step 1 and §9's legacy adapter rule.
func (s *Site) Resolve() (ResolvedPipeline, error) {
	if s.Pipeline != nil {
		rp := ResolvedPipeline{Transformer: defaultTransformer, Loader: defaultLoader}
		if s.Pipeline.Extractor != nil {
			rp.Extractor = *s.Pipeline.Extractor
		}
		if s.Pipeline.Transformer != nil {
			rp.Transformer = *s.Pipeline.Transformer
		}
		if s.Pipeline.Loader != nil {
			rp.Loader = *s.Pipeline.Loader
		}
		if rp.Extractor == "" {
			return ResolvedPipeline{}, fmt.Errorf("model: site %s has a pipeline config with no extractor", s.Subdomain)
		}
		return rp, nil
	}
	if s.Scraper != nil && *s.Scraper != "" {
		return ResolvedPipeline{
			Extractor:   *s.Scraper,
			Transformer: defaultTransformer,
			Loader:      defaultLoader,
			Legacy:      true,
		}, nil
	}
	return ResolvedPipeline{}, fmt.Errorf("model: site %s has neither pipeline nor scraper configured", s.Subdomain)
}

// ParsePipelineConfig decodes the JSON form of the `pipeline` column into
// a typed record, rejecting malformed JSON. It does not check the labels
// against the plugin registry: an unknown extractor label is only
// reported when a fetch job looks it up.
func ParsePipelineConfig(raw []byte) (*PipelineConfig, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var pc PipelineConfig
	if err := json.Unmarshal(raw, &pc); err != nil {
		return nil, fmt.Errorf("model: malformed pipeline config: %w", err)
	}
	return &pc, nil
}
