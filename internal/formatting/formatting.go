// Package formatting renders status reports in one of several output
// formats for the `status` command. Grounded on the teacher's own
// internal/formatting package (an Options{Format,Quiet,Color}-driven
// Formatter per mode), trimmed to clerk's domain: the teacher's
// Formatter formatted MCP tools/resources/prompts (mark3labs/mcp-go
// types) for its aggregator CLI, which has no equivalent surface here,
// so only the generic "marshal one value as JSON/YAML/a table" concern
// survives, rewritten against this module's report types.
package formatting

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"gopkg.in/yaml.v3"
)

// Format selects how Write renders a report.
type Format string

const (
	FormatConsole Format = "console"
	FormatJSON    Format = "json"
	FormatYAML    Format = "yaml"
	FormatTable   Format = "table"
)

// Valid reports whether f is one of the recognized formats.
func (f Format) Valid() bool {
	switch f {
	case FormatConsole, FormatJSON, FormatYAML, FormatTable:
		return true
	}
	return false
}

// QueueDepth is one named queue's current length.
type QueueDepth struct {
	Queue string `json:"queue" yaml:"queue"`
	Depth int    `json:"depth" yaml:"depth"`
}

// SiteSummary is one site's row in the `status` report.
type SiteSummary struct {
	Subdomain string `json:"subdomain" yaml:"subdomain"`
	Stage     string `json:"stage" yaml:"stage"`
	Status    string `json:"status" yaml:"status"`
	OCR       string `json:"ocr" yaml:"ocr"`
	Compile   string `json:"compile" yaml:"compile"`
	Extract   string `json:"extract" yaml:"extract"`
	Pages     int    `json:"pages" yaml:"pages"`
}

// Report is everything `status` has to show.
type Report struct {
	Queues []QueueDepth  `json:"queues" yaml:"queues"`
	Sites  []SiteSummary `json:"sites,omitempty" yaml:"sites,omitempty"`
}

// Write renders r to w in the given format. FormatConsole and
// FormatTable both use go-pretty tables; FormatTable renders with
// table.StyleLight and console with go-pretty's default style, matching
// the teacher's own distinction between a quick scan and a
// presentation-quality table.
func Write(w io.Writer, r Report, format Format) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	case FormatYAML:
		b, err := yaml.Marshal(r)
		if err != nil {
			return fmt.Errorf("formatting: marshaling yaml: %w", err)
		}
		_, err = w.Write(b)
		return err
	case FormatTable, FormatConsole:
		writeQueueTable(w, r.Queues, format == FormatTable)
		if len(r.Sites) > 0 {
			writeSiteTable(w, r.Sites, format == FormatTable)
		}
		return nil
	default:
		return fmt.Errorf("formatting: unrecognized format %q", format)
	}
}

func writeQueueTable(w io.Writer, queues []QueueDepth, decorated bool) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	if decorated {
		t.SetStyle(table.StyleLight)
	}
	t.AppendHeader(table.Row{"Queue", "Depth"})
	for _, q := range queues {
		t.AppendRow(table.Row{q.Queue, q.Depth})
	}
	t.Render()
}

func writeSiteTable(w io.Writer, sites []SiteSummary, decorated bool) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	if decorated {
		t.SetStyle(table.StyleLight)
	}
	t.AppendHeader(table.Row{"Subdomain", "Stage", "Status", "OCR", "Compile", "Extract", "Pages"})
	for _, s := range sites {
		t.AppendRow(table.Row{s.Subdomain, s.Stage, s.Status, s.OCR, s.Compile, s.Extract, s.Pages})
	}
	t.Render()
}
