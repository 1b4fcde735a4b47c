package cmd

import (
	"context"
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/civicband/clerk-sub001/internal/cli"
	"github.com/civicband/clerk-sub001/internal/config"
	"github.com/civicband/clerk-sub001/internal/formatting"
	"github.com/civicband/clerk-sub001/internal/layout"
	"github.com/civicband/clerk-sub001/internal/manifest"
	"github.com/civicband/clerk-sub001/internal/model"
)

var (
	statusSubdomain string
	statusFormat    string
)

// newStatusCmd implements `status [-s SUBDOMAIN] [--format]`, spec.md
// §6: queue depths across every stage, and either every site's
// stage/counters or, with -s, one site's detail plus its recent run
// failures. --format selects console/table/json/yaml for the summary
// view; -s's detail view (which also lists individual failures) always
// prints as plain text, since that shape doesn't fit formatting.Report.
func newStatusCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "status",
		Short: "Show queue depths and site pipeline progress",
		RunE:  runStatus,
	}
	c.Flags().StringVarP(&statusSubdomain, "subdomain", "s", "", "show detail for a single site")
	c.Flags().StringVar(&statusFormat, "format", string(formatting.FormatTable), "console, table, json or yaml")
	return c
}

var statusQueueNames = []string{"high", "fetch", "ocr", "compilation", "extraction", "deploy"}

func runStatus(cmd *cobra.Command, args []string) error {
	format := formatting.Format(statusFormat)
	if !format.Valid() {
		return newUsageError(fmt.Sprintf("--format must be console, table, json or yaml, got %q", statusFormat))
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	rt, err := cli.NewRuntime(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	if statusSubdomain != "" {
		return printSiteDetail(ctx, cmd, rt, cfg.StorageDir, statusSubdomain)
	}
	return printSummary(ctx, cmd, rt, format)
}

func printSummary(ctx context.Context, cmd *cobra.Command, rt *cli.Runtime, format formatting.Format) error {
	report := formatting.Report{}
	for _, name := range statusQueueNames {
		n, err := rt.Queue.Length(ctx, name)
		if err != nil {
			return err
		}
		report.Queues = append(report.Queues, formatting.QueueDepth{Queue: name, Depth: n})
	}

	sites, err := rt.Store.AllSites(ctx)
	if err != nil {
		return err
	}
	for _, site := range sites {
		ocr := site.Counters[model.CounterOCR]
		compile := site.Counters[model.CounterCompilation]
		extract := site.Counters[model.CounterExtraction]
		report.Sites = append(report.Sites, formatting.SiteSummary{
			Subdomain: site.Subdomain,
			Stage:     string(site.CurrentStage),
			Status:    string(site.Status),
			OCR:       fmt.Sprintf("%d/%d (%d failed)", ocr.Completed, ocr.Total, ocr.Failed),
			Compile:   fmt.Sprintf("%d/%d (%d failed)", compile.Completed, compile.Total, compile.Failed),
			Extract:   fmt.Sprintf("%d/%d (%d failed)", extract.Completed, extract.Total, extract.Failed),
			Pages:     site.Pages,
		})
	}

	return formatting.Write(cmd.OutOrStdout(), report, format)
}

func printSiteDetail(ctx context.Context, cmd *cobra.Command, rt *cli.Runtime, storageDir, subdomain string) error {
	site, ok, err := rt.Store.GetSite(ctx, subdomain)
	if err != nil {
		return err
	}
	if !ok {
		return newUsageError(fmt.Sprintf("no such site: %s", subdomain))
	}

	counters, err := rt.Store.ReadCounters(ctx, subdomain)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s\n", site.Subdomain)
	fmt.Fprintf(out, "  stage:      %s\n", site.CurrentStage)
	fmt.Fprintf(out, "  status:     %s\n", site.Status)
	fmt.Fprintf(out, "  extraction: %s\n", site.ExtractionStatus)
	fmt.Fprintf(out, "  pages:      %d\n", site.Pages)

	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.AppendHeader(table.Row{"Stage", "Total", "Completed", "Failed"})
	for _, stage := range []model.CounterStage{model.CounterOCR, model.CounterCompilation, model.CounterExtraction, model.CounterDeploy} {
		c := counters[stage]
		t.AppendRow(table.Row{stage, c.Total, c.Completed, c.Failed})
	}
	t.Render()

	l := layout.New(storageDir, subdomain)
	runIDs, err := manifest.RunIDs(l)
	if err != nil {
		return err
	}
	if len(runIDs) == 0 {
		fmt.Fprintln(out, "no recorded run failures")
		return nil
	}
	latest := runIDs[0]
	entries, err := manifest.Read(l, latest)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "most recent run %s: %d recorded failures\n", latest, len(entries))
	for _, e := range entries {
		fmt.Fprintf(out, "  %s: %s (%s)\n", e.PDFPath, e.ErrorMessage, e.ErrorType)
	}
	return nil
}
