package cmd

import (
	"fmt"
	"time"

	"github.com/briandowns/spinner"
	"github.com/spf13/cobra"

	"github.com/civicband/clerk-sub001/internal/cli"
	"github.com/civicband/clerk-sub001/internal/config"
	pkgerrors "github.com/civicband/clerk-sub001/internal/errors"
	"github.com/civicband/clerk-sub001/internal/testrunner"
)

const spinnerInterval = 100 * time.Millisecond

var (
	testPipelineDryRun            bool
	testPipelineSkipFetch         bool
	testPipelineSkipOCR           bool
	testPipelineNoExtractEntities bool
)

// newTestPipelineCmd implements `test-pipeline SUBDOMAIN`, spec.md
// §4.9/§6: run the Test-Mode Runner in-process and fail if any expected
// handler never fired.
func newTestPipelineCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "test-pipeline SUBDOMAIN",
		Short: "Run the full pipeline for one site in-process, without Redis",
		Args:  cobra.ExactArgs(1),
		RunE:  runTestPipeline,
	}
	c.Flags().BoolVar(&testPipelineDryRun, "dry-run", false, "report which handlers would run without running them")
	c.Flags().BoolVar(&testPipelineSkipFetch, "skip-fetch", false, "assume PDFs are already on disk")
	c.Flags().BoolVar(&testPipelineSkipOCR, "skip-ocr", false, "assume OCR output is already on disk")
	c.Flags().BoolVar(&testPipelineNoExtractEntities, "no-extract-entities", false, "disable entity extraction regardless of site config")
	return c
}

func runTestPipeline(cmd *cobra.Command, args []string) error {
	subdomain := args[0]

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

	out := cmd.OutOrStdout()
	s := spinner.New(spinner.CharSets[9], spinnerInterval)
	s.Writer = out
	s.Suffix = fmt.Sprintf(" running pipeline for %s", subdomain)
	s.Start()

	report, err := testrunner.Run(ctx, rt.PipelineContext(), subdomain, testrunner.Options{
		DryRun:            testPipelineDryRun,
		SkipFetch:         testPipelineSkipFetch,
		SkipOCR:           testPipelineSkipOCR,
		NoExtractEntities: testPipelineNoExtractEntities,
	})
	s.Stop()
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "expected handlers: %v\n", report.Expected)
	fmt.Fprintf(out, "invoked handlers:  %v\n", report.Invoked)
	if !report.Passed() {
		fmt.Fprintf(out, "missing handlers:  %v\n", report.Missing)
		return pkgerrors.New(pkgerrors.Consistency, "test-pipeline did not invoke every expected handler", nil, map[string]any{"subdomain": subdomain, "missing": report.Missing})
	}
	fmt.Fprintln(out, "ok")
	return nil
}
