package cmd

import (
	"errors"
	"os"

	"github.com/spf13/cobra"
)

// Exit codes for CLI commands, spec.md §6: 0 success / 1 usage error /
// 2 runtime error.
const (
	ExitCodeSuccess = 0
	ExitCodeUsage   = 1
	ExitCodeRuntime = 2
)

// rootCmd is the entry point when clerk is invoked without a subcommand.
var rootCmd = &cobra.Command{
	Use:   "clerk",
	Short: "Civic meeting pipeline coordinator",
	Long: `clerk drives the multi-stage pipeline that turns scraped municipal
meeting PDFs into OCR'd, compiled, optionally entity-extracted per-site
databases ready for deploy.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// SetVersion sets the version for the root command, injected at build
// time via -ldflags.
func SetVersion(v string) {
	rootCmd.Version = v
}

// Execute is main.main()'s entry point.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		rootCmd.PrintErrln("Error:", err)
		os.Exit(getExitCode(err))
	}
}

// getExitCode maps an error to spec.md §6's exit code convention: usage
// errors (bad flags, unknown values) exit 1, everything else — a
// pkgerrors.Error from a handler or collaborator failure — exits 2.
func getExitCode(err error) int {
	var usageErr usageError
	if errors.As(err, &usageErr) {
		return ExitCodeUsage
	}
	return ExitCodeRuntime
}

// usageError marks a user input mistake (missing required flag, unknown
// value) as distinct from a runtime failure, so getExitCode can tell
// them apart without inspecting message text.
type usageError struct{ msg string }

func (e usageError) Error() string { return e.msg }

func newUsageError(msg string) error { return usageError{msg: msg} }

func init() {
	rootCmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return newUsageError(err.Error())
	})
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newNewCmd())
	rootCmd.AddCommand(newUpdateCmd())
	rootCmd.AddCommand(newEnqueueCmd())
	rootCmd.AddCommand(newReconcilePipelineCmd())
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newWorkerCmd())
	rootCmd.AddCommand(newInstallWorkersCmd())
	rootCmd.AddCommand(newUninstallWorkersCmd())
	rootCmd.AddCommand(newTestPipelineCmd())
	rootCmd.AddCommand(newMigrateExtractionSchemaCmd())
	rootCmd.AddCommand(newMigrateStuckSitesCmd())
	rootCmd.AddCommand(newDBCmd())
}
