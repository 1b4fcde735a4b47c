package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/civicband/clerk-sub001/internal/config"
	"github.com/civicband/clerk-sub001/internal/supervisor"
)

var (
	supervisorUnitDir    string
	supervisorBinaryPath string
	supervisorWorkingDir string
)

func addSupervisorFlags(c *cobra.Command) {
	c.Flags().StringVar(&supervisorUnitDir, "unit-dir", "/etc/systemd/system", "directory systemd unit files are written to")
	c.Flags().StringVar(&supervisorBinaryPath, "binary-path", "", "path to the clerk binary the units should exec (default: the running executable)")
	c.Flags().StringVar(&supervisorWorkingDir, "working-dir", "", "working directory for worker units")
}

func resolveBinaryPath() (string, error) {
	if supervisorBinaryPath != "" {
		return supervisorBinaryPath, nil
	}
	return os.Executable()
}

// newInstallWorkersCmd implements `install-workers`, spec.md §4.5/§6.
func newInstallWorkersCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "install-workers",
		Short: "Render and start one systemd unit per configured worker process",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			binaryPath, err := resolveBinaryPath()
			if err != nil {
				return err
			}
			specs := supervisor.Plan(cfg.Workers, binaryPath, cfg.StorageDir, supervisorWorkingDir)
			if err := supervisor.Install(cmd.Context(), supervisorUnitDir, specs); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "installed %d worker units\n", len(specs))
			return nil
		},
	}
	addSupervisorFlags(c)
	return c
}

// newUninstallWorkersCmd implements `uninstall-workers`, spec.md §4.5/§6.
func newUninstallWorkersCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "uninstall-workers",
		Short: "Stop and remove every worker unit install-workers would create for this config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			binaryPath, err := resolveBinaryPath()
			if err != nil {
				return err
			}
			specs := supervisor.Plan(cfg.Workers, binaryPath, cfg.StorageDir, supervisorWorkingDir)
			if err := supervisor.Uninstall(cmd.Context(), supervisorUnitDir, specs); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "uninstalled %d worker units\n", len(specs))
			return nil
		},
	}
	addSupervisorFlags(c)
	return c
}
