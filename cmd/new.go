package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/civicband/clerk-sub001/internal/cli"
	"github.com/civicband/clerk-sub001/internal/config"
	"github.com/civicband/clerk-sub001/internal/model"
	"github.com/civicband/clerk-sub001/internal/scheduler"
)

var (
	newSiteName    string
	newSiteState   string
	newSiteKind    string
	newSiteScraper string
	newSiteCountry string
)

// newNewCmd implements `new SUBDOMAIN`, spec.md §6.
func newNewCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "new SUBDOMAIN",
		Short: "Register a new site and enqueue its first fetch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runNew(cmd, args[0])
		},
	}
	c.Flags().StringVar(&newSiteName, "name", "", "human-readable site name")
	c.Flags().StringVar(&newSiteState, "state", "", "state/region the site belongs to")
	c.Flags().StringVar(&newSiteKind, "kind", "", "site kind (e.g. city, county)")
	c.Flags().StringVar(&newSiteScraper, "scraper", "", "legacy scraper label, if this site predates the extractor plugin")
	c.Flags().StringVar(&newSiteCountry, "country", "", "country the site belongs to")
	return c
}

func runNew(cmd *cobra.Command, subdomain string) error {
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

	site := model.Site{
		Subdomain:    subdomain,
		Name:         newSiteName,
		Region:       newSiteState,
		Kind:         newSiteKind,
		CurrentStage: model.StageNone,
		Status:       model.StatusNew,
		Extra:        map[string]any{},
	}
	if newSiteCountry != "" {
		site.Extra["country"] = newSiteCountry
	}
	if newSiteScraper != "" {
		site.Scraper = &newSiteScraper
	}

	if err := rt.Store.CreateSite(ctx, site); err != nil {
		return err
	}

	runID, err := scheduler.EnqueueManualFetch(ctx, rt.Queue, rt.Store, subdomain)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "created %s, enqueued fetch run %s\n", subdomain, runID)
	return nil
}
