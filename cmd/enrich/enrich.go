package enrich

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/dreamerjackson/leadcrawler/app"
	"github.com/dreamerjackson/leadcrawler/enrich"
	"github.com/dreamerjackson/leadcrawler/fetcher"
	"github.com/spf13/cobra"
)

var EnrichCmd = &cobra.Command{
	Use:   "enrich",
	Short: "enrich discovered records from their detail pages.",
	Long:  "fetch the detail page of undetailed records and merge the contact fields found there.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return Run(cmd.Context(), cmd.OutOrStdout())
	},
}

var (
	configFile    string
	targetRef     string
	platform      string
	limit         int
	delay         float64
	includeFailed bool
	rendered      bool
	dryRun        bool
)

func init() {
	f := EnrichCmd.Flags()
	f.StringVar(&configFile, "config", "config.toml", "set config file")
	f.StringVar(&targetRef, "target", "", "only records of this target name or id")
	f.StringVar(&platform, "platform", "", "only records of targets on this platform")
	f.IntVar(&limit, "limit", 0, "maximum records to process, 0 uses the configured batch size")
	f.Float64Var(&delay, "delay", 0, "seconds between detail fetches, 0 uses the configured delay")
	f.BoolVar(&includeFailed, "include-failed", false, "retry records whose enrichment failed")
	f.BoolVar(&rendered, "rendered", false, "fetch detail pages with the browser")
	f.BoolVar(&dryRun, "dry-run", false, "list the selected records without fetching")
}

func Run(ctx context.Context, w io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := app.Load(configFile)
	if err != nil {
		return err
	}
	defer a.Close()

	req := enrich.Request{
		Platform:      platform,
		Limit:         limit,
		IncludeFailed: includeFailed,
		DryRun:        dryRun,
	}
	if targetRef != "" {
		t, err := a.ResolveTarget(ctx, targetRef)
		if err != nil {
			return err
		}
		req.TargetID = t.ID
	}
	if rendered {
		req.Mode = fetcher.Rendered
	}
	if delay > 0 {
		req.Delay = time.Duration(delay * float64(time.Second))
	}

	res, err := a.Enricher.Enrich(ctx, req)
	if res != nil {
		PrintBatch(w, res, dryRun)
	}
	return err
}

func PrintBatch(w io.Writer, res *enrich.BatchResult, dryRun bool) {
	for _, o := range res.Outcomes {
		if dryRun {
			fmt.Fprintf(w, "%d\t%d\t%s\n", o.RecordID, o.TargetID, o.SourceURL)
			continue
		}
		line := fmt.Sprintf("%d\t%s\t%s\t+%d", o.RecordID, o.State, o.Strategy, o.Added)
		if o.Err != "" {
			line += "\t" + o.Err
		}
		fmt.Fprintln(w, line)
	}
	if dryRun {
		fmt.Fprintf(w, "selected %d records (dry run)\n", res.Selected)
		return
	}
	fmt.Fprintf(w, "selected %d, enriched %d, failed %d, forwarded %d, unsaved %d\n",
		res.Selected, res.Enriched, res.Failed, res.Forwarded, res.Unsaved)
}
