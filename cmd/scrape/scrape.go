package scrape

import (
	"context"
	"fmt"
	"io"

	"github.com/dreamerjackson/leadcrawler/app"
	"github.com/dreamerjackson/leadcrawler/spider"
	"github.com/spf13/cobra"
)

var ScrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "run one target now.",
	Long:  "run one target now and print the run summary.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return Run(cmd.Context(), cmd.OutOrStdout())
	},
}

var (
	configFile string
	targetRef  string
	retry      bool
)

func init() {
	ScrapeCmd.Flags().StringVar(
		&configFile, "config", "config.toml", "set config file")
	ScrapeCmd.Flags().StringVar(
		&targetRef, "target", "", "target name or id")
	ScrapeCmd.Flags().BoolVar(
		&retry, "retry", false, "record the run as a retry")
	ScrapeCmd.MarkFlagRequired("target")
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

	t, err := a.ResolveTarget(ctx, targetRef)
	if err != nil {
		return err
	}
	trigger := spider.TriggerManual
	if retry {
		trigger = spider.TriggerRetry
	}

	run, err := a.Runner.Run(ctx, t.ID, trigger)
	if err != nil {
		return err
	}
	PrintRun(w, t, run)
	if run.Status != spider.RunSuccess {
		return fmt.Errorf("run %d failed: %s", run.ID, run.ErrorKind)
	}
	return nil
}

func PrintRun(w io.Writer, t *spider.Target, run *spider.RunRecord) {
	fmt.Fprintf(w, "target:    %s (%d)\n", t.Name, t.ID)
	fmt.Fprintf(w, "run:       %d %s [%s]\n", run.ID, run.Status, run.Trigger)
	fmt.Fprintf(w, "items:     %d (created %d, updated %d, forwarded %d)\n",
		run.ItemCount, run.CreatedCount, run.UpdatedCount, run.ForwardedCount)
	fmt.Fprintf(w, "duration:  %s\n", run.Duration())
	if run.ErrorKind != "" {
		fmt.Fprintf(w, "error:     %s: %s\n", run.ErrorKind, run.ErrorMessage)
	}
}
