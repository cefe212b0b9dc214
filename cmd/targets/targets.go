package targets

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/dreamerjackson/leadcrawler/app"
	"github.com/dreamerjackson/leadcrawler/spider"
	"github.com/dreamerjackson/leadcrawler/targets"
	"github.com/spf13/cobra"
)

var TargetsCmd = &cobra.Command{
	Use:   "targets",
	Short: "manage scrape targets.",
	Long:  "import, list and discover scrape targets.",
}

var importCmd = &cobra.Command{
	Use:   "import FILE",
	Short: "import targets from a JSON or YAML file.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return Import(cmd.Context(), cmd.OutOrStdout(), args[0])
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "list stored targets.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return List(cmd.Context(), cmd.OutOrStdout())
	},
}

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "list recent runs.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return Runs(cmd.Context(), cmd.OutOrStdout())
	},
}

var discoverCmd = &cobra.Command{
	Use:   "discover URL",
	Short: "create a target from the preset of the URL's platform.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return Discover(cmd.Context(), cmd.OutOrStdout(), args[0])
	},
}

var (
	configFile     string
	update         bool
	disableMissing bool
	dryRun         bool
	enabledOnly    bool
	targetRef      string
	runLimit       int
	name           string
	interval       int
)

func init() {
	TargetsCmd.PersistentFlags().StringVar(
		&configFile, "config", "config.toml", "set config file")
	TargetsCmd.PersistentFlags().BoolVar(
		&dryRun, "dry-run", false, "report changes without writing them")

	importCmd.Flags().BoolVar(&update, "update", false, "overwrite targets that already exist")
	importCmd.Flags().BoolVar(&disableMissing, "disable-missing", false, "disable stored targets absent from the file")
	listCmd.Flags().BoolVar(&enabledOnly, "enabled", false, "only enabled targets")
	runsCmd.Flags().StringVar(&targetRef, "target", "", "only runs of this target name or id")
	runsCmd.Flags().IntVar(&runLimit, "limit", 20, "maximum runs to list")
	discoverCmd.Flags().StringVar(&name, "name", "", "target name, derived from the domain when empty")
	discoverCmd.Flags().IntVar(&interval, "interval", targets.DiscoverIntervalMinutes, "run interval in minutes")

	TargetsCmd.AddCommand(importCmd, listCmd, runsCmd, discoverCmd)
}

func load(ctx context.Context) (context.Context, *app.App, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := app.Load(configFile)
	return ctx, a, err
}

func Import(ctx context.Context, w io.Writer, path string) error {
	ctx, a, err := load(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	entries, err := targets.ReadFile(path)
	if err != nil {
		return err
	}
	rep, err := targets.Sync(ctx, a.Store, entries, targets.SyncOptions{
		Update:         update,
		DisableMissing: disableMissing,
		DryRun:         dryRun,
		Logger:         a.Logger.Named("targets"),
	})
	if err != nil {
		return err
	}
	PrintReport(w, rep)
	return nil
}

func PrintReport(w io.Writer, rep *targets.Report) {
	for _, c := range rep.Changes {
		if c.Err != nil {
			fmt.Fprintf(w, "%-9s %s: %v\n", c.Action, c.Name, c.Err)
			continue
		}
		fmt.Fprintf(w, "%-9s %s\n", c.Action, c.Name)
	}
	suffix := ""
	if rep.DryRun {
		suffix = " (dry run)"
	}
	fmt.Fprintf(w, "created %d, updated %d, skipped %d, disabled %d, invalid %d%s\n",
		rep.Count(targets.Created), rep.Count(targets.Updated), rep.Count(targets.Skipped),
		rep.Count(targets.Disabled), rep.Count(targets.Invalid), suffix)
}

func List(ctx context.Context, w io.Writer) error {
	ctx, a, err := load(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	ts, err := a.Store.ListTargets(ctx, enabledOnly)
	if err != nil {
		return err
	}
	PrintTargets(w, ts, a.Registry.Resolve)
	return nil
}

func PrintTargets(w io.Writer, ts []*spider.Target, platform func(string) string) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tPLATFORM\tMODE\tENABLED\tEVERY\tLAST RUN")
	for _, t := range ts {
		last := "-"
		if t.LastRunAt != nil {
			last = t.LastRunAt.Local().Format(time.DateTime)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%t\t%dm\t%s\n",
			t.ID, t.Name, platform(t.StartURL), t.Mode, t.Enabled, t.IntervalMinutes, last)
	}
	tw.Flush()
}

func Runs(ctx context.Context, w io.Writer) error {
	ctx, a, err := load(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	var targetID int64
	if targetRef != "" {
		t, err := a.ResolveTarget(ctx, targetRef)
		if err != nil {
			return err
		}
		targetID = t.ID
	}
	runs, err := a.Store.ListRuns(ctx, targetID, runLimit)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tTARGET\tTRIGGER\tSTATUS\tITEMS\tCREATED\tFORWARDED\tDURATION\tERROR")
	for _, r := range runs {
		fmt.Fprintf(tw, "%d\t%d\t%s\t%s\t%d\t%d\t%d\t%s\t%s\n",
			r.ID, r.TargetID, r.Trigger, r.Status, r.ItemCount, r.CreatedCount,
			r.ForwardedCount, r.Duration().Round(time.Millisecond), r.ErrorKind)
	}
	return tw.Flush()
}

func Discover(ctx context.Context, w io.Writer, rawURL string) error {
	ctx, a, err := load(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	t, platform, err := targets.Discover(a.Registry, rawURL, name)
	if err != nil {
		return err
	}
	if interval > 0 {
		t.IntervalMinutes = interval
	}

	out, err := json.MarshalIndent(t.Config, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "platform: %s\nname:     %s\nmode:     %s\nconfig:   %s\n", platform, t.Name, t.Mode, out)
	if dryRun {
		return nil
	}

	created, err := a.Store.SaveTarget(ctx, t)
	if err != nil {
		return err
	}
	if created {
		fmt.Fprintf(w, "created target %d\n", t.ID)
	} else {
		fmt.Fprintf(w, "updated target %d\n", t.ID)
	}
	return nil
}
