package serve

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/dreamerjackson/leadcrawler/app"
	"github.com/dreamerjackson/leadcrawler/election"
	"github.com/dreamerjackson/leadcrawler/targets"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var ServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "run the scheduler and workers.",
	Long:  "run the scheduler and workers until interrupted.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return Run(cmd.Context())
	},
}

var configFile string

func init() {
	ServeCmd.Flags().StringVar(
		&configFile, "config", "config.toml", "set config file")
}

func Run(ctx context.Context) error {
	a, err := app.Load(configFile)
	if err != nil {
		return err
	}
	defer a.Close()
	logger := a.Logger

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if path := a.Config.TargetsFile; path != "" {
		entries, err := targets.ReadFile(path)
		if err != nil {
			return err
		}
		rep, err := targets.Sync(ctx, a.Store, entries, targets.SyncOptions{
			Logger: logger.Named("targets"),
		})
		if err != nil {
			return err
		}
		logger.Info("targets synced",
			zap.String("file", path),
			zap.Int("created", rep.Count(targets.Created)),
			zap.Int("skipped", rep.Count(targets.Skipped)),
			zap.Int("invalid", rep.Count(targets.Invalid)))
	}

	leader, err := a.Leader()
	if err != nil {
		return err
	}
	e := a.Engine(leader)

	g, gctx := errgroup.WithContext(ctx)
	if el, ok := leader.(*election.Elector); ok {
		g.Go(func() error {
			return el.Campaign(gctx)
		})
	}
	g.Go(func() error {
		return e.Run(gctx)
	})

	logger.Info("leadcrawler started", zap.String("node", a.NodeIP))
	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	logger.Info("leadcrawler stopped", zap.Error(err))
	return err
}
