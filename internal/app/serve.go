package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"
	"github.com/slack-go/slack"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"ingrealloc/internal/config"
	slackbot "ingrealloc/internal/integrations/slack"
	"ingrealloc/internal/refresh"
)

func newServeCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the Slack bot with scheduled refresh and CSV file watching",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(commandContext(cmd), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return e.serve(ctx)
		},
	}
}

func (e *env) serve(ctx context.Context) error {
	if err := e.cfg.ValidateSlack(); err != nil {
		return err
	}
	var sched cron.Schedule
	if e.cfg.RefreshSchedule != "" {
		var err error
		if sched, err = refresh.ParseSchedule(e.cfg.RefreshSchedule); err != nil {
			return err
		}
	}
	sess, closeDB, err := e.openSession()
	if err != nil {
		return err
	}
	defer closeDB()

	if table, err := sess.Table(ctx); err != nil {
		e.logger.Warn("Initial load failed; will retry on first request", zap.Error(err))
	} else {
		e.logger.Info("Usage data ready",
			zap.String("version", table.Version),
			zap.String("source", table.Source),
			zap.Int("records", table.Len()))
	}

	api := slack.New(
		e.cfg.SlackBotToken,
		slack.OptionAppLevelToken(e.cfg.SlackAppToken),
	)
	bot := slackbot.New(e.cfg, api, sess, e.logger)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return bot.Run(ctx) })

	if sched != nil {
		scheduler := &refresh.Scheduler{
			Schedule:  sched,
			Refresher: sess,
			Location:  e.cfg.Location,
			Logger:    e.logger.Named("refresh"),
			Notify:    bot.PostToReportChannel,
		}
		g.Go(func() error { return scheduler.Run(ctx) })
	}

	if e.cfg.WatchCSVFile && e.cfg.Source == config.SourceCSVFile {
		watcher := &refresh.Watcher{
			Path:        e.cfg.CSVPath,
			Invalidator: sess,
			Logger:      e.logger.Named("watch"),
		}
		g.Go(func() error { return watcher.Run(ctx) })
	}

	e.logger.Info("Starting ingredient allocation bot...")
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	e.logger.Info("Shut down")
	return nil
}
