// Command spsd runs the Side Project Saturday event host: the weekly
// event workflow, its cron trigger and the worker pool that resumes
// sleeping runs.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/zephraph/sps"
	audithook "github.com/zephraph/sps/audit_hook"
	"github.com/zephraph/sps/config"
	"github.com/zephraph/sps/door"
	"github.com/zephraph/sps/engine"
	"github.com/zephraph/sps/lifecycle"
	"github.com/zephraph/sps/mail"
	"github.com/zephraph/sps/mailinglist"
	"github.com/zephraph/sps/rsvp"
	"github.com/zephraph/sps/store"
	"github.com/zephraph/sps/store/memory"
	"github.com/zephraph/sps/store/postgres"
	"github.com/zephraph/sps/store/redis"
)

const pingInterval = time.Minute

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "spsd: %v\n", err)
		os.Exit(1)
	}
	logger := config.NewLogger(cfg.Environment, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("spsd exited", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return fmt.Errorf("migrate: %w", err)
	}

	hostCfg := cfg.HostConfig()
	h, err := sps.New(
		sps.WithConfig(hostCfg),
		sps.WithLogger(logger),
		sps.WithStore(st),
	)
	if err != nil {
		return err
	}
	eng, err := engine.Build(h,
		engine.WithExtension(audithook.New(audithook.LogRecorder(logger.With(slog.String("component", "audit"))))),
	)
	if err != nil {
		return err
	}

	actors := rsvp.NewRegistry(
		rsvp.WithSnapshotStore(st),
		rsvp.WithEmitter(eng.Extensions()),
		rsvp.WithLogger(logger),
	)
	defer actors.Close()
	events, err := actors.Get(ctx, hostCfg.LocationTag)
	if err != nil {
		return err
	}

	mailOpts := []mail.Option{mail.WithBaseURL(hostCfg.BaseURL), mail.WithLogger(logger)}
	if cfg.MailFrom != "" {
		mailOpts = append(mailOpts, mail.WithFrom(cfg.MailFrom))
	}
	mailer := mail.NewService(newSender(cfg, logger), mailOpts...)

	list, err := mailinglist.New(ctx, hostCfg.LocationTag, mailer,
		mailinglist.WithSnapshotStore(st),
		mailinglist.WithLogger(logger),
	)
	if err != nil {
		return err
	}
	defer list.Close()

	lc := lifecycle.New(events, mailer, list, door.New(st, newPresser(cfg, logger), logger),
		lifecycle.WithLocation(hostCfg.Location),
		lifecycle.WithGuestLimit(hostCfg.GuestLimit),
	)
	engine.Register(eng, lc.Definition())
	if _, err := eng.RegisterCron(ctx, lifecycle.WeeklyTrigger()); err != nil {
		return err
	}

	if n, err := eng.Recover(ctx); err != nil {
		logger.Warn("recovering due runs failed", slog.String("error", err.Error()))
	} else if n > 0 {
		logger.Info("recovered due runs", slog.Int("count", n))
	}

	if err := h.Start(ctx); err != nil {
		return fmt.Errorf("start host: %w", err)
	}
	logger.Info("spsd running",
		slog.String("location_tag", hostCfg.LocationTag),
		slog.String("store", cfg.Store),
		slog.Int("concurrency", hostCfg.Concurrency),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return pingLoop(gctx, st, logger) })
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), hostCfg.ShutdownTimeout)
		defer cancel()
		return h.Stop(shutdownCtx)
	})
	return g.Wait()
}

func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (store.Store, error) {
	switch cfg.Store {
	case "postgres":
		pg, err := postgres.New(ctx, cfg.DatabaseURL, postgres.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		return pg, nil
	case "redis":
		opts, err := goredis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parse REDIS_URL: %w", err)
		}
		return redis.New(goredis.NewClient(opts), redis.WithLogger(logger), redis.WithOwnedClient()), nil
	default:
		logger.Warn("using in-memory store; state is lost on restart")
		return memory.New(), nil
	}
}

func newSender(cfg *config.Config, logger *slog.Logger) mail.Sender {
	if cfg.MailProvider == "ses" {
		return mail.NewSESSender(mail.SESConfig{
			Region:          cfg.AWSRegion,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
		}, logger)
	}
	return mail.NopSender{Logger: logger}
}

type logPresser struct{ logger *slog.Logger }

func (p logPresser) Press(context.Context) error {
	p.logger.Info("switchbot not configured; door press skipped")
	return nil
}

func newPresser(cfg *config.Config, logger *slog.Logger) door.Presser {
	if cfg.SwitchBotToken == "" {
		return logPresser{logger: logger}
	}
	return door.NewSwitchBot(door.SwitchBotConfig{
		Token:    cfg.SwitchBotToken,
		Secret:   cfg.SwitchBotSecret,
		DeviceID: cfg.SwitchBotDeviceID,
	}, door.WithLogger(logger))
}

// pingLoop logs store connectivity failures until ctx ends.
func pingLoop(ctx context.Context, st store.Store, logger *slog.Logger) error {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case <-ticker.C:
			if err := st.Ping(ctx); err != nil {
				logger.Warn("store ping failed", slog.String("error", err.Error()))
			}
		}
	}
}
