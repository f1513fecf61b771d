package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"go.uber.org/zap"

	"remindme/internal/bot"
	"remindme/internal/config"
	"remindme/internal/geo"
	"remindme/internal/i18n"
	"remindme/internal/logger"
	"remindme/internal/repository"
	"remindme/internal/service"
)

const restartDelay = 5 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("remindme stopped with error", zap.Error(err))
		_ = log.Sync()
		os.Exit(1)
	}
	log.Info("shutdown complete")
}

func run(ctx context.Context, cfg config.Config, log *zap.Logger) error {
	db, err := repository.NewDB(cfg.DatabaseURL, log)
	if err != nil {
		return fmt.Errorf("db: %w", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}

	catalog, err := i18n.New(cfg.PrimaryLanguage, cfg.SecondaryLanguage)
	if err != nil {
		return fmt.Errorf("i18n: %w", err)
	}

	userRepo := repository.NewUserRepository(db)
	taskRepo := repository.NewTaskRepository(db)

	clock := service.SystemClock{}
	timezones := service.NewTimezoneResolver()

	userSvc := service.NewUserService(
		userRepo,
		timezones,
		geo.NewGeocoder(cfg.GeocoderURL, cfg.GeocoderUserAgent),
		geo.NewZoneFinder(),
		catalog,
		service.UserDefaults{
			Timezone:   cfg.DefaultTimezone,
			NotifyFrom: cfg.NotifyFrom,
			NotifyTo:   cfg.NotifyTo,
		},
		clock,
		log.Named("users"),
	)
	taskSvc := service.NewTaskService(taskRepo, timezones, clock)

	telegramBot, err := bot.New(cfg.TelegramToken, cfg.AdminChatID, userSvc, taskSvc, catalog, log.Named("bot"))
	if err != nil {
		return fmt.Errorf("bot: %w", err)
	}

	notifier := service.NewNotificationService(
		userRepo,
		taskRepo,
		timezones,
		service.NewDigestBuilder(catalog),
		telegramBot,
		clock,
		log.Named("notifier"),
		service.NotificationOptions{
			Grace:       cfg.Grace(),
			Workers:     cfg.NotificationWorkers,
			SendTimeout: cfg.SendTimeout,
		},
	)

	scheduler := service.NewSchedulerService(time.Local, log.Named("scheduler"))
	job := notifier.Job(ctx, cfg.NotificationRunTimeout, telegramBot.AlertAdmin)
	if _, err := scheduler.ScheduleHourly(cfg.NotificationFrequency, cfg.NotificationMinute, job); err != nil {
		return fmt.Errorf("schedule notifications: %w", err)
	}
	if cfg.NotificationInterval() > cfg.Grace() {
		log.Warn("notification windows shorter than the trigger interval may be missed",
			zap.Duration("interval", cfg.NotificationInterval()),
			zap.Duration("grace", cfg.Grace()),
		)
	}
	scheduler.Start()
	defer scheduler.Stop()

	log.Info("remindme started",
		zap.Int("frequency_hours", cfg.NotificationFrequency),
		zap.Int("minute", cfg.NotificationMinute),
		zap.Int("workers", cfg.NotificationWorkers),
	)
	supervise(ctx, telegramBot, restartDelay, log)
	return nil
}

type poller interface {
	Start(ctx context.Context) error
	AlertAdmin(err error)
}

// supervise keeps polling alive until ctx is cancelled. tgbotapi retries
// failed getUpdates calls on its own, so Start only returns early when the
// update channel is closed under it; that case is alerted and restarted.
func supervise(ctx context.Context, p poller, delay time.Duration, log *zap.Logger) {
	for {
		err := p.Start(ctx)
		if ctx.Err() != nil {
			return
		}
		if err == nil {
			err = errors.New("update channel closed")
		}
		log.Error("polling stopped, restarting", zap.Error(err), zap.Duration("delay", delay))
		p.AlertAdmin(err)

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}
