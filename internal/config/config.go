package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"golang.org/x/text/language"

	"remindme/internal/model"
)

// Config keeps runtime settings for the bot. It is read once at startup.
type Config struct {
	TelegramToken string `envconfig:"BOT_TOKEN" required:"true" validate:"required"`
	AdminChatID   int64  `envconfig:"ADMIN_CHAT_ID"`
	DatabaseURL   string `envconfig:"DATABASE_URL" default:"db/remindme.db" validate:"required"`
	LogLevel      string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`

	NotificationFrequency  int           `envconfig:"NOTIFICATION_FREQUENCY" required:"true" validate:"gte=1"`
	NotificationMinute     int           `envconfig:"NOTIFICATION_MINUTE" default:"0" validate:"gte=0,lte=59"`
	NotificationGraceMins  int           `envconfig:"NOTIFICATION_GRACE_MINUTES" default:"2" validate:"gte=0"`
	NotificationWorkers    int           `envconfig:"NOTIFICATION_WORKERS" default:"1" validate:"gte=1"`
	NotificationRunTimeout time.Duration `envconfig:"NOTIFICATION_RUN_TIMEOUT" default:"30m" validate:"gt=0"`
	SendTimeout            time.Duration `envconfig:"SEND_TIMEOUT" default:"30s" validate:"gt=0"`

	DefaultTimezone   string `envconfig:"DEFAULT_TIMEZONE" default:"Europe/Moscow" validate:"required"`
	DefaultNotifyFrom string `envconfig:"DEFAULT_NOTIFY_FROM" default:"09:00"`
	DefaultNotifyTo   string `envconfig:"DEFAULT_NOTIFY_TO" default:"20:00"`
	PrimaryLanguage   string `envconfig:"PRIMARY_LANGUAGE" default:"ru" validate:"required"`
	SecondaryLanguage string `envconfig:"SECONDARY_LANGUAGE" default:"en" validate:"required,nefield=PrimaryLanguage"`

	GeocoderURL       string `envconfig:"GEOCODER_URL" default:"https://nominatim.openstreetmap.org" validate:"url"`
	GeocoderUserAgent string `envconfig:"GEOCODER_USER_AGENT" default:"Notification_Bot"`

	// Parsed from the string fields above.
	NotifyFrom model.TimeOfDay `ignored:"true"`
	NotifyTo   model.TimeOfDay `ignored:"true"`
}

// NotificationInterval is the trigger cadence.
func (c Config) NotificationInterval() time.Duration {
	return time.Duration(c.NotificationFrequency) * time.Hour
}

// Grace is the tolerance added past the end of every notification window.
func (c Config) Grace() time.Duration {
	return time.Duration(c.NotificationGraceMins) * time.Minute
}

// Load reads configuration from environment variables and validates it.
// Any error here is a startup error: scheduling must not begin.
func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return cfg, fmt.Errorf("read env: %w", err)
	}

	cfg.TelegramToken = strings.TrimSpace(cfg.TelegramToken)
	cfg.DatabaseURL = strings.TrimSpace(cfg.DatabaseURL)

	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(cfg); err != nil {
		return cfg, fmt.Errorf("validate: %w", err)
	}

	if _, err := time.LoadLocation(cfg.DefaultTimezone); err != nil {
		return cfg, fmt.Errorf("DEFAULT_TIMEZONE %q: %w", cfg.DefaultTimezone, err)
	}
	for _, tag := range []string{cfg.PrimaryLanguage, cfg.SecondaryLanguage} {
		if _, err := language.Parse(tag); err != nil {
			return cfg, fmt.Errorf("language %q: %w", tag, err)
		}
	}

	var err error
	if cfg.NotifyFrom, err = model.ParseTimeOfDay(cfg.DefaultNotifyFrom); err != nil {
		return cfg, fmt.Errorf("DEFAULT_NOTIFY_FROM: %w", err)
	}
	if cfg.NotifyTo, err = model.ParseTimeOfDay(cfg.DefaultNotifyTo); err != nil {
		return cfg, fmt.Errorf("DEFAULT_NOTIFY_TO: %w", err)
	}

	return cfg, nil
}
