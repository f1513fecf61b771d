package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"remindme/internal/geo"
	"remindme/internal/i18n"
	"remindme/internal/model"
	"remindme/internal/repository"
)

var ErrUnsupportedLanguage = errors.New("unsupported language")

// UserDefaults are the preferences given to newly registered users.
type UserDefaults struct {
	Timezone   string
	NotifyFrom model.TimeOfDay
	NotifyTo   model.TimeOfDay
}

type geocoder interface {
	Geocode(ctx context.Context, city string) (geo.Location, error)
}

type zoneFinder interface {
	ZoneName(loc geo.Location) (string, error)
}

// UserService handles registration and preference changes.
type UserService struct {
	repo     *repository.UserRepository
	timezone *TimezoneResolver
	geocoder geocoder
	zones    zoneFinder
	catalog  *i18n.Catalog
	defaults UserDefaults
	clock    Clock
	log      *zap.Logger
}

func NewUserService(
	repo *repository.UserRepository,
	timezone *TimezoneResolver,
	geocoder geocoder,
	zones zoneFinder,
	catalog *i18n.Catalog,
	defaults UserDefaults,
	clock Clock,
	log *zap.Logger,
) *UserService {
	return &UserService{
		repo:     repo,
		timezone: timezone,
		geocoder: geocoder,
		zones:    zones,
		catalog:  catalog,
		defaults: defaults,
		clock:    clock,
		log:      log,
	}
}

// Register creates the user on first contact. Later calls only refresh the
// display name and chat.
func (s *UserService) Register(ctx context.Context, telegramID, chatID int64, name string) (*model.User, error) {
	user, created, err := s.repo.UpsertFromTelegram(ctx, model.User{
		TelegramID: telegramID,
		ChatID:     chatID,
		Name:       strings.TrimSpace(name),
		Language:   s.catalog.Primary(),
		Timezone:   s.defaults.Timezone,
		NotifyFrom: s.defaults.NotifyFrom,
		NotifyTo:   s.defaults.NotifyTo,
	})
	if err != nil {
		return nil, err
	}
	if created {
		s.log.Info("registered new user", zap.Int64("telegram_id", telegramID))
	}
	return user, nil
}

func (s *UserService) Get(ctx context.Context, telegramID int64) (*model.User, error) {
	return s.repo.FindByTelegramID(ctx, telegramID)
}

// SetTimezoneFromCity resolves city to an IANA timezone and stores it.
// It returns the zone name and its current UTC offset. The stored preference
// is left untouched on any failure.
func (s *UserService) SetTimezoneFromCity(ctx context.Context, telegramID int64, city string) (string, string, error) {
	user, err := s.repo.FindByTelegramID(ctx, telegramID)
	if err != nil {
		return "", "", err
	}

	loc, err := s.geocoder.Geocode(ctx, city)
	if err != nil {
		return "", "", fmt.Errorf("geocode %q: %w", city, err)
	}
	name, err := s.zones.ZoneName(loc)
	if err != nil {
		return "", "", err
	}
	local, err := s.timezone.LocalNow(name, s.clock.Now())
	if err != nil {
		return "", "", err
	}

	if err := s.repo.UpdateTimezone(ctx, user.ID, name); err != nil {
		return "", "", err
	}
	s.log.Info("user changed timezone", zap.Int64("telegram_id", telegramID), zap.String("timezone", name))
	return name, local.Offset, nil
}

// Offset returns the current UTC offset of the user's timezone.
func (s *UserService) Offset(user *model.User) (string, error) {
	local, err := s.timezone.LocalNow(user.Timezone, s.clock.Now())
	if err != nil {
		return "", err
	}
	return local.Offset, nil
}

func (s *UserService) SetNotifyFrom(ctx context.Context, telegramID int64, raw string) (model.TimeOfDay, error) {
	return s.setWindowBound(ctx, telegramID, raw, s.repo.UpdateNotifyFrom, "from")
}

func (s *UserService) SetNotifyTo(ctx context.Context, telegramID int64, raw string) (model.TimeOfDay, error) {
	return s.setWindowBound(ctx, telegramID, raw, s.repo.UpdateNotifyTo, "to")
}

func (s *UserService) setWindowBound(
	ctx context.Context,
	telegramID int64,
	raw string,
	update func(context.Context, uint, model.TimeOfDay) error,
	bound string,
) (model.TimeOfDay, error) {
	tod, err := model.ParseTimeOfDay(raw)
	if err != nil {
		return 0, err
	}
	user, err := s.repo.FindByTelegramID(ctx, telegramID)
	if err != nil {
		return 0, err
	}
	if err := update(ctx, user.ID, tod); err != nil {
		return 0, err
	}
	s.log.Info("user changed notification window",
		zap.Int64("telegram_id", telegramID), zap.String("bound", bound), zap.Stringer("time", tod))
	return tod, nil
}

// ToggleMute flips the mute-when-empty flag and returns the new value.
func (s *UserService) ToggleMute(ctx context.Context, telegramID int64) (bool, error) {
	user, err := s.repo.FindByTelegramID(ctx, telegramID)
	if err != nil {
		return false, err
	}
	muted := !user.Muted
	if err := s.repo.SetMuted(ctx, user.ID, muted); err != nil {
		return false, err
	}
	s.log.Info("user toggled mute", zap.Int64("telegram_id", telegramID), zap.Bool("muted", muted))
	return muted, nil
}

// SetLanguage stores one of the two supported languages.
func (s *UserService) SetLanguage(ctx context.Context, telegramID int64, raw string) (string, error) {
	lang, ok := s.catalog.Supported(strings.TrimSpace(raw))
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedLanguage, raw)
	}
	user, err := s.repo.FindByTelegramID(ctx, telegramID)
	if err != nil {
		return "", err
	}
	if err := s.repo.UpdateLanguage(ctx, user.ID, lang); err != nil {
		return "", err
	}
	return lang, nil
}
