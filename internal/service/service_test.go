package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"remindme/internal/geo"
	"remindme/internal/i18n"
	"remindme/internal/model"
	"remindme/internal/repository"
)

// moscow returns the instant at which Europe/Moscow shows the given wall clock.
func moscow(t *testing.T, y int, m time.Month, d, hh, mm int) time.Time {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Moscow")
	require.NoError(t, err)
	return time.Date(y, m, d, hh, mm, 0, 0, loc).UTC()
}

func newCatalog(t *testing.T) *i18n.Catalog {
	t.Helper()
	c, err := i18n.New("ru", "en")
	require.NoError(t, err)
	return c
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := repository.NewDB(fmt.Sprintf("file:%s?mode=memory&cache=shared", name), zap.NewNop())
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

type fakeUsers struct {
	users []model.User
	err   error
}

func (f fakeUsers) ListAll(context.Context) ([]model.User, error) {
	return f.users, f.err
}

type fakeTasks struct {
	mu     sync.Mutex
	tasks  map[uint]map[string][]string
	fail   map[uint]error
	called []string
}

func (f *fakeTasks) ListDescriptions(_ context.Context, userID uint, date string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.called = append(f.called, fmt.Sprintf("%d@%s", userID, date))
	if err := f.fail[userID]; err != nil {
		return nil, err
	}
	return f.tasks[userID][date], nil
}

type sentMessage struct {
	chatID int64
	text   string
}

type fakeSender struct {
	mu   sync.Mutex
	sent []sentMessage
	fail map[int64]error
}

func (f *fakeSender) SendText(_ context.Context, chatID int64, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail[chatID]; err != nil {
		return err
	}
	f.sent = append(f.sent, sentMessage{chatID: chatID, text: text})
	return nil
}

func (f *fakeSender) to(chatID int64) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, m := range f.sent {
		if m.chatID == chatID {
			out = append(out, m.text)
		}
	}
	return out
}

type fakeGeocoder struct {
	locations map[string]geo.Location
}

func (f fakeGeocoder) Geocode(_ context.Context, city string) (geo.Location, error) {
	loc, ok := f.locations[strings.TrimSpace(city)]
	if !ok {
		return geo.Location{}, geo.ErrLocationNotFound
	}
	return loc, nil
}

type fakeZones map[float64]string

func (f fakeZones) ZoneName(loc geo.Location) (string, error) {
	name, ok := f[loc.Latitude]
	if !ok {
		return "", errors.New("no zone")
	}
	return name, nil
}
