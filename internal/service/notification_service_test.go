package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"remindme/internal/model"
)

func moscowUser(id uint) model.User {
	return model.User{
		ID:         id,
		TelegramID: int64(id),
		ChatID:     int64(id) * 100,
		Name:       "Ann",
		Language:   "en",
		Timezone:   "Europe/Moscow",
		NotifyFrom: model.NewTimeOfDay(9, 0),
		NotifyTo:   model.NewTimeOfDay(20, 0),
	}
}

func newNotifier(t *testing.T, users []model.User, tasks *fakeTasks, sender *fakeSender, workers int) *NotificationService {
	t.Helper()
	return NewNotificationService(
		fakeUsers{users: users},
		tasks,
		NewTimezoneResolver(),
		NewDigestBuilder(newCatalog(t)),
		sender,
		SystemClock{},
		zap.NewNop(),
		NotificationOptions{Grace: 2 * time.Minute, Workers: workers, SendTimeout: time.Second},
	)
}

func TestNotificationService_Scenarios(t *testing.T) {
	milk := &fakeTasks{tasks: map[uint]map[string][]string{
		1: {"2025-05-05": {"Buy milk"}},
	}}

	cases := []struct {
		name    string
		user    func() model.User
		tasks   *fakeTasks
		instant time.Time
		outcome Outcome
		want    string
	}{
		{
			name:    "inside window",
			user:    func() model.User { return moscowUser(1) },
			tasks:   milk,
			instant: moscow(t, 2025, time.May, 5, 9, 5),
			outcome: OutcomeSent,
			want:    "1. Buy milk",
		},
		{
			name:    "within grace",
			user:    func() model.User { return moscowUser(1) },
			tasks:   milk,
			instant: moscow(t, 2025, time.May, 5, 20, 1),
			outcome: OutcomeSent,
			want:    "1. Buy milk",
		},
		{
			name:    "after grace",
			user:    func() model.User { return moscowUser(1) },
			tasks:   milk,
			instant: moscow(t, 2025, time.May, 5, 20, 3),
			outcome: OutcomeSkippedOutsideWindow,
		},
		{
			name: "muted and empty",
			user: func() model.User {
				u := moscowUser(1)
				u.Muted = true
				return u
			},
			tasks:   &fakeTasks{},
			instant: moscow(t, 2025, time.May, 5, 12, 0),
			outcome: OutcomeSkippedMutedEmpty,
		},
		{
			name:    "not muted and empty",
			user:    func() model.User { return moscowUser(1) },
			tasks:   &fakeTasks{},
			instant: moscow(t, 2025, time.May, 5, 12, 0),
			outcome: OutcomeSent,
			want:    "no scheduled tasks today",
		},
		{
			name: "degenerate window within grace",
			user: func() model.User {
				u := moscowUser(1)
				u.NotifyFrom = model.NewTimeOfDay(12, 0)
				u.NotifyTo = model.NewTimeOfDay(12, 0)
				return u
			},
			tasks:   milk,
			instant: moscow(t, 2025, time.May, 5, 12, 1),
			outcome: OutcomeSent,
			want:    "1. Buy milk",
		},
		{
			name: "degenerate window before",
			user: func() model.User {
				u := moscowUser(1)
				u.NotifyFrom = model.NewTimeOfDay(12, 0)
				u.NotifyTo = model.NewTimeOfDay(12, 0)
				return u
			},
			tasks:   milk,
			instant: moscow(t, 2025, time.May, 5, 11, 59),
			outcome: OutcomeSkippedOutsideWindow,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			user := tc.user()
			sender := &fakeSender{}
			svc := newNotifier(t, []model.User{user}, tc.tasks, sender, 1)

			run, err := svc.RunOnce(context.Background(), tc.instant)
			require.NoError(t, err)

			outcome, ok := run.Outcome(user.ID)
			require.True(t, ok)
			assert.Equal(t, tc.outcome, outcome)
			assert.NoError(t, run.Err())

			sent := sender.to(user.ChatID)
			if tc.want == "" {
				assert.Empty(t, sent)
				return
			}
			require.Len(t, sent, 1)
			assert.Contains(t, sent[0], tc.want)
		})
	}
}

func TestNotificationService_UsesLocalDate(t *testing.T) {
	// 00:30 in Tokyo on May 6 is still May 5 in UTC.
	user := moscowUser(1)
	user.Timezone = "Asia/Tokyo"
	user.NotifyFrom = 0
	tasks := &fakeTasks{tasks: map[uint]map[string][]string{
		1: {"2025-05-05": {"yesterday"}, "2025-05-06": {"today"}},
	}}
	sender := &fakeSender{}
	svc := newNotifier(t, []model.User{user}, tasks, sender, 1)

	instant := time.Date(2025, time.May, 5, 15, 30, 0, 0, time.UTC)
	_, err := svc.RunOnce(context.Background(), instant)
	require.NoError(t, err)

	assert.Equal(t, []string{"1@2025-05-06"}, tasks.called)
	sent := sender.to(user.ChatID)
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0], "1. today")
	assert.NotContains(t, sent[0], "yesterday")
}

func TestNotificationService_Isolation(t *testing.T) {
	broken := moscowUser(1)
	badZone := moscowUser(2)
	badZone.Timezone = "Mars/Olympus"
	unreachable := moscowUser(3)
	healthy := moscowUser(4)

	tasks := &fakeTasks{
		tasks: map[uint]map[string][]string{
			3: {"2025-05-05": {"x"}},
			4: {"2025-05-05": {"Buy milk"}},
		},
		fail: map[uint]error{1: errors.New("database is locked")},
	}
	sender := &fakeSender{fail: map[int64]error{unreachable.ChatID: errors.New("bot was blocked by the user")}}
	svc := newNotifier(t, []model.User{broken, badZone, unreachable, healthy}, tasks, sender, 1)

	run, err := svc.RunOnce(context.Background(), moscow(t, 2025, time.May, 5, 10, 0))
	require.NoError(t, err)

	expect := map[uint]Outcome{
		1: OutcomeFailed,
		2: OutcomeFailed,
		3: OutcomeSendFailed,
		4: OutcomeSent,
	}
	for id, want := range expect {
		got, ok := run.Outcome(id)
		require.True(t, ok)
		assert.Equal(t, want, got, "user %d", id)
	}
	assert.Equal(t, 4, run.Total())
	assert.Equal(t, 2, run.Count(OutcomeFailed))
	assert.Len(t, multierr.Errors(run.Err()), 3)
	assert.Len(t, sender.to(healthy.ChatID), 1)
	assert.Equal(t, "Mars/Olympus", badZone.Timezone)
}

func TestNotificationService_OneSendPerUser(t *testing.T) {
	var users []model.User
	tasks := &fakeTasks{tasks: map[uint]map[string][]string{}}
	for id := uint(1); id <= 50; id++ {
		u := moscowUser(id)
		if id%5 == 0 {
			u.Muted = true
		} else {
			tasks.tasks[id] = map[string][]string{"2025-05-05": {"task"}}
		}
		users = append(users, u)
	}
	sender := &fakeSender{}
	svc := newNotifier(t, users, tasks, sender, 8)

	run, err := svc.RunOnce(context.Background(), moscow(t, 2025, time.May, 5, 15, 0))
	require.NoError(t, err)

	assert.Equal(t, 50, run.Total())
	assert.Equal(t, 40, run.Count(OutcomeSent))
	assert.Equal(t, 10, run.Count(OutcomeSkippedMutedEmpty))
	assert.Len(t, sender.sent, 40)
	for _, u := range users {
		if u.Muted {
			assert.Empty(t, sender.to(u.ChatID))
		} else {
			assert.Len(t, sender.to(u.ChatID), 1)
		}
	}
}

func TestNotificationService_SameInstantForAllUsers(t *testing.T) {
	var calls atomic.Int32
	clock := clockFunc(func() time.Time {
		calls.Add(1)
		return moscow(t, 2025, time.May, 5, 20, 2)
	})

	users := []model.User{moscowUser(1), moscowUser(2), moscowUser(3)}
	sender := &fakeSender{}
	svc := NewNotificationService(
		fakeUsers{users: users}, &fakeTasks{}, NewTimezoneResolver(), NewDigestBuilder(newCatalog(t)),
		sender, clock, zap.NewNop(), NotificationOptions{Grace: 2 * time.Minute},
	)

	run, err := svc.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, 3, run.Count(OutcomeSent))
}

func TestNotificationService_ListUsersFails(t *testing.T) {
	svc := NewNotificationService(
		fakeUsers{err: errors.New("no such table: users")}, &fakeTasks{}, NewTimezoneResolver(),
		NewDigestBuilder(newCatalog(t)), &fakeSender{}, SystemClock{}, zap.NewNop(), NotificationOptions{},
	)

	run, err := svc.RunOnce(context.Background(), time.Now())
	assert.Error(t, err)
	assert.Zero(t, run.Total())
}

func TestNotificationService_Abandoned(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sender := &fakeSender{}
	svc := newNotifier(t, []model.User{moscowUser(1), moscowUser(2)}, &fakeTasks{}, sender, 1)
	run, err := svc.RunOnce(ctx, moscow(t, 2025, time.May, 5, 10, 0))
	require.NoError(t, err)

	assert.Equal(t, 2, run.Count(OutcomeFailed))
	assert.ErrorIs(t, run.Err(), context.Canceled)
	assert.Empty(t, sender.sent)
}

func TestNotificationService_Job(t *testing.T) {
	var failures []error
	svc := NewNotificationService(
		fakeUsers{err: errors.New("boom")}, &fakeTasks{}, NewTimezoneResolver(),
		NewDigestBuilder(newCatalog(t)), &fakeSender{}, SystemClock{}, zap.NewNop(), NotificationOptions{},
	)

	job := svc.Job(context.Background(), time.Minute, func(err error) { failures = append(failures, err) })
	job()
	require.Len(t, failures, 1)
	assert.ErrorContains(t, failures[0], "boom")
}

func TestNotificationService_JobRecoversPanic(t *testing.T) {
	var failures []error
	svc := NewNotificationService(
		fakeUsers{users: []model.User{moscowUser(1)}}, &fakeTasks{}, NewTimezoneResolver(),
		NewDigestBuilder(newCatalog(t)), &fakeSender{},
		clockFunc(func() time.Time { panic("clock is broken") }),
		zap.NewNop(), NotificationOptions{},
	)

	job := svc.Job(context.Background(), time.Minute, func(err error) { failures = append(failures, err) })
	assert.NotPanics(t, job)
	require.Len(t, failures, 1)
	assert.ErrorContains(t, failures[0], "clock is broken")
}

type clockFunc func() time.Time

func (f clockFunc) Now() time.Time {
	return f()
}

// blockingSender holds every send until the caller's context ends.
type blockingSender struct{}

func (blockingSender) SendText(ctx context.Context, _ int64, _ string) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestNotificationService_JobDeadline(t *testing.T) {
	var failures []error
	svc := NewNotificationService(
		fakeUsers{users: []model.User{moscowUser(1), moscowUser(2)}}, &fakeTasks{}, NewTimezoneResolver(),
		NewDigestBuilder(newCatalog(t)), blockingSender{},
		clockFunc(func() time.Time { return moscow(t, 2025, time.May, 5, 10, 0) }),
		zap.NewNop(), NotificationOptions{Workers: 1},
	)

	job := svc.Job(context.Background(), 100*time.Millisecond, func(err error) { failures = append(failures, err) })
	start := time.Now()
	job()

	assert.Less(t, time.Since(start), 5*time.Second)
	require.Len(t, failures, 1)
	assert.ErrorIs(t, failures[0], context.DeadlineExceeded)
	assert.ErrorContains(t, failures[0], "abandoned after 100ms")
}
