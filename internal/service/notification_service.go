package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"remindme/internal/model"
)

// Outcome is what happened to one user during a run.
type Outcome string

const (
	OutcomeSkippedOutsideWindow Outcome = "skipped-outside-window"
	OutcomeSkippedMutedEmpty    Outcome = "skipped-muted-empty"
	OutcomeSent                 Outcome = "sent"
	OutcomeSendFailed           Outcome = "send-failed"
	// OutcomeFailed covers unknown timezones, repository errors and runs
	// abandoned before the user was reached. Such a user is skipped for this
	// run like the skipped outcomes, but the error is kept in NotificationRun.Err.
	OutcomeFailed Outcome = "failed"
)

// NotificationRun is the in-memory record of one scheduler execution.
// It is safe for concurrent use.
type NotificationRun struct {
	ID      uuid.UUID
	Instant time.Time

	mu       sync.Mutex
	outcomes map[uint]Outcome
	counts   map[Outcome]int
	err      error
}

func newNotificationRun(instant time.Time) *NotificationRun {
	return &NotificationRun{
		ID:       uuid.New(),
		Instant:  instant,
		outcomes: make(map[uint]Outcome),
		counts:   make(map[Outcome]int),
	}
}

func (r *NotificationRun) record(userID uint, outcome Outcome, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes[userID] = outcome
	r.counts[outcome]++
	if err != nil {
		r.err = multierr.Append(r.err, fmt.Errorf("user %d: %w", userID, err))
	}
}

// Outcome returns the recorded outcome for a user.
func (r *NotificationRun) Outcome(userID uint) (Outcome, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.outcomes[userID]
	return o, ok
}

// Count returns how many users ended with outcome.
func (r *NotificationRun) Count(outcome Outcome) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[outcome]
}

// Total is the number of users evaluated.
func (r *NotificationRun) Total() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.outcomes)
}

// Err combines every per-user error of the run, or nil.
func (r *NotificationRun) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

type userLister interface {
	ListAll(ctx context.Context) ([]model.User, error)
}

type taskLister interface {
	ListDescriptions(ctx context.Context, userID uint, date string) ([]string, error)
}

// Sender delivers a text message to a chat.
type Sender interface {
	SendText(ctx context.Context, chatID int64, text string) error
}

// NotificationOptions tunes a NotificationService.
type NotificationOptions struct {
	Grace       time.Duration
	Workers     int
	SendTimeout time.Duration
}

// NotificationService sends every user whose notification window is open a
// digest of the tasks for the user's local day.
type NotificationService struct {
	users    userLister
	tasks    taskLister
	timezone *TimezoneResolver
	digest   *DigestBuilder
	sender   Sender
	clock    Clock
	log      *zap.Logger
	opts     NotificationOptions
}

func NewNotificationService(
	users userLister,
	tasks taskLister,
	timezone *TimezoneResolver,
	digest *DigestBuilder,
	sender Sender,
	clock Clock,
	log *zap.Logger,
	opts NotificationOptions,
) *NotificationService {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	return &NotificationService{
		users:    users,
		tasks:    tasks,
		timezone: timezone,
		digest:   digest,
		sender:   sender,
		clock:    clock,
		log:      log,
		opts:     opts,
	}
}

// Run performs one notification run at the current instant.
func (s *NotificationService) Run(ctx context.Context) (*NotificationRun, error) {
	return s.RunOnce(ctx, s.clock.Now())
}

// RunOnce evaluates every user against the same instant. Per-user failures are
// recorded in the returned run and never stop the others. The error is only
// set when the user list itself cannot be read.
func (s *NotificationService) RunOnce(ctx context.Context, instant time.Time) (*NotificationRun, error) {
	run := newNotificationRun(instant)
	log := s.log.With(zap.String("run_id", run.ID.String()), zap.Time("instant", instant))

	users, err := s.users.ListAll(ctx)
	if err != nil {
		log.Error("list users failed", zap.Error(err))
		return run, fmt.Errorf("list users: %w", err)
	}
	log.Info("notification run started", zap.Int("users", len(users)))

	var g errgroup.Group
	g.SetLimit(s.opts.Workers)
	for _, user := range users {
		g.Go(func() error {
			s.notifyUser(ctx, run, user, log)
			return nil
		})
	}
	_ = g.Wait()

	log.Info("notification run finished",
		zap.Int("sent", run.Count(OutcomeSent)),
		zap.Int("send_failed", run.Count(OutcomeSendFailed)),
		zap.Int("failed", run.Count(OutcomeFailed)),
		zap.Int("outside_window", run.Count(OutcomeSkippedOutsideWindow)),
		zap.Int("muted_empty", run.Count(OutcomeSkippedMutedEmpty)),
	)
	return run, nil
}

func (s *NotificationService) notifyUser(ctx context.Context, run *NotificationRun, user model.User, log *zap.Logger) {
	log = log.With(
		zap.Uint("user_id", user.ID),
		zap.Int64("telegram_id", user.TelegramID),
		zap.String("timezone", user.Timezone),
	)

	defer func() {
		if r := recover(); r != nil {
			log.Error("panic while notifying user", zap.Any("panic", r), zap.Stack("stack"))
			run.record(user.ID, OutcomeFailed, fmt.Errorf("panic: %v", r))
		}
	}()

	outcome, err := s.evaluate(ctx, run.Instant, user)
	switch {
	case err == nil:
		log.Debug("user evaluated", zap.String("outcome", string(outcome)))
	case outcome == OutcomeSendFailed:
		log.Warn("send notification failed", zap.Error(err))
	default:
		log.Error("notify user failed", zap.Error(err))
	}
	run.record(user.ID, outcome, err)
}

func (s *NotificationService) evaluate(ctx context.Context, instant time.Time, user model.User) (Outcome, error) {
	if err := ctx.Err(); err != nil {
		return OutcomeFailed, fmt.Errorf("run abandoned: %w", err)
	}

	local, err := s.timezone.LocalNow(user.Timezone, instant)
	if err != nil {
		return OutcomeFailed, fmt.Errorf("resolve local time: %w", err)
	}

	if !InWindow(user.NotifyFrom, user.NotifyTo, s.opts.Grace, local.TimeOfDay) {
		return OutcomeSkippedOutsideWindow, nil
	}

	tasks, err := s.tasks.ListDescriptions(ctx, user.ID, local.Date)
	if err != nil {
		return OutcomeFailed, fmt.Errorf("list tasks for %s: %w", local.Date, err)
	}

	text, ok := s.digest.Build(user, tasks)
	if !ok {
		return OutcomeSkippedMutedEmpty, nil
	}

	sendCtx := ctx
	if s.opts.SendTimeout > 0 {
		var cancel context.CancelFunc
		sendCtx, cancel = context.WithTimeout(ctx, s.opts.SendTimeout)
		defer cancel()
	}
	if err := s.sender.SendText(sendCtx, user.ChatID, text); err != nil {
		return OutcomeSendFailed, fmt.Errorf("send to chat %d: %w", user.ChatID, err)
	}
	return OutcomeSent, nil
}

// Job adapts Run for the recurring trigger. Each invocation gets its own
// deadline derived from parent; onFailure, when set, receives run-level errors
// and recovered panics.
func (s *NotificationService) Job(parent context.Context, timeout time.Duration, onFailure func(error)) func() {
	return func() {
		defer func() {
			if r := recover(); r != nil {
				err := fmt.Errorf("notification run panic: %v", r)
				s.log.Error("notification run panicked", zap.Any("panic", r), zap.Stack("stack"))
				if onFailure != nil {
					onFailure(err)
				}
			}
		}()

		ctx, cancel := context.WithTimeout(parent, timeout)
		defer cancel()

		run, err := s.Run(ctx)
		if err == nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("notification run %s abandoned after %s: %w", run.ID, timeout, ctx.Err())
		}
		if err != nil && !errors.Is(err, context.Canceled) {
			s.log.Error("notification run failed", zap.Error(err))
			if onFailure != nil {
				onFailure(err)
			}
		}
	}
}
