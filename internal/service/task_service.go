package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"remindme/internal/model"
	"remindme/internal/repository"
)

var (
	ErrEmptyTask   = errors.New("task text is required")
	ErrInvalidDate = errors.New("invalid date, expected YYYY-MM-DD")
)

// TaskService wraps task-related business logic.
type TaskService struct {
	taskRepo *repository.TaskRepository
	timezone *TimezoneResolver
	clock    Clock
}

func NewTaskService(taskRepo *repository.TaskRepository, timezone *TimezoneResolver, clock Clock) *TaskService {
	return &TaskService{taskRepo: taskRepo, timezone: timezone, clock: clock}
}

// CreateTask plans text for date (YYYY-MM-DD) in the user's own calendar.
func (s *TaskService) CreateTask(ctx context.Context, user *model.User, date, text string) (*model.Task, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyTask
	}
	day, err := model.ParseDate(strings.TrimSpace(date))
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDate, date)
	}

	task := model.Task{UserID: user.ID, Text: text, Date: day}
	if err := s.taskRepo.Create(ctx, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

func (s *TaskService) ListByDate(ctx context.Context, user *model.User, date string) ([]model.Task, error) {
	day, err := model.ParseDate(strings.TrimSpace(date))
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDate, date)
	}
	return s.taskRepo.ListByDate(ctx, user.ID, day)
}

// Today lists the tasks of the user's current local date and returns that date.
func (s *TaskService) Today(ctx context.Context, user *model.User) (string, []model.Task, error) {
	local, err := s.timezone.LocalNow(user.Timezone, s.clock.Now())
	if err != nil {
		return "", nil, err
	}
	tasks, err := s.taskRepo.ListByDate(ctx, user.ID, local.Date)
	if err != nil {
		return "", nil, err
	}
	return local.Date, tasks, nil
}

func (s *TaskService) UpdateTask(ctx context.Context, user *model.User, taskID uint, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyTask
	}
	return s.taskRepo.UpdateText(ctx, user.ID, taskID, text)
}

// DeleteTask removes a task owned by user.
func (s *TaskService) DeleteTask(ctx context.Context, user *model.User, taskID uint) error {
	return s.taskRepo.Delete(ctx, user.ID, taskID)
}
