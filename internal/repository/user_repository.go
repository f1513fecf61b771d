package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"remindme/internal/model"
)

// UserRepository handles users and their notification preferences.
type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

// UpsertFromTelegram finds a user by TelegramID and refreshes its name and chat.
// When the user does not exist yet, candidate is inserted as is, so it must carry
// the default preferences. The bool result reports whether a row was created.
func (r *UserRepository) UpsertFromTelegram(ctx context.Context, candidate model.User) (*model.User, bool, error) {
	var user model.User
	db := r.db.WithContext(ctx)
	err := db.Where("telegram_id = ?", candidate.TelegramID).First(&user).Error
	switch {
	case err == nil:
		updates := map[string]interface{}{
			"name":    candidate.Name,
			"chat_id": candidate.ChatID,
		}
		if err := db.Model(&user).Updates(updates).Error; err != nil {
			return nil, false, fmt.Errorf("update user: %w", err)
		}
		user.Name = candidate.Name
		user.ChatID = candidate.ChatID
		return &user, false, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		user = candidate
		if err := db.Create(&user).Error; err != nil {
			return nil, false, fmt.Errorf("create user: %w", err)
		}
		return &user, true, nil
	default:
		return nil, false, fmt.Errorf("find user: %w", err)
	}
}

func (r *UserRepository) FindByTelegramID(ctx context.Context, telegramID int64) (*model.User, error) {
	var user model.User
	if err := r.db.WithContext(ctx).Where("telegram_id = ?", telegramID).First(&user).Error; err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

// ListAll returns a snapshot of every registered user.
func (r *UserRepository) ListAll(ctx context.Context) ([]model.User, error) {
	var users []model.User
	if err := r.db.WithContext(ctx).Order("id ASC").Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}

func (r *UserRepository) UpdateTimezone(ctx context.Context, userID uint, timezone string) error {
	return r.update(ctx, userID, "timezone", timezone)
}

func (r *UserRepository) UpdateLanguage(ctx context.Context, userID uint, language string) error {
	return r.update(ctx, userID, "language", language)
}

func (r *UserRepository) UpdateNotifyFrom(ctx context.Context, userID uint, from model.TimeOfDay) error {
	return r.update(ctx, userID, "notify_from", from)
}

func (r *UserRepository) UpdateNotifyTo(ctx context.Context, userID uint, to model.TimeOfDay) error {
	return r.update(ctx, userID, "notify_to", to)
}

func (r *UserRepository) SetMuted(ctx context.Context, userID uint, muted bool) error {
	return r.update(ctx, userID, "muted", muted)
}

func (r *UserRepository) update(ctx context.Context, userID uint, column string, value interface{}) error {
	res := r.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", userID).Update(column, value)
	if res.Error != nil {
		return fmt.Errorf("update user %s: %w", column, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
