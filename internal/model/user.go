package model

import "time"

// User stores Telegram identity and notification preferences.
type User struct {
	ID         uint  `gorm:"primaryKey"`
	TelegramID int64 `gorm:"uniqueIndex"`
	ChatID     int64 `gorm:"uniqueIndex"`
	Name       string
	Language   string
	Timezone   string
	NotifyFrom TimeOfDay
	NotifyTo   TimeOfDay
	Muted      bool `gorm:"default:false"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
	Tasks      []Task `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
}
