package model

import "time"

// DateLayout is the storage format of Task.Date.
const DateLayout = "2006-01-02"

// Task is a single to-do entry planned for a calendar date.
// Date carries no time or zone: it is read in the owner's timezone.
type Task struct {
	ID        uint   `gorm:"primaryKey"`
	UserID    uint   `gorm:"index:idx_task_user_date"`
	Text      string `gorm:"not null"`
	Date      string `gorm:"size:10;index:idx_task_user_date"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// FormatDate renders the calendar date of t as seen in t's own location.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// ParseDate validates a YYYY-MM-DD string and returns it normalized.
func ParseDate(s string) (string, error) {
	d, err := time.Parse(DateLayout, s)
	if err != nil {
		return "", err
	}
	return d.Format(DateLayout), nil
}
