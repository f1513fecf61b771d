package service

import (
	"fmt"
	"html"
	"strings"

	"remindme/internal/i18n"
	"remindme/internal/model"
)

// DigestBuilder renders the daily notification for one user.
type DigestBuilder struct {
	catalog *i18n.Catalog
}

func NewDigestBuilder(catalog *i18n.Catalog) *DigestBuilder {
	return &DigestBuilder{catalog: catalog}
}

// Build returns the message for user given the tasks of the user's local day.
// The bool is false when nothing should be sent: no tasks and the user muted
// empty days.
func (b *DigestBuilder) Build(user model.User, tasks []string) (string, bool) {
	name := html.EscapeString(strings.TrimSpace(user.Name))

	if len(tasks) == 0 {
		if user.Muted {
			return "", false
		}
		return b.catalog.Sprintf(user.Language, i18n.DigestEmpty, name), true
	}

	var builder strings.Builder
	builder.WriteString(b.catalog.Sprintf(user.Language, i18n.DigestGreeting, name))
	for i, task := range tasks {
		builder.WriteString(fmt.Sprintf("\n%d. %s", i+1, html.EscapeString(strings.TrimSpace(task))))
	}
	return builder.String(), true
}
