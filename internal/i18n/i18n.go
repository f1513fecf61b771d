// Package i18n holds the bot's two-locale message catalog.
//
// Exactly two languages are supported: a primary one and a secondary one.
// Any other or missing language tag falls back to the primary locale.
package i18n

import (
	"fmt"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

// Key identifies a user-facing message.
type Key string

const (
	DigestGreeting Key = "digest.greeting"
	DigestEmpty    Key = "digest.empty"

	Welcome        Key = "bot.welcome"
	Help           Key = "bot.help"
	UnknownCommand Key = "bot.unknown_command"
	Usage          Key = "bot.usage"
	SomethingWrong Key = "bot.something_wrong"
	NotRegistered  Key = "bot.not_registered"

	TaskAdded    Key = "task.added"
	TaskUpdated  Key = "task.updated"
	TaskDeleted  Key = "task.deleted"
	TaskNotFound Key = "task.not_found"
	TasksNone    Key = "task.none"
	TasksHeader  Key = "task.header"

	TimezoneAsk      Key = "tz.ask"
	TimezoneSet      Key = "tz.set"
	TimezoneNotFound Key = "tz.not_found"

	WindowFromSet Key = "window.from_set"
	WindowToSet   Key = "window.to_set"
	WindowInvalid Key = "window.invalid"

	MuteOn  Key = "mute.on"
	MuteOff Key = "mute.off"

	LanguageSet         Key = "lang.set"
	LanguageUnsupported Key = "lang.unsupported"

	Settings Key = "settings"
	Yes      Key = "yes"
	No       Key = "no"
)

var translations = map[string]map[Key]string{
	"en": {
		DigestGreeting: "🤖 Hello, %s! Today we are going to:",
		DigestEmpty:    "🤖 Hello, %s! I'm glad to inform you that there are no scheduled tasks today!",

		Welcome: "🤖 Hello, %s! This is the notification bot that'll help you not to forget the most important things. " +
			"Send /help to see what I can do.",
		Help: "ℹ️ Commands:\n" +
			"/add YYYY-MM-DD text — add a task on a date\n" +
			"/today — today's tasks\n" +
			"/tasks YYYY-MM-DD — tasks on a date\n" +
			"/edit id text — edit a task\n" +
			"/delete id — delete a task\n" +
			"/timezone city — change timezone\n" +
			"/from HH:MM, /to HH:MM — notification time frame\n" +
			"/mute — toggle notifications on days without tasks\n" +
			"/language ru|en — change language\n" +
			"/settings — current settings",
		UnknownCommand: "🤖 I don't know this command. Try /help.",
		Usage:          "Usage: %s",
		SomethingWrong: "🤖 Whoops. Something went wrong",
		NotRegistered:  "🤖 Send /start first.",

		TaskAdded:    "✅ The task successfully added!",
		TaskUpdated:  "✅ The task successfully updated!",
		TaskDeleted:  "✅ The task successfully deleted!",
		TaskNotFound: "🤖 I can't find this task.",
		TasksNone:    "🤖 Wow! There are no tasks on that date!",
		TasksHeader:  "🗓 %s:",

		TimezoneAsk:      "🤖 Send me the name of your city and I'll find your timezone.",
		TimezoneSet:      "🤖 Your timezone is now %s (UTC%s).",
		TimezoneNotFound: "🤖 I can't find this city. Try another spelling.",

		WindowFromSet: "🤖 I'll start notifying you at %s.",
		WindowToSet:   "🤖 I'll stop notifying you at %s.",
		WindowInvalid: "🤖 Time must look like 09:30.",

		MuteOn:  "🔕 I won't bother you on days without tasks.",
		MuteOff: "🔔 I'll write to you even when there are no tasks.",

		LanguageSet:         "🤖 Language changed.",
		LanguageUnsupported: "🤖 Supported languages: %s.",

		Settings: "⚙️ Timezone: %s (UTC%s)\nNotifications: %s–%s\nMuted on empty days: %s\nLanguage: %s",
		Yes:      "yes",
		No:       "no",
	},
	"ru": {
		DigestGreeting: "🤖 Привет, %s! Сегодня у нас по плану:",
		DigestEmpty:    "🤖 Привет, %s! Я тут, чтобы сообщить, что запланированных дел на сегодня нет!",

		Welcome: "🤖 Привет, %s! Я бот-напоминалка, который поможет не забыть самое важное. " +
			"Отправь /help, чтобы узнать, что я умею.",
		Help: "ℹ️ Команды:\n" +
			"/add ГГГГ-ММ-ДД текст — добавить задачу на дату\n" +
			"/today — задачи на сегодня\n" +
			"/tasks ГГГГ-ММ-ДД — задачи на дату\n" +
			"/edit id текст — изменить задачу\n" +
			"/delete id — удалить задачу\n" +
			"/timezone город — сменить часовой пояс\n" +
			"/from ЧЧ:ММ, /to ЧЧ:ММ — время уведомлений\n" +
			"/mute — уведомления в дни без задач\n" +
			"/language ru|en — сменить язык\n" +
			"/settings — текущие настройки",
		UnknownCommand: "🤖 Я не знаю такой команды. Загляни в /help.",
		Usage:          "Использование: %s",
		SomethingWrong: "🤖 Упс. Что-то пошло не так",
		NotRegistered:  "🤖 Сначала отправь /start.",

		TaskAdded:    "✅ Задача успешно добавлена!",
		TaskUpdated:  "✅ Задача успешно изменена!",
		TaskDeleted:  "✅ Задача успешно удалена!",
		TaskNotFound: "🤖 Не могу найти эту задачу.",
		TasksNone:    "🤖 Ого! На эту дату задач нет!",
		TasksHeader:  "🗓 %s:",

		TimezoneAsk:      "🤖 Напиши название своего города, и я определю часовой пояс.",
		TimezoneSet:      "🤖 Твой часовой пояс теперь %s (UTC%s).",
		TimezoneNotFound: "🤖 Не могу найти такой город. Попробуй написать иначе.",

		WindowFromSet: "🤖 Буду присылать уведомления начиная с %s.",
		WindowToSet:   "🤖 Перестану присылать уведомления в %s.",
		WindowInvalid: "🤖 Время должно выглядеть так: 09:30.",

		MuteOn:  "🔕 Не буду беспокоить в дни без задач.",
		MuteOff: "🔔 Буду писать, даже если задач нет.",

		LanguageSet:         "🤖 Язык изменён.",
		LanguageUnsupported: "🤖 Поддерживаемые языки: %s.",

		Settings: "⚙️ Часовой пояс: %s (UTC%s)\nУведомления: %s–%s\nТишина в дни без задач: %s\nЯзык: %s",
		Yes:      "да",
		No:       "нет",
	},
}

// Catalog renders messages in one of the two supported languages.
type Catalog struct {
	supported []language.Tag
	builder   *catalog.Builder
}

// New builds a catalog for the primary and secondary language tags.
// Both must have shipped translations.
func New(primary, secondary string) (*Catalog, error) {
	builder := catalog.NewBuilder()
	var supported []language.Tag

	for _, raw := range []string{primary, secondary} {
		tag, err := language.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("parse language %q: %w", raw, err)
		}
		base, _ := tag.Base()
		tag = language.Make(base.String())

		messages, ok := translations[base.String()]
		if !ok {
			return nil, fmt.Errorf("no translations for language %q", raw)
		}
		for key, msg := range messages {
			if err := builder.SetString(tag, string(key), msg); err != nil {
				return nil, fmt.Errorf("register %s/%s: %w", tag, key, err)
			}
		}
		supported = append(supported, tag)
	}

	if supported[0] == supported[1] {
		return nil, fmt.Errorf("primary and secondary language are both %q", supported[0])
	}

	return &Catalog{
		supported: supported,
		builder:   builder,
	}, nil
}

// Primary is the fallback language tag.
func (c *Catalog) Primary() string {
	return c.supported[0].String()
}

// Languages lists the supported tags, primary first.
func (c *Catalog) Languages() []string {
	out := make([]string, len(c.supported))
	for i, tag := range c.supported {
		out[i] = tag.String()
	}
	return out
}

// Supported reports whether raw names one of the two languages and returns its
// canonical tag.
func (c *Catalog) Supported(raw string) (string, bool) {
	tag, ok := c.lookup(raw)
	if !ok {
		return "", false
	}
	return tag.String(), true
}

// Match picks the supported tag for raw, falling back to the primary.
// Only the base language counts, so a regional variant matches its base but
// a related language (be, kk) does not match ru.
func (c *Catalog) Match(raw string) language.Tag {
	if tag, ok := c.lookup(raw); ok {
		return tag
	}
	return c.supported[0]
}

func (c *Catalog) lookup(raw string) (language.Tag, bool) {
	if raw == "" {
		return language.Und, false
	}
	tag, err := language.Parse(raw)
	if err != nil {
		return language.Und, false
	}
	base, conf := tag.Base()
	if conf == language.No {
		return language.Und, false
	}
	for _, s := range c.supported {
		if sb, _ := s.Base(); sb == base {
			return s, true
		}
	}
	return language.Und, false
}

// Sprintf formats the message for key in the language closest to lang.
func (c *Catalog) Sprintf(lang string, key Key, args ...interface{}) string {
	p := message.NewPrinter(c.Match(lang), message.Catalog(c.builder))
	return p.Sprintf(string(key), args...)
}
