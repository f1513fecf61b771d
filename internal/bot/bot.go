package bot

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"remindme/internal/geo"
	"remindme/internal/i18n"
	"remindme/internal/model"
	"remindme/internal/repository"
	"remindme/internal/service"
)

type pendingInput int

const (
	pendingNone pendingInput = iota
	pendingCity
)

// botAPI is the part of tgbotapi.BotAPI the bot uses.
type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Bot aggregates Telegram API with services.
type Bot struct {
	api         botAPI
	users       *service.UserService
	tasks       *service.TaskService
	catalog     *i18n.Catalog
	log         *zap.Logger
	adminChatID int64

	// pending is keyed by chat ID, so concurrent conversations never see each
	// other's awaited input.
	pending map[int64]pendingInput
	mu      sync.Mutex
}

func New(
	token string,
	adminChatID int64,
	users *service.UserService,
	tasks *service.TaskService,
	catalog *i18n.Catalog,
	log *zap.Logger,
) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}
	log.Info("bot authorized", zap.String("account", api.Self.UserName))
	return newBot(api, adminChatID, users, tasks, catalog, log), nil
}

func newBot(
	api botAPI,
	adminChatID int64,
	users *service.UserService,
	tasks *service.TaskService,
	catalog *i18n.Catalog,
	log *zap.Logger,
) *Bot {
	return &Bot{
		api:         api,
		users:       users,
		tasks:       tasks,
		catalog:     catalog,
		log:         log,
		adminChatID: adminChatID,
		pending:     make(map[int64]pendingInput),
	}
}

// Start begins polling updates until ctx is cancelled.
func (b *Bot) Start(ctx context.Context) error {
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 60
	updates := b.api.GetUpdatesChan(updateConfig)

	b.log.Info("start polling updates")

	stopped := make(chan struct{})
	defer close(stopped)
	go func() {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
		case <-stopped:
		}
	}()

	for update := range updates {
		b.handleUpdate(ctx, update)
	}

	return ctx.Err()
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic while handling update %d: %v", update.UpdateID, r)
			b.log.Error("handle update panicked", zap.Any("panic", r), zap.Stack("stack"))
			b.AlertAdmin(err)
		}
	}()

	msg := update.Message
	if msg == nil || msg.From == nil || msg.Chat == nil || !msg.Chat.IsPrivate() {
		return
	}
	if err := b.handleMessage(ctx, msg); err != nil {
		b.log.Error("handle message", zap.Error(err), zap.Int64("telegram_id", msg.From.ID))
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) error {
	if msg.IsCommand() {
		b.clearPending(msg.Chat.ID)
		b.log.Debug("command", zap.Int64("telegram_id", msg.From.ID), zap.String("command", msg.Command()))
		return b.handleCommand(ctx, msg)
	}

	if b.getPending(msg.Chat.ID) == pendingCity {
		b.clearPending(msg.Chat.ID)
		return b.withUser(ctx, msg, func(user *model.User) error {
			return b.changeTimezone(ctx, msg.Chat.ID, user, msg.Text)
		})
	}

	return b.reply(ctx, msg.Chat.ID, b.lang(ctx, msg.From.ID), i18n.UnknownCommand)
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) error {
	args := strings.TrimSpace(msg.CommandArguments())
	chatID := msg.Chat.ID

	switch msg.Command() {
	case "start":
		return b.handleStart(ctx, msg)
	case "help":
		return b.reply(ctx, chatID, b.lang(ctx, msg.From.ID), i18n.Help)
	case "cancel":
		// Pending input was already dropped above.
		return b.reply(ctx, chatID, b.lang(ctx, msg.From.ID), i18n.Help)
	}

	return b.withUser(ctx, msg, func(user *model.User) error {
		switch msg.Command() {
		case "add":
			return b.handleAdd(ctx, chatID, user, args)
		case "today":
			return b.handleToday(ctx, chatID, user)
		case "tasks":
			return b.handleTasks(ctx, chatID, user, args)
		case "edit":
			return b.handleEdit(ctx, chatID, user, args)
		case "delete":
			return b.handleDelete(ctx, chatID, user, args)
		case "timezone":
			if args == "" {
				b.setPending(chatID, pendingCity)
				return b.reply(ctx, chatID, user.Language, i18n.TimezoneAsk)
			}
			return b.changeTimezone(ctx, chatID, user, args)
		case "from":
			return b.handleWindow(ctx, chatID, user, args, b.users.SetNotifyFrom, i18n.WindowFromSet)
		case "to":
			return b.handleWindow(ctx, chatID, user, args, b.users.SetNotifyTo, i18n.WindowToSet)
		case "mute":
			return b.handleMute(ctx, chatID, user)
		case "language":
			return b.handleLanguage(ctx, chatID, user, args)
		case "settings":
			return b.handleSettings(ctx, chatID, user)
		default:
			return b.reply(ctx, chatID, user.Language, i18n.UnknownCommand)
		}
	})
}

func (b *Bot) handleStart(ctx context.Context, msg *tgbotapi.Message) error {
	user, err := b.users.Register(ctx, msg.From.ID, msg.Chat.ID, displayName(msg.From))
	if err != nil {
		_ = b.reply(ctx, msg.Chat.ID, "", i18n.SomethingWrong)
		return err
	}
	return b.reply(ctx, msg.Chat.ID, user.Language, i18n.Welcome, escape(user.Name))
}

func (b *Bot) handleAdd(ctx context.Context, chatID int64, user *model.User, args string) error {
	date, text := splitFirst(args)
	if date == "" || text == "" {
		return b.reply(ctx, chatID, user.Language, i18n.Usage, "/add 2025-11-30 text")
	}
	if _, err := b.tasks.CreateTask(ctx, user, date, text); err != nil {
		if errors.Is(err, service.ErrInvalidDate) || errors.Is(err, service.ErrEmptyTask) {
			return b.reply(ctx, chatID, user.Language, i18n.Usage, "/add 2025-11-30 text")
		}
		_ = b.reply(ctx, chatID, user.Language, i18n.SomethingWrong)
		return err
	}
	b.log.Info("task created", zap.Int64("telegram_id", user.TelegramID), zap.String("date", date))
	return b.reply(ctx, chatID, user.Language, i18n.TaskAdded)
}

func (b *Bot) handleToday(ctx context.Context, chatID int64, user *model.User) error {
	date, tasks, err := b.tasks.Today(ctx, user)
	if err != nil {
		_ = b.reply(ctx, chatID, user.Language, i18n.SomethingWrong)
		return err
	}
	return b.sendTaskList(ctx, chatID, user, date, tasks)
}

func (b *Bot) handleTasks(ctx context.Context, chatID int64, user *model.User, args string) error {
	tasks, err := b.tasks.ListByDate(ctx, user, args)
	if err != nil {
		if errors.Is(err, service.ErrInvalidDate) {
			return b.reply(ctx, chatID, user.Language, i18n.Usage, "/tasks 2025-11-30")
		}
		_ = b.reply(ctx, chatID, user.Language, i18n.SomethingWrong)
		return err
	}
	return b.sendTaskList(ctx, chatID, user, strings.TrimSpace(args), tasks)
}

func (b *Bot) handleEdit(ctx context.Context, chatID int64, user *model.User, args string) error {
	rawID, text := splitFirst(args)
	taskID, err := parseTaskID(rawID)
	if err != nil || text == "" {
		return b.reply(ctx, chatID, user.Language, i18n.Usage, "/edit 12 text")
	}
	if err := b.tasks.UpdateTask(ctx, user, taskID, text); err != nil {
		return b.replyTaskError(ctx, chatID, user, err)
	}
	return b.reply(ctx, chatID, user.Language, i18n.TaskUpdated)
}

func (b *Bot) handleDelete(ctx context.Context, chatID int64, user *model.User, args string) error {
	taskID, err := parseTaskID(args)
	if err != nil {
		return b.reply(ctx, chatID, user.Language, i18n.Usage, "/delete 12")
	}
	if err := b.tasks.DeleteTask(ctx, user, taskID); err != nil {
		return b.replyTaskError(ctx, chatID, user, err)
	}
	return b.reply(ctx, chatID, user.Language, i18n.TaskDeleted)
}

func (b *Bot) replyTaskError(ctx context.Context, chatID int64, user *model.User, err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return b.reply(ctx, chatID, user.Language, i18n.TaskNotFound)
	}
	_ = b.reply(ctx, chatID, user.Language, i18n.SomethingWrong)
	return err
}

func (b *Bot) changeTimezone(ctx context.Context, chatID int64, user *model.User, city string) error {
	name, offset, err := b.users.SetTimezoneFromCity(ctx, user.TelegramID, city)
	if err != nil {
		if errors.Is(err, geo.ErrLocationNotFound) || errors.Is(err, service.ErrUnknownTimezone) {
			b.log.Info("timezone lookup failed", zap.Int64("telegram_id", user.TelegramID), zap.Error(err))
			return b.reply(ctx, chatID, user.Language, i18n.TimezoneNotFound)
		}
		_ = b.reply(ctx, chatID, user.Language, i18n.SomethingWrong)
		return err
	}
	return b.reply(ctx, chatID, user.Language, i18n.TimezoneSet, escape(name), offset)
}

func (b *Bot) handleWindow(
	ctx context.Context,
	chatID int64,
	user *model.User,
	args string,
	set func(context.Context, int64, string) (model.TimeOfDay, error),
	done i18n.Key,
) error {
	tod, err := set(ctx, user.TelegramID, args)
	if err != nil {
		if errors.Is(err, model.ErrInvalidTimeOfDay) {
			return b.reply(ctx, chatID, user.Language, i18n.WindowInvalid)
		}
		_ = b.reply(ctx, chatID, user.Language, i18n.SomethingWrong)
		return err
	}
	return b.reply(ctx, chatID, user.Language, done, tod.String())
}

func (b *Bot) handleMute(ctx context.Context, chatID int64, user *model.User) error {
	muted, err := b.users.ToggleMute(ctx, user.TelegramID)
	if err != nil {
		_ = b.reply(ctx, chatID, user.Language, i18n.SomethingWrong)
		return err
	}
	if muted {
		return b.reply(ctx, chatID, user.Language, i18n.MuteOn)
	}
	return b.reply(ctx, chatID, user.Language, i18n.MuteOff)
}

func (b *Bot) handleLanguage(ctx context.Context, chatID int64, user *model.User, args string) error {
	lang, err := b.users.SetLanguage(ctx, user.TelegramID, args)
	if err != nil {
		if errors.Is(err, service.ErrUnsupportedLanguage) {
			return b.reply(ctx, chatID, user.Language, i18n.LanguageUnsupported, strings.Join(b.catalog.Languages(), ", "))
		}
		_ = b.reply(ctx, chatID, user.Language, i18n.SomethingWrong)
		return err
	}
	return b.reply(ctx, chatID, lang, i18n.LanguageSet)
}

func (b *Bot) handleSettings(ctx context.Context, chatID int64, user *model.User) error {
	offset, err := b.users.Offset(user)
	if err != nil {
		_ = b.reply(ctx, chatID, user.Language, i18n.SomethingWrong)
		return err
	}
	muted := b.catalog.Sprintf(user.Language, i18n.No)
	if user.Muted {
		muted = b.catalog.Sprintf(user.Language, i18n.Yes)
	}
	return b.reply(ctx, chatID, user.Language, i18n.Settings,
		escape(user.Timezone), offset, user.NotifyFrom.String(), user.NotifyTo.String(), muted, b.catalog.Match(user.Language).String())
}

func (b *Bot) sendTaskList(ctx context.Context, chatID int64, user *model.User, date string, tasks []model.Task) error {
	if len(tasks) == 0 {
		return b.reply(ctx, chatID, user.Language, i18n.TasksNone)
	}
	var sb strings.Builder
	sb.WriteString(b.catalog.Sprintf(user.Language, i18n.TasksHeader, date))
	for i, task := range tasks {
		sb.WriteString(fmt.Sprintf("\n%d. %s <i>#%d</i>", i+1, escape(task.Text), task.ID))
	}
	return b.SendText(ctx, chatID, sb.String())
}

// withUser loads the sender's record and runs fn, or asks for /start first.
func (b *Bot) withUser(ctx context.Context, msg *tgbotapi.Message, fn func(*model.User) error) error {
	user, err := b.users.Get(ctx, msg.From.ID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return b.reply(ctx, msg.Chat.ID, "", i18n.NotRegistered)
		}
		_ = b.reply(ctx, msg.Chat.ID, "", i18n.SomethingWrong)
		return err
	}
	return fn(user)
}

func (b *Bot) lang(ctx context.Context, telegramID int64) string {
	user, err := b.users.Get(ctx, telegramID)
	if err != nil {
		return ""
	}
	return user.Language
}

func (b *Bot) reply(ctx context.Context, chatID int64, lang string, key i18n.Key, args ...interface{}) error {
	return b.SendText(ctx, chatID, b.catalog.Sprintf(lang, key, args...))
}

// SendText delivers an HTML formatted message. It gives up when ctx is done
// even if the HTTP call is still in flight.
func (b *Bot) SendText(ctx context.Context, chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	return b.send(ctx, msg)
}

func (b *Bot) send(ctx context.Context, msg tgbotapi.MessageConfig) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	done := make(chan error, 1)
	go func() {
		_, err := b.api.Send(msg)
		done <- err
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// AlertAdmin reports err to the admin chat without waiting for delivery.
func (b *Bot) AlertAdmin(err error) {
	if b.adminChatID == 0 || err == nil {
		return
	}
	text := fmt.Sprintf("%s : %T\n%v", time.Now().Format("2006-01-02 15-04-05"), err, err)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if sendErr := b.send(ctx, tgbotapi.NewMessage(b.adminChatID, text)); sendErr != nil {
			b.log.Warn("admin alert failed", zap.Error(sendErr))
		}
	}()
}

func (b *Bot) setPending(chatID int64, p pendingInput) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending[chatID] = p
}

func (b *Bot) getPending(chatID int64) pendingInput {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pending[chatID]
}

func (b *Bot) clearPending(chatID int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.pending, chatID)
}

func displayName(u *tgbotapi.User) string {
	name := strings.TrimSpace(u.FirstName)
	if name == "" {
		name = strings.TrimSpace(u.UserName)
	}
	return name
}

func parseTaskID(raw string) (uint, error) {
	id, err := strconv.ParseUint(strings.TrimPrefix(strings.TrimSpace(raw), "#"), 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid task id %q", raw)
	}
	return uint(id), nil
}

// splitFirst splits s into its first word and the trimmed rest.
func splitFirst(s string) (string, string) {
	s = strings.TrimSpace(s)
	head, rest, _ := strings.Cut(s, " ")
	return head, strings.TrimSpace(rest)
}

func escape(s string) string {
	return html.EscapeString(s)
}
