package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"remindbot/internal/reminder"
	kit "remindbot/internal/transport"
	logx "remindbot/pkg/logx"
)

const welcomeText = "🤖 *Reminder Bot*\n\n" +
	"I can remind you of things after a delay, once or on a schedule.\n\n" +
	"*Commands:*\n" +
	"/remind `<time> <message>` - one-shot reminder\n" +
	"/remind\\_daily `<time> <message>` - repeats every day\n" +
	"/remind\\_weekly `<time> <message>` - repeats every week\n" +
	"/remind\\_monthly `<time> <message>` - repeats every month\n" +
	"/reminders - list pending one-shot reminders\n" +
	"/recurring - list recurring reminders\n" +
	"/cancel `<id>` - cancel a reminder by id prefix\n\n" +
	"*Time format:* a number followed by a unit:\n" +
	"`30s` - 30 seconds\n" +
	"`5m` - 5 minutes\n" +
	"`2h` - 2 hours\n" +
	"`1d` - 1 day\n\n" +
	"Example: `/remind 10m take the pizza out of the oven`"

const timeFormatHint = "❌ Invalid time format.\n\n" +
	"Use a number followed by `s`, `m`, `h` or `d`, e.g. `30s`, `5m`, `2h`, `1d`."

// CommandManager routes inbound updates to reminder operations and renders
// the replies. It owns no goroutines; the app runs DispatchLoop under its
// supervisor.
type CommandManager struct {
	log     logx.Logger
	adapter kit.Adapter
	svc     *reminder.Service
	opts    *kit.SendOptions
}

func NewCommandManager(log logx.Logger, adapter kit.Adapter, svc *reminder.Service, opts *kit.SendOptions) *CommandManager {
	return &CommandManager{log: log, adapter: adapter, svc: svc, opts: opts}
}

// MenuCommands is the list shown in the Telegram command menu.
func (m *CommandManager) MenuCommands() []kit.BotCommand {
	return []kit.BotCommand{
		{Command: "remind", Description: "Set a one-shot reminder"},
		{Command: "remind_daily", Description: "Set a daily reminder"},
		{Command: "remind_weekly", Description: "Set a weekly reminder"},
		{Command: "remind_monthly", Description: "Set a monthly reminder"},
		{Command: "reminders", Description: "List pending reminders"},
		{Command: "recurring", Description: "List recurring reminders"},
		{Command: "cancel", Description: "Cancel a reminder"},
		{Command: "help", Description: "Show usage"},
	}
}

func (m *CommandManager) DispatchLoop(ctx context.Context, updates <-chan kit.Update) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			if up.Kind != kit.UpdateMessage || up.Message == nil {
				continue
			}
			m.handle(ctx, up.Message)
		}
	}
}

func (m *CommandManager) handle(ctx context.Context, msg *kit.Message) {
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return
	}

	if !strings.HasPrefix(text, "/") {
		// Non-command text gets an echo plus a help nudge.
		m.reply(ctx, msg.ChatID, fmt.Sprintf("You said: %s\n\nSend /help to see what I can do.", text))
		return
	}

	fields := strings.Fields(text)
	cmd := strings.ToLower(fields[0])
	// Group chats address commands as /remind@botname.
	if at := strings.IndexByte(cmd, '@'); at > 0 {
		cmd = cmd[:at]
	}
	args := fields[1:]

	owner := msg.FromID
	if owner == 0 {
		owner = msg.ChatID
	}

	switch cmd {
	case "/start", "/help":
		m.reply(ctx, msg.ChatID, welcomeText)
	case "/remind":
		m.handleCreate(ctx, msg.ChatID, owner, args, reminder.RecurNone)
	case "/remind_daily":
		m.handleCreate(ctx, msg.ChatID, owner, args, reminder.RecurDaily)
	case "/remind_weekly":
		m.handleCreate(ctx, msg.ChatID, owner, args, reminder.RecurWeekly)
	case "/remind_monthly":
		m.handleCreate(ctx, msg.ChatID, owner, args, reminder.RecurMonthly)
	case "/reminders":
		m.handleListPending(ctx, msg.ChatID, owner)
	case "/recurring":
		m.handleListRecurring(ctx, msg.ChatID, owner)
	case "/cancel":
		m.handleCancel(ctx, msg.ChatID, owner, args)
	default:
		m.reply(ctx, msg.ChatID, fmt.Sprintf("Unknown command %s. Send /help to see what I can do.", cmd))
	}
}

func (m *CommandManager) handleCreate(ctx context.Context, chatID, owner int64, args []string, rec reminder.Recurrence) {
	if len(args) < 2 {
		usage := "/remind"
		if rec != reminder.RecurNone {
			usage = "/remind_" + rec.String()
		}
		m.reply(ctx, chatID, fmt.Sprintf("❌ Usage: `%s <time> <message>`\n\nExample: `%s 10m check the oven`", usage, usage))
		return
	}

	rem, err := m.svc.Create(owner, args[0], strings.Join(args[1:], " "), rec)
	if err != nil {
		var perr *reminder.ParseError
		var rerr *reminder.RangeError
		switch {
		case errors.As(err, &perr):
			m.reply(ctx, chatID, timeFormatHint)
		case errors.As(err, &rerr):
			if rerr.Requested < reminder.MinInterval {
				m.reply(ctx, chatID, "❌ Time must be at least 1 second.")
			} else {
				m.reply(ctx, chatID, "❌ Time cannot exceed 1 year.")
			}
		default:
			m.log.Error("create failed", logx.Int64("owner", owner), logx.Err(err))
			m.reply(ctx, chatID, "❌ Could not set the reminder, try again.")
		}
		return
	}

	var b strings.Builder
	fmt.Fprintf(&b, "✅ *Reminder set!*\n\n")
	fmt.Fprintf(&b, "📝 *Message:* %s\n", rem.Text)
	fmt.Fprintf(&b, "⏰ *Time:* %s\n", reminder.FormatDuration(time.Duration(rem.BaseInterval)*time.Second))
	if rem.Recurrence != reminder.RecurNone {
		fmt.Fprintf(&b, "🔁 *Repeats:* %s\n", rem.Recurrence)
	}
	fmt.Fprintf(&b, "🕐 *Will trigger at:* %s\n", rem.Due().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "🆔 `%s`", shortID(rem.ID))
	m.reply(ctx, chatID, b.String())
}

func (m *CommandManager) handleListPending(ctx context.Context, chatID, owner int64) {
	pending := m.svc.ListPending(owner)
	if len(pending) == 0 {
		m.reply(ctx, chatID, "📭 You have no pending reminders.")
		return
	}

	now := time.Now()
	var b strings.Builder
	fmt.Fprintf(&b, "📋 *Your pending reminders:*\n\n")
	for i, rem := range pending {
		remaining := rem.Due().Sub(now)
		if remaining < 0 {
			remaining = 0
		}
		fmt.Fprintf(&b, "%d. 📝 %s\n", i+1, rem.Text)
		fmt.Fprintf(&b, "   ⏰ in %s (at %s)\n", reminder.FormatDuration(remaining), rem.Due().Format("2006-01-02 15:04:05"))
		fmt.Fprintf(&b, "   🆔 `%s`\n\n", shortID(rem.ID))
	}
	m.reply(ctx, chatID, strings.TrimRight(b.String(), "\n"))
}

func (m *CommandManager) handleListRecurring(ctx context.Context, chatID, owner int64) {
	recurring := m.svc.ListRecurring(owner)
	if len(recurring) == 0 {
		m.reply(ctx, chatID, "📭 You have no recurring reminders.")
		return
	}

	var b strings.Builder
	fmt.Fprintf(&b, "🔁 *Your recurring reminders:*\n\n")
	for i, rem := range recurring {
		fmt.Fprintf(&b, "%d. 📝 %s\n", i+1, rem.Text)
		fmt.Fprintf(&b, "   🔁 %s, next at %s\n", rem.Recurrence, rem.Due().Format("2006-01-02 15:04:05"))
		fmt.Fprintf(&b, "   🆔 `%s`\n\n", shortID(rem.ID))
	}
	m.reply(ctx, chatID, strings.TrimRight(b.String(), "\n"))
}

func (m *CommandManager) handleCancel(ctx context.Context, chatID, owner int64, args []string) {
	if len(args) != 1 {
		m.reply(ctx, chatID, "❌ Usage: `/cancel <id>`\n\nThe id is shown by /reminders and /recurring.")
		return
	}
	rem, ok := m.svc.CancelByPrefix(owner, args[0])
	if !ok {
		m.reply(ctx, chatID, fmt.Sprintf("❌ No reminder matches id `%s`.", args[0]))
		return
	}
	m.reply(ctx, chatID, fmt.Sprintf("🗑 Cancelled: %s", rem.Text))
}

func (m *CommandManager) reply(ctx context.Context, chatID int64, text string) {
	sctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if _, err := m.adapter.SendText(sctx, kit.ChatTarget{ChatID: chatID}, text, m.opts); err != nil {
		m.log.Warn("reply failed", logx.Int64("chat", chatID), logx.Err(err))
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
