// internal/telegram/bot.go
//
// Telegram adapter for the command interface.
//
// Context
// -------
// Long-polls the Bot API and maps chat commands onto command.Handler:
//
//	/start, /status   gate status plus the command list
//	/settime <when>   set-timer
//	/unlock           unlock-now
//	/help             command list
//
// Unknown slash-commands get the command list; plain text is ignored.
//
// Workflow
// --------
//  1. Run opens the update channel and pings the bot-status record on
//     start and on every heartbeat tick.
//  2. Each message is handled inline; the handlers are short store calls.
//  3. On shutdown Run stops polling and records IsActive=false.
//
// Notes
// -----
//   - When an allow-list is configured only listed user IDs may change
//     the countdown.  Status commands stay open.
//   - Every chat that runs /start is subscribed to notifications until
//     the process exits.  Bot doubles as a message.Sink.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/yanizio/reveal/internal/command"
	"github.com/yanizio/reveal/internal/message"
	"github.com/yanizio/reveal/internal/metrics"
	"github.com/yanizio/reveal/internal/record"
)

// API is the slice of *tgbotapi.BotAPI the bot uses.
type API interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Commands is implemented by *command.Handler.
type Commands interface {
	SetTimer(ctx context.Context, raw, requestedBy string) (*command.SetResult, error)
	UnlockNow(ctx context.Context, requestedBy string) (bool, error)
	Status(ctx context.Context) (command.StatusReport, error)
	Location() *time.Location
}

// Options configures a Bot.
type Options struct {
	AllowedUserIDs []int64
	NotifyChatIDs  []int64
	Heartbeat      time.Duration
}

// Bot is safe for concurrent use.
type Bot struct {
	api       API
	cmds      Commands
	status    command.BotStatusWriter
	allowed   map[int64]bool
	heartbeat time.Duration
	log       *zap.SugaredLogger

	mu   sync.RWMutex
	subs map[int64]struct{}
}

// Compile-time assertion: *Bot satisfies message.Sink.
var _ message.Sink = (*Bot)(nil)

// Connect authenticates token against the Bot API.
func Connect(token string) (*tgbotapi.BotAPI, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram login: %w", err)
	}
	return api, nil
}

// New wires a bot.  status may be nil.
func New(api API, cmds Commands, status command.BotStatusWriter, opts Options, log *zap.SugaredLogger) *Bot {
	if opts.Heartbeat <= 0 {
		opts.Heartbeat = time.Minute
	}
	b := &Bot{
		api:       api,
		cmds:      cmds,
		status:    status,
		allowed:   make(map[int64]bool, len(opts.AllowedUserIDs)),
		heartbeat: opts.Heartbeat,
		log:       log,
		subs:      make(map[int64]struct{}),
	}
	for _, id := range opts.AllowedUserIDs {
		b.allowed[id] = true
	}
	for _, id := range opts.NotifyChatIDs {
		b.subs[id] = struct{}{}
	}
	return b
}

/*──────────────────────────────── polling ─────────────────────────────────*/

// Run polls for updates until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	u.AllowedUpdates = []string{"message"}
	updates := b.api.GetUpdatesChan(u)

	tick := time.NewTicker(b.heartbeat)
	defer tick.Stop()

	b.ping(ctx, true)
	b.log.Infow("telegram bot polling")

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			b.ping(stopCtx, false)
			cancel()
			b.log.Infow("telegram bot stopped")
			return nil
		case <-tick.C:
			b.ping(ctx, true)
		case upd, ok := <-updates:
			if !ok {
				return nil
			}
			if upd.Message != nil {
				b.Handle(ctx, upd.Message)
			}
		}
	}
}

func (b *Bot) ping(ctx context.Context, active bool) {
	if b.status == nil {
		return
	}
	p := record.BotStatusPatch{IsActive: record.Bool(active)}
	if active {
		p.SiteStatus = record.Status(record.SiteOnline)
	}
	if _, err := b.status.UpdateBotStatus(ctx, p); err != nil {
		b.log.Warnw("bot heartbeat failed", "active", active, "err", err)
	}
}

/*─────────────────────────────── commands ─────────────────────────────────*/

// Handle routes one incoming message.
func (b *Bot) Handle(ctx context.Context, msg *tgbotapi.Message) {
	if msg == nil || msg.Chat == nil || !msg.IsCommand() {
		return
	}
	chatID := msg.Chat.ID
	name := "User"
	var userID int64
	if msg.From != nil {
		userID = msg.From.ID
		if msg.From.FirstName != "" {
			name = msg.From.FirstName
		}
	}

	cmd := msg.Command()
	switch cmd {
	case "start", "status", "settime", "unlock", "help":
	default:
		cmd = "unknown"
	}
	metrics.BotCommandsTotal.WithLabelValues(cmd).Inc()

	switch cmd {
	case "start":
		b.subscribe(chatID)
		b.reply(chatID, b.statusText(ctx, name))
	case "status":
		b.reply(chatID, b.statusText(ctx, name))
	case "settime":
		if !b.mayWrite(userID) {
			b.reply(chatID, deniedText)
			return
		}
		b.reply(chatID, b.setTimeText(ctx, msg.CommandArguments(), name))
	case "unlock":
		if !b.mayWrite(userID) {
			b.reply(chatID, deniedText)
			return
		}
		b.reply(chatID, b.unlockText(ctx, name))
	case "help":
		b.reply(chatID, helpText)
	default:
		b.reply(chatID, "❓ Unknown command. Available commands:\n\n"+helpText)
	}
}

func (b *Bot) mayWrite(userID int64) bool {
	return len(b.allowed) == 0 || b.allowed[userID]
}

func (b *Bot) statusText(ctx context.Context, name string) string {
	rep, err := b.cmds.Status(ctx)
	if err != nil {
		b.log.Errorw("status command failed", "err", err)
		return "❌ Error checking status. Please try again."
	}

	var s strings.Builder
	fmt.Fprintf(&s, "🎉 Hello %s!\n\n", name)
	s.WriteString("✅ Bot Status: Active\n✅ Site Status: Online\n\n")

	st := rep.State
	switch {
	case !st.Accessible && st.TargetDate != nil:
		fmt.Fprintf(&s, "⏰ Active Countdown: %s remaining\n", command.FormatRemaining(st.Remaining))
		fmt.Fprintf(&s, "🎯 Target: %s\n", b.formatTime(*st.TargetDate))
		fmt.Fprintf(&s, "👤 Set by: %s\n\n", st.SetBy)
		s.WriteString("🔒 Site will be accessible after countdown ends.")
	case st.Ended:
		s.WriteString("🎉 Countdown has ended! Site is now accessible.")
	default:
		s.WriteString("📌 No active countdown. Site is fully accessible.\n\n")
		s.WriteString("Use /settime to set a countdown timer.")
	}
	s.WriteString("\n\n" + helpText)
	return s.String()
}

func (b *Bot) setTimeText(ctx context.Context, raw, name string) string {
	res, err := b.cmds.SetTimer(ctx, raw, name)
	var ve *command.ValidationError
	switch {
	case errors.As(err, &ve):
		return "❌ " + ve.Msg + "\nExample: /settime 31/12/2099_11:59 PM"
	case err != nil:
		b.log.Errorw("settime command failed", "err", err)
		return "❌ Error setting countdown. Please try again."
	}
	return fmt.Sprintf("✅ Countdown set successfully!\n\n"+
		"🎯 Target: %s\n"+
		"⏰ Time remaining: %s\n"+
		"👤 Set by: %s\n\n"+
		"🔒 Site will be locked until countdown ends.",
		b.formatTime(res.Target), command.FormatRemaining(res.Remaining), res.SetBy)
}

func (b *Bot) unlockText(ctx context.Context, name string) string {
	cleared, err := b.cmds.UnlockNow(ctx, name)
	if err != nil {
		b.log.Errorw("unlock command failed", "err", err)
		return "❌ Error clearing countdown. Please try again."
	}
	if !cleared {
		return "📌 No active countdown to clear."
	}
	return "🔓 Countdown cleared by " + name + ". Site is now accessible."
}

func (b *Bot) formatTime(t time.Time) string {
	return t.In(b.cmds.Location()).Format("02/01/2006 03:04 PM MST")
}

func (b *Bot) reply(chatID int64, text string) {
	if _, err := b.api.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		b.log.Warnw("telegram reply failed", "chat", chatID, "err", err)
	}
}

const helpText = "📝 Commands:\n" +
	"/start - Check bot and site status\n" +
	"/settime DD/MM/YYYY_HH:MM AM/PM - Set countdown timer\n" +
	"/unlock - Clear the countdown now\n\n" +
	"Example: /settime 25/12/2030_06:00 AM"

const deniedText = "⛔ You are not allowed to change the countdown."

/*───────────────────────────── notifications ──────────────────────────────*/

func (b *Bot) subscribe(chatID int64) {
	b.mu.Lock()
	b.subs[chatID] = struct{}{}
	b.mu.Unlock()
}

// Subscribers lists the chats that receive notifications, sorted.
func (b *Bot) Subscribers() []int64 {
	b.mu.RLock()
	ids := make([]int64, 0, len(b.subs))
	for id := range b.subs {
		ids = append(ids, id)
	}
	b.mu.RUnlock()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Send delivers text to every subscribed chat.  Per-chat failures are
// joined into the returned error.
func (b *Bot) Send(ctx context.Context, text string) error {
	var errs []error
	for _, id := range b.Subscribers() {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if _, err := b.api.Send(tgbotapi.NewMessage(id, text)); err != nil {
			errs = append(errs, fmt.Errorf("chat %d: %w", id, err))
		}
	}
	return errors.Join(errs...)
}
