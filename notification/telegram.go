package notification

import (
	"fmt"
	"time"

	"github.com/cryptooracle/oraclebot/core"
	tb "gopkg.in/tucnak/telebot.v2"
)

const pollingTimeout = 10 * time.Second

// StatusProvider renders the live bot status for chat commands
type StatusProvider func() string

// Telegram implements core.NotifierWithStart over a Telegram bot.
// Alerts go to a single operator chat; /status and /help commands are
// answered from the same chat only.
type Telegram struct {
	client *tb.Bot
	chatID int64
	status StatusProvider
	log    core.Logger
}

// NewTelegram builds the Telegram notifier. Updates from any chat
// other than the configured one are dropped by the poller middleware.
func NewTelegram(token string, chatID int64, status StatusProvider, log core.Logger) (core.NotifierWithStart, error) {
	poller := &tb.LongPoller{Timeout: pollingTimeout}
	authorized := tb.NewMiddlewarePoller(poller, func(u *tb.Update) bool {
		if u.Message == nil || u.Message.Sender == nil {
			return false
		}
		if u.Message.Sender.ID == chatID {
			return true
		}
		log.Warnf("telegram: unauthorized chat %d", u.Message.Sender.ID)
		return false
	})

	client, err := tb.NewBot(tb.Settings{
		Token:     token,
		Poller:    authorized,
		ParseMode: tb.ModeMarkdown,
	})
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}

	t := &Telegram{
		client: client,
		chatID: chatID,
		status: status,
		log:    log,
	}

	client.Handle("/status", t.statusHandle)
	client.Handle("/help", t.helpHandle)
	return t, nil
}

// Start launches the update poller and greets the operator
func (t *Telegram) Start() {
	go t.client.Start()
	t.Notify("Bot Online", "Trading loop starting")
}

// Notify sends one alert to the operator chat
func (t *Telegram) Notify(title, message string) {
	text := fmt.Sprintf("*%s*\n%s", title, message)
	if _, err := t.client.Send(&tb.User{ID: t.chatID}, text); err != nil {
		t.log.Warnf("telegram send failed: %v", err)
	}
}

func (t *Telegram) statusHandle(m *tb.Message) {
	text := "no status available"
	if t.status != nil {
		text = t.status()
	}
	if _, err := t.client.Send(m.Sender, fmt.Sprintf("```\n%s\n```", text)); err != nil {
		t.log.Warnf("telegram send failed: %v", err)
	}
}

func (t *Telegram) helpHandle(m *tb.Message) {
	help := "/status - live per-symbol dashboard\n/help - this message"
	if _, err := t.client.Send(m.Sender, help); err != nil {
		t.log.Warnf("telegram send failed: %v", err)
	}
}
