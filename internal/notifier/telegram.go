package notifier

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"tagwatch/internal/watch"
	logx "tagwatch/pkg/logx"
	"tagwatch/pkg/tgui"
)

// Telegram sends events with the Bot API sendMessage method.
// The bot runs offline: no getMe at start and no update polling.
type Telegram struct {
	bot  *tele.Bot
	chat *tele.Chat
	opts tele.SendOptions
	log  logx.Logger
}

func NewTelegram(cfg TelegramConfig, log logx.Logger) (*Telegram, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if cfg.ChatID == 0 {
		return nil, errors.New("telegram chat_id is empty")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		URL:     strings.TrimRight(strings.TrimSpace(cfg.APIURL), "/"),
		Token:   cfg.Token,
		Offline: true,
		Client:  &http.Client{Timeout: timeout},
	})
	if err != nil {
		return nil, err
	}
	return &Telegram{
		bot:  b,
		chat: &tele.Chat{ID: cfg.ChatID},
		opts: tele.SendOptions{
			ParseMode:             tgui.ParseModeHTML,
			ThreadID:              cfg.ThreadID,
			DisableWebPagePreview: cfg.DisablePreview,
		},
		log: log.With(logx.String("sink", "telegram")),
	}, nil
}

// Notify sends ev.Message. telebot has no context support, so the send runs in
// its own goroutine and ctx only bounds how long Notify waits for it; the HTTP
// client timeout bounds the goroutine itself.
func (t *Telegram) Notify(ctx context.Context, ev watch.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	text := ev.Message
	if strings.TrimSpace(text) == "" {
		text = tgui.Lines(tgui.B(ev.Entity.Key()), tgui.Code(ev.Identifier)).String()
	}
	opts := t.opts

	done := make(chan error, 1)
	go func() {
		_, err := t.bot.Send(t.chat, text, &opts)
		done <- err
	}()
	select {
	case err := <-done:
		if err != nil {
			return err
		}
		t.log.Debug("sent", logx.String("repo", ev.Entity.Key()), logx.String("identifier", ev.Identifier))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
