package messenger

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"
	tele "gopkg.in/telebot.v4"
)

// TelegramConfig configures the Bot API client.
type TelegramConfig struct {
	Token string
	// Proxy is an optional http proxy URL for all Bot API calls.
	Proxy          string
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	// Polling enables long polling for inline button callbacks.
	Polling bool
}

// CallbackHandler answers a push action taken by the user with chat id
// chatID. The returned text is shown to the user as a toast.
type CallbackHandler func(ctx context.Context, chatID int64, action Action, pushID int64) (string, error)

// Telegram delivers pushes through the Telegram Bot API.
type Telegram struct {
	bot     *tele.Bot
	polling bool
	logger  *zap.Logger
}

func NewTelegram(cfg TelegramConfig, logger *zap.Logger) (*Telegram, error) {
	transport := &http.Transport{
		DialContext:           (&net.Dialer{Timeout: cfg.ConnectTimeout}).DialContext,
		ResponseHeaderTimeout: cfg.ReadTimeout,
	}
	if cfg.Proxy != "" {
		proxyURL, err := url.Parse(cfg.Proxy)
		if err != nil {
			return nil, fmt.Errorf("parse telegram proxy: %w", err)
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}

	settings := tele.Settings{
		Token:  cfg.Token,
		Client: &http.Client{Transport: transport, Timeout: cfg.ConnectTimeout + cfg.ReadTimeout},
		// Offline skips the getMe call so construction never blocks on the network.
		Offline: true,
		OnError: func(err error, _ tele.Context) {
			logger.Error("telegram update failed", zap.Error(err))
		},
	}
	if cfg.Polling {
		settings.Poller = &tele.LongPoller{Timeout: 10 * time.Second}
	}

	b, err := tele.NewBot(settings)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	return &Telegram{bot: b, polling: cfg.Polling, logger: logger}, nil
}

func (t *Telegram) SendPhoto(_ context.Context, chatID int64, fileID, caption string, buttons []Button) (int, error) {
	photo := &tele.Photo{File: tele.File{FileID: fileID}, Caption: caption}
	msg, err := t.bot.Send(tele.ChatID(chatID), photo, sendOptions(buttons))
	if err != nil {
		return 0, fmt.Errorf("send photo to %d: %w", chatID, err)
	}
	return msg.ID, nil
}

func (t *Telegram) SendText(_ context.Context, chatID int64, text string) (int, error) {
	msg, err := t.bot.Send(tele.ChatID(chatID), text, sendOptions(nil))
	if err != nil {
		return 0, fmt.Errorf("send message to %d: %w", chatID, err)
	}
	return msg.ID, nil
}

func (t *Telegram) Delete(_ context.Context, chatID int64, messageID int) error {
	err := t.bot.Delete(tele.StoredMessage{MessageID: strconv.Itoa(messageID), ChatID: chatID})
	if err != nil {
		return fmt.Errorf("delete message %d in %d: %w", messageID, chatID, err)
	}
	return nil
}

// HandleCallbacks routes push button presses to h. It must be called before
// Start.
func (t *Telegram) HandleCallbacks(ctx context.Context, h CallbackHandler) {
	t.bot.Handle(tele.OnCallback, func(c tele.Context) error {
		cb := c.Callback()
		if cb == nil || c.Sender() == nil {
			return nil
		}
		action, pushID, err := ParseCallback(cb.Data)
		if err != nil {
			t.logger.Warn("ignoring callback", zap.String("data", cb.Data), zap.Error(err))
			return c.Respond()
		}
		text, err := h(ctx, c.Sender().ID, action, pushID)
		if err != nil {
			t.logger.Warn("push callback failed",
				zap.Int64("push_id", pushID),
				zap.String("action", string(action)),
				zap.Error(err),
			)
		}
		return c.Respond(&tele.CallbackResponse{Text: text})
	})
}

// Start begins long polling in the background. It is a no-op when polling
// is disabled.
func (t *Telegram) Start() {
	if !t.polling {
		return
	}
	go t.bot.Start()
	t.logger.Info("telegram polling started")
}

// Stop ends long polling.
func (t *Telegram) Stop() {
	if !t.polling {
		return
	}
	t.bot.Stop()
	t.logger.Info("telegram polling stopped")
}

func sendOptions(buttons []Button) *tele.SendOptions {
	opts := &tele.SendOptions{ParseMode: tele.ModeHTML}
	if len(buttons) == 0 {
		return opts
	}
	rm := &tele.ReplyMarkup{}
	rm.Inline(keyboardRows(rm, buttons)...)
	opts.ReplyMarkup = rm
	return opts
}

// keyboardRows puts each URL button on its own row and the callback buttons
// together on a final row.
func keyboardRows(rm *tele.ReplyMarkup, buttons []Button) []tele.Row {
	var rows []tele.Row
	var actions []tele.Btn
	for _, b := range buttons {
		if b.URL != "" {
			rows = append(rows, rm.Row(tele.Btn{Text: b.Text, URL: b.URL}))
			continue
		}
		actions = append(actions, tele.Btn{Text: b.Text, Data: b.Data})
	}
	if len(actions) > 0 {
		rows = append(rows, rm.Row(actions...))
	}
	return rows
}

// compile-time check that Telegram implements Messenger
var _ Messenger = (*Telegram)(nil)
