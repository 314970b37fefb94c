package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// LongPollTimeout is the server-side hold, in seconds, for one getUpdates
// call. Any overall timeout on the HTTP client must leave room for it on
// top of the configured read timeout, or idle polls get cut off mid-hold.
const LongPollTimeout = 30

// Telegram is the Bot API Transport implementation.
type Telegram struct {
	bot    *tgbotapi.BotAPI
	logger *slog.Logger
}

// NewTelegram connects to the Bot API with the given token and HTTP client.
// The client carries the pool sizing, timeouts and proxy from app config.
// Connecting validates the token against the getMe endpoint.
func NewTelegram(token string, client *http.Client, logger *slog.Logger) (*Telegram, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if client == nil {
		client = http.DefaultClient
	}
	bot, err := tgbotapi.NewBotAPIWithClient(token, tgbotapi.APIEndpoint, client)
	if err != nil {
		return nil, fmt.Errorf("connect bot api: %w", err)
	}
	return &Telegram{bot: bot, logger: logger}, nil
}

// Username returns the bot's own username, known after connecting.
func (t *Telegram) Username() string {
	return t.bot.Self.UserName
}

// Send implements Transport.
func (t *Telegram) Send(ctx context.Context, msg Message) (int, error) {
	cfg := tgbotapi.NewMessage(msg.ChatID, msg.Text)
	cfg.ParseMode = tgbotapi.ModeHTML
	if msg.ReplyTo != 0 {
		cfg.ReplyToMessageID = msg.ReplyTo
		// A deleted reply target degrades to a plain send instead of a
		// delivery failure.
		cfg.AllowSendingWithoutReply = true
	}
	if kb := markup(msg.Keyboard); kb != nil {
		cfg.ReplyMarkup = *kb
	}

	sent, err := withContext(ctx, func() (tgbotapi.Message, error) {
		return t.bot.Send(cfg)
	})
	if err != nil {
		return 0, wrapAPIError(err)
	}
	return sent.MessageID, nil
}

// Edit implements Transport. A nil keyboard drops any inline buttons.
func (t *Telegram) Edit(ctx context.Context, chatID int64, messageID int, text string, keyboard Keyboard) error {
	cfg := tgbotapi.NewEditMessageText(chatID, messageID, text)
	cfg.ParseMode = tgbotapi.ModeHTML
	cfg.ReplyMarkup = markup(keyboard)

	_, err := withContext(ctx, func() (*tgbotapi.APIResponse, error) {
		return t.bot.Request(cfg)
	})
	return wrapAPIError(err)
}

// AnswerCallback implements Transport.
func (t *Telegram) AnswerCallback(ctx context.Context, callbackID, text string, alert bool) error {
	cfg := tgbotapi.CallbackConfig{
		CallbackQueryID: callbackID,
		Text:            text,
		ShowAlert:       alert,
	}
	_, err := withContext(ctx, func() (*tgbotapi.APIResponse, error) {
		return t.bot.Request(cfg)
	})
	return wrapAPIError(err)
}

// SetCommands implements Transport.
func (t *Telegram) SetCommands(ctx context.Context, commands []Command) error {
	list := make([]tgbotapi.BotCommand, 0, len(commands))
	for _, c := range commands {
		list = append(list, tgbotapi.BotCommand{Command: c.Name, Description: c.Description})
	}
	cfg := tgbotapi.NewSetMyCommands(list...)
	_, err := withContext(ctx, func() (*tgbotapi.APIResponse, error) {
		return t.bot.Request(cfg)
	})
	return wrapAPIError(err)
}

// Updates long-polls the Bot API and translates raw updates. The channel
// closes after ctx is cancelled and the poll loop has wound down.
func (t *Telegram) Updates(ctx context.Context) <-chan Update {
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = LongPollTimeout
	raw := t.bot.GetUpdatesChan(cfg)

	out := make(chan Update)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				t.drain(raw)
				return
			case u, ok := <-raw:
				if !ok {
					return
				}
				up, ok := translate(u)
				if !ok {
					continue
				}
				select {
				case out <- up:
				case <-ctx.Done():
					t.drain(raw)
					return
				}
			}
		}
	}()
	return out
}

// drain stops the library's poll goroutine and consumes what it already
// buffered so it can observe the shutdown.
func (t *Telegram) drain(raw tgbotapi.UpdatesChannel) {
	t.bot.StopReceivingUpdates()
	for range raw {
	}
}

// translate maps a raw update onto the narrow Update shape. Unsupported
// update kinds (joins, edits, media without text) report false.
func translate(u tgbotapi.Update) (Update, bool) {
	switch {
	case u.CallbackQuery != nil:
		cb := u.CallbackQuery
		action, arg := SplitCallbackData(cb.Data)
		out := &Callback{ID: cb.ID, Action: action, Arg: arg}
		if cb.From != nil {
			out.UserID = cb.From.ID
			out.Username = cb.From.UserName
		}
		if cb.Message != nil && cb.Message.Chat != nil {
			out.ChatID = cb.Message.Chat.ID
			out.MessageID = cb.Message.MessageID
		}
		return Update{Callback: out}, true

	case u.Message != nil && u.Message.Text != "":
		m := u.Message
		out := &IncomingMessage{MessageID: m.MessageID, Text: m.Text}
		if m.Chat != nil {
			out.ChatID = m.Chat.ID
		}
		if m.From != nil {
			out.UserID = m.From.ID
			out.Username = m.From.UserName
		}
		if m.IsCommand() {
			out.Command = m.Command()
		}
		return Update{Message: out}, true
	}
	return Update{}, false
}

func markup(kb Keyboard) *tgbotapi.InlineKeyboardMarkup {
	if len(kb) == 0 {
		return nil
	}
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(kb))
	for _, row := range kb {
		buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(b.Text, b.Data))
		}
		rows = append(rows, buttons)
	}
	m := tgbotapi.NewInlineKeyboardMarkup(rows...)
	return &m
}

// withContext runs fn on its own goroutine so the caller's deadline can cut
// the wait short. The underlying call finishes on its own; the HTTP client's
// timeouts bound it.
func withContext[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	type result struct {
		val T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		val, err := fn()
		ch <- result{val, err}
	}()
	select {
	case <-ctx.Done():
		var zero T
		return zero, NewTransientError(ctx.Err())
	case r := <-ch:
		return r.val, r.err
	}
}

// wrapAPIError classifies Bot API errors: 403 and missing chats mean the
// recipient is unreachable, rate limits and gateway failures are transient.
func wrapAPIError(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == http.StatusForbidden:
			return NewUnreachableError(err)
		case apiErr.Code == http.StatusBadRequest && strings.Contains(apiErr.Message, "chat not found"):
			return NewUnreachableError(err)
		case apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= 500:
			return NewTransientError(err)
		case strings.Contains(apiErr.Message, "Bad Gateway") || strings.Contains(apiErr.Message, "Gateway Timeout"):
			return NewTransientError(err)
		}
	}
	return err
}
