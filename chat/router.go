package chat

import (
	"context"
	"log/slog"
)

// ErrorReply is the apology sent to the chat when a handler fails.
const ErrorReply = "❌ 发生了一个错误，请稍后重试。"

// HandlerFunc processes one update. Errors propagate to the router's
// error policy; handlers that already reported to the user return nil.
type HandlerFunc func(ctx context.Context, u Update) error

// Router dispatches updates to registered handlers, one at a time in
// arrival order. Registration happens before Run and is not safe to mix
// with it.
type Router struct {
	transport Transport
	logger    *slog.Logger
	commands  map[string]HandlerFunc
	callbacks map[string]HandlerFunc
	text      HandlerFunc
}

func NewRouter(transport Transport, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		transport: transport,
		logger:    logger,
		commands:  make(map[string]HandlerFunc),
		callbacks: make(map[string]HandlerFunc),
	}
}

// Command routes /name messages. The name carries no slash.
func (r *Router) Command(name string, h HandlerFunc) {
	r.commands[name] = h
}

// Callback routes inline-button clicks whose payload action matches.
func (r *Router) Callback(action string, h HandlerFunc) {
	r.callbacks[action] = h
}

// Text routes plain (non-command) messages, typically into a form in
// progress.
func (r *Router) Text(h HandlerFunc) {
	r.text = h
}

// Run consumes updates until ctx is cancelled or the channel closes.
func (r *Router) Run(ctx context.Context, updates <-chan Update) {
	for {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-updates:
			if !ok {
				return
			}
			r.Dispatch(ctx, u)
		}
	}
}

// Dispatch routes one update and applies the error policy: transient
// delivery trouble is only worth a warning, anything else is logged and
// answered with a best-effort apology.
func (r *Router) Dispatch(ctx context.Context, u Update) {
	h, action := r.resolve(u)
	if h == nil {
		return
	}

	err := h(ctx, u)
	if err == nil {
		return
	}
	if IsTransient(err) {
		r.logger.Warn("transient update failure",
			"action", action,
			"chat_id", u.ChatID(),
			"error", err)
		return
	}

	r.logger.Error("update handler failed",
		"action", action,
		"chat_id", u.ChatID(),
		"user_id", u.UserID(),
		"error", err)
	if chatID := u.ChatID(); chatID != 0 {
		if _, sendErr := r.transport.Send(ctx, Message{ChatID: chatID, Text: ErrorReply}); sendErr != nil {
			r.logger.Debug("error reply not delivered", "chat_id", chatID, "error", sendErr)
		}
	}
}

func (r *Router) resolve(u Update) (HandlerFunc, string) {
	switch {
	case u.Callback != nil:
		if h, ok := r.callbacks[u.Callback.Action]; ok {
			return h, u.Callback.Action
		}
		r.logger.Warn("unhandled callback action", "action", u.Callback.Action, "chat_id", u.Callback.ChatID)
		return nil, ""
	case u.Message != nil && u.Message.Command != "":
		if h, ok := r.commands[u.Message.Command]; ok {
			return h, "/" + u.Message.Command
		}
		return nil, ""
	case u.Message != nil:
		if r.text != nil {
			return r.text, "text"
		}
	}
	return nil, ""
}
