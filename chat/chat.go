// Package chat wraps the Telegram Bot API behind a narrow transport used by
// the form, approval and notification flows. Outbound text is HTML; callers
// escape user-controlled values with Escape before interpolating them.
package chat

import (
	"context"
	"strings"
)

// Callback actions carried in the "<action>:<argument>" payload of inline
// buttons. Approve/reject target a workflow id; the rest drive the form.
const (
	ActionApprove         = "approve"
	ActionReject          = "reject"
	ActionSelectProject   = "select_project"
	ActionSelectEnv       = "select_env"
	ActionSelectService   = "select_service"
	ActionConfirmServices = "confirm_service_selection"
	ActionConfirmForm     = "confirm_form"
	ActionCancelForm      = "cancel_form"
	ActionBranch          = "branch"
)

// Transport is the outbound chat surface. Implementations must be safe for
// concurrent use; every send honours the caller's context deadline.
type Transport interface {
	// Send posts msg and returns the new message id.
	Send(ctx context.Context, msg Message) (int, error)
	// Edit rewrites a message in place. A nil keyboard removes any inline
	// buttons the message carried.
	Edit(ctx context.Context, chatID int64, messageID int, text string, keyboard Keyboard) error
	// AnswerCallback acknowledges an inline-button click with a toast, or a
	// modal alert when alert is true.
	AnswerCallback(ctx context.Context, callbackID, text string, alert bool) error
	// SetCommands registers the bot command list shown on "/".
	SetCommands(ctx context.Context, commands []Command) error
}

// Message is one outbound chat message.
type Message struct {
	ChatID int64
	Text   string
	// ReplyTo threads the message under an existing message id; 0 sends
	// unthreaded. A missing reply target degrades to a plain send.
	ReplyTo  int
	Keyboard Keyboard
}

// Command is one entry of the bot command list.
type Command struct {
	Name        string
	Description string
}

// Button is one inline keyboard button; Data is the raw callback payload.
type Button struct {
	Text string
	Data string
}

// Keyboard is an inline keyboard, one slice per row. nil means no keyboard.
type Keyboard [][]Button

// Btn builds a button with an "<action>:<argument>" payload.
func Btn(text, action, arg string) Button {
	if arg == "" {
		return Button{Text: text, Data: action}
	}
	return Button{Text: text, Data: action + ":" + arg}
}

// Row groups buttons into one keyboard row.
func Row(buttons ...Button) []Button {
	return buttons
}

// Update is one inbound chat event. Exactly one field is non-nil.
type Update struct {
	Message  *IncomingMessage
	Callback *Callback
}

// ChatID returns the chat the update came from, 0 if unknown.
func (u Update) ChatID() int64 {
	switch {
	case u.Message != nil:
		return u.Message.ChatID
	case u.Callback != nil:
		return u.Callback.ChatID
	}
	return 0
}

// UserID returns the sender, 0 if unknown.
func (u Update) UserID() int64 {
	switch {
	case u.Message != nil:
		return u.Message.UserID
	case u.Callback != nil:
		return u.Callback.UserID
	}
	return 0
}

// IncomingMessage is an inbound text message or command.
type IncomingMessage struct {
	ChatID    int64
	MessageID int
	UserID    int64
	Username  string
	Text      string
	// Command is the command name without the slash or the @bot suffix,
	// empty for plain text.
	Command string
}

// Callback is an inline-button click.
type Callback struct {
	ID        string
	ChatID    int64
	MessageID int
	UserID    int64
	Username  string
	// Action and Arg are the payload split on the first colon; Arg is empty
	// for bare actions like confirm_form.
	Action string
	Arg    string
}

// SplitCallbackData splits an inline-button payload into action and argument.
func SplitCallbackData(data string) (action, arg string) {
	if i := strings.IndexByte(data, ':'); i >= 0 {
		return data[:i], data[i+1:]
	}
	return data, ""
}

// htmlEscaper covers the three characters the chat HTML parser reserves.
var htmlEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

// Escape makes a user-controlled value safe to interpolate into HTML text.
func Escape(s string) string {
	return htmlEscaper.Replace(s)
}
