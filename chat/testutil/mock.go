// Package testutil provides test doubles for the chat package.
package testutil

import (
	"context"
	"sync"

	"github.com/ebops/deploybot/chat"
)

// Edit records one Edit call.
type Edit struct {
	ChatID    int64
	MessageID int
	Text      string
	Keyboard  chat.Keyboard
}

// Answer records one AnswerCallback call.
type Answer struct {
	CallbackID string
	Text       string
	Alert      bool
}

// MockTransport is a thread-safe chat.Transport for testing. It records
// every call and returns configured errors.
//
// Usage:
//
//	// Record sends, each assigned an increasing message id
//	mock := &MockTransport{}
//
//	// Fail the first send, let the rest through
//	mock := &MockTransport{
//	    SendErrs: []error{errors.New("boom")},
//	}
type MockTransport struct {
	mu       sync.Mutex
	sent     []chat.Message
	edits    []Edit
	answers  []Answer
	commands []chat.Command
	sendIdx  int
	nextID   int

	SendErrs    []error // errors returned by Send in sequence, nil entries succeed
	SendErr     error   // error for every Send once SendErrs is exhausted
	EditErr     error
	AnswerErr   error
	CommandsErr error
}

// Send implements chat.Transport. Every attempt is recorded, including
// failed ones. Successful sends return message ids 100, 101, ...
func (m *MockTransport) Send(_ context.Context, msg chat.Message) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sent = append(m.sent, msg)

	var err error
	if m.sendIdx < len(m.SendErrs) {
		err = m.SendErrs[m.sendIdx]
		m.sendIdx++
	} else {
		err = m.SendErr
	}
	if err != nil {
		return 0, err
	}

	m.nextID++
	return 99 + m.nextID, nil
}

// Edit implements chat.Transport.
func (m *MockTransport) Edit(_ context.Context, chatID int64, messageID int, text string, keyboard chat.Keyboard) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.edits = append(m.edits, Edit{ChatID: chatID, MessageID: messageID, Text: text, Keyboard: keyboard})
	return m.EditErr
}

// AnswerCallback implements chat.Transport.
func (m *MockTransport) AnswerCallback(_ context.Context, callbackID, text string, alert bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.answers = append(m.answers, Answer{CallbackID: callbackID, Text: text, Alert: alert})
	return m.AnswerErr
}

// SetCommands implements chat.Transport.
func (m *MockTransport) SetCommands(_ context.Context, commands []chat.Command) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commands = append(m.commands, commands...)
	return m.CommandsErr
}

// Sent returns a copy of every message passed to Send.
func (m *MockTransport) Sent() []chat.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]chat.Message(nil), m.sent...)
}

// Edits returns a copy of every recorded Edit call.
func (m *MockTransport) Edits() []Edit {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Edit(nil), m.edits...)
}

// Answers returns a copy of every recorded AnswerCallback call.
func (m *MockTransport) Answers() []Answer {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Answer(nil), m.answers...)
}

// Commands returns every command registered through SetCommands.
func (m *MockTransport) Commands() []chat.Command {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]chat.Command(nil), m.commands...)
}

// Reset clears recorded calls and the send error sequence position.
func (m *MockTransport) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = nil
	m.edits = nil
	m.answers = nil
	m.commands = nil
	m.sendIdx = 0
	m.nextID = 0
}
