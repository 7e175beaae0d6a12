package messenger

import (
	"context"
	"errors"
	"sync"
)

// ErrBlocked mimics Telegram refusing delivery to a chat.
var ErrBlocked = errors.New("forbidden: bot was blocked by the user")

// SentMessage records one message accepted by MockMessenger.
type SentMessage struct {
	ChatID    int64
	MessageID int
	FileID    string
	Text      string
	Buttons   []Button
}

// DeletedMessage records one retraction.
type DeletedMessage struct {
	ChatID    int64
	MessageID int
}

// MockMessenger is an in-memory Messenger for tests. Sends to chats listed in
// FailChats fail with ErrBlocked; deletes in FailDeletes fail likewise.
type MockMessenger struct {
	mu          sync.Mutex
	nextID      int
	sent        []SentMessage
	deleted     []DeletedMessage
	FailChats   map[int64]bool
	FailDeletes map[int64]bool
}

func NewMockMessenger() *MockMessenger {
	return &MockMessenger{
		nextID:      100,
		FailChats:   make(map[int64]bool),
		FailDeletes: make(map[int64]bool),
	}
}

func (m *MockMessenger) SendPhoto(_ context.Context, chatID int64, fileID, caption string, buttons []Button) (int, error) {
	return m.record(SentMessage{ChatID: chatID, FileID: fileID, Text: caption, Buttons: buttons})
}

func (m *MockMessenger) SendText(_ context.Context, chatID int64, text string) (int, error) {
	return m.record(SentMessage{ChatID: chatID, Text: text})
}

func (m *MockMessenger) Delete(_ context.Context, chatID int64, messageID int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailDeletes[chatID] {
		return ErrBlocked
	}
	m.deleted = append(m.deleted, DeletedMessage{ChatID: chatID, MessageID: messageID})
	return nil
}

func (m *MockMessenger) record(msg SentMessage) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailChats[msg.ChatID] {
		return 0, ErrBlocked
	}
	m.nextID++
	msg.MessageID = m.nextID
	m.sent = append(m.sent, msg)
	return msg.MessageID, nil
}

// Sent returns a copy of all delivered messages in send order.
func (m *MockMessenger) Sent() []SentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SentMessage(nil), m.sent...)
}

// Deleted returns a copy of all retracted messages.
func (m *MockMessenger) Deleted() []DeletedMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]DeletedMessage(nil), m.deleted...)
}

var _ Messenger = (*MockMessenger)(nil)
