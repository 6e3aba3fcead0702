package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/maiachat/chatsync/internal/identity"
	"github.com/maiachat/chatsync/internal/models"
	"github.com/maiachat/chatsync/internal/remote"
	"github.com/maiachat/chatsync/internal/store"
)

var ErrChatNotOpen = errors.New("chat is not open")

// Manager owns the open chat sessions, at most one per chat.
type Manager struct {
	store    store.Store
	dialer   remote.Dialer
	self     identity.Identity
	interval time.Duration

	mu   sync.Mutex
	open map[string]*Session
}

func NewManager(st store.Store, dialer remote.Dialer, self identity.Identity, interval time.Duration) *Manager {
	return &Manager{
		store:    st,
		dialer:   dialer,
		self:     self,
		interval: interval,
		open:     make(map[string]*Session),
	}
}

// Open starts a session for the chat and begins polling. Opening an already
// open chat is a no-op. Opening marks the chat read.
func (m *Manager) Open(ctx context.Context, chatID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.open[chatID]; ok {
		return nil
	}

	chat, err := m.store.GetChatByID(chatID)
	if err != nil {
		return fmt.Errorf("open chat %s: %w", chatID, err)
	}
	conv, err := m.dialer.Conversation(ctx, *chat)
	if err != nil {
		return fmt.Errorf("open chat %s: %w", chatID, err)
	}

	sess := New(chatID, m.store, conv, m.self, m.interval)
	sess.Start()
	m.open[chatID] = sess

	if chat.UnreadCount != 0 {
		chat.UnreadCount = 0
		if err := m.store.SaveChat(chat); err != nil {
			log.WithError(err).WithField("chat", chatID).Warn("failed to clear unread count")
		}
	}
	return nil
}

// CloseChat stops the chat's session if it is open.
func (m *Manager) CloseChat(chatID string) {
	m.mu.Lock()
	sess := m.open[chatID]
	delete(m.open, chatID)
	m.mu.Unlock()
	if sess != nil {
		sess.Close()
	}
}

func (m *Manager) CloseAll() {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.open))
	for id, sess := range m.open {
		sessions = append(sessions, sess)
		delete(m.open, id)
	}
	m.mu.Unlock()
	for _, sess := range sessions {
		sess.Close()
	}
}

// Send routes a send through the chat's open session.
func (m *Manager) Send(ctx context.Context, chatID, content string) (*models.Message, error) {
	m.mu.Lock()
	sess := m.open[chatID]
	m.mu.Unlock()
	if sess == nil {
		return nil, ErrChatNotOpen
	}
	return sess.Send(ctx, content)
}

// IsOpen reports whether a session exists for the chat.
func (m *Manager) IsOpen(chatID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.open[chatID]
	return ok
}
