// Package session drives one open chat: the send pipeline and the poll loop
// that feeds remote batches through reconciliation into the store.
package session

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/maiachat/chatsync/internal/identity"
	"github.com/maiachat/chatsync/internal/models"
	"github.com/maiachat/chatsync/internal/reconcile"
	"github.com/maiachat/chatsync/internal/remote"
	"github.com/maiachat/chatsync/internal/store"
)

var ErrEmptyMessage = errors.New("empty message")

// Session is one open chat. All store writes for the chat go through s.mu,
// so a poll cycle's read-merge-write can never clobber a concurrent send's
// optimistic append.
type Session struct {
	chatID   string
	store    store.Store
	conv     remote.Conversation
	self     identity.Identity
	interval time.Duration

	mu       sync.Mutex
	inFlight atomic.Bool

	cancel context.CancelFunc
	done   chan struct{}

	now func() int64 // milliseconds, swappable in tests
}

func New(chatID string, st store.Store, conv remote.Conversation, self identity.Identity, interval time.Duration) *Session {
	return &Session{
		chatID:   chatID,
		store:    st,
		conv:     conv,
		self:     self,
		interval: interval,
		now:      func() int64 { return time.Now().UnixMilli() },
	}
}

// Start launches the poll loop: one cycle immediately, then one per interval
// until Close.
func (s *Session) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.loop(ctx)
}

// Close stops the poll loop and releases the conversation. A cycle already
// in flight finishes first; its store writes after close are harmless.
func (s *Session) Close() {
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}
	s.conv.Close()
}

func (s *Session) loop(ctx context.Context) {
	defer close(s.done)

	s.Poll(ctx)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Poll(ctx)
		}
	}
}

// Poll runs one fetch-and-reconcile cycle. A tick that lands while a cycle
// is still in flight is skipped, never queued. Failures skip the cycle;
// the next one proceeds normally.
func (s *Session) Poll(ctx context.Context) {
	if !s.inFlight.CompareAndSwap(false, true) {
		log.WithField("chat", s.chatID).Debug("poll cycle still in flight, skipping tick")
		return
	}
	defer s.inFlight.Store(false)

	if err := s.pollOnce(ctx); err != nil && ctx.Err() == nil {
		log.WithError(err).WithField("chat", s.chatID).Warn("poll cycle failed")
	}
}

func (s *Session) pollOnce(ctx context.Context) error {
	if err := s.conv.Sync(ctx); err != nil {
		return err
	}
	batch, err := s.conv.Messages(ctx)
	if err != nil {
		return err
	}
	fresh := reconcile.FromRemote(s.chatID, batch, s.now())

	s.mu.Lock()
	defer s.mu.Unlock()
	local, err := s.store.GetChatMessages(s.chatID)
	if err != nil {
		return err
	}
	merged := reconcile.Reconcile(local, fresh, s.conv.Mode())
	if err := s.store.ReplaceChatMessages(s.chatID, merged); err != nil {
		return err
	}
	s.updatePreviewLocked(merged)
	return nil
}

// updatePreviewLocked refreshes the chat's directory preview from the log
// tail. Caller holds s.mu. A missing chat (deleted mid-cycle) is a no-op.
func (s *Session) updatePreviewLocked(msgs []models.Message) {
	if len(msgs) == 0 {
		return
	}
	chat, err := s.store.GetChatByID(s.chatID)
	if err != nil {
		return
	}
	last := msgs[len(msgs)-1]
	if chat.LastMessage == last.Content && chat.LastMessageTime == last.Timestamp {
		return
	}
	chat.LastMessage = last.Content
	chat.LastMessageTime = last.Timestamp
	if err := s.store.SaveChat(chat); err != nil {
		log.WithError(err).WithField("chat", s.chatID).Warn("failed to update chat preview")
	}
}

// Send runs the send pipeline for one outgoing message. The optimistic entry
// is in the store before any network round-trip starts. A remote failure is
// not an error here: it is surfaced on the returned message as status
// failed, terminal, never retried.
func (s *Session) Send(ctx context.Context, content string) (*models.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrEmptyMessage
	}

	nowMS := s.now()
	msg := &models.Message{
		ID:            models.TempIDPrefix + strconv.FormatInt(nowMS, 10),
		ChatID:        s.chatID,
		Content:       content,
		SenderAddress: s.self.Wallet,
		Timestamp:     nowMS,
		Status:        models.StatusSending,
	}

	s.mu.Lock()
	err := s.store.SaveMessage(msg)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	switch conv := s.conv.(type) {
	case remote.OptimisticSender:
		s.sendStaged(ctx, conv, msg)
	case remote.DirectSender:
		s.sendDirect(ctx, conv, msg)
	default:
		s.markFailed(msg, errors.New("conversation cannot send"))
	}

	s.mu.Lock()
	s.updatePreviewLocked([]models.Message{*msg})
	s.mu.Unlock()
	return msg, nil
}

// sendStaged is the decentralized path: stage, mark sent, publish, then
// re-fetch the tail to swap the temp entry for the remote-confirmed one.
func (s *Session) sendStaged(ctx context.Context, conv remote.OptimisticSender, msg *models.Message) {
	if err := conv.SendOptimistic(ctx, msg.Content); err != nil {
		s.markFailed(msg, err)
		return
	}

	msg.Status = models.StatusSent
	s.mu.Lock()
	err := s.store.UpdateMessageStatus(s.chatID, msg.ID, models.StatusSent)
	s.mu.Unlock()
	if err != nil {
		log.WithError(err).WithField("chat", s.chatID).Warn("failed to mark message sent")
	}

	if err := conv.PublishMessages(ctx); err != nil {
		s.markFailed(msg, err)
		return
	}

	s.confirm(ctx, msg)
}

// confirm learns the remote id of a just-published message from a fresh
// fetch. If the tail cannot be read the temp entry stays sent; the next poll
// cycle converges it.
func (s *Session) confirm(ctx context.Context, msg *models.Message) {
	if err := s.conv.Sync(ctx); err != nil {
		log.WithError(err).WithField("chat", s.chatID).Warn("post-publish sync failed")
		return
	}
	batch, err := s.conv.Messages(ctx)
	if err != nil || len(batch) == 0 {
		if err != nil {
			log.WithError(err).WithField("chat", s.chatID).Warn("post-publish fetch failed")
		}
		return
	}

	// The published message is the newest entry of ours; another participant
	// may have landed after it. Without a resolved wallet nothing self-matches
	// and the plain tail is used.
	last := batch[len(batch)-1]
	for i := len(batch) - 1; i >= 0; i-- {
		if s.self.IsMine(models.Message{SenderAddress: batch[i].SenderAddress}) {
			last = batch[i]
			break
		}
	}
	ts := last.SentAt
	if ts == 0 {
		ts = s.now()
	}
	confirmed := models.Message{
		ID:            last.ID,
		ChatID:        s.chatID,
		Content:       msg.Content,
		SenderAddress: s.self.Wallet,
		Timestamp:     ts,
		Status:        models.StatusSent,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	local, err := s.store.GetChatMessages(s.chatID)
	if err != nil {
		return
	}
	next := make([]models.Message, 0, len(local)+1)
	for _, m := range local {
		if m.ID == msg.ID || m.ID == confirmed.ID {
			continue
		}
		next = append(next, m)
	}
	next = append(next, confirmed)
	if err := s.store.ReplaceChatMessages(s.chatID, next); err != nil {
		log.WithError(err).WithField("chat", s.chatID).Warn("failed to swap in confirmed message")
		return
	}
	*msg = confirmed
}

// sendDirect is the fallback path: the adapter owns the whole send and the
// confirmed message comes back through the feed, reconciled by the poll loop.
func (s *Session) sendDirect(ctx context.Context, conv remote.DirectSender, msg *models.Message) {
	if err := conv.SendMessage(ctx, msg.Content); err != nil {
		s.markFailed(msg, err)
		return
	}
	msg.Status = models.StatusSent
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.store.UpdateMessageStatus(s.chatID, msg.ID, models.StatusSent); err != nil {
		log.WithError(err).WithField("chat", s.chatID).Warn("failed to mark message sent")
	}
}

func (s *Session) markFailed(msg *models.Message, cause error) {
	log.WithError(cause).WithFields(log.Fields{"chat": s.chatID, "id": msg.ID}).Error("send failed")
	msg.Status = models.StatusFailed
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.store.UpdateMessageStatus(s.chatID, msg.ID, models.StatusFailed); err != nil {
		log.WithError(err).WithField("chat", s.chatID).Warn("failed to mark message failed")
	}
}
