package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/maiachat/chatsync/internal/identity"
	"github.com/maiachat/chatsync/internal/models"
	"github.com/maiachat/chatsync/internal/reconcile"
	"github.com/maiachat/chatsync/internal/ws"
)

// RelayClient is the fallback adapter: a realtime relay keyed by user and
// chat. Its feed is the sole source of truth, so batches replace the local
// log instead of merging into it.
type RelayClient struct {
	baseURL string
	self    identity.Identity
}

func NewRelayClient(baseURL string, self identity.Identity) *RelayClient {
	return &RelayClient{baseURL: strings.TrimRight(baseURL, "/"), self: self}
}

func (c *RelayClient) Conversation(ctx context.Context, chat models.Chat) (Conversation, error) {
	feedURL, err := c.feedURL(chat.ChatID)
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	conv := &relayConversation{
		client: ws.NewClient(feedURL),
		cancel: cancel,
		seen:   make(map[string]struct{}),
	}
	go conv.client.Run(runCtx)
	go conv.consume(runCtx)
	return conv, nil
}

func (c *RelayClient) feedURL(chatID string) (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("relay url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/feed"
	q := u.Query()
	q.Set("user_id", c.self.UserID)
	q.Set("username", c.self.Username)
	q.Set("wallet", c.self.Wallet)
	q.Set("chat_id", chatID)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

type relayConversation struct {
	client *ws.Client
	cancel context.CancelFunc

	mu    sync.Mutex
	inbox []models.RemoteMessage
	seen  map[string]struct{}
}

// relayMessage is the relay's canonical inbound message event.
type relayMessage struct {
	ID        string `json:"id"`
	Content   string `json:"content"`
	Wallet    string `json:"wallet"`
	Timestamp int64  `json:"timestamp"`
}

func (rc *relayConversation) consume(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-rc.client.Events():
			if ev.Type != "message" {
				continue
			}
			var rm relayMessage
			if err := json.Unmarshal(ev.Data, &rm); err != nil {
				log.WithError(err).Warn("bad relay message event")
				continue
			}
			rc.add(rm)
		}
	}
}

// add appends to the inbox, ignoring redeliveries. The relay may deliver a
// message more than once; convergence, not delivery counting, is what the
// engine guarantees.
func (rc *relayConversation) add(rm relayMessage) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if _, ok := rc.seen[rm.ID]; ok {
		return
	}
	rc.seen[rm.ID] = struct{}{}
	rc.inbox = append(rc.inbox, models.RemoteMessage{
		ID:            rm.ID,
		Content:       rm.Content,
		SenderAddress: rm.Wallet,
		SentAt:        rm.Timestamp,
	})
}

func (rc *relayConversation) Mode() reconcile.Mode { return reconcile.ModeReplace }

// Sync is a no-op: the feed is live, there is nothing to refresh.
func (rc *relayConversation) Sync(ctx context.Context) error { return nil }

func (rc *relayConversation) Messages(ctx context.Context) ([]models.RemoteMessage, error) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return append([]models.RemoteMessage(nil), rc.inbox...), nil
}

// SendMessage delegates the whole send to the relay. The confirmed message
// comes back through the feed and is reconciled by the normal poll cycle.
func (rc *relayConversation) SendMessage(ctx context.Context, content string) error {
	return rc.client.Send(ws.Event{
		Type: "send_message",
		Data: mustJSON(map[string]string{"content": content}),
	})
}

func (rc *relayConversation) Close() error {
	rc.cancel()
	return nil
}

func mustJSON(v interface{}) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}
