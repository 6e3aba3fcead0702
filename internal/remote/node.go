package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/maiachat/chatsync/internal/models"
	"github.com/maiachat/chatsync/internal/reconcile"
)

// NodeClient talks to the decentralized message-node gateway. One client is
// constructed per session and passed down explicitly; it is not a singleton.
type NodeClient struct {
	baseURL string
	token   string
	client  *http.Client
}

func NewNodeClient(baseURL, token string) *NodeClient {
	return &NodeClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

// Conversation resolves a chat's group handle on the node. Chats created
// before their group exists remotely cannot be synced yet.
func (c *NodeClient) Conversation(ctx context.Context, chat models.Chat) (Conversation, error) {
	if chat.GroupID == "" {
		return nil, fmt.Errorf("chat %s has no group id", chat.ChatID)
	}
	if err := c.do(ctx, http.MethodGet, c.convPath(chat.GroupID, ""), nil, nil); err != nil {
		return nil, fmt.Errorf("resolve conversation %s: %w", chat.GroupID, err)
	}
	return &nodeConversation{client: c, groupID: chat.GroupID}, nil
}

func (c *NodeClient) convPath(groupID, suffix string) string {
	p := c.baseURL + "/conversations/" + url.PathEscape(groupID)
	if suffix != "" {
		p += "/" + suffix
	}
	return p
}

func (c *NodeClient) do(ctx context.Context, method, reqURL string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("node returned status %d", resp.StatusCode)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

type nodeConversation struct {
	client  *NodeClient
	groupID string
}

func (nc *nodeConversation) Mode() reconcile.Mode { return reconcile.ModeMerge }

func (nc *nodeConversation) Sync(ctx context.Context) error {
	return nc.client.do(ctx, http.MethodPost, nc.client.convPath(nc.groupID, "sync"), nil, nil)
}

// nodeMessage keeps content raw: the node may carry non-text payloads, which
// are serialized to their JSON text form.
type nodeMessage struct {
	ID            string          `json:"id"`
	Content       json.RawMessage `json:"content"`
	SenderAddress string          `json:"senderAddress"`
	SentAt        int64           `json:"sentAt"`
}

func (nc *nodeConversation) Messages(ctx context.Context) ([]models.RemoteMessage, error) {
	var payload struct {
		Messages []nodeMessage `json:"messages"`
	}
	if err := nc.client.do(ctx, http.MethodGet, nc.client.convPath(nc.groupID, "messages"), nil, &payload); err != nil {
		return nil, err
	}

	batch := make([]models.RemoteMessage, 0, len(payload.Messages))
	for _, m := range payload.Messages {
		batch = append(batch, models.RemoteMessage{
			ID:            m.ID,
			Content:       decodeContent(m.Content),
			SenderAddress: m.SenderAddress,
			SentAt:        m.SentAt,
		})
	}
	return batch, nil
}

func (nc *nodeConversation) SendOptimistic(ctx context.Context, content string) error {
	body := map[string]string{"content": content}
	return nc.client.do(ctx, http.MethodPost, nc.client.convPath(nc.groupID, "optimistic"), body, nil)
}

func (nc *nodeConversation) PublishMessages(ctx context.Context) error {
	return nc.client.do(ctx, http.MethodPost, nc.client.convPath(nc.groupID, "publish"), nil, nil)
}

func (nc *nodeConversation) Close() error { return nil }

// decodeContent turns a raw payload into text: JSON strings decode to their
// value, everything else keeps its serialized form.
func decodeContent(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
