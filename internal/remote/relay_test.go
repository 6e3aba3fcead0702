package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/maiachat/chatsync/internal/identity"
	"github.com/maiachat/chatsync/internal/models"
	"github.com/maiachat/chatsync/internal/reconcile"
)

var relayUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func TestRelayFeedURL(t *testing.T) {
	client := NewRelayClient("https://relay.example/", identity.Identity{
		UserID: "u1", Username: "alice", Wallet: "0xabc",
	})

	u, err := client.feedURL("c1")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(u, "wss://relay.example/feed?") {
		t.Errorf("Unexpected feed url %s", u)
	}
	for _, part := range []string{"user_id=u1", "username=alice", "wallet=0xabc", "chat_id=c1"} {
		if !strings.Contains(u, part) {
			t.Errorf("Feed url missing %s: %s", part, u)
		}
	}
}

func TestRelayConversationFeed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/feed" {
			http.NotFound(w, r)
			return
		}
		conn, err := relayUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		send := func(id, content string, ts int64) {
			data, _ := json.Marshal(relayMessage{ID: id, Content: content, Wallet: "0xaaa", Timestamp: ts})
			conn.WriteJSON(map[string]json.RawMessage{
				"type": json.RawMessage(`"message"`),
				"data": data,
			})
		}
		send("r1", "first", 100)
		send("r1", "first", 100) // redelivery, must be deduped
		send("r2", "second", 200)
	}))
	defer srv.Close()

	client := NewRelayClient(srv.URL, identity.Identity{UserID: "u1", Username: "alice", Wallet: "0xaaa"})
	conv, err := client.Conversation(context.Background(), models.Chat{ChatID: "c1"})
	if err != nil {
		t.Fatal(err)
	}
	defer conv.Close()

	if conv.Mode() != reconcile.ModeReplace {
		t.Error("Expected relay adapter to use replace reconciliation")
	}

	var batch []models.RemoteMessage
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		batch, _ = conv.Messages(context.Background())
		if len(batch) >= 2 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	if len(batch) != 2 {
		t.Fatalf("Expected 2 messages after dedup, got %d", len(batch))
	}
	if batch[0].ID != "r1" || batch[1].ID != "r2" {
		t.Errorf("Expected feed order [r1 r2], got [%s %s]", batch[0].ID, batch[1].ID)
	}
	if batch[0].SenderAddress != "0xaaa" {
		t.Errorf("Expected wallet to map to sender address, got %s", batch[0].SenderAddress)
	}
}

func TestRelaySendMessage(t *testing.T) {
	received := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := relayUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		var frame struct {
			Type string `json:"type"`
			Data struct {
				Content string `json:"content"`
			} `json:"data"`
		}
		if err := conn.ReadJSON(&frame); err == nil && frame.Type == "send_message" {
			received <- frame.Data.Content
		}
	}))
	defer srv.Close()

	client := NewRelayClient(srv.URL, identity.Identity{UserID: "u1"})
	conv, err := client.Conversation(context.Background(), models.Chat{ChatID: "c1"})
	if err != nil {
		t.Fatal(err)
	}
	defer conv.Close()

	sender, ok := conv.(DirectSender)
	if !ok {
		t.Fatal("Expected relay conversation to own the whole send")
	}

	// The websocket comes up asynchronously; retry until connected.
	deadline := time.Now().Add(2 * time.Second)
	for {
		if err := sender.SendMessage(context.Background(), "hello"); err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("Relay conversation never connected")
		}
		time.Sleep(10 * time.Millisecond)
	}

	select {
	case content := <-received:
		if content != "hello" {
			t.Errorf("Expected content 'hello', got '%s'", content)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for relay to receive send")
	}
}
