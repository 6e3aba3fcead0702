// Package directory maintains the list of known chats: the local cache, a
// one-shot remote fetch, and the live push feed for chats created by other
// participants.
package directory

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/maiachat/chatsync/internal/models"
	"github.com/maiachat/chatsync/internal/store"
	"github.com/maiachat/chatsync/internal/ws"
)

// EventNewChatCreated is pushed when another participant starts a chat.
const EventNewChatCreated = "new_chat_created"

type Directory struct {
	store   store.Store
	baseURL string
	client  *http.Client

	mu    sync.Mutex
	chats []models.Chat
}

func New(st store.Store, baseURL string) *Directory {
	return &Directory{
		store:   st,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// Refresh rebuilds the directory: cache first, then the backend fetch. Chats
// present remotely but absent locally are written into the cache. A failed
// fetch is not fatal; the cache alone is served. The result is sorted by
// last activity, newest first.
func (d *Directory) Refresh(ctx context.Context) []models.Chat {
	local, err := d.store.GetAllChats()
	if err != nil {
		log.WithError(err).Error("failed to read chat cache")
		local = nil
	}

	remote, err := d.fetchAll(ctx)
	if err != nil {
		log.WithError(err).Warn("could not fetch chats from backend")
	} else {
		known := make(map[string]struct{}, len(local))
		for _, c := range local {
			known[c.ChatID] = struct{}{}
		}
		for _, chat := range remote {
			if chat.ChatID == "" {
				continue
			}
			if _, ok := known[chat.ChatID]; ok {
				continue
			}
			if err := d.store.SaveChat(&chat); err != nil {
				log.WithError(err).WithField("chat", chat.ChatID).Warn("failed to cache backend chat")
				continue
			}
			local = append(local, chat)
		}
	}

	sortChats(local)

	d.mu.Lock()
	d.chats = local
	d.mu.Unlock()
	return d.Chats()
}

func (d *Directory) fetchAll(ctx context.Context) ([]models.Chat, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.baseURL+"/api/get-all-chats", nil)
	if err != nil {
		return nil, err
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("directory fetch: unexpected status %d", resp.StatusCode)
	}

	var payload struct {
		Chats map[string]models.Chat `json:"chats"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, err
	}

	chats := make([]models.Chat, 0, len(payload.Chats))
	for _, chat := range payload.Chats {
		chats = append(chats, chat)
	}
	return chats, nil
}

// Chats returns the current directory snapshot.
func (d *Directory) Chats() []models.Chat {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]models.Chat(nil), d.chats...)
}

// Run consumes push events until ctx is cancelled.
func (d *Directory) Run(ctx context.Context, events <-chan ws.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-events:
			if ev.Type != EventNewChatCreated {
				continue
			}
			d.handleNewChat(ev.Data)
		}
	}
}

// handleNewChat caches a pushed chat and merges it into the in-memory list.
// An event for an already-known chat is a no-op.
func (d *Directory) handleNewChat(data json.RawMessage) {
	var chat models.Chat
	if err := json.Unmarshal(data, &chat); err != nil || chat.ChatID == "" {
		log.WithError(err).Warn("bad new_chat_created event")
		return
	}

	if _, err := d.store.GetChatByID(chat.ChatID); err == nil {
		return
	} else if !errors.Is(err, sql.ErrNoRows) {
		log.WithError(err).WithField("chat", chat.ChatID).Warn("failed to check chat cache")
		return
	}

	// A chat someone else started is news to this user.
	if chat.UnreadCount == 0 {
		chat.UnreadCount = 1
	}
	if err := d.store.SaveChat(&chat); err != nil {
		log.WithError(err).WithField("chat", chat.ChatID).Warn("failed to cache pushed chat")
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	for _, c := range d.chats {
		if c.ChatID == chat.ChatID {
			return
		}
	}
	d.chats = append([]models.Chat{chat}, d.chats...)
	log.WithField("chat", chat.ChatID).Info("new chat from push feed")
}

func sortChats(chats []models.Chat) {
	sort.SliceStable(chats, func(i, j int) bool {
		return chats[i].SortKey() > chats[j].SortKey()
	})
}
