package handlers

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/maiachat/chatsync/internal/directory"
	"github.com/maiachat/chatsync/internal/models"
	"github.com/maiachat/chatsync/internal/session"
	"github.com/maiachat/chatsync/internal/store"
)

// ChatHandler is the local HTTP surface over the synced state. The store is
// the single source of truth; a front end reads through here instead of
// holding its own copy.
type ChatHandler struct {
	Store     store.Store
	Directory *directory.Directory
	Sessions  *session.Manager
}

type CreateChatRequest struct {
	ChatName      string   `json:"chatName"`
	MemberWallets []string `json:"memberWallets"`
	GroupID       string   `json:"groupId"`
}

type SendMessageRequest struct {
	Content string `json:"content"`
}

func (h *ChatHandler) CreateChat(w http.ResponseWriter, r *http.Request) {
	var req CreateChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.ChatName == "" {
		http.Error(w, "chatName is required", http.StatusBadRequest)
		return
	}

	chat := models.Chat{
		ChatID:        uuid.NewString(),
		ChatName:      req.ChatName,
		MemberWallets: req.MemberWallets,
		GroupID:       req.GroupID,
		CreatedAt:     time.Now().UnixMilli(),
	}
	if err := h.Store.SaveChat(&chat); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(chat)
}

func (h *ChatHandler) GetChats(w http.ResponseWriter, r *http.Request) {
	chats := h.Directory.Refresh(r.Context())
	if chats == nil {
		chats = []models.Chat{}
	}
	json.NewEncoder(w).Encode(chats)
}

func (h *ChatHandler) GetChatMessages(w http.ResponseWriter, r *http.Request) {
	chatID := mux.Vars(r)["id"]

	messages, err := h.Store.GetChatMessages(chatID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if messages == nil {
		messages = []models.Message{}
	}
	json.NewEncoder(w).Encode(messages)
}

func (h *ChatHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	chatID := mux.Vars(r)["id"]

	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	msg, err := h.Sessions.Send(r.Context(), chatID, req.Content)
	switch {
	case errors.Is(err, session.ErrChatNotOpen):
		http.Error(w, err.Error(), http.StatusConflict)
		return
	case errors.Is(err, session.ErrEmptyMessage):
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	case err != nil:
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	// A failed submit is reported in the message status, not as an HTTP
	// error; the chat stays usable either way.
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(msg)
}

func (h *ChatHandler) OpenChat(w http.ResponseWriter, r *http.Request) {
	chatID := mux.Vars(r)["id"]

	if err := h.Sessions.Open(r.Context(), chatID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			http.Error(w, "chat not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ChatHandler) CloseChat(w http.ResponseWriter, r *http.Request) {
	h.Sessions.CloseChat(mux.Vars(r)["id"])
	w.WriteHeader(http.StatusNoContent)
}

// DeleteChat removes the chat and its messages from the local cache only.
// No remote-side delete is issued: deletion is a local hide, the remote
// conversation keeps existing for other participants.
func (h *ChatHandler) DeleteChat(w http.ResponseWriter, r *http.Request) {
	chatID := mux.Vars(r)["id"]

	h.Sessions.CloseChat(chatID)
	if err := h.Store.DeleteChat(chatID); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
