package models

import "strings"

type MessageStatus string

const (
	StatusSending MessageStatus = "sending"
	StatusSent    MessageStatus = "sent"
	StatusFailed  MessageStatus = "failed"
)

// TempIDPrefix marks locally assigned message ids. A temp id exists until the
// send is confirmed and the remote-assigned id takes its place.
const TempIDPrefix = "temp-"

type Message struct {
	ID            string        `json:"id"`
	ChatID        string        `json:"chatId"`
	Content       string        `json:"content"`
	SenderAddress string        `json:"senderAddress"`
	Timestamp     int64         `json:"timestamp"` // milliseconds since epoch
	Status        MessageStatus `json:"status"`
}

func (m Message) IsTemp() bool {
	return strings.HasPrefix(m.ID, TempIDPrefix)
}

type Chat struct {
	ChatID          string   `json:"chatId"`
	ChatName        string   `json:"chatName"`
	MemberWallets   []string `json:"memberWallets"`
	CreatedAt       int64    `json:"createdAt"`
	GroupID         string   `json:"groupId,omitempty"`
	LastMessage     string   `json:"lastMessage,omitempty"`
	LastMessageTime int64    `json:"lastMessageTime,omitempty"`
	UnreadCount     int      `json:"unreadCount,omitempty"`
}

// SortKey orders the chat directory: last activity first, creation time for
// chats that never saw a message.
func (c Chat) SortKey() int64 {
	if c.LastMessageTime != 0 {
		return c.LastMessageTime
	}
	return c.CreatedAt
}

// RemoteMessage is a canonical message as the remote source reports it,
// before it is folded into the local log.
type RemoteMessage struct {
	ID            string `json:"id"`
	Content       string `json:"content"`
	SenderAddress string `json:"senderAddress"`
	SentAt        int64  `json:"sentAt"`
}
