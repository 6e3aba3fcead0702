package store

import "github.com/maiachat/chatsync/internal/models"

type Store interface {
	// Chat operations
	GetAllChats() ([]models.Chat, error)
	GetChatByID(chatID string) (*models.Chat, error)
	SaveChat(chat *models.Chat) error
	DeleteChat(chatID string) error

	// Message operations. The message log is insertion-ordered per chat;
	// SaveMessage is an upsert keyed by (chatID, id) that keeps the
	// original position on overwrite.
	GetChatMessages(chatID string) ([]models.Message, error)
	SaveMessage(msg *models.Message) error
	UpdateMessageStatus(chatID, id string, status models.MessageStatus) error
	ReplaceChatMessages(chatID string, msgs []models.Message) error
}
