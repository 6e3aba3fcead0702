package sqlstore

import (
	"database/sql"
	"encoding/json"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
	"github.com/maiachat/chatsync/internal/models"
)

type SQLStore struct {
	db *sql.DB
}

func New(dataSourceName string) (*SQLStore, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, err
	}
	if err = db.Ping(); err != nil {
		return nil, err
	}

	s := &SQLStore{db: db}
	if err := s.createTables(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) createTables() error {
	// Simplified for brevity, ideally use migrations
	query := `
	CREATE TABLE IF NOT EXISTS chats (
		chat_id TEXT PRIMARY KEY,
		chat_name TEXT NOT NULL,
		member_wallets TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		group_id TEXT NOT NULL DEFAULT '',
		last_message TEXT NOT NULL DEFAULT '',
		last_message_time INTEGER NOT NULL DEFAULT 0,
		unread_count INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS messages (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL,
		chat_id TEXT NOT NULL,
		content TEXT NOT NULL,
		sender_address TEXT NOT NULL DEFAULT '',
		timestamp INTEGER NOT NULL,
		status TEXT NOT NULL,
		UNIQUE (chat_id, id)
	);
	`

	_, err := s.db.Exec(query)
	return err
}

func (s *SQLStore) GetAllChats() ([]models.Chat, error) {
	rows, err := s.db.Query(`
		SELECT chat_id, chat_name, member_wallets, created_at, group_id,
		       last_message, last_message_time, unread_count
		FROM chats
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chats []models.Chat
	for rows.Next() {
		chat, err := scanChat(rows)
		if err != nil {
			return nil, err
		}
		chats = append(chats, *chat)
	}
	return chats, rows.Err()
}

func (s *SQLStore) GetChatByID(chatID string) (*models.Chat, error) {
	row := s.db.QueryRow(`
		SELECT chat_id, chat_name, member_wallets, created_at, group_id,
		       last_message, last_message_time, unread_count
		FROM chats WHERE chat_id = ?
	`, chatID)
	return scanChat(row)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanChat(row rowScanner) (*models.Chat, error) {
	var chat models.Chat
	var members string
	err := row.Scan(&chat.ChatID, &chat.ChatName, &members, &chat.CreatedAt,
		&chat.GroupID, &chat.LastMessage, &chat.LastMessageTime, &chat.UnreadCount)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(members), &chat.MemberWallets); err != nil {
		return nil, err
	}
	return &chat, nil
}

func (s *SQLStore) SaveChat(chat *models.Chat) error {
	members := chat.MemberWallets
	if members == nil {
		members = []string{}
	}
	membersJSON, err := json.Marshal(members)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`
		INSERT INTO chats (chat_id, chat_name, member_wallets, created_at, group_id,
		                   last_message, last_message_time, unread_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(chat_id) DO UPDATE SET
			chat_name = excluded.chat_name,
			member_wallets = excluded.member_wallets,
			created_at = excluded.created_at,
			group_id = excluded.group_id,
			last_message = excluded.last_message,
			last_message_time = excluded.last_message_time,
			unread_count = excluded.unread_count
	`, chat.ChatID, chat.ChatName, string(membersJSON), chat.CreatedAt, chat.GroupID,
		chat.LastMessage, chat.LastMessageTime, chat.UnreadCount)
	return err
}

func (s *SQLStore) DeleteChat(chatID string) error {
	// Delete messages first so a failure never leaves orphaned rows behind
	// a missing chat.
	if _, err := s.db.Exec("DELETE FROM messages WHERE chat_id = ?", chatID); err != nil {
		return err
	}
	_, err := s.db.Exec("DELETE FROM chats WHERE chat_id = ?", chatID)
	return err
}

func (s *SQLStore) GetChatMessages(chatID string) ([]models.Message, error) {
	rows, err := s.db.Query(`
		SELECT id, chat_id, content, sender_address, timestamp, status
		FROM messages
		WHERE chat_id = ?
		ORDER BY seq ASC
	`, chatID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []models.Message
	for rows.Next() {
		var m models.Message
		if err := rows.Scan(&m.ID, &m.ChatID, &m.Content, &m.SenderAddress, &m.Timestamp, &m.Status); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// SaveMessage upserts by (chat_id, id). An overwrite keeps the row's original
// seq, so the log position of a rewritten message does not move.
func (s *SQLStore) SaveMessage(msg *models.Message) error {
	_, err := s.db.Exec(`
		INSERT INTO messages (id, chat_id, content, sender_address, timestamp, status)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(chat_id, id) DO UPDATE SET
			content = excluded.content,
			sender_address = excluded.sender_address,
			timestamp = excluded.timestamp,
			status = excluded.status
	`, msg.ID, msg.ChatID, msg.Content, msg.SenderAddress, msg.Timestamp, msg.Status)
	return err
}

func (s *SQLStore) UpdateMessageStatus(chatID, id string, status models.MessageStatus) error {
	_, err := s.db.Exec("UPDATE messages SET status = ? WHERE chat_id = ? AND id = ?",
		status, chatID, id)
	return err
}

// ReplaceChatMessages swaps the whole log for a chat in one transaction,
// preserving the order of msgs as the new insertion order.
func (s *SQLStore) ReplaceChatMessages(chatID string, msgs []models.Message) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM messages WHERE chat_id = ?", chatID); err != nil {
		return err
	}
	stmt, err := tx.Prepare(`
		INSERT INTO messages (id, chat_id, content, sender_address, timestamp, status)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, m := range msgs {
		if _, err := stmt.Exec(m.ID, chatID, m.Content, m.SenderAddress, m.Timestamp, m.Status); err != nil {
			return err
		}
	}
	return tx.Commit()
}
