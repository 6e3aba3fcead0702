package sqlstore

import (
	"testing"

	"github.com/maiachat/chatsync/internal/models"
)

func TestSaveMessage(t *testing.T) {
	SetupTestDB(t)
	defer TeardownTestDB()

	msg := &models.Message{
		ID:            "m1",
		ChatID:        "c1",
		Content:       "Hello",
		SenderAddress: "0xaaa",
		Timestamp:     1000,
		Status:        models.StatusSent,
	}
	if err := testStore.SaveMessage(msg); err != nil {
		t.Fatalf("Failed to save message: %v", err)
	}

	messages, err := testStore.GetChatMessages("c1")
	if err != nil {
		t.Fatalf("Failed to get messages: %v", err)
	}
	if len(messages) != 1 {
		t.Fatalf("Expected 1 message, got %d", len(messages))
	}
	if messages[0].Content != "Hello" {
		t.Errorf("Expected content 'Hello', got '%s'", messages[0].Content)
	}
}

func TestSaveMessageUpsertKeepsPosition(t *testing.T) {
	SetupTestDB(t)
	defer TeardownTestDB()

	testStore.SaveMessage(&models.Message{ID: "m1", ChatID: "c1", Content: "a", Timestamp: 1, Status: models.StatusSent})
	testStore.SaveMessage(&models.Message{ID: "m2", ChatID: "c1", Content: "b", Timestamp: 2, Status: models.StatusSent})

	// Overwrite the first message; it must keep its place in the log.
	testStore.SaveMessage(&models.Message{ID: "m1", ChatID: "c1", Content: "a2", Timestamp: 3, Status: models.StatusSent})

	messages, _ := testStore.GetChatMessages("c1")
	if len(messages) != 2 {
		t.Fatalf("Expected 2 messages after upsert, got %d", len(messages))
	}
	if messages[0].ID != "m1" || messages[0].Content != "a2" {
		t.Errorf("Expected m1 first with updated content, got %v", messages[0])
	}
	if messages[1].ID != "m2" {
		t.Errorf("Expected m2 second, got %v", messages[1])
	}
}

func TestUpdateMessageStatus(t *testing.T) {
	SetupTestDB(t)
	defer TeardownTestDB()

	testStore.SaveMessage(&models.Message{ID: "temp-1", ChatID: "c1", Content: "x", Timestamp: 1, Status: models.StatusSending})

	if err := testStore.UpdateMessageStatus("c1", "temp-1", models.StatusFailed); err != nil {
		t.Fatalf("Failed to update status: %v", err)
	}

	messages, _ := testStore.GetChatMessages("c1")
	if messages[0].Status != models.StatusFailed {
		t.Errorf("Expected status failed, got %s", messages[0].Status)
	}
}

func TestReplaceChatMessages(t *testing.T) {
	SetupTestDB(t)
	defer TeardownTestDB()

	testStore.SaveMessage(&models.Message{ID: "old1", ChatID: "c1", Content: "old", Timestamp: 1, Status: models.StatusSent})
	testStore.SaveMessage(&models.Message{ID: "keep", ChatID: "c2", Content: "other chat", Timestamp: 1, Status: models.StatusSent})

	replacement := []models.Message{
		{ID: "m2", ChatID: "c1", Content: "b", Timestamp: 2, Status: models.StatusSent},
		{ID: "m1", ChatID: "c1", Content: "a", Timestamp: 1, Status: models.StatusSent},
	}
	if err := testStore.ReplaceChatMessages("c1", replacement); err != nil {
		t.Fatalf("Failed to replace messages: %v", err)
	}

	messages, _ := testStore.GetChatMessages("c1")
	if len(messages) != 2 {
		t.Fatalf("Expected 2 messages, got %d", len(messages))
	}
	// Replacement order is the new insertion order, no timestamp re-sort.
	if messages[0].ID != "m2" || messages[1].ID != "m1" {
		t.Errorf("Expected order [m2 m1], got [%s %s]", messages[0].ID, messages[1].ID)
	}

	other, _ := testStore.GetChatMessages("c2")
	if len(other) != 1 {
		t.Error("Replace must not touch other chats")
	}
}
