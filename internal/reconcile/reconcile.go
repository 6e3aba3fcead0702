// Package reconcile merges a freshly fetched remote batch into the local
// message log. The remote batch is authoritative: it is appended last, in
// remote order, and the result is never re-sorted by timestamp.
package reconcile

import "github.com/maiachat/chatsync/internal/models"

type Mode int

const (
	// ModeMerge keeps local entries the batch does not supersede. Used
	// when the remote source only returns its own canonical history and
	// optimistic sends must stay visible until confirmed.
	ModeMerge Mode = iota
	// ModeReplace treats the batch as the sole source of truth.
	ModeReplace
)

// Reconcile returns the new log for a chat given the current local log and a
// remote batch. It never mutates its inputs.
//
// In ModeMerge, a local entry survives when its id is not in the batch and it
// is not a pending temp entry. Temp entries exist exactly until their send is
// confirmed and superseded, so they are dropped on merge. Entries already
// marked failed are the exception: they stay visible until the chat is deleted.
func Reconcile(local, batch []models.Message, mode Mode) []models.Message {
	if mode == ModeReplace {
		return append([]models.Message(nil), batch...)
	}

	inBatch := make(map[string]struct{}, len(batch))
	for _, m := range batch {
		inBatch[m.ID] = struct{}{}
	}

	merged := make([]models.Message, 0, len(local)+len(batch))
	for _, m := range local {
		if _, ok := inBatch[m.ID]; ok {
			continue
		}
		if m.IsTemp() && m.Status != models.StatusFailed {
			continue
		}
		merged = append(merged, m)
	}
	return append(merged, batch...)
}

// FromRemote converts a remote batch to log entries for chatID. Confirmed
// remote messages always carry status sent. A missing sentAt falls back to
// now (milliseconds).
func FromRemote(chatID string, batch []models.RemoteMessage, now int64) []models.Message {
	msgs := make([]models.Message, 0, len(batch))
	for _, rm := range batch {
		ts := rm.SentAt
		if ts == 0 {
			ts = now
		}
		msgs = append(msgs, models.Message{
			ID:            rm.ID,
			ChatID:        chatID,
			Content:       rm.Content,
			SenderAddress: rm.SenderAddress,
			Timestamp:     ts,
			Status:        models.StatusSent,
		})
	}
	return msgs
}
