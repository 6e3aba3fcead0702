// Package remote pulls canonical message batches for a chat from a remote
// conversation. Two adapters exist: the decentralized message node and the
// realtime relay fallback. Only one is active per chat session; the choice
// is a deployment decision.
package remote

import (
	"context"

	"github.com/maiachat/chatsync/internal/models"
	"github.com/maiachat/chatsync/internal/reconcile"
)

// Conversation is an open handle to one remote message thread.
type Conversation interface {
	// Mode is the reconciliation strategy this adapter's batches require.
	Mode() reconcile.Mode
	// Sync asks the remote side to refresh before Messages is read.
	Sync(ctx context.Context) error
	// Messages returns the current canonical batch, in remote order.
	Messages(ctx context.Context) ([]models.RemoteMessage, error)
	Close() error
}

// OptimisticSender is implemented by conversations with a staged send:
// stage the message, then publish, then re-fetch to learn the remote id.
type OptimisticSender interface {
	SendOptimistic(ctx context.Context, content string) error
	PublishMessages(ctx context.Context) error
}

// DirectSender is implemented by conversations that own the whole send;
// the confirmed message comes back through the normal feed.
type DirectSender interface {
	SendMessage(ctx context.Context, content string) error
}

// Dialer resolves a chat to an open Conversation.
type Dialer interface {
	Conversation(ctx context.Context, chat models.Chat) (Conversation, error)
}
