package message

import (
	"context"

	"github.com/google/uuid"
)

type Usecase interface {
	// Send stores a message from a local sender, idempotently by
	// client message id, and enqueues a federation delivery when the
	// recipient lives on a peer server.
	Send(ctx context.Context, cmd SendCommand) (*MessageDTO, error)

	// MarkRead stamps read_at once; only the recipient may mark.
	MarkRead(ctx context.Context, messageID uuid.UUID, viewerUserID string) (*MessageDTO, error)

	ListConversation(ctx context.Context, cmd ListConversationCommand) ([]MessageDTO, error)

	// ListInbox is the per-friend last-message rollup with unread counts.
	ListInbox(ctx context.Context, viewerUserID string) ([]InboxEntryDTO, error)
}
