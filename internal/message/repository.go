package message

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	Message "github.com/tshuldberg/MyLife-sub003/internal/message/model"
)

// ErrDuplicateMessage marks an insert that hit a uniqueness constraint
// (message id or client message id already stored).
var ErrDuplicateMessage = errors.New("duplicate message")

type Repository interface {
	Insert(ctx context.Context, msg *Message.Message) error
	GetByID(ctx context.Context, id uuid.UUID) (*Message.Message, error)

	// GetByClientMessageID returns the message recorded under a client
	// message id, or nil when none exists.
	GetByClientMessageID(ctx context.Context, clientMessageID string) (*Message.Message, error)

	// MarkRead stamps read_at once, only for the recipient. Returns the
	// row after the (possibly no-op) update, or nil when the id does
	// not exist for that viewer.
	MarkRead(ctx context.Context, id uuid.UUID, viewerUserID string, at time.Time) (*Message.Message, error)

	// ListConversation returns both directions of a pair ordered by
	// created_at ascending, optionally bounded below by since.
	ListConversation(ctx context.Context, userA, userB string, since *time.Time, limit int) ([]Message.Message, error)

	// ListInboxEntries builds the per-friend last-message rollup with
	// unread counts for a local user.
	ListInboxEntries(ctx context.Context, userID string) ([]InboxEntryDTO, error)
}
