package federation

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	Federation "github.com/tshuldberg/MyLife-sub003/internal/federation/model"
)

// ErrDuplicateDelivery marks a receipt insert that hit the
// (sender_server, client_message_id) uniqueness fence.
var ErrDuplicateDelivery = errors.New("duplicate federated delivery")

type Repository interface {
	// Enqueue upserts the delivery keyed by (clientMessageId,
	// recipientServer). On conflict the entry is reset to pending with
	// attempts=0 and cleared error state, so re-enqueueing doubles as
	// the manual-resubmit escape hatch.
	Enqueue(ctx context.Context, entry *Federation.OutboxEntry) error

	// ClaimDue atomically claims up to limit due entries (status
	// pending/retry, next_attempt_at <= now) oldest-due-first, FIFO
	// among ties. Claimed rows have next_attempt_at pushed forward by a
	// lease so concurrent dispatchers cannot double-claim them.
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]Federation.OutboxEntry, error)

	MarkSent(ctx context.Context, id uuid.UUID, httpStatus int, at time.Time) error
	MarkRetry(ctx context.Context, id uuid.UUID, attempts int, nextAttemptAt time.Time, lastError string, httpStatus *int) error
	MarkFailed(ctx context.Context, id uuid.UUID, attempts int, lastError string, httpStatus *int) error

	GetOutboxEntry(ctx context.Context, id uuid.UUID) (*Federation.OutboxEntry, error)

	// InsertReceipt inserts the dedup fence row. A unique violation is
	// surfaced as ErrDuplicateDelivery.
	InsertReceipt(ctx context.Context, receipt *Federation.InboxReceipt) error
	GetReceipt(ctx context.Context, senderServer, clientMessageID string) (*Federation.InboxReceipt, error)
}

// Dispatcher drains due outbox entries. The message usecase fires one
// inline best-effort run after a federated send; the scheduled runs are
// the durability backstop.
type Dispatcher interface {
	Dispatch(ctx context.Context, limit int) (*DispatchSummary, error)
}
