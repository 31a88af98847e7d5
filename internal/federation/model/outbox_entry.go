package model

import (
	"time"

	"github.com/google/uuid"
)

const (
	OutboxStatusPending = "pending"
	OutboxStatusRetry   = "retry"
	OutboxStatusSent    = "sent"
	OutboxStatusFailed  = "failed"
)

// OutboxEntry is one durable cross-server delivery. The entry carries a
// denormalized copy of the message so dispatch never re-reads the
// message table. Unique per (client_message_id, recipient_server);
// re-enqueueing the same logical delivery resets it to pending.
type OutboxEntry struct {
	ID        uuid.UUID `bun:",pk,type:uuid,default:gen_random_uuid()"`
	MessageID uuid.UUID `bun:",notnull,type:uuid"`

	// ClientMessageID doubles as the delivery idempotency key. When the
	// caller supplied none on send, the message id is used instead.
	ClientMessageID string `bun:",notnull,unique:ux_outbox_delivery"`
	RecipientServer string `bun:",notnull,unique:ux_outbox_delivery"`

	SenderUserID     string    `bun:",notnull"`
	RecipientUserID  string    `bun:",notnull"`
	ContentType      string    `bun:",notnull"`
	Content          string    `bun:",notnull"`
	MessageCreatedAt time.Time `bun:",notnull"`

	Status        string    `bun:",notnull,default:'pending'"`
	Attempts      int       `bun:",notnull,default:0"`
	NextAttemptAt time.Time `bun:",notnull,default:current_timestamp"`

	LastError      *string    `bun:",nullzero"`
	LastHTTPStatus *int       `bun:",nullzero"`
	DeliveredAt    *time.Time `bun:",nullzero"`

	CreatedAt time.Time `bun:",nullzero,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:",nullzero,notnull,default:current_timestamp"`
}
