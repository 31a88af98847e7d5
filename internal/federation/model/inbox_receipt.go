package model

import (
	"time"

	"github.com/google/uuid"
)

// InboxReceipt is the dedup fence for inbound deliveries: one row per
// (sender_server, client_message_id), inserted before the message is
// committed. Append-only.
type InboxReceipt struct {
	ID           uuid.UUID `bun:",pk,type:uuid,default:gen_random_uuid()"`
	SenderServer string    `bun:",notnull,unique:ux_inbox_receipt"`
	// ClientMessageID is the sender's delivery idempotency key.
	ClientMessageID string    `bun:",notnull,unique:ux_inbox_receipt"`
	MessageID       uuid.UUID `bun:",notnull,type:uuid"`
	ReceivedAt      time.Time `bun:",nullzero,notnull,default:current_timestamp"`
}
