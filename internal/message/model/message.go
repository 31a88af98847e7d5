package model

import (
	"time"

	"github.com/google/uuid"
)

const (
	ContentTypePlainText  = "plain-text"
	ContentTypeCiphertext = "opaque-ciphertext"
)

// MaxContentLength caps message content, counted in runes.
const MaxContentLength = 8000

// Message is the local record of a sent or received direct message.
// Only read_at mutates after creation.
type Message struct {
	ID uuid.UUID `bun:",pk,type:uuid,default:gen_random_uuid()"`

	// ClientMessageID is the caller-supplied idempotency key. Unique
	// when present; scoped to one (sender, recipient) pair.
	ClientMessageID *string `bun:",unique,nullzero"`

	SenderUserID    string `bun:",notnull"`
	RecipientUserID string `bun:",notnull"`

	ContentType string `bun:",notnull,default:'plain-text'"`
	Content     string `bun:",notnull"`

	CreatedAt time.Time  `bun:",nullzero,notnull,default:current_timestamp"`
	ReadAt    *time.Time `bun:",nullzero"`
}

func ValidContentType(ct string) bool {
	return ct == ContentTypePlainText || ct == ContentTypeCiphertext
}
