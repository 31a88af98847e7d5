package model

import (
	"time"

	"github.com/google/uuid"
)

const (
	StatusPending  = "pending"
	StatusAccepted = "accepted"
	StatusDeclined = "declined"
)

// Friendship is one directed half of a symmetric relation. An accepted
// pair is stored as two rows (A→B and B→A) so either direction resolves
// in a single indexed lookup.
type Friendship struct {
	ID           uuid.UUID `bun:",pk,type:uuid,default:gen_random_uuid()"`
	UserID       string    `bun:",notnull,unique:ux_friendship_pair"`
	FriendUserID string    `bun:",notnull,unique:ux_friendship_pair"`
	Status       string    `bun:",notnull,default:'pending'"`
	CreatedAt    time.Time `bun:",nullzero,notnull,default:current_timestamp"`
}
