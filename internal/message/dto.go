package message

import (
	"time"

	"github.com/google/uuid"

	Message "github.com/tshuldberg/MyLife-sub003/internal/message/model"
)

// NOTE: commands travel from handler to usecase
// Note: DTO travels from usecase to handler

// Input commands
type SendCommand struct {
	SenderUserID    string
	RecipientUserID string
	ContentType     string
	Content         string
	ClientMessageID string // optional idempotency key
}

type ListConversationCommand struct {
	ViewerUserID string
	FriendUserID string
	Since        *time.Time
	Limit        int
}

// Output DTOs
type MessageDTO struct {
	ID              uuid.UUID  `json:"id"`
	ClientMessageID *string    `json:"clientMessageId,omitempty"`
	SenderUserID    string     `json:"senderUserId"`
	RecipientUserID string     `json:"recipientUserId"`
	ContentType     string     `json:"contentType"`
	Content         string     `json:"content"`
	CreatedAt       time.Time  `json:"createdAt"`
	ReadAt          *time.Time `json:"readAt,omitempty"`
}

func ToDTO(m *Message.Message) MessageDTO {
	return MessageDTO{
		ID:              m.ID,
		ClientMessageID: m.ClientMessageID,
		SenderUserID:    m.SenderUserID,
		RecipientUserID: m.RecipientUserID,
		ContentType:     m.ContentType,
		Content:         m.Content,
		CreatedAt:       m.CreatedAt,
		ReadAt:          m.ReadAt,
	}
}

// InboxEntryDTO is one row of the per-friend rollup: the counterpart,
// the newest message either direction, and how many received messages
// are still unread.
type InboxEntryDTO struct {
	FriendUserID string      `json:"friendUserId"`
	LastMessage  *MessageDTO `json:"lastMessage"`
	UnreadCount  int         `json:"unreadCount"`
}
