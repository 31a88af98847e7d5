package federation

import (
	"github.com/google/uuid"

	"github.com/tshuldberg/MyLife-sub003/internal/message"
)

// Federation wire headers.
const (
	HeaderServer    = "x-federation-server"
	HeaderTimestamp = "x-federation-timestamp"
	HeaderSignature = "x-federation-signature"
)

// InboxPath is the peer endpoint deliveries are POSTed to.
const InboxPath = "/federation/inbox/messages"

// DeliveryPayload is the JSON body of one inter-server delivery.
type DeliveryPayload struct {
	ID              uuid.UUID `json:"id"`
	ClientMessageID string    `json:"clientMessageId"`
	FromUserID      string    `json:"fromUserId"`
	ToUserID        string    `json:"toUserId"`
	ContentType     string    `json:"contentType"`
	Content         string    `json:"content"`
	CreatedAt       string    `json:"createdAt"`
	SenderServer    string    `json:"senderServer"`
}

// ReceiveCommand carries one authenticated-candidate delivery into the
// inbox usecase: the three federation headers plus the exact raw body
// the signature was computed over.
type ReceiveCommand struct {
	SenderServer string
	Timestamp    string
	Signature    string
	Body         []byte
}

// ReceiveResult reports a committed or duplicate delivery.
type ReceiveResult struct {
	Duplicate bool
	Message   *message.MessageDTO
}

// DispatchSummary is the outcome of one dispatcher run. Skipped counts
// entries claimed but never attempted because the run was cut short;
// their lease expiry returns them to the queue.
type DispatchSummary struct {
	Processed int `json:"processed"`
	Sent      int `json:"sent"`
	Retried   int `json:"retried"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}
