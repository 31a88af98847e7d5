package usecase

import (
	"context"
	"encoding/json"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/tshuldberg/MyLife-sub003/config"
	"github.com/tshuldberg/MyLife-sub003/internal/federation"
	Federation "github.com/tshuldberg/MyLife-sub003/internal/federation/model"
	"github.com/tshuldberg/MyLife-sub003/internal/friendship"
	"github.com/tshuldberg/MyLife-sub003/internal/message"
	Message "github.com/tshuldberg/MyLife-sub003/internal/message/model"
	"github.com/tshuldberg/MyLife-sub003/pkg/errors"
	"github.com/tshuldberg/MyLife-sub003/pkg/logger"
	"github.com/tshuldberg/MyLife-sub003/pkg/utils"
)

// FederationUsecase authenticates and commits inbound federated
// deliveries. Receipt rows make processing idempotent under
// at-least-once delivery.
type FederationUsecase struct {
	repo     federation.Repository
	messages message.Repository
	friends  friendship.Repository
	logger   logger.Logger
	config   config.Config
	now      func() time.Time
}

func NewFederationUsecase(
	repo federation.Repository,
	messages message.Repository,
	friends friendship.Repository,
	logger logger.Logger,
	config config.Config,
) *FederationUsecase {
	return &FederationUsecase{
		repo:     repo,
		messages: messages,
		friends:  friends,
		logger:   logger,
		config:   config,
		now:      time.Now,
	}
}

func (uc *FederationUsecase) Receive(ctx context.Context, cmd federation.ReceiveCommand) (*federation.ReceiveResult, error) {
	if cmd.SenderServer == "" || cmd.Timestamp == "" || cmd.Signature == "" {
		return nil, errors.ErrMissingFederationHeaders
	}

	ts, err := time.Parse(time.RFC3339, cmd.Timestamp)
	if err != nil {
		return nil, errors.ErrTimestampSkew
	}
	skew := uc.now().UTC().Sub(ts.UTC())
	if skew < 0 {
		skew = -skew
	}
	if skew > uc.config.SkewTolerance() {
		return nil, errors.ErrTimestampSkew
	}

	secret := uc.config.PeerSecret(cmd.SenderServer)
	if secret == "" {
		return nil, errors.ErrUnknownPeer
	}

	// The MAC covers the exact raw request body; any re-serialization
	// on the handler side would break verification.
	if !federation.VerifyDeliverySignature(secret, cmd.Timestamp, cmd.Body, cmd.Signature) {
		return nil, errors.ErrBadDeliverySignature
	}

	var payload federation.DeliveryPayload
	if err := json.Unmarshal(cmd.Body, &payload); err != nil {
		return nil, errors.ErrDeliveryValidation("delivery body is not valid JSON")
	}
	if err := uc.validatePayload(cmd.SenderServer, &payload); err != nil {
		return nil, err
	}

	ok, err := uc.friends.AreFriends(ctx, payload.FromUserID, payload.ToUserID)
	if err != nil {
		uc.logger.Error("friendship check failed", "err", err)
		return nil, errors.Internal("internal server error")
	}
	if !ok {
		return nil, errors.ErrNotFriends
	}

	// Idempotency fence first: the receipt insert decides whether this
	// delivery is new before any message row exists.
	receipt := &Federation.InboxReceipt{
		ID:              uuid.New(),
		SenderServer:    cmd.SenderServer,
		ClientMessageID: payload.ClientMessageID,
		MessageID:       payload.ID,
		ReceivedAt:      uc.now().UTC(),
	}
	if err := uc.repo.InsertReceipt(ctx, receipt); err != nil {
		if errors.Is(err, federation.ErrDuplicateDelivery) {
			return uc.duplicateResult(ctx, cmd.SenderServer, payload.ClientMessageID)
		}
		uc.logger.Error("receipt insert failed", "err", err)
		return nil, errors.Internal("internal server error")
	}

	createdAt, _ := time.Parse(time.RFC3339, payload.CreatedAt)
	msg := &Message.Message{
		// The sender's id is kept for cross-server id continuity.
		ID:              payload.ID,
		SenderUserID:    payload.FromUserID,
		RecipientUserID: payload.ToUserID,
		ContentType:     payload.ContentType,
		Content:         payload.Content,
		CreatedAt:       createdAt,
	}
	if payload.ClientMessageID != "" {
		cid := payload.ClientMessageID
		msg.ClientMessageID = &cid
	}

	if err := uc.messages.Insert(ctx, msg); err != nil {
		if errors.Is(err, message.ErrDuplicateMessage) {
			// Two deliveries of the same id raced past the receipt
			// check; resolve exactly like a receipt duplicate.
			return uc.duplicateResult(ctx, cmd.SenderServer, payload.ClientMessageID)
		}
		uc.logger.Error("message insert failed", "err", err)
		return nil, errors.Internal("internal server error")
	}

	dto := message.ToDTO(msg)
	return &federation.ReceiveResult{Message: &dto}, nil
}

func (uc *FederationUsecase) duplicateResult(ctx context.Context, senderServer, clientMessageID string) (*federation.ReceiveResult, error) {
	result := &federation.ReceiveResult{Duplicate: true}

	receipt, err := uc.repo.GetReceipt(ctx, senderServer, clientMessageID)
	if err != nil {
		uc.logger.Error("receipt lookup failed", "err", err)
		return nil, errors.Internal("internal server error")
	}
	if receipt == nil {
		return result, nil
	}

	stored, err := uc.messages.GetByID(ctx, receipt.MessageID)
	if err != nil {
		uc.logger.Error("stored message lookup failed", "err", err)
		return nil, errors.Internal("internal server error")
	}
	if stored != nil {
		dto := message.ToDTO(stored)
		result.Message = &dto
	}
	return result, nil
}

func (uc *FederationUsecase) validatePayload(senderServer string, p *federation.DeliveryPayload) error {
	if p.ID == uuid.Nil {
		return errors.ErrDeliveryValidation("message id is required")
	}
	if p.ClientMessageID == "" {
		return errors.ErrDeliveryValidation("client message id is required")
	}
	if !utils.ValidUserAddress(p.FromUserID) || !utils.ValidUserAddress(p.ToUserID) {
		return errors.ErrInvalidAddress
	}
	if !Message.ValidContentType(p.ContentType) {
		return errors.ErrInvalidContentType
	}
	if p.Content == "" || utf8.RuneCountInString(p.Content) > Message.MaxContentLength {
		return errors.ErrInvalidContent
	}
	if _, err := time.Parse(time.RFC3339, p.CreatedAt); err != nil {
		return errors.ErrDeliveryValidation("createdAt must be RFC3339")
	}

	_, fromServer := utils.SplitUserAddress(p.FromUserID)
	if fromServer != senderServer {
		return errors.ErrSenderServerMismatch
	}
	_, toServer := utils.SplitUserAddress(p.ToUserID)
	if toServer != "" && toServer != uc.config.Federation.ServerName {
		return errors.ErrWrongDestination
	}
	return nil
}
