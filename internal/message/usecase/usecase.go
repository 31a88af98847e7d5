package usecase

import (
	"context"
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

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

type MessageUsecase struct {
	repo       message.Repository
	friends    friendship.Repository
	outbox     federation.Repository
	dispatcher federation.Dispatcher
	logger     logger.Logger
	config     config.Config
}

func NewMessageUsecase(
	repo message.Repository,
	friends friendship.Repository,
	outbox federation.Repository,
	dispatcher federation.Dispatcher,
	logger logger.Logger,
	config config.Config,
) *MessageUsecase {
	return &MessageUsecase{
		repo:       repo,
		friends:    friends,
		outbox:     outbox,
		dispatcher: dispatcher,
		logger:     logger,
		config:     config,
	}
}

func (uc *MessageUsecase) Send(ctx context.Context, cmd message.SendCommand) (*message.MessageDTO, error) {
	if !utils.ValidUserAddress(cmd.SenderUserID) || !utils.ValidUserAddress(cmd.RecipientUserID) {
		return nil, errors.ErrInvalidAddress
	}
	if !Message.ValidContentType(cmd.ContentType) {
		return nil, errors.ErrInvalidContentType
	}
	if cmd.Content == "" || utf8.RuneCountInString(cmd.Content) > Message.MaxContentLength {
		return nil, errors.ErrInvalidContent
	}

	own := uc.config.Federation.ServerName

	_, senderServer := utils.SplitUserAddress(cmd.SenderUserID)
	if senderServer != "" && senderServer != own {
		// A local caller may not impersonate a foreign sender.
		return nil, errors.ErrForeignSender
	}

	_, recipientServer := utils.SplitUserAddress(cmd.RecipientUserID)
	remote := recipientServer != "" && recipientServer != own
	if remote && own == "" {
		return nil, errors.ErrFederationUnavailable
	}

	ok, err := uc.friends.AreFriends(ctx, cmd.SenderUserID, cmd.RecipientUserID)
	if err != nil {
		uc.logger.Error("friendship check failed", "err", err)
		return nil, errors.Internal("internal server error")
	}
	if !ok {
		return nil, errors.ErrNotFriends
	}

	if cmd.ClientMessageID != "" {
		existing, err := uc.repo.GetByClientMessageID(ctx, cmd.ClientMessageID)
		if err != nil {
			uc.logger.Error("client message id lookup failed", "err", err)
			return nil, errors.Internal("internal server error")
		}
		if existing != nil {
			if existing.SenderUserID != cmd.SenderUserID || existing.RecipientUserID != cmd.RecipientUserID {
				return nil, errors.ErrClientMessageIDReused
			}
			// Idempotent resend: same key, same pair.
			dto := message.ToDTO(existing)
			return &dto, nil
		}
	}

	msg := &Message.Message{
		ID:              uuid.New(),
		SenderUserID:    cmd.SenderUserID,
		RecipientUserID: cmd.RecipientUserID,
		ContentType:     cmd.ContentType,
		Content:         cmd.Content,
		CreatedAt:       time.Now().UTC(),
	}
	if cmd.ClientMessageID != "" {
		msg.ClientMessageID = &cmd.ClientMessageID
	}

	if err := uc.repo.Insert(ctx, msg); err != nil {
		if errors.Is(err, message.ErrDuplicateMessage) {
			// Raced with an identical resend; hand back the winner.
			if cmd.ClientMessageID != "" {
				existing, lookupErr := uc.repo.GetByClientMessageID(ctx, cmd.ClientMessageID)
				if lookupErr == nil && existing != nil {
					if existing.SenderUserID != cmd.SenderUserID || existing.RecipientUserID != cmd.RecipientUserID {
						return nil, errors.ErrClientMessageIDReused
					}
					dto := message.ToDTO(existing)
					return &dto, nil
				}
			}
			return nil, errors.ErrClientMessageIDReused
		}
		uc.logger.Error("message insert failed", "err", err)
		return nil, errors.Internal("internal server error")
	}

	if remote {
		if err := uc.enqueueDelivery(ctx, msg, recipientServer); err != nil {
			uc.logger.Error("outbox enqueue failed", "messageId", msg.ID, "err", err)
			return nil, errors.Internal("internal server error")
		}

		// Best-effort send-now; the scheduled dispatcher is the
		// durability backstop.
		if _, err := uc.dispatcher.Dispatch(ctx, 1); err != nil {
			uc.logger.Warn("inline dispatch failed", "messageId", msg.ID, "err", err)
		}
	}

	dto := message.ToDTO(msg)
	return &dto, nil
}

func (uc *MessageUsecase) enqueueDelivery(ctx context.Context, msg *Message.Message, recipientServer string) error {
	// Deliveries are keyed by client message id; messages sent without
	// one fall back to the message id so every delivery has a stable
	// idempotency key on the receiving side.
	deliveryKey := msg.ID.String()
	if msg.ClientMessageID != nil {
		deliveryKey = *msg.ClientMessageID
	}

	now := time.Now().UTC()
	return uc.outbox.Enqueue(ctx, &Federation.OutboxEntry{
		ID:               uuid.New(),
		MessageID:        msg.ID,
		ClientMessageID:  deliveryKey,
		RecipientServer:  recipientServer,
		SenderUserID:     msg.SenderUserID,
		RecipientUserID:  msg.RecipientUserID,
		ContentType:      msg.ContentType,
		Content:          msg.Content,
		MessageCreatedAt: msg.CreatedAt,
		Status:           Federation.OutboxStatusPending,
		NextAttemptAt:    now,
		CreatedAt:        now,
		UpdatedAt:        now,
	})
}

func (uc *MessageUsecase) MarkRead(ctx context.Context, messageID uuid.UUID, viewerUserID string) (*message.MessageDTO, error) {
	msg, err := uc.repo.MarkRead(ctx, messageID, viewerUserID, time.Now().UTC())
	if err != nil {
		uc.logger.Error("mark read failed", "messageId", messageID, "err", err)
		return nil, errors.Internal("internal server error")
	}
	if msg == nil {
		return nil, errors.ErrMessageNotFound
	}
	dto := message.ToDTO(msg)
	return &dto, nil
}

func (uc *MessageUsecase) ListConversation(ctx context.Context, cmd message.ListConversationCommand) ([]message.MessageDTO, error) {
	if !utils.ValidUserAddress(cmd.ViewerUserID) || !utils.ValidUserAddress(cmd.FriendUserID) {
		return nil, errors.ErrInvalidAddress
	}

	ok, err := uc.friends.AreFriends(ctx, cmd.ViewerUserID, cmd.FriendUserID)
	if err != nil {
		uc.logger.Error("friendship check failed", "err", err)
		return nil, errors.Internal("internal server error")
	}
	if !ok {
		return nil, errors.ErrNotFriends
	}

	limit := clampLimit(cmd.Limit)
	msgs, err := uc.repo.ListConversation(ctx, cmd.ViewerUserID, cmd.FriendUserID, cmd.Since, limit)
	if err != nil {
		uc.logger.Error("conversation list failed", "err", err)
		return nil, errors.Internal("internal server error")
	}

	dtos := make([]message.MessageDTO, 0, len(msgs))
	for i := range msgs {
		dtos = append(dtos, message.ToDTO(&msgs[i]))
	}
	return dtos, nil
}

func (uc *MessageUsecase) ListInbox(ctx context.Context, viewerUserID string) ([]message.InboxEntryDTO, error) {
	if !utils.ValidUserAddress(viewerUserID) {
		return nil, errors.ErrInvalidAddress
	}
	entries, err := uc.repo.ListInboxEntries(ctx, viewerUserID)
	if err != nil {
		uc.logger.Error("inbox rollup failed", "err", err)
		return nil, errors.Internal("internal server error")
	}
	return entries, nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}
