package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/driver/pgdriver"

	"github.com/tshuldberg/MyLife-sub003/internal/message"
	Message "github.com/tshuldberg/MyLife-sub003/internal/message/model"
	"github.com/tshuldberg/MyLife-sub003/pkg/logger"
)

type MessageRepository struct {
	db     *bun.DB
	logger *logger.Logger
}

func NewMessageRepository(db *bun.DB, logger logger.Logger) *MessageRepository {
	return &MessageRepository{
		db:     db,
		logger: &logger,
	}
}

func (r *MessageRepository) Insert(ctx context.Context, msg *Message.Message) error {
	_, err := r.db.NewInsert().Model(msg).Returning("*").Exec(ctx)
	if err != nil {
		if isUniqueViolation(err) {
			return message.ErrDuplicateMessage
		}
		return errors.Wrap(err, "messageRepo.Insert.Exec: ")
	}
	return nil
}

// isUniqueViolation matches Postgres SQLSTATE 23505.
func isUniqueViolation(err error) bool {
	var pgErr pgdriver.Error
	if errors.As(err, &pgErr) {
		return pgErr.Field('C') == "23505"
	}
	return false
}

func (r *MessageRepository) GetByID(ctx context.Context, id uuid.UUID) (*Message.Message, error) {
	msg := new(Message.Message)
	err := r.db.NewSelect().Model(msg).Where("id = ?", id).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "messageRepo.GetByID.Scan: ")
	}
	return msg, nil
}

func (r *MessageRepository) GetByClientMessageID(ctx context.Context, clientMessageID string) (*Message.Message, error) {
	msg := new(Message.Message)
	err := r.db.NewSelect().Model(msg).Where("client_message_id = ?", clientMessageID).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "messageRepo.GetByClientMessageID.Scan: ")
	}
	return msg, nil
}

func (r *MessageRepository) MarkRead(ctx context.Context, id uuid.UUID, viewerUserID string, at time.Time) (*Message.Message, error) {
	// Conditional update keeps read_at monotonic; marking an
	// already-read message is a no-op.
	_, err := r.db.NewUpdate().
		Model((*Message.Message)(nil)).
		Set("read_at = ?", at).
		Where("id = ?", id).
		Where("recipient_user_id = ?", viewerUserID).
		Where("read_at IS NULL").
		Exec(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "messageRepo.MarkRead.Update: ")
	}

	msg := new(Message.Message)
	err = r.db.NewSelect().
		Model(msg).
		Where("id = ?", id).
		Where("recipient_user_id = ?", viewerUserID).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "messageRepo.MarkRead.Scan: ")
	}
	return msg, nil
}

func (r *MessageRepository) ListConversation(ctx context.Context, userA, userB string, since *time.Time, limit int) ([]Message.Message, error) {
	var msgs []Message.Message

	q := r.db.NewSelect().
		Model(&msgs).
		WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.
				WhereGroup(" OR ", func(q *bun.SelectQuery) *bun.SelectQuery {
					return q.Where("sender_user_id = ?", userA).Where("recipient_user_id = ?", userB)
				}).
				WhereGroup(" OR ", func(q *bun.SelectQuery) *bun.SelectQuery {
					return q.Where("sender_user_id = ?", userB).Where("recipient_user_id = ?", userA)
				})
		}).
		Order("created_at ASC").
		Limit(limit)

	if since != nil {
		q = q.Where("created_at > ?", *since)
	}

	if err := q.Scan(ctx); err != nil {
		return nil, errors.Wrap(err, "messageRepo.ListConversation.Scan: ")
	}
	return msgs, nil
}

func (r *MessageRepository) ListInboxEntries(ctx context.Context, userID string) ([]message.InboxEntryDTO, error) {
	// One row per counterpart: the newest message either direction plus
	// the count of received messages still unread, resolved in a single
	// windowed query.
	var rows []struct {
		ID              uuid.UUID  `bun:"id"`
		ClientMessageID *string    `bun:"client_message_id"`
		SenderUserID    string     `bun:"sender_user_id"`
		RecipientUserID string     `bun:"recipient_user_id"`
		ContentType     string     `bun:"content_type"`
		Content         string     `bun:"content"`
		CreatedAt       time.Time  `bun:"created_at"`
		ReadAt          *time.Time `bun:"read_at"`
		FriendUserID    string     `bun:"friend_user_id"`
		UnreadCount     int        `bun:"unread_count"`
	}

	err := r.db.NewRaw(`
		SELECT id, client_message_id, sender_user_id, recipient_user_id,
			content_type, content, created_at, read_at,
			friend_user_id, unread_count
		FROM (
			SELECT *,
				ROW_NUMBER() OVER (PARTITION BY friend_user_id ORDER BY created_at DESC) AS rn,
				COUNT(*) FILTER (WHERE recipient_user_id = ? AND read_at IS NULL)
					OVER (PARTITION BY friend_user_id) AS unread_count
			FROM (
				SELECT *,
					CASE WHEN sender_user_id = ? THEN recipient_user_id ELSE sender_user_id END AS friend_user_id
				FROM messages
				WHERE sender_user_id = ? OR recipient_user_id = ?
			) conv
		) ranked
		WHERE rn = 1
		ORDER BY created_at DESC
	`, userID, userID, userID, userID).Scan(ctx, &rows)
	if err != nil {
		return nil, errors.Wrap(err, "messageRepo.ListInboxEntries.Scan: ")
	}

	entries := make([]message.InboxEntryDTO, 0, len(rows))
	for _, row := range rows {
		last := message.MessageDTO{
			ID:              row.ID,
			ClientMessageID: row.ClientMessageID,
			SenderUserID:    row.SenderUserID,
			RecipientUserID: row.RecipientUserID,
			ContentType:     row.ContentType,
			Content:         row.Content,
			CreatedAt:       row.CreatedAt,
			ReadAt:          row.ReadAt,
		}
		entries = append(entries, message.InboxEntryDTO{
			FriendUserID: row.FriendUserID,
			LastMessage:  &last,
			UnreadCount:  row.UnreadCount,
		})
	}
	return entries, nil
}
