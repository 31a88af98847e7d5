package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/uptrace/bun"

	Friendship "github.com/tshuldberg/MyLife-sub003/internal/friendship/model"
	"github.com/tshuldberg/MyLife-sub003/pkg/logger"
)

type FriendshipRepository struct {
	db     *bun.DB
	logger *logger.Logger
}

func NewFriendshipRepository(db *bun.DB, logger logger.Logger) *FriendshipRepository {
	return &FriendshipRepository{
		db:     db,
		logger: &logger,
	}
}

func (r *FriendshipRepository) AreFriends(ctx context.Context, userA, userB string) (bool, error) {
	exists, err := r.db.NewSelect().
		Model((*Friendship.Friendship)(nil)).
		Where("status = ?", Friendship.StatusAccepted).
		WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.
				WhereGroup(" OR ", func(q *bun.SelectQuery) *bun.SelectQuery {
					return q.Where("user_id = ?", userA).Where("friend_user_id = ?", userB)
				}).
				WhereGroup(" OR ", func(q *bun.SelectQuery) *bun.SelectQuery {
					return q.Where("user_id = ?", userB).Where("friend_user_id = ?", userA)
				})
		}).
		Exists(ctx)
	if err != nil {
		return false, errors.Wrap(err, "friendshipRepo.AreFriends.Exists: ")
	}
	return exists, nil
}

func (r *FriendshipRepository) SaveFriendship(ctx context.Context, userA, userB, status string) error {
	rows := []Friendship.Friendship{
		{ID: uuid.New(), UserID: userA, FriendUserID: userB, Status: status},
		{ID: uuid.New(), UserID: userB, FriendUserID: userA, Status: status},
	}

	return r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		for i := range rows {
			_, err := tx.NewInsert().
				Model(&rows[i]).
				On("CONFLICT (user_id, friend_user_id) DO UPDATE").
				Set("status = EXCLUDED.status").
				Exec(ctx)
			if err != nil {
				return errors.Wrap(err, "friendshipRepo.SaveFriendship.Upsert: ")
			}
		}
		return nil
	})
}
