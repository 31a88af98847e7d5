package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/driver/pgdriver"

	"github.com/tshuldberg/MyLife-sub003/internal/federation"
	Federation "github.com/tshuldberg/MyLife-sub003/internal/federation/model"
	"github.com/tshuldberg/MyLife-sub003/pkg/logger"
)

// claimLease is how far next_attempt_at is pushed when a row is
// claimed. A dispatcher that dies mid-batch releases its claims when
// the lease elapses.
const claimLease = 2 * time.Minute

type FederationRepository struct {
	db     *bun.DB
	logger *logger.Logger
}

func NewFederationRepository(db *bun.DB, logger logger.Logger) *FederationRepository {
	return &FederationRepository{
		db:     db,
		logger: &logger,
	}
}

func (r *FederationRepository) Enqueue(ctx context.Context, entry *Federation.OutboxEntry) error {
	_, err := r.db.NewInsert().
		Model(entry).
		On("CONFLICT (client_message_id, recipient_server) DO UPDATE").
		Set("status = ?", Federation.OutboxStatusPending).
		Set("attempts = 0").
		Set("next_attempt_at = EXCLUDED.next_attempt_at").
		Set("last_error = NULL").
		Set("last_http_status = NULL").
		Set("delivered_at = NULL").
		Set("updated_at = EXCLUDED.next_attempt_at").
		Returning("*").
		Exec(ctx)
	if err != nil {
		return errors.Wrap(err, "federationRepo.Enqueue.Exec: ")
	}
	return nil
}

func (r *FederationRepository) ClaimDue(ctx context.Context, now time.Time, limit int) ([]Federation.OutboxEntry, error) {
	var entries []Federation.OutboxEntry

	err := r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		// SKIP LOCKED keeps concurrent dispatcher runs from selecting
		// the same due rows.
		err := tx.NewSelect().
			Model(&entries).
			Where("status IN (?, ?)", Federation.OutboxStatusPending, Federation.OutboxStatusRetry).
			Where("next_attempt_at <= ?", now).
			Order("next_attempt_at ASC", "created_at ASC").
			Limit(limit).
			For("UPDATE SKIP LOCKED").
			Scan(ctx)
		if err != nil {
			return errors.Wrap(err, "federationRepo.ClaimDue.Select: ")
		}
		if len(entries) == 0 {
			return nil
		}

		ids := make([]uuid.UUID, 0, len(entries))
		for _, e := range entries {
			ids = append(ids, e.ID)
		}

		// The lease is the claim marker: pushed-forward rows are not
		// due for anyone else until the claimant has finished (or
		// died and the lease expired).
		_, err = tx.NewUpdate().
			Model((*Federation.OutboxEntry)(nil)).
			Set("next_attempt_at = ?", now.Add(claimLease)).
			Set("updated_at = ?", now).
			Where("id IN (?)", bun.In(ids)).
			Exec(ctx)
		if err != nil {
			return errors.Wrap(err, "federationRepo.ClaimDue.Lease: ")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *FederationRepository) MarkSent(ctx context.Context, id uuid.UUID, httpStatus int, at time.Time) error {
	_, err := r.db.NewUpdate().
		Model((*Federation.OutboxEntry)(nil)).
		Set("status = ?", Federation.OutboxStatusSent).
		Set("last_http_status = ?", httpStatus).
		Set("delivered_at = ?", at).
		Set("last_error = NULL").
		Set("updated_at = ?", at).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return errors.Wrap(err, "federationRepo.MarkSent.Update: ")
	}
	return nil
}

func (r *FederationRepository) MarkRetry(ctx context.Context, id uuid.UUID, attempts int, nextAttemptAt time.Time, lastError string, httpStatus *int) error {
	_, err := r.db.NewUpdate().
		Model((*Federation.OutboxEntry)(nil)).
		Set("status = ?", Federation.OutboxStatusRetry).
		Set("attempts = ?", attempts).
		Set("next_attempt_at = ?", nextAttemptAt).
		Set("last_error = ?", lastError).
		Set("last_http_status = ?", httpStatus).
		Set("updated_at = current_timestamp").
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return errors.Wrap(err, "federationRepo.MarkRetry.Update: ")
	}
	return nil
}

func (r *FederationRepository) MarkFailed(ctx context.Context, id uuid.UUID, attempts int, lastError string, httpStatus *int) error {
	_, err := r.db.NewUpdate().
		Model((*Federation.OutboxEntry)(nil)).
		Set("status = ?", Federation.OutboxStatusFailed).
		Set("attempts = ?", attempts).
		Set("last_error = ?", lastError).
		Set("last_http_status = ?", httpStatus).
		Set("updated_at = current_timestamp").
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return errors.Wrap(err, "federationRepo.MarkFailed.Update: ")
	}
	return nil
}

func (r *FederationRepository) GetOutboxEntry(ctx context.Context, id uuid.UUID) (*Federation.OutboxEntry, error) {
	entry := new(Federation.OutboxEntry)
	err := r.db.NewSelect().Model(entry).Where("id = ?", id).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "federationRepo.GetOutboxEntry.Scan: ")
	}
	return entry, nil
}

func (r *FederationRepository) InsertReceipt(ctx context.Context, receipt *Federation.InboxReceipt) error {
	_, err := r.db.NewInsert().Model(receipt).Returning("*").Exec(ctx)
	if err != nil {
		if isUniqueViolation(err) {
			return federation.ErrDuplicateDelivery
		}
		return errors.Wrap(err, "federationRepo.InsertReceipt.Exec: ")
	}
	return nil
}

func (r *FederationRepository) GetReceipt(ctx context.Context, senderServer, clientMessageID string) (*Federation.InboxReceipt, error) {
	receipt := new(Federation.InboxReceipt)
	err := r.db.NewSelect().
		Model(receipt).
		Where("sender_server = ?", senderServer).
		Where("client_message_id = ?", clientMessageID).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "federationRepo.GetReceipt.Scan: ")
	}
	return receipt, nil
}

// isUniqueViolation matches Postgres SQLSTATE 23505.
func isUniqueViolation(err error) bool {
	var pgErr pgdriver.Error
	if errors.As(err, &pgErr) {
		return pgErr.Field('C') == "23505"
	}
	return false
}
