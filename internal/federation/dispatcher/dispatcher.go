package dispatcher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tshuldberg/MyLife-sub003/config"
	"github.com/tshuldberg/MyLife-sub003/internal/federation"
	Federation "github.com/tshuldberg/MyLife-sub003/internal/federation/model"
	"github.com/tshuldberg/MyLife-sub003/pkg/logger"
)

const (
	baseBackoff  = 15 * time.Second
	maxBackoff   = time.Hour
	backoffShift = 8
)

// Dispatcher drains due outbox entries and delivers them to peer
// inboxes. A failure on one entry never aborts the batch.
type Dispatcher struct {
	repo   federation.Repository
	client *http.Client
	logger logger.Logger
	config config.Config
	now    func() time.Time
}

func NewDispatcher(repo federation.Repository, logger logger.Logger, config config.Config) *Dispatcher {
	return &Dispatcher{
		repo: repo,
		client: &http.Client{
			Timeout: time.Duration(config.Federation.HTTPTimeoutSeconds) * time.Second,
		},
		logger: logger,
		config: config,
		now:    time.Now,
	}
}

func (d *Dispatcher) Dispatch(ctx context.Context, limit int) (*federation.DispatchSummary, error) {
	entries, err := d.repo.ClaimDue(ctx, d.now().UTC(), limit)
	if err != nil {
		return nil, err
	}

	summary := &federation.DispatchSummary{}
	for i := range entries {
		if ctx.Err() != nil {
			// Claimed but unattempted; the lease expiry hands them back.
			summary.Skipped = len(entries) - i
			break
		}
		summary.Processed++
		d.deliver(ctx, &entries[i], summary)
	}
	return summary, nil
}

func (d *Dispatcher) deliver(ctx context.Context, entry *Federation.OutboxEntry, summary *federation.DispatchSummary) {
	secret := d.config.PeerSecret(entry.RecipientServer)
	if entry.RecipientServer == "" || secret == "" {
		// Configuration problem, not a transient one.
		d.fail(ctx, entry, entry.Attempts, "no shared secret configured for destination server", nil, summary)
		return
	}

	body, err := json.Marshal(federation.DeliveryPayload{
		ID:              entry.MessageID,
		ClientMessageID: entry.ClientMessageID,
		FromUserID:      entry.SenderUserID,
		ToUserID:        entry.RecipientUserID,
		ContentType:     entry.ContentType,
		Content:         entry.Content,
		CreatedAt:       entry.MessageCreatedAt.UTC().Format(time.RFC3339),
		SenderServer:    d.config.Federation.ServerName,
	})
	if err != nil {
		d.fail(ctx, entry, entry.Attempts, "payload serialization failed: "+err.Error(), nil, summary)
		return
	}

	scheme := "https"
	if d.config.Federation.InsecureHTTP {
		scheme = "http"
	}
	url := fmt.Sprintf("%s://%s%s", scheme, entry.RecipientServer, federation.InboxPath)

	timestamp := d.now().UTC().Format(time.RFC3339)
	signature := federation.SignDelivery(secret, timestamp, body)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		d.fail(ctx, entry, entry.Attempts, "building request failed: "+err.Error(), nil, summary)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(federation.HeaderServer, d.config.Federation.ServerName)
	req.Header.Set(federation.HeaderTimestamp, timestamp)
	req.Header.Set(federation.HeaderSignature, signature)

	resp, err := d.client.Do(req)
	if err != nil {
		d.transientFailure(ctx, entry, "network error: "+err.Error(), nil, summary)
		return
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	status := resp.StatusCode
	switch {
	case status >= 200 && status < 300, status == http.StatusConflict:
		// 409 means the peer already holds this delivery; the outcome
		// is the same as a fresh accept.
		if err := d.repo.MarkSent(ctx, entry.ID, status, d.now().UTC()); err != nil {
			d.logger.Error("mark sent failed", "entryId", entry.ID, "err", err)
		}
		summary.Sent++

	case status >= 400 && status < 500 &&
		status != http.StatusRequestTimeout && status != http.StatusTooManyRequests:
		// Client-class responses are never going to succeed on retry.
		d.fail(ctx, entry, entry.Attempts+1, fmt.Sprintf("peer rejected delivery with status %d", status), &status, summary)

	default:
		d.transientFailure(ctx, entry, fmt.Sprintf("peer responded with status %d", status), &status, summary)
	}
}

// transientFailure increments the attempt count and either schedules a
// retry or gives up at the attempt ceiling.
func (d *Dispatcher) transientFailure(ctx context.Context, entry *Federation.OutboxEntry, reason string, httpStatus *int, summary *federation.DispatchSummary) {
	attempts := entry.Attempts + 1
	if attempts >= d.config.Federation.MaxAttempts {
		d.fail(ctx, entry, attempts, reason, httpStatus, summary)
		return
	}

	next := d.now().UTC().Add(Backoff(entry.Attempts))
	if err := d.repo.MarkRetry(ctx, entry.ID, attempts, next, reason, httpStatus); err != nil {
		d.logger.Error("mark retry failed", "entryId", entry.ID, "err", err)
	}
	summary.Retried++
}

func (d *Dispatcher) fail(ctx context.Context, entry *Federation.OutboxEntry, attempts int, reason string, httpStatus *int, summary *federation.DispatchSummary) {
	d.logger.Warn("delivery failed terminally",
		"entryId", entry.ID, "server", entry.RecipientServer, "reason", reason)
	if err := d.repo.MarkFailed(ctx, entry.ID, attempts, reason, httpStatus); err != nil {
		d.logger.Error("mark failed failed", "entryId", entry.ID, "err", err)
	}
	summary.Failed++
}

// Backoff returns the delay before the attempt following prevAttempts
// failures: min(1h, 15s * 2^min(prevAttempts, 8)). The first failure
// schedules ~15s out; growth is capped against overflow and unbounded
// waits.
func Backoff(prevAttempts int) time.Duration {
	exp := prevAttempts
	if exp > backoffShift {
		exp = backoffShift
	}
	delay := baseBackoff << uint(exp)
	if delay > maxBackoff {
		delay = maxBackoff
	}
	return delay
}
