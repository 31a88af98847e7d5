package dispatcher

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tshuldberg/MyLife-sub003/config"
	"github.com/tshuldberg/MyLife-sub003/internal/federation"
	"github.com/tshuldberg/MyLife-sub003/internal/federation/mocks"
	Federation "github.com/tshuldberg/MyLife-sub003/internal/federation/model"
	"github.com/tshuldberg/MyLife-sub003/pkg/logger"
)

func testConfig(peer, secret string, maxAttempts int) config.Config {
	return config.Config{
		Federation: config.Federation{
			ServerName:         "home.example",
			Secrets:            map[string]string{peer: secret},
			InsecureHTTP:       true,
			MaxAttempts:        maxAttempts,
			HTTPTimeoutSeconds: 2,
		},
	}
}

func newTestDispatcher(t *testing.T, cfg config.Config) (*Dispatcher, *mocks.MockRepository) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockRepository(ctrl)
	lg, _ := logger.NewLogger(&cfg)
	return NewDispatcher(repo, *lg, cfg), repo
}

func dueEntry(server string, attempts int) Federation.OutboxEntry {
	return Federation.OutboxEntry{
		ID:               uuid.New(),
		MessageID:        uuid.New(),
		ClientMessageID:  "m1",
		RecipientServer:  server,
		SenderUserID:     "alice@home.example",
		RecipientUserID:  "bob@" + server,
		ContentType:      "plain-text",
		Content:          "hi",
		MessageCreatedAt: time.Now().UTC(),
		Status:           Federation.OutboxStatusPending,
		Attempts:         attempts,
		NextAttemptAt:    time.Now().UTC(),
	}
}

// peerHost strips the scheme from an httptest server URL so it can act
// as a federation server name under the insecure-http override.
func peerHost(t *testing.T, srv *httptest.Server) string {
	t.Helper()
	return strings.TrimPrefix(srv.URL, "http://")
}

func TestDispatch_SuccessMarksSent(t *testing.T) {
	var gotPayload federation.DeliveryPayload
	var gotHeaders http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeaders = r.Header.Clone()
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotPayload))
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	peer := peerHost(t, srv)
	d, repo := newTestDispatcher(t, testConfig(peer, "shared", 3))
	entry := dueEntry(peer, 0)

	repo.EXPECT().ClaimDue(gomock.Any(), gomock.Any(), 10).Return([]Federation.OutboxEntry{entry}, nil)
	repo.EXPECT().MarkSent(gomock.Any(), entry.ID, http.StatusCreated, gomock.Any()).Return(nil)

	summary, err := d.Dispatch(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Processed)
	assert.Equal(t, 1, summary.Sent)

	assert.Equal(t, "home.example", gotHeaders.Get(federation.HeaderServer))
	assert.Equal(t, "m1", gotPayload.ClientMessageID)
	assert.Equal(t, "home.example", gotPayload.SenderServer)

	ts := gotHeaders.Get(federation.HeaderTimestamp)
	sig := gotHeaders.Get(federation.HeaderSignature)
	body, _ := json.Marshal(gotPayload)
	assert.True(t, federation.VerifyDeliverySignature("shared", ts, body, sig),
		"signature must verify over the exact body bytes")
}

func TestDispatch_PeerDuplicateCountsAsSent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	}))
	defer srv.Close()

	peer := peerHost(t, srv)
	d, repo := newTestDispatcher(t, testConfig(peer, "shared", 3))
	entry := dueEntry(peer, 0)

	repo.EXPECT().ClaimDue(gomock.Any(), gomock.Any(), 1).Return([]Federation.OutboxEntry{entry}, nil)
	repo.EXPECT().MarkSent(gomock.Any(), entry.ID, http.StatusConflict, gomock.Any()).Return(nil)

	summary, err := d.Dispatch(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Sent)
}

func TestDispatch_ClientErrorFailsImmediately(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	peer := peerHost(t, srv)
	d, repo := newTestDispatcher(t, testConfig(peer, "shared", 5))
	entry := dueEntry(peer, 0)

	repo.EXPECT().ClaimDue(gomock.Any(), gomock.Any(), 1).Return([]Federation.OutboxEntry{entry}, nil)
	status := http.StatusNotFound
	repo.EXPECT().MarkFailed(gomock.Any(), entry.ID, 1, gomock.Any(), &status).Return(nil)

	summary, err := d.Dispatch(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 0, summary.Retried)
}

func TestDispatch_ServerErrorRetriesWithBackoff(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	peer := peerHost(t, srv)
	d, repo := newTestDispatcher(t, testConfig(peer, "shared", 5))
	entry := dueEntry(peer, 0)

	before := time.Now().UTC()
	repo.EXPECT().ClaimDue(gomock.Any(), gomock.Any(), 1).Return([]Federation.OutboxEntry{entry}, nil)
	status := http.StatusInternalServerError
	repo.EXPECT().
		MarkRetry(gomock.Any(), entry.ID, 1, gomock.Any(), gomock.Any(), &status).
		DoAndReturn(func(_ context.Context, _ uuid.UUID, _ int, next time.Time, _ string, _ *int) error {
			// First failure schedules ~15s out.
			assert.WithinDuration(t, before.Add(15*time.Second), next, 5*time.Second)
			return nil
		})

	summary, err := d.Dispatch(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Retried)
}

func TestDispatch_ServerErrorAtCeilingFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	peer := peerHost(t, srv)
	d, repo := newTestDispatcher(t, testConfig(peer, "shared", 3))
	entry := dueEntry(peer, 2) // third attempt is the last

	repo.EXPECT().ClaimDue(gomock.Any(), gomock.Any(), 1).Return([]Federation.OutboxEntry{entry}, nil)
	status := http.StatusInternalServerError
	repo.EXPECT().MarkFailed(gomock.Any(), entry.ID, 3, gomock.Any(), &status).Return(nil)

	summary, err := d.Dispatch(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)
}

func TestDispatch_NetworkErrorRetries(t *testing.T) {
	// Closed server: connection refused.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	peer := peerHost(t, srv)
	srv.Close()

	d, repo := newTestDispatcher(t, testConfig(peer, "shared", 5))
	entry := dueEntry(peer, 0)

	repo.EXPECT().ClaimDue(gomock.Any(), gomock.Any(), 1).Return([]Federation.OutboxEntry{entry}, nil)
	repo.EXPECT().MarkRetry(gomock.Any(), entry.ID, 1, gomock.Any(), gomock.Any(), gomock.Nil()).Return(nil)

	summary, err := d.Dispatch(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Retried)
}

func TestDispatch_MissingSecretFailsWithoutRetry(t *testing.T) {
	d, repo := newTestDispatcher(t, config.Config{
		Federation: config.Federation{ServerName: "home.example", MaxAttempts: 5, HTTPTimeoutSeconds: 2},
	})
	entry := dueEntry("unknown.example", 0)

	repo.EXPECT().ClaimDue(gomock.Any(), gomock.Any(), 1).Return([]Federation.OutboxEntry{entry}, nil)
	repo.EXPECT().MarkFailed(gomock.Any(), entry.ID, 0, gomock.Any(), gomock.Nil()).Return(nil)

	summary, err := d.Dispatch(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)
}

func TestDispatch_OneFailureDoesNotAbortBatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	peer := peerHost(t, srv)
	d, repo := newTestDispatcher(t, testConfig(peer, "shared", 5))

	bad := dueEntry("unreachable.invalid:1", 0)
	bad.ClientMessageID = "m-bad"
	good := dueEntry(peer, 0)

	repo.EXPECT().ClaimDue(gomock.Any(), gomock.Any(), 10).Return([]Federation.OutboxEntry{bad, good}, nil)
	repo.EXPECT().MarkFailed(gomock.Any(), bad.ID, 0, gomock.Any(), gomock.Nil()).Return(nil)
	repo.EXPECT().MarkSent(gomock.Any(), good.ID, http.StatusOK, gomock.Any()).Return(nil)

	summary, err := d.Dispatch(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Processed)
	assert.Equal(t, 1, summary.Sent)
	assert.Equal(t, 1, summary.Failed)
}

func TestDispatch_CanceledContextSkipsClaimed(t *testing.T) {
	d, repo := newTestDispatcher(t, testConfig("remote.example", "shared", 5))

	entries := []Federation.OutboxEntry{
		dueEntry("remote.example", 0),
		dueEntry("remote.example", 0),
	}
	repo.EXPECT().ClaimDue(gomock.Any(), gomock.Any(), 10).Return(entries, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// Nothing is attempted; the claimed entries count as skipped and
	// their lease expiry returns them to the queue.
	summary, err := d.Dispatch(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Processed)
	assert.Equal(t, 2, summary.Skipped)
	assert.Equal(t, 0, summary.Sent)
	assert.Equal(t, 0, summary.Failed)
}

func TestBackoff(t *testing.T) {
	assert.Equal(t, 15*time.Second, Backoff(0))
	assert.Equal(t, 30*time.Second, Backoff(1))
	assert.Equal(t, 60*time.Second, Backoff(2))

	// Strictly increasing until the cap.
	prev := time.Duration(0)
	for n := 0; n < 8; n++ {
		cur := Backoff(n)
		assert.Greater(t, cur, prev)
		prev = cur
	}

	// Capped at one hour no matter how high attempts climb.
	assert.Equal(t, time.Hour, Backoff(9))
	assert.Equal(t, time.Hour, Backoff(100))
}
