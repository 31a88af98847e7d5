package usecase

import (
	"context"
	"encoding/json"
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
	friendshipMocks "github.com/tshuldberg/MyLife-sub003/internal/friendship/mocks"
	"github.com/tshuldberg/MyLife-sub003/internal/message"
	messageMocks "github.com/tshuldberg/MyLife-sub003/internal/message/mocks"
	Message "github.com/tshuldberg/MyLife-sub003/internal/message/model"
	appErrors "github.com/tshuldberg/MyLife-sub003/pkg/errors"
	"github.com/tshuldberg/MyLife-sub003/pkg/logger"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type receiverMocks struct {
	repo     *mocks.MockRepository
	messages *messageMocks.MockRepository
	friends  *friendshipMocks.MockRepository
}

func newTestReceiver(t *testing.T) (*FederationUsecase, receiverMocks) {
	ctrl := gomock.NewController(t)
	m := receiverMocks{
		repo:     mocks.NewMockRepository(ctrl),
		messages: messageMocks.NewMockRepository(ctrl),
		friends:  friendshipMocks.NewMockRepository(ctrl),
	}
	cfg := config.Config{
		Federation: config.Federation{
			ServerName:      "home.example",
			Secrets:         map[string]string{"remote.example": "shared"},
			SkewToleranceMs: int(5 * time.Minute / time.Millisecond),
		},
	}
	lg, _ := logger.NewLogger(&cfg)
	uc := NewFederationUsecase(m.repo, m.messages, m.friends, *lg, cfg)
	uc.now = func() time.Time { return testNow }
	return uc, m
}

func validPayload() federation.DeliveryPayload {
	return federation.DeliveryPayload{
		ID:              uuid.New(),
		ClientMessageID: "m1",
		FromUserID:      "bob@remote.example",
		ToUserID:        "alice@home.example",
		ContentType:     Message.ContentTypePlainText,
		Content:         "hello",
		CreatedAt:       testNow.Add(-time.Minute).Format(time.RFC3339),
		SenderServer:    "remote.example",
	}
}

func signedCommand(t *testing.T, payload federation.DeliveryPayload, secret string) federation.ReceiveCommand {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	ts := testNow.Format(time.RFC3339)
	return federation.ReceiveCommand{
		SenderServer: "remote.example",
		Timestamp:    ts,
		Signature:    federation.SignDelivery(secret, ts, body),
		Body:         body,
	}
}

func TestReceive_CommitsNewDelivery(t *testing.T) {
	uc, m := newTestReceiver(t)
	payload := validPayload()
	cmd := signedCommand(t, payload, "shared")

	m.friends.EXPECT().AreFriends(gomock.Any(), payload.FromUserID, payload.ToUserID).Return(true, nil)
	m.repo.EXPECT().
		InsertReceipt(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, r *Federation.InboxReceipt) error {
			assert.Equal(t, "remote.example", r.SenderServer)
			assert.Equal(t, "m1", r.ClientMessageID)
			assert.Equal(t, payload.ID, r.MessageID)
			return nil
		})
	m.messages.EXPECT().
		Insert(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, msg *Message.Message) error {
			assert.Equal(t, payload.ID, msg.ID)
			assert.Equal(t, payload.FromUserID, msg.SenderUserID)
			return nil
		})

	result, err := uc.Receive(context.Background(), cmd)
	require.NoError(t, err)
	assert.False(t, result.Duplicate)
	require.NotNil(t, result.Message)
	assert.Equal(t, payload.ID, result.Message.ID)
}

func TestReceive_MissingHeaders(t *testing.T) {
	uc, _ := newTestReceiver(t)

	cmd := signedCommand(t, validPayload(), "shared")
	cmd.Signature = ""

	_, err := uc.Receive(context.Background(), cmd)
	assert.ErrorIs(t, err, appErrors.ErrMissingFederationHeaders)
}

func TestReceive_TimestampOutsideSkewWindow(t *testing.T) {
	uc, _ := newTestReceiver(t)
	payload := validPayload()
	body, _ := json.Marshal(payload)

	ts := testNow.Add(-10 * time.Minute).Format(time.RFC3339)
	cmd := federation.ReceiveCommand{
		SenderServer: "remote.example",
		Timestamp:    ts,
		Signature:    federation.SignDelivery("shared", ts, body),
		Body:         body,
	}

	_, err := uc.Receive(context.Background(), cmd)
	assert.ErrorIs(t, err, appErrors.ErrTimestampSkew)
}

func TestReceive_UnknownPeer(t *testing.T) {
	uc, _ := newTestReceiver(t)
	cmd := signedCommand(t, validPayload(), "shared")
	cmd.SenderServer = "stranger.example"

	_, err := uc.Receive(context.Background(), cmd)
	assert.ErrorIs(t, err, appErrors.ErrUnknownPeer)
}

func TestReceive_BadSignature(t *testing.T) {
	uc, _ := newTestReceiver(t)

	t.Run("wrong secret", func(t *testing.T) {
		cmd := signedCommand(t, validPayload(), "wrong-secret")
		_, err := uc.Receive(context.Background(), cmd)
		assert.ErrorIs(t, err, appErrors.ErrBadDeliverySignature)
	})

	t.Run("body altered after signing", func(t *testing.T) {
		cmd := signedCommand(t, validPayload(), "shared")
		cmd.Body = append(cmd.Body, ' ')
		_, err := uc.Receive(context.Background(), cmd)
		assert.ErrorIs(t, err, appErrors.ErrBadDeliverySignature)
	})

	t.Run("truncated signature", func(t *testing.T) {
		cmd := signedCommand(t, validPayload(), "shared")
		cmd.Signature = cmd.Signature[:8]
		_, err := uc.Receive(context.Background(), cmd)
		assert.ErrorIs(t, err, appErrors.ErrBadDeliverySignature)
	})
}

func TestReceive_PayloadValidation(t *testing.T) {
	uc, _ := newTestReceiver(t)

	cases := []struct {
		name   string
		mutate func(*federation.DeliveryPayload)
		want   appErrors.Code
	}{
		{"missing client message id", func(p *federation.DeliveryPayload) { p.ClientMessageID = "" }, appErrors.CodeInvalidArgument},
		{"bad content type", func(p *federation.DeliveryPayload) { p.ContentType = "text/html" }, appErrors.CodeInvalidArgument},
		{"empty content", func(p *federation.DeliveryPayload) { p.Content = "" }, appErrors.CodeInvalidArgument},
		{"bad createdAt", func(p *federation.DeliveryPayload) { p.CreatedAt = "yesterday" }, appErrors.CodeInvalidArgument},
		{"sender not on authenticated server", func(p *federation.DeliveryPayload) { p.FromUserID = "bob@elsewhere.example" }, appErrors.CodePermissionDenied},
		{"recipient on another server", func(p *federation.DeliveryPayload) { p.ToUserID = "alice@elsewhere.example" }, appErrors.CodePermissionDenied},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			payload := validPayload()
			tc.mutate(&payload)
			cmd := signedCommand(t, payload, "shared")

			_, err := uc.Receive(context.Background(), cmd)
			require.Error(t, err)
			assert.Equal(t, tc.want, appErrors.CodeOf(err))
		})
	}
}

func TestReceive_MultibyteContentAtLimit(t *testing.T) {
	uc, m := newTestReceiver(t)
	payload := validPayload()
	payload.Content = strings.Repeat("é", Message.MaxContentLength)
	cmd := signedCommand(t, payload, "shared")

	m.friends.EXPECT().AreFriends(gomock.Any(), payload.FromUserID, payload.ToUserID).Return(true, nil)
	m.repo.EXPECT().InsertReceipt(gomock.Any(), gomock.Any()).Return(nil)
	m.messages.EXPECT().Insert(gomock.Any(), gomock.Any()).Return(nil)

	result, err := uc.Receive(context.Background(), cmd)
	require.NoError(t, err)
	assert.False(t, result.Duplicate)
}

func TestReceive_NotFriends(t *testing.T) {
	uc, m := newTestReceiver(t)
	payload := validPayload()
	cmd := signedCommand(t, payload, "shared")

	m.friends.EXPECT().AreFriends(gomock.Any(), payload.FromUserID, payload.ToUserID).Return(false, nil)

	_, err := uc.Receive(context.Background(), cmd)
	assert.ErrorIs(t, err, appErrors.ErrNotFriends)
}

func TestReceive_DuplicateReceipt(t *testing.T) {
	uc, m := newTestReceiver(t)
	payload := validPayload()
	cmd := signedCommand(t, payload, "shared")

	stored := &Message.Message{ID: payload.ID, SenderUserID: payload.FromUserID, RecipientUserID: payload.ToUserID}

	m.friends.EXPECT().AreFriends(gomock.Any(), gomock.Any(), gomock.Any()).Return(true, nil)
	m.repo.EXPECT().InsertReceipt(gomock.Any(), gomock.Any()).Return(federation.ErrDuplicateDelivery)
	m.repo.EXPECT().
		GetReceipt(gomock.Any(), "remote.example", "m1").
		Return(&Federation.InboxReceipt{MessageID: payload.ID}, nil)
	m.messages.EXPECT().GetByID(gomock.Any(), payload.ID).Return(stored, nil)

	result, err := uc.Receive(context.Background(), cmd)
	require.NoError(t, err)
	assert.True(t, result.Duplicate)
	require.NotNil(t, result.Message)
	assert.Equal(t, payload.ID, result.Message.ID)
}

func TestReceive_InsertRaceResolvesAsDuplicate(t *testing.T) {
	uc, m := newTestReceiver(t)
	payload := validPayload()
	cmd := signedCommand(t, payload, "shared")

	stored := &Message.Message{ID: payload.ID}

	m.friends.EXPECT().AreFriends(gomock.Any(), gomock.Any(), gomock.Any()).Return(true, nil)
	m.repo.EXPECT().InsertReceipt(gomock.Any(), gomock.Any()).Return(nil)
	m.messages.EXPECT().Insert(gomock.Any(), gomock.Any()).Return(message.ErrDuplicateMessage)
	m.repo.EXPECT().
		GetReceipt(gomock.Any(), "remote.example", "m1").
		Return(&Federation.InboxReceipt{MessageID: payload.ID}, nil)
	m.messages.EXPECT().GetByID(gomock.Any(), payload.ID).Return(stored, nil)

	result, err := uc.Receive(context.Background(), cmd)
	require.NoError(t, err)
	assert.True(t, result.Duplicate)
}
