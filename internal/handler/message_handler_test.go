package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tshuldberg/MyLife-sub003/config"
	"github.com/tshuldberg/MyLife-sub003/internal/identity"
	"github.com/tshuldberg/MyLife-sub003/internal/message"
	messageMocks "github.com/tshuldberg/MyLife-sub003/internal/message/mocks"
	appErrors "github.com/tshuldberg/MyLife-sub003/pkg/errors"
	"github.com/tshuldberg/MyLife-sub003/pkg/logger"
)

const testIdentitySecret = "handler-test-secret"

func newMessageRouter(t *testing.T) (*mux.Router, *messageMocks.MockUsecase, *identity.Verifier) {
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	usecase := messageMocks.NewMockUsecase(ctrl)
	verifier := identity.NewVerifier(config.Identity{Secret: testIdentitySecret})

	r := mux.NewRouter()
	NewMessageHandler(usecase, verifier, logger.Logger{}).Register(r)
	return r, usecase, verifier
}

func issueToken(t *testing.T, verifier *identity.Verifier, userID string) string {
	token, err := verifier.Issue(userID)
	require.NoError(t, err)
	return token
}

func Test_MessageHandler_Send(t *testing.T) {
	r, usecase, verifier := newMessageRouter(t)
	token := issueToken(t, verifier, "alice")

	t.Run("created", func(t *testing.T) {
		usecase.EXPECT().
			Send(gomock.Any(), message.SendCommand{
				SenderUserID:    "alice",
				RecipientUserID: "bob@remote.example",
				ContentType:     "plain-text",
				Content:         "hi",
				ClientMessageID: "m1",
			}).
			Return(&message.MessageDTO{ID: uuid.New(), SenderUserID: "alice"}, nil)

		body := `{"recipientUserId":"bob@remote.example","contentType":"plain-text","content":"hi","clientMessageId":"m1"}`
		req := httptest.NewRequest(http.MethodPost, "/messages", strings.NewReader(body))
		req.Header.Set("x-actor-token", token)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusCreated, rec.Code)

		var dto message.MessageDTO
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &dto))
		assert.Equal(t, "alice", dto.SenderUserID)
	})

	t.Run("token beats a mismatching body user id", func(t *testing.T) {
		body := `{"senderUserId":"mallory","recipientUserId":"bob","contentType":"plain-text","content":"hi"}`
		req := httptest.NewRequest(http.MethodPost, "/messages", strings.NewReader(body))
		req.Header.Set("x-actor-token", token)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusForbidden, rec.Code)
		assertErrorCode(t, rec, appErrors.CodePermissionDenied)
	})

	t.Run("tampered token is rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/messages", strings.NewReader(`{"content":"hi"}`))
		req.Header.Set("x-actor-token", token+"0")
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assertErrorCode(t, rec, appErrors.CodeUnauthenticated)
	})

	t.Run("usecase errors map to status codes", func(t *testing.T) {
		usecase.EXPECT().
			Send(gomock.Any(), gomock.Any()).
			Return(nil, appErrors.ErrNotFriends)

		body := `{"recipientUserId":"bob","contentType":"plain-text","content":"hi"}`
		req := httptest.NewRequest(http.MethodPost, "/messages", strings.NewReader(body))
		req.Header.Set("x-actor-token", token)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("internal errors are masked", func(t *testing.T) {
		usecase.EXPECT().
			Send(gomock.Any(), gomock.Any()).
			Return(nil, appErrors.Internal("pg: connection refused"))

		body := `{"recipientUserId":"bob","contentType":"plain-text","content":"hi"}`
		req := httptest.NewRequest(http.MethodPost, "/messages", strings.NewReader(body))
		req.Header.Set("x-actor-token", token)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		var resp struct {
			Error string `json:"error"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "internal server error", resp.Error)
	})
}

func Test_MessageHandler_ListConversation(t *testing.T) {
	r, usecase, verifier := newMessageRouter(t)
	token := issueToken(t, verifier, "alice")

	usecase.EXPECT().
		ListConversation(gomock.Any(), message.ListConversationCommand{
			ViewerUserID: "alice",
			FriendUserID: "bob@remote.example",
			Limit:        10,
		}).
		Return([]message.MessageDTO{{Content: "hi"}}, nil)

	req := httptest.NewRequest(http.MethodGet, "/messages?friendUserId=bob%40remote.example&limit=10", nil)
	req.Header.Set("x-actor-token", token)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Messages []message.MessageDTO `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Messages, 1)
	assert.Equal(t, "hi", resp.Messages[0].Content)
}

func Test_MessageHandler_MarkRead(t *testing.T) {
	r, usecase, verifier := newMessageRouter(t)
	token := issueToken(t, verifier, "bob")
	id := uuid.New()

	t.Run("ok", func(t *testing.T) {
		usecase.EXPECT().
			MarkRead(gomock.Any(), id, "bob").
			Return(&message.MessageDTO{ID: id, RecipientUserID: "bob"}, nil)

		req := httptest.NewRequest(http.MethodPost, "/messages/"+id.String()+"/read", nil)
		req.Header.Set("x-actor-token", token)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("bad id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/messages/not-a-uuid/read", nil)
		req.Header.Set("x-actor-token", token)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("not found", func(t *testing.T) {
		usecase.EXPECT().
			MarkRead(gomock.Any(), id, "bob").
			Return(nil, appErrors.ErrMessageNotFound)

		req := httptest.NewRequest(http.MethodPost, "/messages/"+id.String()+"/read", nil)
		req.Header.Set("x-actor-token", token)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func Test_MessageHandler_IdentityRequired(t *testing.T) {
	r, _, _ := newMessageRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/messages/inbox", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assertErrorCode(t, rec, appErrors.CodeInvalidArgument)
}

func assertErrorCode(t *testing.T, rec *httptest.ResponseRecorder, want appErrors.Code) {
	t.Helper()
	var resp struct {
		Code appErrors.Code `json:"code"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, want, resp.Code)
}
