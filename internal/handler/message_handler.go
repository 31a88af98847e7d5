package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/tshuldberg/MyLife-sub003/internal/identity"
	"github.com/tshuldberg/MyLife-sub003/internal/message"
	appErrors "github.com/tshuldberg/MyLife-sub003/pkg/errors"
	"github.com/tshuldberg/MyLife-sub003/pkg/logger"
)

type sendMessageRequest struct {
	ActorToken      string `json:"actorToken"`
	SenderUserID    string `json:"senderUserId"`
	RecipientUserID string `json:"recipientUserId"`
	ContentType     string `json:"contentType"`
	Content         string `json:"content"`
	ClientMessageID string `json:"clientMessageId"`
}

type markReadRequest struct {
	ActorToken   string `json:"actorToken"`
	ViewerUserID string `json:"viewerUserId"`
}

type MessageHandler struct {
	usecase  message.Usecase
	verifier *identity.Verifier
	logger   logger.Logger
}

func NewMessageHandler(usecase message.Usecase, verifier *identity.Verifier, logger logger.Logger) *MessageHandler {
	return &MessageHandler{
		usecase:  usecase,
		verifier: verifier,
		logger:   logger,
	}
}

func (h *MessageHandler) Register(r *mux.Router) {
	r.HandleFunc("/messages", h.Send).Methods(http.MethodPost)
	r.HandleFunc("/messages", h.ListConversation).Methods(http.MethodGet)
	r.HandleFunc("/messages/inbox", h.ListInbox).Methods(http.MethodGet)
	r.HandleFunc("/messages/{id}/read", h.MarkRead).Methods(http.MethodPost)
}

func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, appErrors.InvalidArg("request body is not valid JSON"))
		return
	}

	token := req.ActorToken
	if token == "" {
		token = actorToken(r)
	}
	actor, err := h.verifier.ResolveActor(token, req.SenderUserID, true)
	if err != nil {
		writeError(w, err)
		return
	}

	dto, err := h.usecase.Send(r.Context(), message.SendCommand{
		SenderUserID:    actor,
		RecipientUserID: req.RecipientUserID,
		ContentType:     req.ContentType,
		Content:         req.Content,
		ClientMessageID: req.ClientMessageID,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, dto)
}

func (h *MessageHandler) ListConversation(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	actor, err := h.verifier.ResolveActor(actorToken(r), q.Get("viewerUserId"), true)
	if err != nil {
		writeError(w, err)
		return
	}

	cmd := message.ListConversationCommand{
		ViewerUserID: actor,
		FriendUserID: q.Get("friendUserId"),
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, appErrors.InvalidArg("limit must be an integer"))
			return
		}
		cmd.Limit = limit
	}
	if raw := q.Get("since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, appErrors.InvalidArg("since must be RFC3339"))
			return
		}
		cmd.Since = &since
	}

	dtos, err := h.usecase.ListConversation(r.Context(), cmd)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": dtos})
}

func (h *MessageHandler) ListInbox(w http.ResponseWriter, r *http.Request) {
	actor, err := h.verifier.ResolveActor(actorToken(r), r.URL.Query().Get("viewerUserId"), true)
	if err != nil {
		writeError(w, err)
		return
	}

	entries, err := h.usecase.ListInbox(r.Context(), actor)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"inbox": entries})
}

func (h *MessageHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, appErrors.InvalidArg("message id must be a uuid"))
		return
	}

	var req markReadRequest
	if r.Body != nil {
		// Body is optional when the token travels in the header.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	token := req.ActorToken
	if token == "" {
		token = actorToken(r)
	}
	actor, err := h.verifier.ResolveActor(token, req.ViewerUserID, true)
	if err != nil {
		writeError(w, err)
		return
	}

	dto, err := h.usecase.MarkRead(r.Context(), id, actor)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dto)
}
