package handler

import (
	"crypto/subtle"
	"encoding/json"
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/tshuldberg/MyLife-sub003/config"
	"github.com/tshuldberg/MyLife-sub003/internal/federation"
	appErrors "github.com/tshuldberg/MyLife-sub003/pkg/errors"
	"github.com/tshuldberg/MyLife-sub003/pkg/logger"
)

// maxDeliveryBody bounds inbound delivery bodies; content tops out at
// 8000 chars, the rest is envelope.
const maxDeliveryBody = 64 * 1024

type dispatchRequest struct {
	Limit int `json:"limit"`
}

type dispatchResponse struct {
	OK        bool   `json:"ok"`
	Server    string `json:"server"`
	Processed int    `json:"processed"`
	Sent      int    `json:"sent"`
	Retried   int    `json:"retried"`
	Failed    int    `json:"failed"`
	Skipped   int    `json:"skipped"`
	Reason    string `json:"reason,omitempty"`
}

type receiveResponse struct {
	OK        bool `json:"ok"`
	Duplicate bool `json:"duplicate,omitempty"`
	Message   any  `json:"message,omitempty"`
}

type FederationHandler struct {
	usecase    federation.Usecase
	dispatcher federation.Dispatcher
	logger     logger.Logger
	config     config.Config
}

func NewFederationHandler(usecase federation.Usecase, dispatcher federation.Dispatcher, logger logger.Logger, config config.Config) *FederationHandler {
	return &FederationHandler{
		usecase:    usecase,
		dispatcher: dispatcher,
		logger:     logger,
		config:     config,
	}
}

func (h *FederationHandler) Register(r *mux.Router) {
	r.HandleFunc(federation.InboxPath, h.ReceiveMessage).Methods(http.MethodPost)
	r.HandleFunc("/federation/dispatch", h.Dispatch).Methods(http.MethodPost)
}

func (h *FederationHandler) ReceiveMessage(w http.ResponseWriter, r *http.Request) {
	// The signature covers the raw bytes, so the body is read before
	// any JSON handling.
	body, err := io.ReadAll(io.LimitReader(r.Body, maxDeliveryBody))
	if err != nil {
		writeError(w, appErrors.InvalidArg("unable to read request body"))
		return
	}

	result, err := h.usecase.Receive(r.Context(), federation.ReceiveCommand{
		SenderServer: r.Header.Get(federation.HeaderServer),
		Timestamp:    r.Header.Get(federation.HeaderTimestamp),
		Signature:    r.Header.Get(federation.HeaderSignature),
		Body:         body,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	status := http.StatusCreated
	if result.Duplicate {
		status = http.StatusOK
	}
	writeJSON(w, status, receiveResponse{
		OK:        true,
		Duplicate: result.Duplicate,
		Message:   result.Message,
	})
}

func (h *FederationHandler) Dispatch(w http.ResponseWriter, r *http.Request) {
	key := r.Header.Get("x-dispatch-key")
	configured := h.config.Federation.DispatchKey
	if configured == "" || subtle.ConstantTimeCompare([]byte(key), []byte(configured)) != 1 {
		writeError(w, appErrors.ErrBadDispatchKey)
		return
	}

	if h.config.Federation.ServerName == "" {
		writeJSON(w, http.StatusOK, dispatchResponse{
			OK:     false,
			Reason: "federation is not configured on this server",
		})
		return
	}

	var req dispatchRequest
	if r.Body != nil {
		// An empty body is fine; a malformed one is not.
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
			writeError(w, appErrors.InvalidArg("request body is not valid JSON"))
			return
		}
	}
	limit := req.Limit
	if limit <= 0 {
		limit = h.config.Federation.DispatchLimit
	}
	if limit > 200 {
		limit = 200
	}

	summary, err := h.dispatcher.Dispatch(r.Context(), limit)
	if err != nil {
		h.logger.Error("dispatch run failed", "err", err)
		writeError(w, appErrors.Internal("dispatch failed"))
		return
	}

	writeJSON(w, http.StatusOK, dispatchResponse{
		OK:        summary.Failed == 0,
		Server:    h.config.Federation.ServerName,
		Processed: summary.Processed,
		Sent:      summary.Sent,
		Retried:   summary.Retried,
		Failed:    summary.Failed,
		Skipped:   summary.Skipped,
	})
}
