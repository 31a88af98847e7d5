package handler

import (
	"encoding/json"
	"net/http"

	appErrors "github.com/tshuldberg/MyLife-sub003/pkg/errors"
)

type errorResponse struct {
	Error string         `json:"error"`
	Code  appErrors.Code `json:"code"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, err error) {
	code := appErrors.CodeOf(err)
	msg := err.Error()
	if code == appErrors.CodeUnknown || code == appErrors.CodeInternal {
		// Internal detail stays in the logs.
		msg = "internal server error"
		code = appErrors.CodeInternal
	}
	writeJSON(w, code.HTTPStatus(), errorResponse{Error: msg, Code: code})
}

// actorToken pulls the signed identity token from header or query.
func actorToken(r *http.Request) string {
	if t := r.Header.Get("x-actor-token"); t != "" {
		return t
	}
	return r.URL.Query().Get("actorToken")
}
