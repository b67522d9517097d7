package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// Stable error codes returned alongside the message.
const (
	codeBadRequest = "bad_request"
	codeNotFound   = "not_found"
	codeParse      = "parse_error"
	codeInternal   = "internal_error"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode failed", slog.String("error", err.Error()))
	}
}

type errResponse struct {
	Error string `json:"error" validate:"required"`
	Code  string `json:"code,omitempty"`
}

func errorBody(msg string) errResponse {
	return errResponse{Error: msg}
}

func errorCode(code, msg string) errResponse {
	return errResponse{Error: msg, Code: code}
}
