package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Fawas-Anayat/Document-Processing-System/internal/common"
)

// APIError is the body of every error response.
type APIError struct {
	Code    string `json:"error_code"`
	Message string `json:"error_message"`
}

type errorMapping struct {
	err    error
	status int
	code   string
	// public replaces the error text for server-side failures
	public string
}

// errorTable is matched top to bottom with errors.Is.
var errorTable = []errorMapping{
	{err: common.ErrStoreFailure, status: http.StatusInternalServerError, code: "store_failure", public: "internal error"},
	{err: common.ErrorUnauthorized, status: http.StatusUnauthorized, code: "unauthorized"},
	{err: common.ErrValidation, status: http.StatusUnprocessableEntity, code: "validation_error"},
	{err: common.ErrDuplicateEmail, status: http.StatusConflict, code: "duplicate_email"},
	{err: common.ErrAuthFailure, status: http.StatusUnauthorized, code: "invalid_credentials"},
	{err: common.ErrTokenExpired, status: http.StatusUnauthorized, code: "token_expired"},
	{err: common.ErrBadSignature, status: http.StatusUnauthorized, code: "bad_signature"},
	{err: common.ErrRevokedOrExpired, status: http.StatusUnauthorized, code: "token_revoked"},
	{err: common.ErrWrongTokenType, status: http.StatusBadRequest, code: "wrong_token_type"},
	{err: common.ErrMalformedToken, status: http.StatusBadRequest, code: "malformed_token"},
	{err: common.ErrUserNotFound, status: http.StatusNotFound, code: "user_not_found"},
	{err: common.ErrorNotFound, status: http.StatusNotFound, code: "not_found"},
	{err: common.ErrUnsupportedFileType, status: http.StatusUnsupportedMediaType, code: "unsupported_file_type"},
	{err: common.ErrFileTooLarge, status: http.StatusRequestEntityTooLarge, code: "file_too_large"},
	{err: common.ErrChatUnavailable, status: http.StatusServiceUnavailable, code: "chat_unavailable", public: "chat backend unavailable"},
}

// classify returns the status and body for err.
func classify(err error) (int, APIError) {
	for _, m := range errorTable {
		if errors.Is(err, m.err) {
			msg := err.Error()
			if m.public != "" {
				msg = m.public
			}
			return m.status, APIError{Code: m.code, Message: msg}
		}
	}
	return http.StatusInternalServerError, APIError{Code: "internal_error", Message: "internal error"}
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func (a *API) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, body := classify(err)
	if status >= http.StatusInternalServerError {
		a.log.Error(r.Context(), "request failed", "path", r.URL.Path, "status", status, "error", err)
	} else {
		a.log.Debug(r.Context(), "request rejected", "path", r.URL.Path, "status", status, "error", err)
	}
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", common.BearerScheme)
	}
	respondJSON(w, status, body)
}

// decodeJSON reads a single JSON object, rejecting unknown fields.
func decodeJSON(r *http.Request, dest any) error {
	if r.Body == nil {
		return errors.New("request body required")
	}
	defer r.Body.Close()

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dest)
}
