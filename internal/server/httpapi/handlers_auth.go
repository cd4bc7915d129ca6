package httpapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/Fawas-Anayat/Document-Processing-System/internal/common"
	"github.com/Fawas-Anayat/Document-Processing-System/internal/server/services"
)

type messageResponse struct {
	Message string `json:"message"`
}

type signupRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type refreshResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

type logoutResponse struct {
	Message        string `json:"message"`
	RefreshRevoked bool   `json:"refresh_revoked"`
}

func (a *API) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := decodeJSON(r, &req); err != nil {
		a.fail(w, r, fmt.Errorf("%w: %v", common.ErrValidation, err))
		return
	}

	if _, err := a.accounts.Register(r.Context(), req.Name, req.Email, req.Password); err != nil {
		a.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, messageResponse{Message: "user registered successfully"})
}

// handleLogin takes an OAuth2 password form: the email goes in username.
func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		a.fail(w, r, fmt.Errorf("%w: %v", common.ErrValidation, err))
		return
	}
	username := r.PostForm.Get("username")
	password := r.PostForm.Get("password")
	if username == "" || password == "" {
		a.fail(w, r, fmt.Errorf("%w: username and password are required", common.ErrValidation))
		return
	}

	pair, err := a.sessions.Login(r.Context(), username, password)
	a.metrics.AuthEvent("login", err)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, loginResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    pair.TokenType,
	})
}

// handleRefresh answers every credential problem with 401.
func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(r, &req); err != nil {
		a.fail(w, r, fmt.Errorf("%w: %v", common.ErrValidation, err))
		return
	}

	pair, err := a.sessions.Refresh(r.Context(), req.RefreshToken)
	a.metrics.AuthEvent("refresh", err)
	if err != nil {
		if !errors.Is(err, common.ErrStoreFailure) {
			err = &services.UnauthorizedError{Reason: "invalid refresh token", Err: err}
		}
		a.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, refreshResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    pair.TokenType,
		ExpiresIn:    pair.ExpiresIn,
	})
}

// handleLogout accepts an expired access token. The body is optional.
func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	access := bearerToken(r)
	if access == "" {
		a.fail(w, r, &services.UnauthorizedError{Reason: "missing token"})
		return
	}

	var req refreshRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		a.fail(w, r, fmt.Errorf("%w: %v", common.ErrValidation, err))
		return
	}

	// the blacklist write must not be cut short by a client disconnect
	res, err := a.sessions.Logout(context.WithoutCancel(r.Context()), access, strings.TrimSpace(req.RefreshToken))
	a.metrics.AuthEvent("logout", err)
	if err != nil {
		a.fail(w, r, err)
		return
	}

	msg := "logged out successfully"
	if res.AlreadyLoggedOut {
		msg = "already logged out"
	}
	respondJSON(w, http.StatusOK, logoutResponse{Message: msg, RefreshRevoked: res.RefreshRevoked})
}

func (a *API) handleReady(w http.ResponseWriter, r *http.Request) {
	failed := map[string]string{}
	for _, c := range a.checks {
		if err := c.Probe(r.Context()); err != nil {
			a.log.Warn(r.Context(), "readiness check failed", "check", c.Name, "error", err)
			failed[c.Name] = "unavailable"
		}
	}
	if len(failed) > 0 {
		respondJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "not ready", "checks": failed})
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}
