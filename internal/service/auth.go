package service

import (
	"context"
	"errors"
	"strings"
	"time"

	api "github.com/fleetver/fleetver/api/v1"
	"github.com/fleetver/fleetver/internal/auth"
	"github.com/fleetver/fleetver/internal/fverrors"
	"github.com/fleetver/fleetver/internal/store/model"
)

const minPasswordLen = 8

// Setup creates the first operator account. It is open exactly once: any
// existing user locks it down.
func (h *ServiceHandler) Setup(ctx context.Context, req api.SetupRequest) (any, int) {
	exists, err := h.store.User().HasAny(ctx)
	if err != nil {
		h.log.Errorf("setup: checking users: %v", err)
		return errorBody("internal_error"), 500
	}
	if exists {
		return errorBody("already_initialized"), 409
	}

	username := strings.TrimSpace(req.Username)
	if username == "" {
		username = "admin"
	}
	if len(req.Password) < minPasswordLen {
		return errorBody("password_too_short"), 400
	}
	salt, hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return errorBodyf("setup_failed:%v", err), 400
	}
	userID, err := h.store.User().Create(ctx, &model.User{
		Username:     username,
		PasswordSalt: salt,
		PasswordHash: hash,
		Role:         auth.RoleAdmin,
	})
	if err != nil {
		return errorBodyf("setup_failed:%v", err), 400
	}
	return api.SetupResponse{OK: true, UserID: userID}, 201
}

// Login verifies the credentials and opens a session. The returned token
// is empty on failure; the transport turns it into the session cookie.
func (h *ServiceHandler) Login(ctx context.Context, req api.LoginRequest) (body any, status int, token string, ttl time.Duration) {
	username := strings.TrimSpace(req.Username)
	user, err := h.store.User().GetByUsername(ctx, username)
	if err != nil {
		if !errors.Is(err, fverrors.ErrResourceNotFound) {
			h.log.Errorf("login: loading user %s: %v", username, err)
		}
		return errorBody("invalid_credentials"), 401, "", 0
	}
	if !auth.VerifyPassword(req.Password, user.PasswordSalt, user.PasswordHash) {
		return errorBody("invalid_credentials"), 401, "", 0
	}

	token, err = auth.NewSessionToken()
	if err != nil {
		h.log.Errorf("login: generating token: %v", err)
		return errorBody("internal_error"), 500, "", 0
	}
	ttl = h.sessionTTL()
	if err := h.store.Session().Create(ctx, user.ID, token, ttl); err != nil {
		h.log.Errorf("login: creating session: %v", err)
		return errorBody("internal_error"), 500, "", 0
	}
	return api.LoginResponse{
		OK:   true,
		User: api.SessionUser{Username: user.Username, Role: user.Role},
	}, 200, token, ttl
}

// Logout deletes the session behind the token, if any. It succeeds even
// for anonymous callers so a stale cookie can always be cleared.
func (h *ServiceHandler) Logout(ctx context.Context, user *api.SessionUser, token string) (any, int) {
	if token != "" {
		if err := h.store.Session().Delete(ctx, token); err != nil && !errors.Is(err, fverrors.ErrResourceNotFound) {
			h.log.Errorf("logout: deleting session: %v", err)
		}
		h.gate.Invalidate(token)
	}
	return api.LogoutResponse{OK: true, User: user}, 200
}

func (h *ServiceHandler) Me(user api.SessionUser) (any, int) {
	return api.MeResponse{User: user}, 200
}
