package transport

import (
	"net/http"

	api "github.com/fleetver/fleetver/api/v1"
	"github.com/fleetver/fleetver/internal/auth"
)

func (h *Handler) Setup(w http.ResponseWriter, r *http.Request) {
	var req api.SetupRequest
	if !decodeBody(w, r, &req) {
		return
	}
	body, status := h.service.Setup(r.Context(), req)
	WriteJSONResponse(w, body, status)
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req api.LoginRequest
	if !decodeBody(w, r, &req) {
		return
	}
	body, status, token, ttl := h.service.Login(r.Context(), req)
	if token != "" {
		http.SetCookie(w, &http.Cookie{
			Name:     auth.SessionCookieName,
			Value:    token,
			Path:     "/",
			MaxAge:   int(ttl.Seconds()),
			HttpOnly: true,
			SameSite: http.SameSiteStrictMode,
		})
	}
	WriteJSONResponse(w, body, status)
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	user, token := h.service.Gate().Authenticate(r)
	if token == "" {
		if cookie, err := r.Cookie(auth.SessionCookieName); err == nil {
			token = cookie.Value
		}
	}
	body, status := h.service.Logout(r.Context(), user, token)
	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
	WriteJSONResponse(w, body, status)
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	body, status := h.service.Me(user)
	WriteJSONResponse(w, body, status)
}
