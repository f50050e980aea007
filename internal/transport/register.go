package transport

import (
	"crypto/subtle"
	"net/http"

	api "github.com/fleetver/fleetver/api/v1"
	"github.com/fleetver/fleetver/internal/auth"
)

// Register has its own gate: a configured registration token lets devices
// enroll without a session, with an admin session as fallback. Without a
// token only admins may register.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req api.RegisterRequest
	if !decodeBody(w, r, &req) {
		return
	}

	required := h.service.RegistrationToken()
	if required != "" {
		supplied := r.Header.Get("X-Registration-Token")
		if supplied == "" {
			supplied = req.RegistrationToken
		}
		if subtle.ConstantTimeCompare([]byte(supplied), []byte(required)) != 1 {
			user, _ := h.service.Gate().Authenticate(r)
			if user == nil || user.Role != auth.RoleAdmin {
				writeError(w, http.StatusUnauthorized, "invalid_registration_token")
				return
			}
		}
	} else {
		user, _ := h.service.Gate().Authenticate(r)
		if user == nil {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		if user.Role != auth.RoleAdmin {
			writeError(w, http.StatusForbidden, "forbidden")
			return
		}
	}

	body, status := h.service.Register(r.Context(), req, remoteIP(r))
	WriteJSONResponse(w, body, status)
}
