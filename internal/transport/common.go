// Package transport decodes HTTP requests, delegates to the service layer
// and encodes its results. No business logic lives here.
package transport

import (
	"bytes"
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/fleetver/fleetver/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
)

// maxBodyBytes bounds request bodies; every payload the API accepts is
// small.
const maxBodyBytes = 4 << 20

type Handler struct {
	service *service.ServiceHandler
	log     logrus.FieldLogger
}

func NewHandler(svc *service.ServiceHandler, log logrus.FieldLogger) *Handler {
	return &Handler{service: svc, log: log}
}

// WriteJSONResponse encodes the body into a buffer first so an encoding
// error cannot corrupt an already-started response.
func WriteJSONResponse(w http.ResponseWriter, body any, code int) {
	if code == http.StatusNoContent || code == http.StatusNotModified || (code >= 100 && code < 200) {
		w.WriteHeader(code)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(code)
	_, _ = w.Write(buf.Bytes())
}

func writeError(w http.ResponseWriter, code int, message string) {
	WriteJSONResponse(w, map[string]string{"error": message}, code)
}

// decodeBody parses the JSON request body. A syntactically broken body is
// the caller's fault, reported as invalid_json.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return false
	}
	return true
}

// pathID parses the {id} URL parameter, answering with the resource's
// invalid-id code when it is not an integer.
func pathID(w http.ResponseWriter, r *http.Request, invalidCode string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, invalidCode)
		return 0, false
	}
	return id, true
}

func queryInt64(r *http.Request, key string) *int64 {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil
	}
	return &v
}

func queryIntOr(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

func queryBool(r *http.Request, key string) bool {
	switch r.URL.Query().Get(key) {
	case "1", "true", "True":
		return true
	}
	return false
}

func queryString(r *http.Request, key string) *string {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return nil
	}
	return &raw
}

// remoteIP strips the port from RemoteAddr.
func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return strings.TrimSpace(r.RemoteAddr)
	}
	return host
}
