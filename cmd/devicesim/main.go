// devicesim is a mock device speaking DVP v1, for local development and
// integration testing of the manager.
package main

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/fleetver/fleetver/internal/util"
	"github.com/fleetver/fleetver/pkg/log"
	"github.com/spf13/pflag"
)

type fileContent struct {
	Checksum    string `json:"checksum"`
	Encoding    string `json:"encoding"`
	ContentType string `json:"content_type"`
	ContentB64  string `json:"content_b64"`
}

type simulator struct {
	deviceID    string
	serial      string
	supplier    string
	deviceType  string
	mainVersion string
	firmware    string
	token       string
	inline      bool

	files        []map[string]any
	fileContents map[string]fileContent
}

func main() {
	logger := log.InitLogs()

	var (
		host        string
		port        int
		deviceID    string
		vendor      string
		deviceModel string
		version     string
		firmware    string
		token       string
		files       []string
		contents    []string
		inline      bool
	)
	pflag.StringVar(&host, "host", "127.0.0.1", "bind host")
	pflag.IntVar(&port, "port", 18080, "bind port")
	pflag.StringVar(&deviceID, "id", "MOCK-001", "device id")
	pflag.StringVar(&vendor, "vendor", "VendorX", "reported supplier")
	pflag.StringVar(&deviceModel, "model", "MockModel", "reported device type")
	pflag.StringVar(&version, "version", "1.0.0", "reported main version")
	pflag.StringVar(&firmware, "firmware", "", "reported firmware version")
	pflag.StringVar(&token, "token", "", "required device token, accepts Bearer or X-Device-Token")
	pflag.StringArrayVar(&files, "file", nil, "reported file fingerprint: <path>=<checksum>")
	pflag.StringArrayVar(&contents, "file-content", nil, "file content: <path>=<text> or <path>=@<localfile>")
	pflag.BoolVar(&inline, "inline-file-content", false, "include content_b64 in the main response")
	pflag.Parse()

	sim := &simulator{
		deviceID:     deviceID,
		serial:       deviceID,
		supplier:     vendor,
		deviceType:   deviceModel,
		mainVersion:  version,
		firmware:     firmware,
		token:        token,
		inline:       inline,
		fileContents: map[string]fileContent{},
	}
	sim.loadContents(contents)
	sim.loadFiles(files)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", sim.handleHealthz)
	mux.HandleFunc("/.well-known/device-version", sim.handleVersion)
	mux.HandleFunc("/.well-known/device-version/file", sim.handleFile)

	addr := net.JoinHostPort(host, fmt.Sprintf("%d", port))
	logger.Infof("mock device %s listening on %s", deviceID, addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Fatalf("serving: %v", err)
	}
}

func (s *simulator) loadContents(specs []string) {
	for _, spec := range specs {
		path, value, ok := strings.Cut(strings.TrimSpace(spec), "=")
		if !ok || strings.TrimSpace(path) == "" {
			continue
		}
		path = strings.TrimSpace(path)
		raw := readValueOrFile(strings.TrimSpace(value))
		s.fileContents[path] = fileContent{
			Checksum:    "sha256:" + fmt.Sprintf("%x", sha256.Sum256(raw)),
			Encoding:    "utf-8",
			ContentType: guessContentType(path),
			ContentB64:  base64.StdEncoding.EncodeToString(raw),
		}
	}
}

func (s *simulator) loadFiles(specs []string) {
	for _, spec := range specs {
		spec = strings.TrimSpace(spec)
		if spec == "" {
			continue
		}
		path, checksum, _ := strings.Cut(spec, "=")
		path = strings.TrimSpace(path)
		checksum = strings.TrimSpace(checksum)
		if path == "" {
			continue
		}
		if checksum == "" {
			checksum = "sha256:" + fmt.Sprintf("%x", sha256.Sum256([]byte(path)))
		}
		s.files = append(s.files, map[string]any{"path": path, "checksum": checksum})
	}
	for path, meta := range s.fileContents {
		found := false
		for _, f := range s.files {
			if f["path"] == path {
				found = true
				break
			}
		}
		if !found {
			s.files = append(s.files, map[string]any{"path": path, "checksum": meta.Checksum})
		}
	}
	if s.inline {
		for _, f := range s.files {
			meta, ok := s.fileContents[f["path"].(string)]
			if !ok {
				continue
			}
			f["encoding"] = meta.Encoding
			f["content_type"] = meta.ContentType
			f["content_b64"] = meta.ContentB64
		}
	}
}

func (s *simulator) authOK(r *http.Request) bool {
	if s.token == "" {
		return true
	}
	bearer := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	xdev := r.Header.Get("X-Device-Token")
	return subtle.ConstantTimeCompare([]byte(bearer), []byte(s.token)) == 1 ||
		subtle.ConstantTimeCompare([]byte(xdev), []byte(s.token)) == 1
}

func (s *simulator) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}

func (s *simulator) handleVersion(w http.ResponseWriter, r *http.Request) {
	if !s.authOK(r) {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	versions := map[string]any{"main": s.mainVersion}
	if s.firmware != "" {
		versions["firmware"] = s.firmware
	}
	payload := map[string]any{
		"protocol":         "dvp",
		"protocol_version": 1,
		"timestamp":        util.TimeToStr(time.Now().UTC()),
		"device": map[string]any{
			"id":          s.deviceID,
			"serial":      s.serial,
			"supplier":    s.supplier,
			"device_type": s.deviceType,
		},
		"versions": versions,
	}
	if len(s.files) > 0 {
		payload["files"] = s.files
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *simulator) handleFile(w http.ResponseWriter, r *http.Request) {
	if !s.authOK(r) {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	path := r.URL.Query().Get("path")
	if path == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing_path"})
		return
	}
	meta, ok := s.fileContents[path]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"path":         path,
		"checksum":     meta.Checksum,
		"encoding":     meta.Encoding,
		"content_type": meta.ContentType,
		"content_b64":  meta.ContentB64,
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func guessContentType(path string) string {
	switch {
	case strings.HasSuffix(path, ".json"):
		return "application/json"
	case strings.HasSuffix(path, ".yaml"), strings.HasSuffix(path, ".yml"):
		return "application/yaml"
	case strings.HasSuffix(path, ".xml"):
		return "application/xml"
	case strings.HasSuffix(path, ".html"), strings.HasSuffix(path, ".htm"):
		return "text/html"
	default:
		return "text/plain"
	}
}

func readValueOrFile(value string) []byte {
	if strings.HasPrefix(value, "@") && len(value) > 1 {
		if raw, err := os.ReadFile(value[1:]); err == nil {
			return raw
		}
	}
	return []byte(value)
}
