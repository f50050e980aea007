// Package dvp implements the consumer side of the DVP v1 device discovery
// protocol: a single-probe HTTP client plus the file sub-endpoint fetch.
package dvp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/fleetver/fleetver/internal/store/model"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
)

const (
	// ProtocolDVP1HTTP is the only device protocol the manager speaks.
	ProtocolDVP1HTTP = "dvp1-http"
	// DefaultPath is the DVP v1 well-known endpoint.
	DefaultPath = "/.well-known/device-version"
	// DefaultTimeout bounds one probe.
	DefaultTimeout = 2 * time.Second

	AuthNone         = "none"
	AuthBearer       = "bearer"
	AuthXDeviceToken = "x-device-token"
)

// Target is the addressing needed to probe one device. It is decoupled from
// the device record so registration and discovery can probe hosts that are
// not persisted yet.
type Target struct {
	IP        string
	Port      int
	Path      string
	Protocol  string
	AuthType  string
	AuthToken string
}

// TargetFromDevice copies the probe-relevant fields of a stored device.
func TargetFromDevice(d *model.Device) Target {
	t := Target{
		IP:       d.IP,
		Port:     d.Port,
		Path:     d.Path,
		Protocol: d.Protocol,
		AuthType: d.AuthType,
	}
	if d.AuthToken != nil {
		t.AuthToken = *d.AuthToken
	}
	return t
}

// PollResult is the normalized outcome of one probe. LatencyMs is populated
// whether or not the probe succeeded; Payload keeps the device's response
// as-is when one was parsed.
type PollResult struct {
	Success         bool
	HTTPStatus      *int
	LatencyMs       *int64
	Error           *string
	ProtocolVersion *int
	MainVersion     *string
	FirmwareVersion *string
	Payload         map[string]any
}

// PayloadJSON renders the retained payload for snapshot storage, nil when
// there is none.
func (r *PollResult) PayloadJSON() *string {
	if r.Payload == nil {
		return nil
	}
	data, err := json.Marshal(r.Payload)
	if err != nil {
		return nil
	}
	return lo.ToPtr(string(data))
}

type Client struct {
	log logrus.FieldLogger
}

func NewClient(log logrus.FieldLogger) *Client {
	return &Client{log: log}
}

func failure(err string, latencyMs int64) PollResult {
	return PollResult{
		Success:   false,
		Error:     &err,
		LatencyMs: lo.ToPtr(latencyMs),
	}
}

// Poll performs one GET against the target's DVP endpoint and validates the
// response. Unsupported protocol tags fail without any I/O.
func (c *Client) Poll(ctx context.Context, target Target, timeout time.Duration) PollResult {
	if target.Protocol != ProtocolDVP1HTTP {
		err := fmt.Sprintf("unsupported_device_protocol:%s", target.Protocol)
		return PollResult{Success: false, Error: &err}
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	path := target.Path
	if path == "" {
		path = DefaultPath
	}
	probeURL := fmt.Sprintf("http://%s%s", joinHostPort(target.IP, target.Port), path)

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, probeURL, nil)
	if err != nil {
		return failure(fmt.Sprintf("url_error:%v", err), 0)
	}
	req.Header.Set("Accept", "application/json")
	setAuthHeaders(req.Header, target.AuthType, target.AuthToken)

	start := time.Now()
	resp, err := http.DefaultClient.Do(req)
	latencyMs := time.Since(start).Milliseconds()
	if err != nil {
		var reason string
		if urlErr, ok := err.(*url.Error); ok {
			reason = urlErr.Err.Error()
		} else {
			reason = err.Error()
		}
		return failure(fmt.Sprintf("url_error:%s", reason), latencyMs)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	latencyMs = time.Since(start).Milliseconds()
	if err != nil {
		return failure(fmt.Sprintf("exception:read:%v", err), latencyMs)
	}

	result := PollResult{
		HTTPStatus: lo.ToPtr(resp.StatusCode),
		LatencyMs:  lo.ToPtr(latencyMs),
	}
	if resp.StatusCode != http.StatusOK {
		result.Error = lo.ToPtr(fmt.Sprintf("http_status:%d", resp.StatusCode))
		return result
	}

	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		result.Error = lo.ToPtr(fmt.Sprintf("invalid_json:%v", err))
		return result
	}

	protocol, _ := payload["protocol"].(string)
	protocolVersion, hasVersion := numberAsInt(payload["protocol_version"])
	if protocol != "dvp" || !hasVersion || protocolVersion != 1 {
		result.Error = lo.ToPtr("unsupported_protocol")
		if hasVersion {
			result.ProtocolVersion = lo.ToPtr(protocolVersion)
		}
		result.Payload = payload
		return result
	}

	var mainVersion, firmwareVersion string
	if versions, ok := payload["versions"].(map[string]any); ok {
		if mv, ok := versions["main"].(string); ok {
			mainVersion = strings.TrimSpace(mv)
		}
		if fv, ok := versions["firmware"].(string); ok {
			firmwareVersion = strings.TrimSpace(fv)
		}
	}
	result.ProtocolVersion = lo.ToPtr(1)
	result.Payload = payload
	if firmwareVersion != "" {
		result.FirmwareVersion = &firmwareVersion
	}
	if mainVersion == "" {
		result.Error = lo.ToPtr("missing_versions.main")
		return result
	}

	result.Success = true
	result.MainVersion = &mainVersion
	return result
}

// FileContent is the body of the optional /file sub-endpoint.
type FileContent struct {
	Path        string  `json:"path"`
	ContentB64  string  `json:"content_b64"`
	Encoding    *string `json:"encoding"`
	ContentType *string `json:"content_type"`
}

// FetchFile retrieves one controlled file's content through the DVP file
// sub-endpoint. Any failure returns a nil content: callers treat fetches as
// best-effort.
func (c *Client) FetchFile(ctx context.Context, target Target, filePath string, timeout time.Duration) (*FileContent, error) {
	fetchURL := fmt.Sprintf("http://%s%s/file?path=%s",
		joinHostPort(target.IP, target.Port), DefaultPath, url.QueryEscape(filePath))

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fetchURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	setAuthHeaders(req.Header, target.AuthType, target.AuthToken)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("file endpoint returned %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, err
	}
	var content FileContent
	if err := json.Unmarshal(raw, &content); err != nil {
		return nil, err
	}
	content.ContentB64 = strings.TrimSpace(content.ContentB64)
	if content.ContentB64 == "" {
		return nil, fmt.Errorf("file endpoint returned no content")
	}
	if content.Path == "" {
		content.Path = filePath
	}
	return &content, nil
}

func setAuthHeaders(h http.Header, authType, token string) {
	switch authType {
	case AuthBearer:
		h.Set("Authorization", "Bearer "+token)
	case AuthXDeviceToken:
		h.Set("X-Device-Token", token)
	}
}

func joinHostPort(ip string, port int) string {
	if strings.Contains(ip, ":") && !strings.HasPrefix(ip, "[") {
		return fmt.Sprintf("[%s]:%d", ip, port)
	}
	return fmt.Sprintf("%s:%d", ip, port)
}

// numberAsInt accepts the integer spellings JSON decoding can produce.
func numberAsInt(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), n == float64(int(n))
	case json.Number:
		i, err := n.Int64()
		return int(i), err == nil
	default:
		return 0, false
	}
}
