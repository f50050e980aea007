// Package v1 defines the JSON resources and request bodies served by the
// fleetver API.
package v1

import (
	"encoding/json"
	"strings"
)

type Cluster struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	Description *string `json:"description"`
	CreatedAt   string  `json:"created_at"`
}

type Device struct {
	ID           int64   `json:"id"`
	ClusterID    int64   `json:"cluster_id"`
	DeviceSerial string  `json:"device_serial"`
	Supplier     string  `json:"supplier"`
	DeviceType   string  `json:"device_type"`
	LineNo       *string `json:"line_no"`
	IP           string  `json:"ip"`
	Port         int     `json:"port"`
	Protocol     string  `json:"protocol"`
	Path         string  `json:"path"`
	AuthType     string  `json:"auth_type"`
	AuthToken    *string `json:"auth_token"`
	Enabled      bool    `json:"enabled"`
	LastState    *string `json:"last_state"`
	LastStateAt  *string `json:"last_state_at"`
	CreatedAt    string  `json:"created_at"`
	UpdatedAt    string  `json:"updated_at"`
}

type Baseline struct {
	ID                  int64    `json:"id"`
	ClusterID           int64    `json:"cluster_id"`
	Supplier            string   `json:"supplier"`
	DeviceType          string   `json:"device_type"`
	ExpectedMainVersion string   `json:"expected_main_version"`
	AllowedMainGlobs    []string `json:"allowed_main_globs"`
	Note                *string  `json:"note"`
	EffectiveFrom       *string  `json:"effective_from"`
	CreatedAt           string   `json:"created_at"`
}

type ControlledFileRule struct {
	ID         int64    `json:"id"`
	ClusterID  int64    `json:"cluster_id"`
	Supplier   string   `json:"supplier"`
	DeviceType string   `json:"device_type"`
	Paths      []string `json:"paths"`
	Mode       string   `json:"mode"`
	MaxBytes   int      `json:"max_bytes"`
	Note       *string  `json:"note"`
	CreatedAt  string   `json:"created_at"`
}

type VersionCatalogEntry struct {
	ID          int64   `json:"id"`
	Supplier    string  `json:"supplier"`
	DeviceType  string  `json:"device_type"`
	MainVersion string  `json:"main_version"`
	ChangelogMD *string `json:"changelog_md"`
	ReleasedAt  *string `json:"released_at"`
	RiskLevel   *string `json:"risk_level"`
	Checksum    *string `json:"checksum"`
	CreatedAt   string  `json:"created_at"`
}

type Snapshot struct {
	ID              int64           `json:"id"`
	DeviceID        int64           `json:"device_id"`
	ObservedAt      string          `json:"observed_at"`
	Success         bool            `json:"success"`
	HTTPStatus      *int            `json:"http_status"`
	LatencyMs       *int64          `json:"latency_ms"`
	Error           *string         `json:"error"`
	ProtocolVersion *int            `json:"protocol_version"`
	MainVersion     *string         `json:"main_version"`
	FirmwareVersion *string         `json:"firmware_version"`
	Payload         json.RawMessage `json:"payload,omitempty"`
}

type Event struct {
	ID        int64           `json:"id"`
	DeviceID  int64           `json:"device_id"`
	CreatedAt string          `json:"created_at"`
	EventType string          `json:"event_type"`
	OldState  *string         `json:"old_state"`
	NewState  *string         `json:"new_state"`
	Message   *string         `json:"message"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// StatusEntry is one row of the fleet status board. ControlledFilesChange
// carries the most recent controlled_files_change event that has not been
// acknowledged yet.
type StatusEntry struct {
	Device                Device    `json:"device"`
	Baseline              *Baseline `json:"baseline"`
	LatestSnapshot        *Snapshot `json:"latest_snapshot"`
	State                 string    `json:"state"`
	ControlledFilesChange *Event    `json:"controlled_files_change,omitempty"`
}

type VersionHistoryItem struct {
	MainVersion string  `json:"main_version"`
	FirstSeen   string  `json:"first_seen"`
	LastSeen    string  `json:"last_seen"`
	Samples     int64   `json:"samples"`
	ChangelogMD *string `json:"changelog_md"`
	ReleasedAt  *string `json:"released_at"`
	RiskLevel   *string `json:"risk_level"`
	Checksum    *string `json:"checksum"`
}

type DeviceDetail struct {
	Device                 Device               `json:"device"`
	Baseline               *Baseline            `json:"baseline"`
	ControlledFileRule     *ControlledFileRule  `json:"controlled_file_rule"`
	LatestSnapshot         *Snapshot            `json:"latest_snapshot"`
	ObservedVersionCatalog *VersionCatalogEntry `json:"observed_version_catalog"`
	ExpectedVersionCatalog *VersionCatalogEntry `json:"expected_version_catalog"`
}

type SessionUser struct {
	UserID   int64  `json:"user_id,omitempty"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

type ClusterList struct {
	Items []Cluster `json:"items"`
}

type DeviceList struct {
	Items []Device `json:"items"`
}

type BaselineList struct {
	Items []Baseline `json:"items"`
}

type FileRuleList struct {
	Items []ControlledFileRule `json:"items"`
}

type VersionCatalogList struct {
	Items []VersionCatalogEntry `json:"items"`
}

type SnapshotList struct {
	Items []Snapshot `json:"items"`
}

type VersionHistoryList struct {
	Items []VersionHistoryItem `json:"items"`
}

type EventList struct {
	Items     []Event `json:"items"`
	Timestamp string  `json:"timestamp"`
}

type StatusList struct {
	Items     []StatusEntry `json:"items"`
	Timestamp string        `json:"timestamp"`
}

type InfoResponse struct {
	Service   string `json:"service"`
	Version   string `json:"version"`
	CWD       string `json:"cwd"`
	DBPath    string `json:"db_path"`
	Timestamp string `json:"timestamp"`
}

type OKResponse struct {
	OK bool `json:"ok"`
}

type DeviceAuth struct {
	Type  string `json:"type"`
	Token string `json:"token"`
}

// GlobList accepts either a JSON array of patterns or a single
// comma-separated string. Patterns are trimmed and empty ones dropped.
type GlobList []string

func (g *GlobList) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*g = nil
		return nil
	}
	var arr []string
	if err := json.Unmarshal(data, &arr); err == nil {
		*g = normalizeGlobs(arr)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*g = normalizeGlobs(strings.Split(s, ","))
	return nil
}

func normalizeGlobs(raw []string) []string {
	out := make([]string, 0, len(raw))
	for _, p := range raw {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

type SetupRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type SetupResponse struct {
	OK     bool  `json:"ok"`
	UserID int64 `json:"user_id"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	OK   bool        `json:"ok"`
	User SessionUser `json:"user"`
}

type LogoutResponse struct {
	OK   bool         `json:"ok"`
	User *SessionUser `json:"user"`
}

type MeResponse struct {
	User SessionUser `json:"user"`
}

type ClusterCreateRequest struct {
	Name        string  `json:"name"`
	Description *string `json:"description"`
}

type ClusterCreateResponse struct {
	ID int64 `json:"id"`
}

type DeviceCreateRequest struct {
	ClusterID    int64       `json:"cluster_id"`
	DeviceSerial string      `json:"device_serial"`
	Supplier     string      `json:"supplier"`
	DeviceType   string      `json:"device_type"`
	LineNo       *string     `json:"line_no"`
	IP           string      `json:"ip"`
	Port         *int        `json:"port"`
	Protocol     string      `json:"protocol"`
	Path         string      `json:"path"`
	Auth         *DeviceAuth `json:"auth"`
	Enabled      *bool       `json:"enabled"`
}

type DeviceCreateResponse struct {
	ID int64 `json:"id"`
}

// DeviceUpdateRequest applies only the fields present in the body.
type DeviceUpdateRequest struct {
	ClusterID    *int64      `json:"cluster_id"`
	DeviceSerial *string     `json:"device_serial"`
	Supplier     *string     `json:"supplier"`
	DeviceType   *string     `json:"device_type"`
	LineNo       *string     `json:"line_no"`
	IP           *string     `json:"ip"`
	Port         *int        `json:"port"`
	Protocol     *string     `json:"protocol"`
	Path         *string     `json:"path"`
	Enabled      *bool       `json:"enabled"`
	Auth         *DeviceAuth `json:"auth"`
}

type BaselineUpsertRequest struct {
	ClusterID           int64    `json:"cluster_id"`
	Supplier            string   `json:"supplier"`
	DeviceType          string   `json:"device_type"`
	ExpectedMainVersion string   `json:"expected_main_version"`
	AllowedMainGlobs    GlobList `json:"allowed_main_globs"`
	Note                *string  `json:"note"`
	EffectiveFrom       *string  `json:"effective_from"`
}

type FileRuleUpsertRequest struct {
	ClusterID  int64    `json:"cluster_id"`
	Supplier   string   `json:"supplier"`
	DeviceType string   `json:"device_type"`
	Paths      GlobList `json:"paths"`
	Mode       string   `json:"mode"`
	MaxBytes   *int     `json:"max_bytes"`
	Note       *string  `json:"note"`
}

type CatalogUpsertRequest struct {
	Supplier    string  `json:"supplier"`
	DeviceType  string  `json:"device_type"`
	MainVersion string  `json:"main_version"`
	ChangelogMD *string `json:"changelog_md"`
	ReleasedAt  *string `json:"released_at"`
	RiskLevel   *string `json:"risk_level"`
	Checksum    *string `json:"checksum"`
}

type RegisterCluster struct {
	ID   *int64 `json:"id"`
	Name string `json:"name"`
}

type RegisterRequest struct {
	RegistrationToken string           `json:"registration_token"`
	Cluster           *RegisterCluster `json:"cluster"`
	DeviceSerial      string           `json:"device_serial"`
	Supplier          string           `json:"supplier"`
	DeviceType        string           `json:"device_type"`
	DeviceKeyPrefix   string           `json:"device_key_prefix"`
	LineNo            *string          `json:"line_no"`
	Auth              *DeviceAuth      `json:"auth"`
	IP                string           `json:"ip"`
	Port              *int             `json:"port"`
	Path              string           `json:"path"`
	DVPURL            string           `json:"dvp_url"`
	PreferRemoteIP    bool             `json:"prefer_remote_ip"`
	Verify            *bool            `json:"verify"`
	TimeoutS          *float64         `json:"timeout_s"`
}

// PollSummary reports the outcome of polling one device. DeviceID and
// SnapshotID are zero when the summary comes from a registration pre-poll
// that did not record anything yet.
type PollSummary struct {
	DeviceID    int64   `json:"device_id,omitempty"`
	SnapshotID  int64   `json:"snapshot_id,omitempty"`
	Success     bool    `json:"success"`
	HTTPStatus  *int    `json:"http_status"`
	LatencyMs   *int64  `json:"latency_ms"`
	Error       *string `json:"error"`
	MainVersion *string `json:"main_version"`
}

type RegisterResponse struct {
	DeviceID     int64        `json:"device_id"`
	Action       string       `json:"action"`
	IP           string       `json:"ip"`
	Port         int          `json:"port"`
	Path         string       `json:"path"`
	Verification *PollSummary `json:"verification"`
}

// MissingFieldsError is the register failure body returned when device
// identity could not be supplied or inferred.
type MissingFieldsError struct {
	Error    string       `json:"error"`
	Required []string     `json:"required"`
	Hint     string       `json:"hint"`
	PrePoll  *PollSummary `json:"pre_poll"`
}

type PollRequest struct {
	DeviceIDs []int64  `json:"device_ids"`
	TimeoutS  *float64 `json:"timeout_s"`
}

type PollResponse struct {
	StartedAt  string        `json:"started_at"`
	FinishedAt string        `json:"finished_at"`
	OK         int           `json:"ok"`
	Fail       int           `json:"fail"`
	Results    []PollSummary `json:"results"`
}

type DiscoverRequest struct {
	ClusterID       *int64      `json:"cluster_id"`
	CIDR            string      `json:"cidr"`
	Hosts           []string    `json:"hosts"`
	Port            *int        `json:"port"`
	Path            string      `json:"path"`
	Protocol        string      `json:"protocol"`
	TimeoutS        *float64    `json:"timeout_s"`
	MaxHosts        *int        `json:"max_hosts"`
	LineNo          *string     `json:"line_no"`
	Auth            *DeviceAuth `json:"auth"`
	DeviceKeyPrefix string      `json:"device_key_prefix"`
}

type DiscoverItem struct {
	IP           string `json:"ip"`
	Success      bool   `json:"success"`
	Error        string `json:"error,omitempty"`
	DeviceID     int64  `json:"device_id,omitempty"`
	DeviceSerial string `json:"device_serial,omitempty"`
	Supplier     string `json:"supplier,omitempty"`
	DeviceType   string `json:"device_type,omitempty"`
	MainVersion  string `json:"main_version,omitempty"`
	Action       string `json:"action,omitempty"`
}

type DiscoverResponse struct {
	StartedAt  string         `json:"started_at"`
	FinishedAt string         `json:"finished_at"`
	Targets    int            `json:"targets"`
	Created    int            `json:"created"`
	Updated    int            `json:"updated"`
	Items      []DiscoverItem `json:"items"`
}

type AckResponse struct {
	OK               bool   `json:"ok"`
	AckChangeEventID *int64 `json:"ack_change_event_id"`
}
