// Package differ detects controlled-file drift between two successful polls
// of the same device, capturing file content and rendering unified diffs
// where content is obtainable.
package differ

import (
	"context"
	"encoding/base64"
	"errors"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/fleetver/fleetver/internal/dvp"
	"github.com/fleetver/fleetver/internal/fverrors"
	"github.com/fleetver/fleetver/internal/store"
	"github.com/fleetver/fleetver/internal/store/model"
	"github.com/fleetver/fleetver/internal/util"
	"github.com/pmezard/go-difflib/difflib"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
	"golang.org/x/text/encoding/htmlindex"
)

const (
	ModeAuto   = "auto"
	ModeInline = "inline"
	ModeFetch  = "fetch"

	DefaultMaxBytes = 8192
	maxBytesCeiling = 2_000_000

	diffContextLines = 3
	diffCharLimit    = 50_000

	minFetchTimeout = 200 * time.Millisecond
	maxFetchTimeout = 5 * time.Second
)

// Change records one controlled file whose fingerprint moved. Old and New
// are fingerprints; a nil Old is an added file, a nil New a removed one.
// Content and diff fields are attached best-effort.
type Change struct {
	Path          string  `json:"path"`
	Old           *string `json:"old"`
	New           *string `json:"new"`
	OldContentB64 *string `json:"old_content_b64,omitempty"`
	OldEncoding   *string `json:"old_encoding,omitempty"`
	OldTruncated  *bool   `json:"old_truncated,omitempty"`
	NewContentB64 *string `json:"new_content_b64,omitempty"`
	NewEncoding   *string `json:"new_encoding,omitempty"`
	NewTruncated  *bool   `json:"new_truncated,omitempty"`
	DiffUnified   *string `json:"diff_unified,omitempty"`
	DiffTruncated bool    `json:"diff_truncated,omitempty"`
}

// Outcome carries the change list plus the rule parameters that produced
// it, for the event payload the reconciler emits.
type Outcome struct {
	Changes  []Change
	RuleID   int64
	Patterns []string
	Mode     string
	MaxBytes int
}

type Differ struct {
	store  store.Store
	client *dvp.Client
	log    logrus.FieldLogger
}

func New(st store.Store, client *dvp.Client, log logrus.FieldLogger) *Differ {
	return &Differ{store: st, client: client, log: log}
}

// Check compares the current poll's controlled files against the previous
// successful snapshot. It returns a nil Outcome when no rule with patterns
// governs the device, the poll failed, or the current payload does not
// report files at all. The first payload that reports files establishes
// baseline observations and yields zero changes.
func (d *Differ) Check(ctx context.Context, device *model.Device, result dvp.PollResult, prev *model.DeviceSnapshot, snapshotID int64) (*Outcome, error) {
	if !result.Success {
		return nil, nil
	}
	rule, err := d.store.FileRule().Get(ctx, device.ClusterID, device.Vendor, device.Model)
	if err != nil {
		if errors.Is(err, fverrors.ErrResourceNotFound) {
			return nil, nil
		}
		return nil, err
	}
	patterns := rule.Patterns()
	if len(patterns) == 0 {
		return nil, nil
	}
	mode, maxBytes := normalizeRule(rule)

	currEntries, currSupported := extractEntries(result.Payload)
	if !currSupported {
		return nil, nil
	}
	prevEntries, prevSupported := extractEntries(prev.ParsedPayload())

	currSel := selectControlled(currEntries, patterns)
	var prevSel map[string]fileEntry
	if prevSupported {
		prevSel = selectControlled(prevEntries, patterns)
	}
	if len(currSel) == 0 && len(prevSel) == 0 {
		return nil, nil
	}

	fetchTimeout := fetchTimeoutFor(result.LatencyMs)
	target := dvp.TargetFromDevice(device)

	// Capture current content up front so a future diff has its old side
	// even if this pass produces no changes.
	for _, entry := range currSel {
		if _, err := d.ensureObservation(ctx, device, target, entry, snapshotID, fetchTimeout, mode, maxBytes); err != nil {
			d.log.Debugf("observation capture for %s %s failed: %v", device.DeviceKey, entry.Path, err)
		}
	}

	outcome := &Outcome{RuleID: rule.ID, Patterns: patterns, Mode: mode, MaxBytes: maxBytes}
	if !prevSupported {
		return outcome, nil
	}

	for _, path := range sortedPaths(prevSel, currSel) {
		prevEntry, hasPrev := prevSel[path]
		currEntry, hasCurr := currSel[path]
		var oldFP, newFP *string
		if hasPrev {
			oldFP = &prevEntry.Fingerprint
		}
		if hasCurr {
			newFP = &currEntry.Fingerprint
		}
		if lo.FromPtr(oldFP) == lo.FromPtr(newFP) && hasPrev == hasCurr {
			continue
		}
		change := Change{Path: path, Old: oldFP, New: newFP}
		d.enrich(ctx, device, target, &change, prevSel, currSel, snapshotID, fetchTimeout, mode, maxBytes)
		outcome.Changes = append(outcome.Changes, change)
	}
	return outcome, nil
}

// enrich attaches old/new content and, when both sides decode, a unified
// diff. Everything here is best-effort.
func (d *Differ) enrich(ctx context.Context, device *model.Device, target dvp.Target, change *Change, prevSel, currSel map[string]fileEntry, snapshotID int64, fetchTimeout time.Duration, mode string, maxBytes int) {
	oldFP := lo.FromPtr(change.Old)
	newFP := lo.FromPtr(change.New)

	var oldContent *contentRef
	if prevEntry, ok := prevSel[change.Path]; ok && prevEntry.ContentB64 != nil && oldFP != "" {
		if trimmed, didTrunc, ok := truncateB64(*prevEntry.ContentB64, maxBytes); ok {
			oldContent = &contentRef{
				ContentB64: trimmed,
				Encoding:   prevEntry.Encoding,
				Truncated:  prevEntry.Truncated || didTrunc,
			}
		}
	}
	if oldContent == nil && oldFP != "" {
		if obs, err := d.store.Observation().Get(ctx, device.ID, change.Path, oldFP); err == nil && obs.ContentB64 != nil {
			oldContent = &contentRef{ContentB64: *obs.ContentB64, Encoding: obs.Encoding, Truncated: obs.Truncated}
		}
	}

	var newContent *contentRef
	if currEntry, ok := currSel[change.Path]; ok && newFP != "" {
		obs, err := d.ensureObservation(ctx, device, target, currEntry, snapshotID, fetchTimeout, mode, maxBytes)
		if err == nil && obs != nil && obs.ContentB64 != nil {
			newContent = &contentRef{ContentB64: *obs.ContentB64, Encoding: obs.Encoding, Truncated: obs.Truncated}
		}
	}

	if oldContent != nil {
		change.OldContentB64 = &oldContent.ContentB64
		change.OldEncoding = oldContent.Encoding
		change.OldTruncated = &oldContent.Truncated
	}
	if newContent != nil {
		change.NewContentB64 = &newContent.ContentB64
		change.NewEncoding = newContent.Encoding
		change.NewTruncated = &newContent.Truncated
	}
	if oldContent == nil || newContent == nil || maxBytes <= 0 {
		return
	}

	oldBytes, errOld := base64.StdEncoding.DecodeString(oldContent.ContentB64)
	newBytes, errNew := base64.StdEncoding.DecodeString(newContent.ContentB64)
	if errOld != nil || errNew != nil {
		return
	}
	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(decodeText(oldBytes, oldContent.Encoding)),
		B:        difflib.SplitLines(decodeText(newBytes, newContent.Encoding)),
		FromFile: diffLabel(change.Path, oldFP, "old"),
		ToFile:   diffLabel(change.Path, newFP, "new"),
		Context:  diffContextLines,
	})
	if err != nil {
		return
	}
	if len(diff) > diffCharLimit {
		diff = diff[:diffCharLimit] + "\n... (diff truncated)\n"
		change.DiffTruncated = true
	}
	change.DiffUnified = &diff
}

type contentRef struct {
	ContentB64 string
	Encoding   *string
	Truncated  bool
}

// ensureObservation returns the cached observation for the entry's
// fingerprint, capturing one first when none exists. Inline content is
// preferred in auto/inline mode; auto/fetch mode falls back to the device's
// file endpoint. With maxBytes zero nothing is captured.
func (d *Differ) ensureObservation(ctx context.Context, device *model.Device, target dvp.Target, entry fileEntry, snapshotID int64, fetchTimeout time.Duration, mode string, maxBytes int) (*model.FileObservation, error) {
	if entry.Path == "" || entry.Fingerprint == "" || maxBytes <= 0 {
		return nil, nil
	}
	existing, err := d.store.Observation().Get(ctx, device.ID, entry.Path, entry.Fingerprint)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, fverrors.ErrResourceNotFound) {
		return nil, err
	}

	obs := model.FileObservation{
		DeviceID:    device.ID,
		Path:        entry.Path,
		Fingerprint: entry.Fingerprint,
		SnapshotID:  snapshotID,
		Encoding:    entry.Encoding,
		ContentType: entry.ContentType,
		Source:      "inline",
	}

	captured := false
	if mode != ModeFetch && entry.ContentB64 != nil {
		if trimmed, didTrunc, ok := truncateB64(*entry.ContentB64, maxBytes); ok {
			obs.ContentB64 = &trimmed
			obs.Truncated = didTrunc
			captured = true
		}
	}
	if !captured && mode != ModeInline {
		content, err := d.client.FetchFile(ctx, target, entry.Path, fetchTimeout)
		if err != nil {
			return nil, nil
		}
		trimmed, didTrunc, ok := truncateB64(content.ContentB64, maxBytes)
		if !ok {
			return nil, nil
		}
		obs.ContentB64 = &trimmed
		obs.Truncated = didTrunc
		obs.Source = "fetch"
		if content.Encoding != nil {
			obs.Encoding = content.Encoding
		}
		if content.ContentType != nil {
			obs.ContentType = content.ContentType
		}
		captured = true
	}
	if !captured {
		return nil, nil
	}
	if err := d.store.Observation().Record(ctx, &obs); err != nil {
		return nil, err
	}
	return d.store.Observation().Get(ctx, device.ID, entry.Path, entry.Fingerprint)
}

func normalizeRule(rule *model.ControlledFileRule) (string, int) {
	mode := strings.ToLower(strings.TrimSpace(rule.Mode))
	switch mode {
	case ModeAuto, ModeInline, ModeFetch:
	default:
		mode = ModeAuto
	}
	maxBytes := rule.MaxBytes
	if maxBytes < 0 {
		maxBytes = 0
	}
	if maxBytes > maxBytesCeiling {
		maxBytes = maxBytesCeiling
	}
	return mode, maxBytes
}

// fetchTimeoutFor derives the secondary-fetch timeout from the probe's
// observed latency, clamped to a sane band.
func fetchTimeoutFor(latencyMs *int64) time.Duration {
	if latencyMs == nil {
		return dvp.DefaultTimeout
	}
	timeout := time.Duration(*latencyMs) * time.Millisecond
	if timeout < minFetchTimeout {
		return minFetchTimeout
	}
	if timeout > maxFetchTimeout {
		return maxFetchTimeout
	}
	return timeout
}

// truncateB64 decodes, cuts at maxBytes, and re-encodes. The third return
// is false when the content does not decode or maxBytes disables capture.
func truncateB64(contentB64 string, maxBytes int) (string, bool, bool) {
	if maxBytes <= 0 {
		return "", false, false
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(contentB64))
	if err != nil {
		return "", false, false
	}
	if len(raw) <= maxBytes {
		return base64.StdEncoding.EncodeToString(raw), false, true
	}
	return base64.StdEncoding.EncodeToString(raw[:maxBytes]), true, true
}

// decodeText renders captured bytes as UTF-8 for diffing. The charset the
// device declared for the file is honored when the encoding index knows it;
// anything else falls back to a lossy UTF-8 read.
func decodeText(raw []byte, declared *string) string {
	name := strings.ToLower(strings.TrimSpace(lo.FromPtr(declared)))
	if name != "" && name != "utf-8" && name != "utf8" {
		if enc, err := htmlindex.Get(name); err == nil {
			if decoded, err := enc.NewDecoder().Bytes(raw); err == nil {
				raw = decoded
			}
		}
	}
	return strings.ToValidUTF8(string(raw), "�")
}

func diffLabel(path, fingerprint, fallback string) string {
	if fingerprint == "" {
		fingerprint = fallback
	}
	return path + "@" + fingerprint
}

func sortedPaths(a, b map[string]fileEntry) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	for p := range a {
		seen[p] = struct{}{}
	}
	for p := range b {
		seen[p] = struct{}{}
	}
	paths := make([]string, 0, len(seen))
	for p := range seen {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// fileEntry is one normalized files[] element. Fingerprint is the reported
// checksum or, failing that, a synthetic size/mtime token; entries with
// neither are dropped.
type fileEntry struct {
	Path        string
	Fingerprint string
	ContentB64  *string
	Encoding    *string
	ContentType *string
	Truncated   bool
}

// extractEntries normalizes a payload's files array. The second return is
// false when the payload has no files array at all, which is distinct from
// an empty one: a device that never reports files is unsupported, not
// empty.
func extractEntries(payload map[string]any) (map[string]fileEntry, bool) {
	if payload == nil {
		return nil, false
	}
	raw, ok := payload["files"].([]any)
	if !ok {
		return nil, false
	}
	out := make(map[string]fileEntry, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		path := stringField(m, "path")
		if path == "" {
			path = stringField(m, "name")
		}
		if path == "" {
			continue
		}

		fingerprint := stringField(m, "checksum")
		if fingerprint == "" {
			size, hasSize := m["size"]
			mtime, hasMtime := m["mtime"]
			if hasSize || hasMtime {
				fingerprint = "size=" + scalarString(size) + "|mtime=" + scalarString(mtime)
			}
		}
		if fingerprint == "" {
			continue
		}

		entry := fileEntry{Path: path, Fingerprint: fingerprint}
		if enc := stringField(m, "encoding"); enc != "" {
			entry.Encoding = &enc
		}
		if ct := stringField(m, "content_type"); ct != "" {
			entry.ContentType = &ct
		}
		if truncated, ok := m["truncated"].(bool); ok {
			entry.Truncated = truncated
		}
		if b64 := stringField(m, "content_b64"); b64 != "" {
			entry.ContentB64 = &b64
		} else if content, ok := m["content"].(string); ok {
			synthesized := base64.StdEncoding.EncodeToString([]byte(content))
			entry.ContentB64 = &synthesized
			entry.Encoding = lo.ToPtr("utf-8")
		}
		out[path] = entry
	}
	return out, true
}

func selectControlled(entries map[string]fileEntry, patterns []string) map[string]fileEntry {
	if len(entries) == 0 || len(patterns) == 0 {
		return nil
	}
	out := make(map[string]fileEntry)
	for path, entry := range entries {
		for _, pattern := range patterns {
			if util.MatchGlob(pattern, path) {
				out[path] = entry
				break
			}
		}
	}
	return out
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return strings.TrimSpace(s)
}

// scalarString renders size/mtime values the way the device sent them,
// with JSON's float64 integers flattened back to integer form.
func scalarString(v any) string {
	switch n := v.(type) {
	case nil:
		return "None"
	case string:
		return n
	case float64:
		if n == float64(int64(n)) {
			return strconv.FormatInt(int64(n), 10)
		}
		return strconv.FormatFloat(n, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(n)
	default:
		return ""
	}
}
