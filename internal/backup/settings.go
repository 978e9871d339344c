package backup

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Settings is the operator-configured backup policy. It always exists: loading
// a missing or corrupt record yields the defaults.
type Settings struct {
	Enabled         bool         `json:"enabled"`
	IntervalMinutes int          `json:"intervalMinutes"`
	Provider        ProviderType `json:"provider"`
	PathPrefix      *string      `json:"pathPrefix"`
}

// SettingsPatch is a partial settings update. Nil fields are left unchanged.
// PathPrefixSet distinguishes "clear the prefix" (set, nil value) from
// "leave it alone" (unset).
type SettingsPatch struct {
	Enabled         *bool
	IntervalMinutes *int
	Provider        *ProviderType
	PathPrefix      *string
	PathPrefixSet   bool
}

var parentSegmentRe = regexp.MustCompile(`(^|/)\.\.(/|$)`)

// SettingsStore persists the policy record in the shared config slot.
type SettingsStore struct {
	config ConfigStore
	limits Limits
}

func NewSettingsStore(config ConfigStore, limits Limits) *SettingsStore {
	return &SettingsStore{config: config, limits: limits}
}

// Load reads the persisted settings. A missing, malformed, or wrong-shape
// record self-heals to the defaults; corruption is never fatal here.
func (s *SettingsStore) Load() (Settings, error) {
	raw, ok, err := s.config.Get(settingsKey)
	if err != nil {
		return Settings{}, err
	}
	if !ok {
		return defaultSettings(s.limits), nil
	}
	return parseSettings(raw, s.limits), nil
}

// Save overwrites the persisted settings.
func (s *SettingsStore) Save(settings Settings) error {
	data, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("marshal backup settings: %w", err)
	}
	return s.config.Set(settingsKey, string(data))
}

func defaultSettings(limits Limits) Settings {
	return Settings{
		Enabled:         false,
		IntervalMinutes: limits.DefaultIntervalMinutes,
		Provider:        ProviderWebDAV,
		PathPrefix:      nil,
	}
}

func parseSettings(raw string, limits Limits) Settings {
	var rec struct {
		Enabled         *bool    `json:"enabled"`
		IntervalMinutes *float64 `json:"intervalMinutes"`
		Provider        *string  `json:"provider"`
		PathPrefix      *string  `json:"pathPrefix"`
	}
	if err := json.Unmarshal([]byte(raw), &rec); err != nil && !isFieldTypeError(err) {
		return defaultSettings(limits)
	}

	settings := defaultSettings(limits)
	if rec.Enabled != nil {
		settings.Enabled = *rec.Enabled
	}
	if rec.IntervalMinutes != nil {
		settings.IntervalMinutes = clampIntervalMinutes(*rec.IntervalMinutes, limits)
	}
	if rec.Provider != nil && *rec.Provider == string(ProviderS3) {
		settings.Provider = ProviderS3
	}
	if rec.PathPrefix != nil {
		settings.PathPrefix = normalizePathPrefix(*rec.PathPrefix, limits)
	}
	return settings
}

// isFieldTypeError reports whether err is a type mismatch on a named field.
// The decoder skips the bad value and still populates the record's other
// fields, so such a record is salvaged field by field rather than healed to
// defaults wholesale. A mismatch at the top level (Field == "") means the
// value is not an object at all.
func isFieldTypeError(err error) bool {
	var typeErr *json.UnmarshalTypeError
	return errors.As(err, &typeErr) && typeErr.Field != ""
}

func clampIntervalMinutes(value float64, limits Limits) int {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return limits.DefaultIntervalMinutes
	}
	rounded := int(math.Floor(value))
	if rounded < limits.MinIntervalMinutes {
		return limits.MinIntervalMinutes
	}
	if rounded > limits.MaxIntervalMinutes {
		return limits.MaxIntervalMinutes
	}
	return rounded
}

// normalizePathPrefix collapses a user-supplied prefix into a clean slash path:
// backslashes become slashes, repeated slashes collapse, leading/trailing
// slashes are stripped, and the result is length-capped. Empty input maps to nil.
func normalizePathPrefix(value string, limits Limits) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}

	collapsed := strings.ReplaceAll(trimmed, `\`, "/")
	for strings.Contains(collapsed, "//") {
		collapsed = strings.ReplaceAll(collapsed, "//", "/")
	}
	collapsed = strings.Trim(collapsed, "/")
	if collapsed == "" {
		return nil
	}
	if len(collapsed) > limits.MaxPathPrefixLen {
		// Back off to a rune boundary so the cap never splits a multi-byte
		// character into invalid UTF-8.
		cut := limits.MaxPathPrefixLen
		for cut > 0 && !utf8.RuneStart(collapsed[cut]) {
			cut--
		}
		collapsed = collapsed[:cut]
	}
	return &collapsed
}

// ParseSettingsPatch validates a raw patch payload. Unknown fields, out-of-range
// intervals, and parent-directory prefixes are each rejected with a distinct
// error; an empty patch is rejected outright.
func ParseSettingsPatch(raw []byte, limits Limits) (SettingsPatch, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return SettingsPatch{}, fmt.Errorf("JSON object is required")
	}

	for key := range fields {
		switch key {
		case "enabled", "intervalMinutes", "provider", "pathPrefix":
		default:
			return SettingsPatch{}, fmt.Errorf("unsupported field: %s", key)
		}
	}

	var patch SettingsPatch

	if rawVal, ok := fields["enabled"]; ok {
		var enabled bool
		if err := json.Unmarshal(rawVal, &enabled); err != nil {
			return SettingsPatch{}, fmt.Errorf("enabled must be boolean")
		}
		patch.Enabled = &enabled
	}

	if rawVal, ok := fields["intervalMinutes"]; ok {
		var interval float64
		if err := json.Unmarshal(rawVal, &interval); err != nil {
			return SettingsPatch{}, fmt.Errorf("intervalMinutes must be a number")
		}
		value := int(math.Floor(interval))
		if value < limits.MinIntervalMinutes || value > limits.MaxIntervalMinutes {
			return SettingsPatch{}, fmt.Errorf("intervalMinutes must be between %d and %d",
				limits.MinIntervalMinutes, limits.MaxIntervalMinutes)
		}
		patch.IntervalMinutes = &value
	}

	if rawVal, ok := fields["provider"]; ok {
		var provider string
		if err := json.Unmarshal(rawVal, &provider); err != nil ||
			(provider != string(ProviderWebDAV) && provider != string(ProviderS3)) {
			return SettingsPatch{}, fmt.Errorf("provider must be %q or %q", ProviderWebDAV, ProviderS3)
		}
		p := ProviderType(provider)
		patch.Provider = &p
	}

	if rawVal, ok := fields["pathPrefix"]; ok {
		patch.PathPrefixSet = true
		if string(rawVal) != "null" {
			var prefix string
			if err := json.Unmarshal(rawVal, &prefix); err != nil {
				return SettingsPatch{}, fmt.Errorf("pathPrefix must be string or null")
			}
			normalized := normalizePathPrefix(prefix, limits)
			if normalized != nil && parentSegmentRe.MatchString(*normalized) {
				return SettingsPatch{}, fmt.Errorf("pathPrefix cannot contain parent directory segments")
			}
			patch.PathPrefix = normalized
		}
	}

	if patch.Enabled == nil && patch.IntervalMinutes == nil && patch.Provider == nil && !patch.PathPrefixSet {
		return SettingsPatch{}, fmt.Errorf("no backup settings fields provided")
	}

	return patch, nil
}

// apply merges the patch onto current, leaving unpatched fields as they are.
func (p SettingsPatch) apply(current Settings) Settings {
	next := current
	if p.Enabled != nil {
		next.Enabled = *p.Enabled
	}
	if p.IntervalMinutes != nil {
		next.IntervalMinutes = *p.IntervalMinutes
	}
	if p.Provider != nil {
		next.Provider = *p.Provider
	}
	if p.PathPrefixSet {
		next.PathPrefix = p.PathPrefix
	}
	return next
}
