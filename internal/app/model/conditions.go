package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Condition is one matching criterion of a redirection rule. The closed
// vocabulary of keys maps to one concrete type per key.
type Condition interface {
	Key() string
	Matches(ctx *RequestContext) bool
}

// DeviceTypes and the browser/OS families accepted in rule conditions.
var (
	DeviceTypes = []string{"mobile", "desktop", "tablet"}
	Browsers    = []string{"chrome", "firefox", "safari", "edge", "opera", "ie"}
	OSes        = []string{"windows", "macos", "linux", "android", "ios"}
)

// CountryCondition matches when the resolved country is in the list.
type CountryCondition []string

func (CountryCondition) Key() string { return "country" }

func (c CountryCondition) Matches(ctx *RequestContext) bool {
	if ctx.Country == "" {
		return false
	}
	for _, code := range c {
		if code == ctx.Country {
			return true
		}
	}
	return false
}

// DeviceTypeCondition matches the request's device class. Tablets are
// folded into "mobile" unless the rule names "tablet" explicitly.
type DeviceTypeCondition string

func (DeviceTypeCondition) Key() string { return "device_type" }

func (c DeviceTypeCondition) Matches(ctx *RequestContext) bool {
	if string(c) == "tablet" {
		return ctx.Tablet
	}
	return string(c) == ctx.DeviceType
}

// BrowserCondition matches the lowercased UA browser family exactly.
type BrowserCondition string

func (BrowserCondition) Key() string { return "browser" }

func (c BrowserCondition) Matches(ctx *RequestContext) bool {
	return ctx.Browser != "" && string(c) == ctx.Browser
}

// OSCondition matches the lowercased UA operating-system family exactly.
type OSCondition string

func (OSCondition) Key() string { return "os" }

func (c OSCondition) Matches(ctx *RequestContext) bool {
	return ctx.OS != "" && string(c) == ctx.OS
}

// LanguageCondition matches the primary Accept-Language subtag.
type LanguageCondition []string

func (LanguageCondition) Key() string { return "language" }

func (c LanguageCondition) Matches(ctx *RequestContext) bool {
	if ctx.Language == "" {
		return false
	}
	for _, lang := range c {
		if lang == ctx.Language {
			return true
		}
	}
	return false
}

// MobileCondition matches the UA mobile flag.
type MobileCondition bool

func (MobileCondition) Key() string { return "mobile" }

func (c MobileCondition) Matches(ctx *RequestContext) bool {
	return bool(c) == ctx.Mobile
}

// ReferrerCondition matches when any pattern appears as a substring of
// the request referrer.
type ReferrerCondition []string

func (ReferrerCondition) Key() string { return "referrer" }

func (c ReferrerCondition) Matches(ctx *RequestContext) bool {
	if ctx.Referrer == "" {
		return false
	}
	for _, pattern := range c {
		if pattern != "" && strings.Contains(ctx.Referrer, pattern) {
			return true
		}
	}
	return false
}

// TimeRangeCondition matches the request's UTC wall clock against an
// HH:MM range. Start > End denotes an overnight wrap.
type TimeRangeCondition struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

func (TimeRangeCondition) Key() string { return "time_range" }

func (c TimeRangeCondition) Matches(ctx *RequestContext) bool {
	now := ctx.Clock()
	if c.Start <= c.End {
		return c.Start <= now && now <= c.End
	}
	return now >= c.Start || now <= c.End
}

// ConditionSet is the validated condition list of one rule, stored as a
// JSON object column keyed by condition name.
type ConditionSet []Condition

// Matches reports whether every condition in the set matches the context.
func (s ConditionSet) Matches(ctx *RequestContext) bool {
	for _, cond := range s {
		if !cond.Matches(ctx) {
			return false
		}
	}
	return true
}

func (s ConditionSet) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(s))
	for _, cond := range s {
		out[cond.Key()] = cond
	}
	return json.Marshal(out)
}

func (s *ConditionSet) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	set := make(ConditionSet, 0, len(raw))
	for key, value := range raw {
		cond, err := parseCondition(key, value)
		if err != nil {
			return err
		}
		set = append(set, cond)
	}

	*s = set
	return nil
}

func parseCondition(key string, value json.RawMessage) (Condition, error) {
	switch key {
	case "country":
		var codes []string
		if err := json.Unmarshal(value, &codes); err != nil {
			return nil, fmt.Errorf("condition country: expected list of codes: %w", err)
		}
		for i, code := range codes {
			code = strings.ToUpper(strings.TrimSpace(code))
			if len(code) != 2 {
				return nil, fmt.Errorf("condition country: %q is not ISO-3166 alpha-2", code)
			}
			codes[i] = code
		}
		return CountryCondition(codes), nil

	case "device_type":
		var device string
		if err := json.Unmarshal(value, &device); err != nil {
			return nil, fmt.Errorf("condition device_type: %w", err)
		}
		device = strings.ToLower(device)
		if !contains(DeviceTypes, device) {
			return nil, fmt.Errorf("condition device_type: %q not in %v", device, DeviceTypes)
		}
		return DeviceTypeCondition(device), nil

	case "browser":
		var browser string
		if err := json.Unmarshal(value, &browser); err != nil {
			return nil, fmt.Errorf("condition browser: %w", err)
		}
		browser = strings.ToLower(browser)
		if !contains(Browsers, browser) {
			return nil, fmt.Errorf("condition browser: %q not in %v", browser, Browsers)
		}
		return BrowserCondition(browser), nil

	case "os":
		var os string
		if err := json.Unmarshal(value, &os); err != nil {
			return nil, fmt.Errorf("condition os: %w", err)
		}
		os = strings.ToLower(os)
		if !contains(OSes, os) {
			return nil, fmt.Errorf("condition os: %q not in %v", os, OSes)
		}
		return OSCondition(os), nil

	case "language":
		var langs []string
		if err := json.Unmarshal(value, &langs); err != nil {
			return nil, fmt.Errorf("condition language: expected list of codes: %w", err)
		}
		for i, lang := range langs {
			lang = strings.ToLower(strings.TrimSpace(lang))
			if len(lang) != 2 {
				return nil, fmt.Errorf("condition language: %q is not a 2-letter code", lang)
			}
			langs[i] = lang
		}
		return LanguageCondition(langs), nil

	case "mobile":
		var mobile bool
		if err := json.Unmarshal(value, &mobile); err != nil {
			return nil, fmt.Errorf("condition mobile: %w", err)
		}
		return MobileCondition(mobile), nil

	case "referrer":
		var patterns []string
		if err := json.Unmarshal(value, &patterns); err != nil {
			return nil, fmt.Errorf("condition referrer: expected list of patterns: %w", err)
		}
		if len(patterns) == 0 {
			return nil, fmt.Errorf("condition referrer: pattern list is empty")
		}
		return ReferrerCondition(patterns), nil

	case "time_range":
		var tr TimeRangeCondition
		if err := json.Unmarshal(value, &tr); err != nil {
			return nil, fmt.Errorf("condition time_range: %w", err)
		}
		for _, clock := range []string{tr.Start, tr.End} {
			if _, err := time.Parse("15:04", clock); err != nil {
				return nil, fmt.Errorf("condition time_range: %q is not HH:MM", clock)
			}
		}
		return tr, nil

	default:
		return nil, fmt.Errorf("unknown condition key %q", key)
	}
}

// Value implements driver.Valuer so gorm can persist the set as JSONB.
func (s ConditionSet) Value() (driver.Value, error) {
	if s == nil {
		return "{}", nil
	}
	data, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan implements sql.Scanner for reading the JSONB column back.
func (s *ConditionSet) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*s = nil
		return nil
	case []byte:
		return s.UnmarshalJSON(v)
	case string:
		return s.UnmarshalJSON([]byte(v))
	default:
		return fmt.Errorf("conditions: cannot scan %T", src)
	}
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
