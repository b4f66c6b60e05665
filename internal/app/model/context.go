package model

import "time"

// RequestContext is the extracted, transport-free view of an incoming
// redirect request. Handlers build it once at the HTTP edge; the rule
// engine and the analytics path only ever see this value.
type RequestContext struct {
	IP         string
	UserAgent  string
	Referrer   string
	Language   string // primary Accept-Language subtag, lowercased; empty when absent
	Country    string // upper-case ISO-3166 alpha-2; empty when lookup failed
	Browser    string // lowercased UA family
	OS         string // lowercased UA family
	DeviceType string // "mobile" or "desktop"
	Mobile     bool
	Tablet     bool
	Now        time.Time
}

// Clock returns the request's UTC wall-clock formatted HH:MM.
func (c *RequestContext) Clock() string {
	return c.Now.UTC().Format("15:04")
}
