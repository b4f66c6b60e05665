package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Incident types and severities form closed vocabularies.
const (
	IncidentBurst        = "burst"
	IncidentThrottle     = "throttle"
	IncidentSuspiciousUA = "suspicious_ua"
	IncidentOther        = "other"

	SeverityLow    = "low"
	SeverityMedium = "medium"
	SeverityHigh   = "high"
)

// IncidentDetails is the opaque JSON payload of an incident.
type IncidentDetails map[string]any

func (d IncidentDetails) Value() (driver.Value, error) {
	if d == nil {
		return "{}", nil
	}
	data, err := json.Marshal(d)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func (d *IncidentDetails) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*d = nil
		return nil
	case []byte:
		return json.Unmarshal(v, d)
	case string:
		return json.Unmarshal([]byte(v), d)
	default:
		return fmt.Errorf("incident details: cannot scan %T", src)
	}
}

// FraudIncident is an append-only record of suspected abuse surfaced by
// burst protection, throttling or the suspicious-UA detector.
type FraudIncident struct {
	ID        string          `db:"id" json:"id" gorm:"primaryKey;size:36"`
	Type      string          `db:"incident_type" json:"type" gorm:"column:incident_type;size:32;not null;index"`
	Severity  string          `db:"severity" json:"severity" gorm:"size:16;not null"`
	Details   IncidentDetails `db:"details" json:"details" gorm:"type:jsonb"`
	UserID    *uint64         `db:"user_id" json:"user_id,omitempty" gorm:"index"`
	UrlID     *uint64         `db:"url_id" json:"url_id,omitempty" gorm:"index"`
	CreatedAt time.Time       `db:"created_at" json:"created_at" gorm:"autoCreateTime"`
}

// JetStream wiring for the fraud incident pipeline.
const (
	FraudStreamName     = "FRAUD"
	FraudStreamSubject  = "fraud.incidents"
	FraudConsumerName   = "fraud-writer"
	FraudStreamMaxBytes = 1024 * 1024 * 50 // 50MB
)
