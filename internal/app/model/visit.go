package model

import (
	"encoding/json"
	"time"
)

// Visit is one analytics fact: a successfully served redirect.
type Visit struct {
	ID              uint64    `db:"id" gorm:"primaryKey"`
	UrlID           uint64    `db:"url_id" gorm:"not null;index"`
	HashedIP        string    `db:"hashed_ip" gorm:"size:64;not null;index"`
	Geolocation     string    `db:"geolocation" gorm:"size:64"`
	Browser         string    `db:"browser" gorm:"size:64"`
	OperatingSystem string    `db:"operating_system" gorm:"size:64"`
	Device          string    `db:"device" gorm:"size:64"`
	Referrer        string    `db:"referrer" gorm:"size:2000"`
	NewVisitor      bool      `db:"new_visitor" gorm:"not null;default:false"`
	Timestamp       time.Time `db:"timestamp" gorm:"not null;index"`
}

// VisitRecord is the JSON wire form buffered on the analytics queue.
// Timestamps are assigned at enqueue time, not persistence time.
type VisitRecord struct {
	URLID           uint64    `json:"url_id"`
	HashedIP        string    `json:"hashed_ip"`
	Geolocation     string    `json:"geolocation"`
	OperatingSystem string    `json:"operating_system"`
	Browser         string    `json:"browser"`
	Device          string    `json:"device"`
	Referrer        string    `json:"referrer"`
	NewVisitor      bool      `json:"new_visitor"`
	Timestamp       time.Time `json:"timestamp"`
}

// Encode serializes the record for the queue.
func (r VisitRecord) Encode() ([]byte, error) {
	return json.Marshal(r)
}

// DecodeVisitRecord parses one buffered queue entry.
func DecodeVisitRecord(data []byte) (VisitRecord, error) {
	var r VisitRecord
	err := json.Unmarshal(data, &r)
	return r, err
}

// Visit converts the wire record into the persistable row.
func (r VisitRecord) Visit() Visit {
	return Visit{
		UrlID:           r.URLID,
		HashedIP:        r.HashedIP,
		Geolocation:     r.Geolocation,
		Browser:         r.Browser,
		OperatingSystem: r.OperatingSystem,
		Device:          r.Device,
		Referrer:        r.Referrer,
		NewVisitor:      r.NewVisitor,
		Timestamp:       r.Timestamp.UTC(),
	}
}
