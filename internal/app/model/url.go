package model

import "time"

// UrlState enumerates the lifecycle states of a short URL.
type UrlState string

const (
	StateActive    UrlState = "ACTIVE"
	StateExpired   UrlState = "EXPIRED"
	StateFlagged   UrlState = "FLAGGED"
	StateDisabled  UrlState = "DISABLED"
	StateSuspended UrlState = "SUSPENDED"
	StateBroken    UrlState = "BROKEN"
)

// Servable reports whether a redirect may still be issued in this state.
// A flagged URL is not a dead URL; burst protection already gates abuse.
func (s UrlState) Servable() bool {
	return s == StateActive || s == StateFlagged
}

// Url describes the core short-link entity stored in Postgres.
type Url struct {
	ID            uint64            `db:"id" gorm:"primaryKey"`
	ShortURL      string            `db:"short_url" gorm:"uniqueIndex;size:128;not null"`
	LongURL       string            `db:"long_url" gorm:"size:2000;not null"`
	UserID        *uint64           `db:"user_id" gorm:"index"`
	IsCustomAlias bool              `db:"is_custom_alias" gorm:"not null;default:false"`
	Visits        int64             `db:"visits" gorm:"not null;default:0"`
	UniqueVisits  int64             `db:"unique_visits" gorm:"not null;default:0"`
	LastAccessed  *time.Time        `db:"last_accessed"`
	ExpiryDate    *time.Time        `db:"expiry_date" gorm:"index"`
	CreatedAt     time.Time         `db:"created_at" gorm:"autoCreateTime"`
	UpdatedAt     time.Time         `db:"updated_at" gorm:"autoUpdateTime"`
	Status        *UrlStatus        `gorm:"foreignKey:UrlID"`
	Rules         []RedirectionRule `gorm:"foreignKey:UrlID"`
}

// UrlStatus is the one-to-one state record for a Url.
type UrlStatus struct {
	ID          uint64     `db:"id" gorm:"primaryKey"`
	UrlID       uint64     `db:"url_id" gorm:"uniqueIndex;not null"`
	State       UrlState   `db:"state" gorm:"size:16;not null;default:ACTIVE"`
	Reason      string     `db:"reason" gorm:"size:255"`
	LastChecked *time.Time `db:"last_checked"`
	CreatedAt   time.Time  `db:"created_at" gorm:"autoCreateTime"`
	UpdatedAt   time.Time  `db:"updated_at" gorm:"autoUpdateTime"`
}

func (UrlStatus) TableName() string { return "url_status" }
