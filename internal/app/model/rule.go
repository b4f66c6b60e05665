package model

import "time"

// RedirectionRule rewrites the redirect target of a Url when its
// conditions match the request context. Lower priority wins; (url,
// priority) is unique.
type RedirectionRule struct {
	ID         uint64       `db:"id" gorm:"primaryKey"`
	Name       string       `db:"name" gorm:"size:255;not null"`
	UrlID      uint64       `db:"url_id" gorm:"not null;uniqueIndex:idx_rule_url_priority,priority:1"`
	Conditions ConditionSet `db:"conditions" gorm:"type:jsonb;not null"`
	TargetURL  string       `db:"target_url" gorm:"size:2000;not null"`
	Priority   int          `db:"priority" gorm:"not null;default:0;uniqueIndex:idx_rule_url_priority,priority:2"`
	IsActive   bool         `db:"is_active" gorm:"not null;default:true;index"`
	CreatedAt  time.Time    `db:"created_at" gorm:"autoCreateTime"`
	UpdatedAt  time.Time    `db:"updated_at" gorm:"autoUpdateTime"`
}
