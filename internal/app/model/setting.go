package model

import "time"

// AppSetting is one string-typed configuration row. Values override the
// YAML defaults at startup; semantic typing happens in the config layer.
type AppSetting struct {
	Key       string    `db:"key" gorm:"primaryKey;size:64"`
	Value     string    `db:"value" gorm:"size:255;not null"`
	UpdatedAt time.Time `db:"updated_at" gorm:"autoUpdateTime"`
}

func (AppSetting) TableName() string { return "app_config" }
