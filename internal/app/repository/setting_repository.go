package repository

import (
	"context"

	"github.com/Georgesa98/UrlShortner-sub000/internal/app/model"
	"gorm.io/gorm"
)

// SettingRepository reads the string-typed app_config rows.
type SettingRepository interface {
	LoadAll(ctx context.Context) (map[string]string, error)
	Set(ctx context.Context, key, value string) error
}

type settingRepository struct {
	db *gorm.DB
}

// NewSettingRepository returns a GORM-backed SettingRepository.
func NewSettingRepository(db *gorm.DB) SettingRepository {
	return &settingRepository{db: db}
}

func (r *settingRepository) LoadAll(ctx context.Context) (map[string]string, error) {
	var rows []model.AppSetting
	if err := r.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, err
	}

	settings := make(map[string]string, len(rows))
	for _, row := range rows {
		settings[row.Key] = row.Value
	}
	return settings, nil
}

func (r *settingRepository) Set(ctx context.Context, key, value string) error {
	setting := model.AppSetting{Key: key, Value: value}
	return r.db.WithContext(ctx).Save(&setting).Error
}
