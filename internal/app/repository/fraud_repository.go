package repository

import (
	"context"

	"github.com/Georgesa98/UrlShortner-sub000/internal/app/model"
	"gorm.io/gorm"
)

// FraudRepository defines the data access contract for fraud incidents.
type FraudRepository interface {
	Create(ctx context.Context, incident *model.FraudIncident) error
	ListRecent(ctx context.Context, limit int) ([]model.FraudIncident, error)
}

type fraudRepository struct {
	db *gorm.DB
}

// NewFraudRepository returns a GORM-backed FraudRepository.
func NewFraudRepository(db *gorm.DB) FraudRepository {
	return &fraudRepository{db: db}
}

func (r *fraudRepository) Create(ctx context.Context, incident *model.FraudIncident) error {
	return r.db.WithContext(ctx).Create(incident).Error
}

func (r *fraudRepository) ListRecent(ctx context.Context, limit int) ([]model.FraudIncident, error) {
	if limit <= 0 {
		limit = 50
	}
	var incidents []model.FraudIncident
	if err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&incidents).Error; err != nil {
		return nil, err
	}
	return incidents, nil
}
