package repository

import (
	"context"

	"github.com/Georgesa98/UrlShortner-sub000/internal/app/model"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"gorm.io/gorm"
)

// VisitRepository defines the data access contract for analytics visits.
type VisitRepository interface {
	Create(ctx context.Context, visit *model.Visit) error
	BulkInsert(ctx context.Context, visits []model.Visit) (int64, error)
	ExistsByHashedIP(ctx context.Context, hashedIP string) (bool, error)
	CountByURL(ctx context.Context, urlID uint64) (int64, error)
}

type visitRepository struct {
	db   *gorm.DB
	pool *pgxpool.Pool
}

// NewVisitRepository returns a repository backed by GORM for row-level
// access and a pgx pool for the bulk COPY path of the drain worker.
func NewVisitRepository(db *gorm.DB, pool *pgxpool.Pool) VisitRepository {
	return &visitRepository{db: db, pool: pool}
}

func (r *visitRepository) Create(ctx context.Context, visit *model.Visit) error {
	return r.db.WithContext(ctx).Create(visit).Error
}

func (r *visitRepository) BulkInsert(ctx context.Context, visits []model.Visit) (int64, error) {
	if len(visits) == 0 {
		return 0, nil
	}

	if r.pool == nil {
		// Batched INSERT fallback when no pgx pool was provided (tests).
		if err := r.db.WithContext(ctx).CreateInBatches(visits, len(visits)).Error; err != nil {
			return 0, err
		}
		return int64(len(visits)), nil
	}

	rows := make([][]any, len(visits))
	for i, v := range visits {
		rows[i] = []any{
			v.UrlID, v.HashedIP, v.Geolocation, v.Browser,
			v.OperatingSystem, v.Device, v.Referrer, v.NewVisitor, v.Timestamp,
		}
	}

	return r.pool.CopyFrom(ctx,
		pgx.Identifier{"visits"},
		[]string{"url_id", "hashed_ip", "geolocation", "browser",
			"operating_system", "device", "referrer", "new_visitor", "timestamp"},
		pgx.CopyFromRows(rows),
	)
}

func (r *visitRepository) ExistsByHashedIP(ctx context.Context, hashedIP string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.Visit{}).
		Where("hashed_ip = ?", hashedIP).
		Limit(1).
		Count(&count).Error
	return count > 0, err
}

func (r *visitRepository) CountByURL(ctx context.Context, urlID uint64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.Visit{}).
		Where("url_id = ?", urlID).
		Count(&count).Error
	return count, err
}
