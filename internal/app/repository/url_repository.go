package repository

import (
	"context"
	"errors"
	"time"

	"github.com/Georgesa98/UrlShortner-sub000/internal/app/model"
	"gorm.io/gorm"
)

var (
	// ErrUrlNotFound signals that the requested short URL does not exist.
	ErrUrlNotFound = errors.New("url not found")
	// ErrShortURLTaken signals a unique-constraint violation on short_url.
	ErrShortURLTaken = errors.New("short url already taken")
)

// UrlPage wraps one page of a URL listing.
type UrlPage struct {
	Urls       []model.Url
	Total      int64
	Page       int
	Limit      int
	TotalPages int
}

// ListQuery narrows and orders a URL listing. Sort accepts "created"
// (default, newest first) or "visits" (most visited first).
type ListQuery struct {
	Limit  int
	Page   int
	State  model.UrlState
	UserID *uint64
	Sort   string
}

// UrlRepository defines the data access contract for short URLs and
// their status rows.
type UrlRepository interface {
	Create(ctx context.Context, url *model.Url) error
	GetByShortURL(ctx context.Context, shortURL string) (*model.Url, error)
	GetByID(ctx context.Context, id uint64) (*model.Url, error)
	List(ctx context.Context, q ListQuery) (*UrlPage, error)
	Update(ctx context.Context, url *model.Url) error
	Delete(ctx context.Context, id uint64) error
	CountByUser(ctx context.Context, userID uint64) (int64, error)

	// RecordAccess bumps visits (and unique_visits when newVisitor) and
	// stamps last_accessed.
	RecordAccess(ctx context.Context, id uint64, newVisitor bool, at time.Time) error

	// Flag transitions the status to FLAGGED unless it already is.
	// Returns true when this call performed the transition.
	Flag(ctx context.Context, urlID uint64, reason string) (bool, error)

	// SetState overwrites the status row, stamping last_checked.
	SetState(ctx context.Context, urlID uint64, state model.UrlState, reason string, at time.Time) error

	// ExpireDue transitions ACTIVE statuses of expired URLs to EXPIRED.
	ExpireDue(ctx context.Context, now time.Time, reason string) (int64, error)

	// StaleCheckedIDs lists URL IDs whose status was last checked before
	// the cutoff (or never checked).
	StaleCheckedIDs(ctx context.Context, cutoff time.Time, limit int) ([]uint64, error)
}

type urlRepository struct {
	db *gorm.DB
}

// NewUrlRepository returns a GORM-backed UrlRepository.
func NewUrlRepository(db *gorm.DB) UrlRepository {
	return &urlRepository{db: db}
}

func (r *urlRepository) Create(ctx context.Context, url *model.Url) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(url).Error; err != nil {
			return err
		}
		if url.Status == nil {
			url.Status = &model.UrlStatus{State: model.StateActive}
		}
		url.Status.UrlID = url.ID
		return tx.Create(url.Status).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrShortURLTaken
		}
		return err
	}
	return nil
}

func (r *urlRepository) GetByShortURL(ctx context.Context, shortURL string) (*model.Url, error) {
	var url model.Url
	if err := r.db.WithContext(ctx).
		Preload("Status").
		Where("short_url = ?", shortURL).
		First(&url).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUrlNotFound
		}
		return nil, err
	}
	return &url, nil
}

func (r *urlRepository) GetByID(ctx context.Context, id uint64) (*model.Url, error) {
	var url model.Url
	if err := r.db.WithContext(ctx).
		Preload("Status").
		First(&url, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUrlNotFound
		}
		return nil, err
	}
	return &url, nil
}

func (r *urlRepository) List(ctx context.Context, q ListQuery) (*UrlPage, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = 10
	}
	page := q.Page
	if page <= 0 {
		page = 1
	}

	query := r.db.WithContext(ctx).Model(&model.Url{})
	if q.UserID != nil {
		query = query.Where("user_id = ?", *q.UserID)
	}
	if q.State != "" {
		query = query.
			Joins("JOIN url_status ON url_status.url_id = urls.id").
			Where("url_status.state = ?", q.State)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, err
	}

	order := "urls.created_at DESC"
	if q.Sort == "visits" {
		order = "urls.visits DESC, urls.created_at DESC"
	}

	var urls []model.Url
	if err := query.
		Preload("Status").
		Order(order).
		Limit(limit).
		Offset((page - 1) * limit).
		Find(&urls).Error; err != nil {
		return nil, err
	}

	totalPages := int((total + int64(limit) - 1) / int64(limit))
	return &UrlPage{
		Urls:       urls,
		Total:      total,
		Page:       page,
		Limit:      limit,
		TotalPages: totalPages,
	}, nil
}

func (r *urlRepository) Update(ctx context.Context, url *model.Url) error {
	result := r.db.WithContext(ctx).
		Model(&model.Url{}).
		Where("id = ?", url.ID).
		Updates(map[string]interface{}{
			"long_url":    url.LongURL,
			"expiry_date": url.ExpiryDate,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrUrlNotFound
	}
	return r.db.WithContext(ctx).Preload("Status").First(url, url.ID).Error
}

func (r *urlRepository) Delete(ctx context.Context, id uint64) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// The schema does not cascade; children go first.
		if err := tx.Where("url_id = ?", id).Delete(&model.RedirectionRule{}).Error; err != nil {
			return err
		}
		if err := tx.Where("url_id = ?", id).Delete(&model.UrlStatus{}).Error; err != nil {
			return err
		}
		result := tx.Delete(&model.Url{}, id)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrUrlNotFound
		}
		return nil
	})
}

func (r *urlRepository) CountByUser(ctx context.Context, userID uint64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.Url{}).
		Where("user_id = ?", userID).
		Count(&count).Error
	return count, err
}

func (r *urlRepository) RecordAccess(ctx context.Context, id uint64, newVisitor bool, at time.Time) error {
	updates := map[string]interface{}{
		"visits":        gorm.Expr("visits + 1"),
		"last_accessed": at,
	}
	if newVisitor {
		updates["unique_visits"] = gorm.Expr("unique_visits + 1")
	}
	return r.db.WithContext(ctx).
		Model(&model.Url{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *urlRepository) Flag(ctx context.Context, urlID uint64, reason string) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&model.UrlStatus{}).
		Where("url_id = ? AND state <> ?", urlID, model.StateFlagged).
		Updates(map[string]interface{}{
			"state":  model.StateFlagged,
			"reason": reason,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *urlRepository) SetState(ctx context.Context, urlID uint64, state model.UrlState, reason string, at time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&model.UrlStatus{}).
		Where("url_id = ?", urlID).
		Updates(map[string]interface{}{
			"state":        state,
			"reason":       reason,
			"last_checked": at,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrUrlNotFound
	}
	return nil
}

func (r *urlRepository) ExpireDue(ctx context.Context, now time.Time, reason string) (int64, error) {
	due := r.db.WithContext(ctx).
		Model(&model.Url{}).
		Select("id").
		Where("expiry_date IS NOT NULL AND expiry_date <= ?", now)

	result := r.db.WithContext(ctx).
		Model(&model.UrlStatus{}).
		Where("state = ? AND url_id IN (?)", model.StateActive, due).
		Updates(map[string]interface{}{
			"state":  model.StateExpired,
			"reason": reason,
		})
	return result.RowsAffected, result.Error
}

func (r *urlRepository) StaleCheckedIDs(ctx context.Context, cutoff time.Time, limit int) ([]uint64, error) {
	if limit <= 0 {
		limit = 1000
	}
	var ids []uint64
	err := r.db.WithContext(ctx).
		Model(&model.UrlStatus{}).
		Where("last_checked IS NULL OR last_checked < ?", cutoff).
		Order("url_id").
		Limit(limit).
		Pluck("url_id", &ids).Error
	return ids, err
}
