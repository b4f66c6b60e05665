package repository

import (
	"context"
	"errors"

	"github.com/Georgesa98/UrlShortner-sub000/internal/app/model"
	"gorm.io/gorm"
)

var (
	// ErrRuleNotFound signals that the requested redirection rule does not exist.
	ErrRuleNotFound = errors.New("redirection rule not found")
	// ErrPriorityTaken signals a (url, priority) uniqueness violation.
	ErrPriorityTaken = errors.New("priority already exists for this url")
)

// RuleRepository defines the data access contract for redirection rules.
type RuleRepository interface {
	Create(ctx context.Context, rule *model.RedirectionRule) error
	GetByID(ctx context.Context, id uint64) (*model.RedirectionRule, error)
	ListByURL(ctx context.Context, urlID uint64, activeOnly bool) ([]model.RedirectionRule, error)
	List(ctx context.Context, limit, offset int) ([]model.RedirectionRule, error)
	Update(ctx context.Context, rule *model.RedirectionRule) error
	Delete(ctx context.Context, id uint64) error
	PriorityExists(ctx context.Context, urlID uint64, priority int, excludeID uint64) (bool, error)
	ReorderPriorities(ctx context.Context, urlID uint64, start int) error
}

type ruleRepository struct {
	db *gorm.DB
}

// NewRuleRepository returns a GORM-backed RuleRepository.
func NewRuleRepository(db *gorm.DB) RuleRepository {
	return &ruleRepository{db: db}
}

func (r *ruleRepository) Create(ctx context.Context, rule *model.RedirectionRule) error {
	if err := r.db.WithContext(ctx).Create(rule).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrPriorityTaken
		}
		return err
	}
	return nil
}

func (r *ruleRepository) GetByID(ctx context.Context, id uint64) (*model.RedirectionRule, error) {
	var rule model.RedirectionRule
	if err := r.db.WithContext(ctx).First(&rule, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRuleNotFound
		}
		return nil, err
	}
	return &rule, nil
}

func (r *ruleRepository) ListByURL(ctx context.Context, urlID uint64, activeOnly bool) ([]model.RedirectionRule, error) {
	query := r.db.WithContext(ctx).Where("url_id = ?", urlID)
	if activeOnly {
		query = query.Where("is_active = ?", true)
	}

	var rules []model.RedirectionRule
	if err := query.Order("priority ASC, created_at ASC").Find(&rules).Error; err != nil {
		return nil, err
	}
	return rules, nil
}

func (r *ruleRepository) List(ctx context.Context, limit, offset int) ([]model.RedirectionRule, error) {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	var rules []model.RedirectionRule
	if err := r.db.WithContext(ctx).
		Order("url_id ASC, priority ASC, created_at ASC").
		Limit(limit).
		Offset(offset).
		Find(&rules).Error; err != nil {
		return nil, err
	}
	return rules, nil
}

func (r *ruleRepository) Update(ctx context.Context, rule *model.RedirectionRule) error {
	result := r.db.WithContext(ctx).
		Model(&model.RedirectionRule{}).
		Where("id = ?", rule.ID).
		Updates(map[string]interface{}{
			"name":       rule.Name,
			"conditions": rule.Conditions,
			"target_url": rule.TargetURL,
			"priority":   rule.Priority,
			"is_active":  rule.IsActive,
		})
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			return ErrPriorityTaken
		}
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrRuleNotFound
	}
	return r.db.WithContext(ctx).First(rule, rule.ID).Error
}

func (r *ruleRepository) Delete(ctx context.Context, id uint64) error {
	result := r.db.WithContext(ctx).Delete(&model.RedirectionRule{}, id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrRuleNotFound
	}
	return nil
}

func (r *ruleRepository) PriorityExists(ctx context.Context, urlID uint64, priority int, excludeID uint64) (bool, error) {
	query := r.db.WithContext(ctx).
		Model(&model.RedirectionRule{}).
		Where("url_id = ? AND priority = ?", urlID, priority)
	if excludeID != 0 {
		query = query.Where("id <> ?", excludeID)
	}

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *ruleRepository) ReorderPriorities(ctx context.Context, urlID uint64, start int) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rules []model.RedirectionRule
		if err := tx.Where("url_id = ?", urlID).
			Order("priority ASC, created_at ASC").
			Find(&rules).Error; err != nil {
			return err
		}

		// Two passes keep the unique (url, priority) index satisfied
		// while rows move past each other.
		for i := range rules {
			if err := tx.Model(&rules[i]).
				Update("priority", -(start + i + 1)).Error; err != nil {
				return err
			}
		}
		for i := range rules {
			if err := tx.Model(&rules[i]).
				Update("priority", start+i).Error; err != nil {
				return err
			}
		}
		return nil
	})
}
