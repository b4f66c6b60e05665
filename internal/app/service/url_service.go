package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/Georgesa98/UrlShortner-sub000/internal/app/model"
	"github.com/Georgesa98/UrlShortner-sub000/internal/app/repository"
	"go.uber.org/zap"
)

var (
	// ErrInvalidLongURL signals a malformed or non-absolute long URL.
	ErrInvalidLongURL = errors.New("long url must be an absolute http(s) url of at most 2000 chars")
	// ErrInvalidAlias signals a custom alias outside 4-128 alphanumerics.
	ErrInvalidAlias = errors.New("custom alias must be 4-128 alphanumeric characters")
	// ErrExpiryInPast signals an expiry timestamp not strictly in the future.
	ErrExpiryInPast = errors.New("expiry date must be in the future")
	// ErrUserQuotaExceeded signals the per-user URL cap was hit.
	ErrUserQuotaExceeded = errors.New("url quota for user exceeded")
)

const createRetries = 3

// UrlService defines behaviour-level operations on short URLs.
type UrlService interface {
	CreateURL(ctx context.Context, input CreateURLInput) (*model.Url, error)
	BatchCreate(ctx context.Context, inputs []CreateURLInput) ([]model.Url, error)
	GetURL(ctx context.Context, shortURL string) (*model.Url, error)
	ListURLs(ctx context.Context, q repository.ListQuery) (*repository.UrlPage, error)
	UpdateURL(ctx context.Context, shortURL string, input UpdateURLInput) (*model.Url, error)
	DeleteURL(ctx context.Context, shortURL string) error
	ExpireDue(ctx context.Context, now time.Time) (int64, error)
}

type urlService struct {
	urls           repository.UrlRepository
	pool           *ShortCodePool
	logger         *zap.Logger
	maxURLsPerUser int
}

// NewUrlService returns a service backed by the given repository and
// code pool. maxURLsPerUser <= 0 disables the quota.
func NewUrlService(urls repository.UrlRepository, pool *ShortCodePool, maxURLsPerUser int, logger *zap.Logger) UrlService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &urlService{
		urls:           urls,
		pool:           pool,
		logger:         logger,
		maxURLsPerUser: maxURLsPerUser,
	}
}

// CreateURLInput captures data required to shorten a URL.
type CreateURLInput struct {
	LongURL    string
	ShortURL   string // optional custom alias
	ExpiryDate *time.Time
	UserID     *uint64
}

// UpdateURLInput captures fields that can change on an existing URL.
type UpdateURLInput struct {
	LongURL    *string
	ExpiryDate *time.Time
}

func (s *urlService) CreateURL(ctx context.Context, input CreateURLInput) (*model.Url, error) {
	if err := validateLongURL(input.LongURL); err != nil {
		return nil, err
	}
	if input.ExpiryDate != nil && !input.ExpiryDate.After(time.Now()) {
		return nil, ErrExpiryInPast
	}
	if input.UserID != nil && s.maxURLsPerUser > 0 {
		count, err := s.urls.CountByUser(ctx, *input.UserID)
		if err != nil {
			return nil, fmt.Errorf("count user urls: %w", err)
		}
		if count >= int64(s.maxURLsPerUser) {
			return nil, ErrUserQuotaExceeded
		}
	}

	if input.ShortURL != "" {
		return s.createWithAlias(ctx, input)
	}
	return s.createFromPool(ctx, input)
}

func (s *urlService) createWithAlias(ctx context.Context, input CreateURLInput) (*model.Url, error) {
	if !validAlias(input.ShortURL) {
		return nil, ErrInvalidAlias
	}

	u := newURL(input, input.ShortURL, true)
	if err := s.urls.Create(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *urlService) createFromPool(ctx context.Context, input CreateURLInput) (*model.Url, error) {
	code, err := s.pool.Allocate(ctx)
	if err != nil {
		return nil, fmt.Errorf("allocate short code: %w", err)
	}

	for attempt := 0; attempt < createRetries; attempt++ {
		u := newURL(input, code, false)
		err = s.urls.Create(ctx, u)
		if err == nil {
			return u, nil
		}
		if !errors.Is(err, repository.ErrShortURLTaken) {
			return nil, err
		}

		// Pool codes are unique by set semantics; a collision here means
		// the fallback generator raced an existing row. Regenerate.
		s.logger.Warn("short code collision, regenerating", zap.String("code", code))
		code, err = s.pool.Generate()
		if err != nil {
			return nil, fmt.Errorf("regenerate short code: %w", err)
		}
	}
	return nil, fmt.Errorf("create url: exhausted %d attempts: %w", createRetries, err)
}

func (s *urlService) BatchCreate(ctx context.Context, inputs []CreateURLInput) ([]model.Url, error) {
	created := make([]model.Url, 0, len(inputs))
	for i := range inputs {
		u, err := s.CreateURL(ctx, inputs[i])
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		created = append(created, *u)
	}
	return created, nil
}

func (s *urlService) GetURL(ctx context.Context, shortURL string) (*model.Url, error) {
	u, err := s.urls.GetByShortURL(ctx, shortURL)
	if err != nil {
		return nil, fmt.Errorf("get url: %w", err)
	}
	return u, nil
}

func (s *urlService) ListURLs(ctx context.Context, q repository.ListQuery) (*repository.UrlPage, error) {
	result, err := s.urls.List(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list urls: %w", err)
	}
	return result, nil
}

func (s *urlService) UpdateURL(ctx context.Context, shortURL string, input UpdateURLInput) (*model.Url, error) {
	u, err := s.urls.GetByShortURL(ctx, shortURL)
	if err != nil {
		return nil, fmt.Errorf("load url: %w", err)
	}

	if input.LongURL != nil {
		if err := validateLongURL(*input.LongURL); err != nil {
			return nil, err
		}
		u.LongURL = *input.LongURL
	}
	if input.ExpiryDate != nil {
		if !input.ExpiryDate.After(time.Now()) {
			return nil, ErrExpiryInPast
		}
		u.ExpiryDate = input.ExpiryDate
	}

	if err := s.urls.Update(ctx, u); err != nil {
		return nil, fmt.Errorf("update url: %w", err)
	}
	return u, nil
}

func (s *urlService) DeleteURL(ctx context.Context, shortURL string) error {
	u, err := s.urls.GetByShortURL(ctx, shortURL)
	if err != nil {
		return fmt.Errorf("load url: %w", err)
	}
	if err := s.urls.Delete(ctx, u.ID); err != nil {
		return fmt.Errorf("delete url: %w", err)
	}
	return nil
}

// ExpireDue transitions ACTIVE statuses of URLs past their expiry to
// EXPIRED. Idempotent; re-running sweeps nothing new.
func (s *urlService) ExpireDue(ctx context.Context, now time.Time) (int64, error) {
	reason := "expired at " + now.UTC().Format(time.RFC3339)
	expired, err := s.urls.ExpireDue(ctx, now, reason)
	if err != nil {
		return 0, fmt.Errorf("expire urls: %w", err)
	}
	return expired, nil
}

func newURL(input CreateURLInput, shortURL string, custom bool) *model.Url {
	return &model.Url{
		ShortURL:      shortURL,
		LongURL:       input.LongURL,
		UserID:        input.UserID,
		ExpiryDate:    input.ExpiryDate,
		IsCustomAlias: custom,
		Status:        &model.UrlStatus{State: model.StateActive},
	}
}

func validateLongURL(raw string) error {
	if raw == "" || len(raw) > 2000 {
		return ErrInvalidLongURL
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return ErrInvalidLongURL
	}
	if (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return ErrInvalidLongURL
	}
	return nil
}

func validAlias(alias string) bool {
	if len(alias) < 4 || len(alias) > 128 {
		return false
	}
	for _, r := range alias {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return true
}
