package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Georgesa98/UrlShortner-sub000/internal/app/model"
	"github.com/Georgesa98/UrlShortner-sub000/internal/app/repository"
)

type mockUrlRepository struct {
	createFn       func(ctx context.Context, url *model.Url) error
	getByShortFn   func(ctx context.Context, shortURL string) (*model.Url, error)
	getByIDFn      func(ctx context.Context, id uint64) (*model.Url, error)
	listFn         func(ctx context.Context, q repository.ListQuery) (*repository.UrlPage, error)
	updateFn       func(ctx context.Context, url *model.Url) error
	deleteFn       func(ctx context.Context, id uint64) error
	countByUserFn  func(ctx context.Context, userID uint64) (int64, error)
	recordAccessFn func(ctx context.Context, id uint64, newVisitor bool, at time.Time) error
	flagFn         func(ctx context.Context, urlID uint64, reason string) (bool, error)
	setStateFn     func(ctx context.Context, urlID uint64, state model.UrlState, reason string, at time.Time) error
	expireDueFn    func(ctx context.Context, now time.Time, reason string) (int64, error)
	staleFn        func(ctx context.Context, cutoff time.Time, limit int) ([]uint64, error)
}

func (m *mockUrlRepository) Create(ctx context.Context, url *model.Url) error {
	if m.createFn != nil {
		return m.createFn(ctx, url)
	}
	return nil
}

func (m *mockUrlRepository) GetByShortURL(ctx context.Context, shortURL string) (*model.Url, error) {
	if m.getByShortFn != nil {
		return m.getByShortFn(ctx, shortURL)
	}
	return nil, repository.ErrUrlNotFound
}

func (m *mockUrlRepository) GetByID(ctx context.Context, id uint64) (*model.Url, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return nil, repository.ErrUrlNotFound
}

func (m *mockUrlRepository) List(ctx context.Context, q repository.ListQuery) (*repository.UrlPage, error) {
	if m.listFn != nil {
		return m.listFn(ctx, q)
	}
	return &repository.UrlPage{}, nil
}

func (m *mockUrlRepository) Update(ctx context.Context, url *model.Url) error {
	if m.updateFn != nil {
		return m.updateFn(ctx, url)
	}
	return nil
}

func (m *mockUrlRepository) Delete(ctx context.Context, id uint64) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, id)
	}
	return nil
}

func (m *mockUrlRepository) CountByUser(ctx context.Context, userID uint64) (int64, error) {
	if m.countByUserFn != nil {
		return m.countByUserFn(ctx, userID)
	}
	return 0, nil
}

func (m *mockUrlRepository) RecordAccess(ctx context.Context, id uint64, newVisitor bool, at time.Time) error {
	if m.recordAccessFn != nil {
		return m.recordAccessFn(ctx, id, newVisitor, at)
	}
	return nil
}

func (m *mockUrlRepository) Flag(ctx context.Context, urlID uint64, reason string) (bool, error) {
	if m.flagFn != nil {
		return m.flagFn(ctx, urlID, reason)
	}
	return false, nil
}

func (m *mockUrlRepository) SetState(ctx context.Context, urlID uint64, state model.UrlState, reason string, at time.Time) error {
	if m.setStateFn != nil {
		return m.setStateFn(ctx, urlID, state, reason, at)
	}
	return nil
}

func (m *mockUrlRepository) ExpireDue(ctx context.Context, now time.Time, reason string) (int64, error) {
	if m.expireDueFn != nil {
		return m.expireDueFn(ctx, now, reason)
	}
	return 0, nil
}

func (m *mockUrlRepository) StaleCheckedIDs(ctx context.Context, cutoff time.Time, limit int) ([]uint64, error) {
	if m.staleFn != nil {
		return m.staleFn(ctx, cutoff, limit)
	}
	return nil, nil
}

func TestUrlService_CreateURL_CustomAlias(t *testing.T) {
	repo := &mockUrlRepository{
		createFn: func(ctx context.Context, url *model.Url) error {
			if url.ShortURL != "promo2026" {
				t.Fatalf("expected alias to be kept, got %q", url.ShortURL)
			}
			if !url.IsCustomAlias {
				t.Fatal("expected is_custom_alias to be set")
			}
			if url.Status == nil || url.Status.State != model.StateActive {
				t.Fatal("expected a fresh ACTIVE status row")
			}
			return nil
		},
	}

	svc := NewUrlService(repo, nil, 0, nil)
	u, err := svc.CreateURL(context.Background(), CreateURLInput{
		LongURL:  "https://example.com/landing",
		ShortURL: "promo2026",
	})
	if err != nil {
		t.Fatalf("CreateURL returned error: %v", err)
	}
	if u.ShortURL != "promo2026" {
		t.Fatalf("expected promo2026, got %q", u.ShortURL)
	}
}

func TestUrlService_CreateURL_RejectsBadInput(t *testing.T) {
	svc := NewUrlService(&mockUrlRepository{}, nil, 0, nil)
	past := time.Now().Add(-time.Hour)

	cases := []struct {
		name  string
		input CreateURLInput
		want  error
	}{
		{"empty long url", CreateURLInput{}, ErrInvalidLongURL},
		{"relative url", CreateURLInput{LongURL: "/just/a/path"}, ErrInvalidLongURL},
		{"ftp scheme", CreateURLInput{LongURL: "ftp://example.com/file"}, ErrInvalidLongURL},
		{"alias too short", CreateURLInput{LongURL: "https://example.com", ShortURL: "abc"}, ErrInvalidAlias},
		{"alias with dash", CreateURLInput{LongURL: "https://example.com", ShortURL: "my-alias"}, ErrInvalidAlias},
		{"expiry in past", CreateURLInput{LongURL: "https://example.com", ExpiryDate: &past}, ErrExpiryInPast},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.CreateURL(context.Background(), tc.input)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestUrlService_CreateURL_AliasConflict(t *testing.T) {
	repo := &mockUrlRepository{
		createFn: func(ctx context.Context, url *model.Url) error {
			return repository.ErrShortURLTaken
		},
	}

	svc := NewUrlService(repo, nil, 0, nil)
	_, err := svc.CreateURL(context.Background(), CreateURLInput{
		LongURL:  "https://example.com",
		ShortURL: "taken123",
	})
	if !errors.Is(err, repository.ErrShortURLTaken) {
		t.Fatalf("expected ErrShortURLTaken, got %v", err)
	}
}

func TestUrlService_CreateURL_QuotaEnforced(t *testing.T) {
	repo := &mockUrlRepository{
		countByUserFn: func(ctx context.Context, userID uint64) (int64, error) {
			return 100, nil
		},
	}

	svc := NewUrlService(repo, nil, 100, nil)
	userID := uint64(7)
	_, err := svc.CreateURL(context.Background(), CreateURLInput{
		LongURL:  "https://example.com",
		ShortURL: "mine1234",
		UserID:   &userID,
	})
	if !errors.Is(err, ErrUserQuotaExceeded) {
		t.Fatalf("expected ErrUserQuotaExceeded, got %v", err)
	}
}

func TestUrlService_UpdateURL(t *testing.T) {
	repo := &mockUrlRepository{
		getByShortFn: func(ctx context.Context, shortURL string) (*model.Url, error) {
			return &model.Url{ID: 1, ShortURL: shortURL, LongURL: "https://old.example.com"}, nil
		},
		updateFn: func(ctx context.Context, url *model.Url) error {
			if url.LongURL != "https://new.example.com" {
				t.Fatalf("expected updated long url, got %s", url.LongURL)
			}
			return nil
		},
	}

	svc := NewUrlService(repo, nil, 0, nil)
	longURL := "https://new.example.com"
	u, err := svc.UpdateURL(context.Background(), "abc12345", UpdateURLInput{LongURL: &longURL})
	if err != nil {
		t.Fatalf("UpdateURL returned error: %v", err)
	}
	if u.LongURL != longURL {
		t.Fatalf("expected %s, got %s", longURL, u.LongURL)
	}
}

func TestUrlService_DeleteURL_NotFound(t *testing.T) {
	svc := NewUrlService(&mockUrlRepository{}, nil, 0, nil)
	err := svc.DeleteURL(context.Background(), "missing1")
	if !errors.Is(err, repository.ErrUrlNotFound) {
		t.Fatalf("expected ErrUrlNotFound, got %v", err)
	}
}

func TestUrlService_ExpireDue_ReportsCount(t *testing.T) {
	repo := &mockUrlRepository{
		expireDueFn: func(ctx context.Context, now time.Time, reason string) (int64, error) {
			if reason == "" {
				t.Fatal("expected a reason on expired statuses")
			}
			return 3, nil
		},
	}

	svc := NewUrlService(repo, nil, 0, nil)
	expired, err := svc.ExpireDue(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("ExpireDue returned error: %v", err)
	}
	if expired != 3 {
		t.Fatalf("expected 3 expired, got %d", expired)
	}
}
