package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Georgesa98/UrlShortner-sub000/internal/app/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockVisitRepository struct {
	mu       sync.Mutex
	rows     []model.Visit
	existsFn func(ctx context.Context, hashedIP string) (bool, error)
}

func (m *mockVisitRepository) Create(ctx context.Context, visit *model.Visit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = append(m.rows, *visit)
	return nil
}

func (m *mockVisitRepository) BulkInsert(ctx context.Context, visits []model.Visit) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = append(m.rows, visits...)
	return int64(len(visits)), nil
}

func (m *mockVisitRepository) ExistsByHashedIP(ctx context.Context, hashedIP string) (bool, error) {
	if m.existsFn != nil {
		return m.existsFn(ctx, hashedIP)
	}
	return false, nil
}

func (m *mockVisitRepository) CountByURL(ctx context.Context, urlID uint64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var count int64
	for _, row := range m.rows {
		if row.UrlID == urlID {
			count++
		}
	}
	return count, nil
}

func newTestAnalytics(t *testing.T, urls *mockUrlRepository, visits *mockVisitRepository) *AnalyticsService {
	t.Helper()
	return NewAnalyticsService(AnalyticsDeps{
		Redis:     newTestRedis(t),
		Urls:      urls,
		Visits:    visits,
		IPSalt:    "test-salt",
		TrackIP:   true,
		BatchSize: 100,
	})
}

func TestAnalyticsService_HashIPIsSaltedAndStable(t *testing.T) {
	a := newTestAnalytics(t, &mockUrlRepository{}, &mockVisitRepository{})
	b := NewAnalyticsService(AnalyticsDeps{
		Redis:  newTestRedis(t),
		Visits: &mockVisitRepository{},
		IPSalt: "other-salt",
	})

	hash := a.HashIP("203.0.113.5")
	assert.Len(t, hash, 64)
	assert.Equal(t, hash, a.HashIP("203.0.113.5"))
	assert.NotEqual(t, hash, a.HashIP("203.0.113.6"))
	assert.NotEqual(t, hash, b.HashIP("203.0.113.5"), "different salts must produce different hashes")
	assert.NotContains(t, hash, "203.0.113.5")
}

func TestAnalyticsService_RecordVisitBuffersAndCounts(t *testing.T) {
	var recorded struct {
		id         uint64
		newVisitor bool
	}
	urls := &mockUrlRepository{
		recordAccessFn: func(ctx context.Context, id uint64, newVisitor bool, at time.Time) error {
			recorded.id = id
			recorded.newVisitor = newVisitor
			return nil
		},
	}
	visits := &mockVisitRepository{}
	a := newTestAnalytics(t, urls, visits)
	ctx := context.Background()

	url := &model.Url{ID: 9, ShortURL: "abc12345"}
	reqCtx := &model.RequestContext{
		IP:         "203.0.113.5",
		Country:    "DE",
		Browser:    "chrome",
		OS:         "android",
		DeviceType: "mobile",
		Referrer:   "https://twitter.com/x",
	}

	newVisitor := a.RecordVisit(ctx, url, reqCtx)
	assert.True(t, newVisitor)
	assert.EqualValues(t, 9, recorded.id)
	assert.True(t, recorded.newVisitor)

	depth, err := a.redis.LLen(ctx, AnalyticsQueueKey).Result()
	require.NoError(t, err)
	assert.EqualValues(t, 1, depth)

	// Same visitor again: the first visit is remembered.
	newVisitor = a.RecordVisit(ctx, url, reqCtx)
	assert.False(t, newVisitor)
}

func TestAnalyticsService_IsNewVisitorConsultsDatabase(t *testing.T) {
	visits := &mockVisitRepository{
		existsFn: func(ctx context.Context, hashedIP string) (bool, error) {
			return true, nil
		},
	}
	a := newTestAnalytics(t, &mockUrlRepository{}, visits)

	assert.False(t, a.IsNewVisitor(context.Background(), a.HashIP("203.0.113.5")))
}

func TestAnalyticsService_DrainPersistsBufferedVisits(t *testing.T) {
	urls := &mockUrlRepository{}
	visits := &mockVisitRepository{}
	a := newTestAnalytics(t, urls, visits)
	ctx := context.Background()

	url := &model.Url{ID: 3, ShortURL: "qrs45678"}
	for i := 0; i < 5; i++ {
		a.RecordVisit(ctx, url, &model.RequestContext{IP: "198.51.100.7", Country: "FR"})
	}

	drained, err := a.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, drained)

	count, err := visits.CountByURL(ctx, 3)
	require.NoError(t, err)
	assert.EqualValues(t, 5, count)

	row := visits.rows[0]
	assert.Equal(t, "FR", row.Geolocation)
	assert.Equal(t, a.HashIP("198.51.100.7"), row.HashedIP)

	// Buffer is empty now; a second drain is a no-op.
	drained, err = a.Drain(ctx)
	require.NoError(t, err)
	assert.Zero(t, drained)
}

func TestAnalyticsService_UntrackedIPLeavesNoHash(t *testing.T) {
	visits := &mockVisitRepository{}
	a := NewAnalyticsService(AnalyticsDeps{
		Redis:   newTestRedis(t),
		Urls:    &mockUrlRepository{},
		Visits:  visits,
		IPSalt:  "test-salt",
		TrackIP: false,
	})
	ctx := context.Background()

	newVisitor := a.RecordVisit(ctx, &model.Url{ID: 1}, &model.RequestContext{IP: "203.0.113.5"})
	assert.False(t, newVisitor, "unique visits require IP tracking")

	drained, err := a.Drain(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, drained)
	assert.Empty(t, visits.rows[0].HashedIP)
}
