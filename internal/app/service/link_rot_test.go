package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Georgesa98/UrlShortner-sub000/internal/app/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stateCapture struct {
	state  model.UrlState
	reason string
}

func linkRotFixture(t *testing.T, target string) (*LinkRotChecker, *stateCapture) {
	t.Helper()
	captured := &stateCapture{}
	urls := &mockUrlRepository{
		getByIDFn: func(ctx context.Context, id uint64) (*model.Url, error) {
			return &model.Url{ID: id, ShortURL: "abc12345", LongURL: target}, nil
		},
		setStateFn: func(ctx context.Context, urlID uint64, state model.UrlState, reason string, at time.Time) error {
			captured.state = state
			captured.reason = reason
			return nil
		},
	}
	return NewLinkRotChecker(LinkRotDeps{Urls: urls, Redis: newTestRedis(t)}), captured
}

func TestLinkRotChecker_HealthyURLStaysActive(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	checker, captured := linkRotFixture(t, server.URL)
	require.NoError(t, checker.CheckURL(context.Background(), 1))
	assert.Equal(t, model.StateActive, captured.state)
	assert.Empty(t, captured.reason)
}

func TestLinkRotChecker_DeadURLMarkedBroken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	checker, captured := linkRotFixture(t, server.URL)
	require.NoError(t, checker.CheckURL(context.Background(), 1))
	assert.Equal(t, model.StateBroken, captured.state)
	assert.Contains(t, captured.reason, "404")
}

func TestLinkRotChecker_FallsBackToGETWhenHEADRejected(t *testing.T) {
	var sawGet atomic.Bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		sawGet.Store(true)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	checker, captured := linkRotFixture(t, server.URL)
	require.NoError(t, checker.CheckURL(context.Background(), 1))
	assert.True(t, sawGet.Load(), "expected a GET after the HEAD was rejected")
	assert.Equal(t, model.StateActive, captured.state)
}

func TestLinkRotChecker_FallsBackToGETWhenHEADDropped(t *testing.T) {
	var sawGet atomic.Bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			panic(http.ErrAbortHandler)
		}
		sawGet.Store(true)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	checker, captured := linkRotFixture(t, server.URL)
	require.NoError(t, checker.CheckURL(context.Background(), 1))
	assert.True(t, sawGet.Load(), "expected a GET after the HEAD connection died")
	assert.Equal(t, model.StateActive, captured.state)
}

func TestLinkRotChecker_StaleWindowIsConfigurable(t *testing.T) {
	var gotCutoff time.Time
	urls := &mockUrlRepository{
		staleFn: func(ctx context.Context, cutoff time.Time, limit int) ([]uint64, error) {
			gotCutoff = cutoff
			return nil, nil
		},
	}
	checker := NewLinkRotChecker(LinkRotDeps{
		Urls:       urls,
		Redis:      newTestRedis(t),
		StaleAfter: 48 * time.Hour,
	})

	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	_, err := checker.Enqueue(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, now.Add(-48*time.Hour), gotCutoff)
}

func TestLinkRotChecker_RetriesTransientFailures(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	checker, captured := linkRotFixture(t, server.URL)
	require.NoError(t, checker.CheckURL(context.Background(), 1))
	assert.Equal(t, model.StateActive, captured.state)
	assert.GreaterOrEqual(t, hits.Load(), int32(3))
}

func TestLinkRotChecker_UnreachableHostMarkedBroken(t *testing.T) {
	checker, captured := linkRotFixture(t, "http://127.0.0.1:1")
	require.NoError(t, checker.CheckURL(context.Background(), 1))
	assert.Equal(t, model.StateBroken, captured.state)
}

func TestLinkRotChecker_EnqueueAndDrain(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	checked := 0
	urls := &mockUrlRepository{
		staleFn: func(ctx context.Context, cutoff time.Time, limit int) ([]uint64, error) {
			return []uint64{11, 12, 13}, nil
		},
		getByIDFn: func(ctx context.Context, id uint64) (*model.Url, error) {
			return &model.Url{ID: id, LongURL: server.URL}, nil
		},
		setStateFn: func(ctx context.Context, urlID uint64, state model.UrlState, reason string, at time.Time) error {
			checked++
			return nil
		},
	}
	checker := NewLinkRotChecker(LinkRotDeps{Urls: urls, Redis: newTestRedis(t)})
	ctx := context.Background()

	queued, err := checker.Enqueue(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 3, queued)

	probed, err := checker.DrainQueue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, probed)
	assert.Equal(t, 3, checked)
}
