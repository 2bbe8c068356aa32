package ratelimit

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/rs/xid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestMemory_BurstThenRefill(t *testing.T) {
	m := NewMemory(3)
	clock := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return clock }
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := m.Allow(ctx, "1.2.3.4")
		require.NoError(t, err)
		assert.True(t, ok, "attempt %d within burst", i+1)
	}
	ok, _ := m.Allow(ctx, "1.2.3.4")
	assert.False(t, ok, "fourth attempt in the same instant")

	// 3 per minute refills one token every 20 seconds.
	clock = clock.Add(20 * time.Second)
	ok, _ = m.Allow(ctx, "1.2.3.4")
	assert.True(t, ok)
}

func TestMemory_KeysAreIndependent(t *testing.T) {
	m := NewMemory(1)
	ctx := context.Background()

	ok, _ := m.Allow(ctx, "a")
	assert.True(t, ok)
	ok, _ = m.Allow(ctx, "a")
	assert.False(t, ok)
	ok, _ = m.Allow(ctx, "b")
	assert.True(t, ok)
}

func TestMemory_SweepsIdleVisitors(t *testing.T) {
	m := NewMemory(5)
	clock := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return clock }
	ctx := context.Background()

	_, _ = m.Allow(ctx, "old")
	clock = clock.Add(time.Hour)
	_, _ = m.Allow(ctx, "new")

	m.mu.Lock()
	defer m.mu.Unlock()
	assert.NotContains(t, m.visitors, "old")
	assert.Contains(t, m.visitors, "new")
}

type stubLimiter struct {
	ok  bool
	err error
}

func (s stubLimiter) Allow(context.Context, string) (bool, error) { return s.ok, s.err }

func TestMiddleware(t *testing.T) {
	tests := []struct {
		name    string
		limiter Limiter
		want    int
	}{
		{"allowed", stubLimiter{ok: true}, http.StatusOK},
		{"limited", stubLimiter{ok: false}, http.StatusTooManyRequests},
		{"limiter down fails open", stubLimiter{err: errors.New("redis down")}, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := Middleware(tt.limiter, discard)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusOK)
			}))

			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/login", nil))
			assert.Equal(t, tt.want, rec.Code)
			if tt.want == http.StatusTooManyRequests {
				assert.Contains(t, rec.Body.String(), "rate_limited")
				assert.Equal(t, "60", rec.Header().Get("Retry-After"))
			}
		})
	}
}

func TestMiddleware_KeysByHostWithoutPort(t *testing.T) {
	m := NewMemory(1)
	h := Middleware(m, discard)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {}))

	send := func(remote string) int {
		r := httptest.NewRequest(http.MethodPost, "/login", nil)
		r.RemoteAddr = remote
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, r)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, send("10.0.0.1:5000"))
	assert.Equal(t, http.StatusTooManyRequests, send("10.0.0.1:6000"), "a new source port is the same client")
	assert.Equal(t, http.StatusOK, send("10.0.0.2:5000"))
}

// Needs a running Redis: GRADPHOTO_TEST_REDIS_ADDR=localhost:6379.
func TestRedis_FixedWindow(t *testing.T) {
	addr := os.Getenv("GRADPHOTO_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("GRADPHOTO_TEST_REDIS_ADDR not set")
	}
	client := NewRedisClient(addr)
	t.Cleanup(func() { client.Close() })

	l := NewRedis(client, "gradphoto:test:"+xid.New().String()+":", 2)
	clock := time.Date(2026, 6, 1, 12, 0, 10, 0, time.UTC)
	l.now = func() time.Time { return clock }
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		ok, err := l.Allow(ctx, "ip")
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, err := l.Allow(ctx, "ip")
	require.NoError(t, err)
	assert.False(t, ok)

	clock = clock.Add(time.Minute)
	ok, err = l.Allow(ctx, "ip")
	require.NoError(t, err)
	assert.True(t, ok, "next window starts fresh")
}
