package distance

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"property-distance-service/internal/domain"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
)

func newTestORS(t *testing.T, h http.HandlerFunc) *ORSProvider {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	p, err := NewORSProvider(ORSConfig{APIKey: "test-key", BaseURL: srv.URL, Timeout: 2 * time.Second})
	require.NoError(t, err)
	p.initialDelay = time.Millisecond
	return p
}

func TestNewORSProviderRequiresKey(t *testing.T) {
	_, err := NewORSProvider(ORSConfig{APIKey: "  "})
	assert.Error(t, err)
}

func TestORSProviderGetDistance(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody matrixRequest

	p := newTestORS(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &gotBody)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"distances":[[1234.6]],"durations":[[887.4]]}`))
	})

	res, err := p.GetDistance(context.Background(), miamiA, miamiB, domain.Walking)
	require.NoError(t, err)

	assert.Equal(t, "/v2/matrix/foot-walking", gotPath)
	assert.Equal(t, "test-key", gotAuth)
	assert.Equal(t, [][]float64{{-80.1918, 25.7617}, {-80.2018, 25.7617}}, gotBody.Locations)
	assert.Equal(t, []int{0}, gotBody.Sources)
	assert.Equal(t, []int{1}, gotBody.Destinations)

	assert.Equal(t, 1235, res.DistanceMeters)
	assert.Equal(t, 887, res.DurationSeconds)
	assert.False(t, res.Estimated)
}

func TestORSProviderDrivingProfile(t *testing.T) {
	var gotPath string
	p := newTestORS(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_, _ = w.Write([]byte(`{"distances":[[1000]],"durations":[[100]]}`))
	})

	_, err := p.GetDistance(context.Background(), miamiA, miamiB, domain.Driving)
	require.NoError(t, err)
	assert.Equal(t, "/v2/matrix/driving-car", gotPath)
}

func TestORSProviderRetriesTransientFailures(t *testing.T) {
	calls := atomic.NewInt32(0)
	p := newTestORS(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Inc() < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"distances":[[500]],"durations":[[60]]}`))
	})

	res, err := p.GetDistance(context.Background(), miamiA, miamiB, domain.Driving)
	require.NoError(t, err)
	assert.Equal(t, 500, res.DistanceMeters)
	assert.Equal(t, int32(3), calls.Load())
}

func TestORSProviderClientErrorIsNotRetried(t *testing.T) {
	calls := atomic.NewInt32(0)
	p := newTestORS(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Inc()
		http.Error(w, "bad request", http.StatusBadRequest)
	})

	_, err := p.GetDistance(context.Background(), miamiA, miamiB, domain.Walking)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrProviderUnavailable)
	assert.Equal(t, int32(1), calls.Load())
}

func TestORSProviderGivesUpAfterMaxAttempts(t *testing.T) {
	calls := atomic.NewInt32(0)
	p := newTestORS(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Inc()
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := p.GetDistance(context.Background(), miamiA, miamiB, domain.Walking)
	assert.ErrorIs(t, err, domain.ErrProviderUnavailable)
	assert.Equal(t, int32(4), calls.Load())
}

func TestORSProviderNoRoute(t *testing.T) {
	p := newTestORS(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"distances":[[null]],"durations":[[null]]}`))
	})

	_, err := p.GetDistance(context.Background(), miamiA, miamiB, domain.Walking)
	assert.ErrorIs(t, err, domain.ErrProviderUnavailable)
}

func TestORSProviderHonoursCancellation(t *testing.T) {
	p := newTestORS(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	p.initialDelay = time.Second

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := p.GetDistance(ctx, miamiA, miamiB, domain.Walking)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotErrorIs(t, err, domain.ErrProviderUnavailable)
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2026, 5, 4, 10, 30, 0, 0, time.UTC)

	cases := []struct {
		in   string
		want time.Duration
	}{
		{"", 0},
		{"3", 3 * time.Second},
		{"-1", 0},
		{"soon", 0},
		{now.Add(2 * time.Second).Format(http.TimeFormat), 2 * time.Second},
		{now.Add(-time.Minute).Format(http.TimeFormat), 0},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, parseRetryAfter(tc.in, now), "Retry-After %q", tc.in)
	}
}

func TestRetryDelay(t *testing.T) {
	throttled := &httpStatusError{Code: http.StatusTooManyRequests, RetryAfter: 2 * time.Second}
	assert.Equal(t, 2*time.Second, retryDelay(throttled, 200*time.Millisecond), "server pause wins over backoff")

	slow := &httpStatusError{Code: http.StatusTooManyRequests, RetryAfter: time.Hour}
	assert.Equal(t, orsMaxBackoff, retryDelay(slow, 200*time.Millisecond))

	unavailable := &httpStatusError{Code: http.StatusServiceUnavailable}
	assert.Equal(t, 400*time.Millisecond, retryDelay(unavailable, 400*time.Millisecond))
}
