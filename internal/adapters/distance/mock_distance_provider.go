package distance

import (
	"context"
	"fmt"
	"property-distance-service/internal/domain"
	"property-distance-service/internal/ports"
	"sync"
	"time"

	"go.uber.org/atomic"
)

// MockPair is one canned answer, keyed by destination and mode.
type MockPair struct {
	To      domain.Coordinates
	Mode    domain.TravelMode
	Meters  int
	Seconds int
}

// MockDistanceProvider answers from a fixed table and counts its calls.
// Unknown pairs fall back to a haversine estimate unless Strict is set.
type MockDistanceProvider struct {
	mu     sync.RWMutex
	m      map[string]ports.DistanceResult
	err    error
	delay  time.Duration
	Strict bool

	calls *atomic.Int64
}

func mockKey(to domain.Coordinates, mode domain.TravelMode) string {
	return fmt.Sprintf("%.6f,%.6f|%s", to.Lat, to.Lon, mode)
}

func NewMockDistanceProvider(pairs []MockPair) *MockDistanceProvider {
	m := make(map[string]ports.DistanceResult, len(pairs))
	for _, p := range pairs {
		m[mockKey(p.To, p.Mode)] = ports.DistanceResult{DistanceMeters: p.Meters, DurationSeconds: p.Seconds}
	}
	return &MockDistanceProvider{m: m, calls: atomic.NewInt64(0)}
}

// FailWith makes every later call return err; nil restores normal answers.
func (p *MockDistanceProvider) FailWith(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

// SetDelay makes every call block for d or until ctx is done.
func (p *MockDistanceProvider) SetDelay(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.delay = d
}

// Calls returns how many times GetDistance was invoked.
func (p *MockDistanceProvider) Calls() int64 { return p.calls.Load() }

func (p *MockDistanceProvider) GetDistance(
	ctx context.Context,
	origin domain.Coordinates,
	destination domain.Coordinates,
	mode domain.TravelMode,
) (ports.DistanceResult, error) {
	p.calls.Inc()

	p.mu.RLock()
	err, delay := p.err, p.delay
	r, ok := p.m[mockKey(destination, mode)]
	p.mu.RUnlock()

	if delay > 0 {
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ports.DistanceResult{}, ctx.Err()
		case <-timer.C:
		}
	}
	if err != nil {
		return ports.DistanceResult{}, err
	}
	if ok {
		return r, nil
	}
	if p.Strict {
		return ports.DistanceResult{}, fmt.Errorf("%w: missing pair to %v (%s)", domain.ErrProviderUnavailable, destination, mode)
	}
	return Estimate(origin, destination, mode), nil
}
