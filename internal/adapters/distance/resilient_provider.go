package distance

import (
	"context"
	"errors"
	"fmt"
	"property-distance-service/internal/domain"
	"property-distance-service/internal/platform/obs"
	"property-distance-service/internal/ports"
	"time"

	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"
)

type ResilientConfig struct {
	// Requests per second allowed towards the inner provider; <= 0 disables limiting.
	RatePerSecond float64
	Burst         int
	// Consecutive failures that open a mode's breaker.
	FailureThreshold uint32
	// How long an open breaker rejects calls before probing again.
	OpenTimeout time.Duration
	// Degrade to a haversine estimate instead of failing.
	Fallback bool
}

// ResilientProvider guards a remote DistanceProvider with a shared rate
// limiter and one circuit breaker per travel mode. Failures either degrade to
// an estimated haversine result or surface as domain.ErrProviderUnavailable.
type ResilientProvider struct {
	inner    ports.DistanceProvider
	limiter  *rate.Limiter
	breakers map[domain.TravelMode]*gobreaker.CircuitBreaker[ports.DistanceResult]
	fallback bool
	logger   zerolog.Logger
	metrics  *obs.Metrics
}

func NewResilientProvider(
	inner ports.DistanceProvider,
	cfg ResilientConfig,
	logger zerolog.Logger,
	metrics *obs.Metrics,
) *ResilientProvider {
	if metrics == nil {
		metrics = obs.NewMetricsForTesting()
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}

	var limiter *rate.Limiter
	if cfg.RatePerSecond > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
	}

	p := &ResilientProvider{
		inner:    inner,
		limiter:  limiter,
		breakers: make(map[domain.TravelMode]*gobreaker.CircuitBreaker[ports.DistanceResult], 2),
		fallback: cfg.Fallback,
		logger:   logger.With().Str("component", "routing_provider").Logger(),
		metrics:  metrics,
	}

	for _, mode := range domain.Modes() {
		mode := mode
		metrics.BreakerState.WithLabelValues(mode.String()).Set(0)
		p.breakers[mode] = gobreaker.NewCircuitBreaker[ports.DistanceResult](gobreaker.Settings{
			Name:        "routing-" + mode.String(),
			MaxRequests: 1,
			Timeout:     cfg.OpenTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= cfg.FailureThreshold
			},
			// cancellations and bad input say nothing about provider health
			IsSuccessful: func(err error) bool {
				return err == nil ||
					errors.Is(err, context.Canceled) ||
					errors.Is(err, context.DeadlineExceeded) ||
					errors.Is(err, domain.ErrInvalidMode)
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				p.logger.Warn().
					Str("breaker", name).
					Str("from", from.String()).
					Str("to", to.String()).
					Msg("circuit breaker state change")
				metrics.BreakerState.WithLabelValues(mode.String()).Set(breakerStateValue(to))
			},
		})
	}

	return p
}

func breakerStateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

func (p *ResilientProvider) GetDistance(
	ctx context.Context,
	origin domain.Coordinates,
	destination domain.Coordinates,
	mode domain.TravelMode,
) (ports.DistanceResult, error) {
	breaker, ok := p.breakers[mode]
	if !ok {
		return ports.DistanceResult{}, fmt.Errorf("%w: %q", domain.ErrInvalidMode, mode)
	}

	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ports.DistanceResult{}, ctxErr
			}
			return p.degrade(ctx, origin, destination, mode, err)
		}
	}

	start := time.Now()
	res, err := breaker.Execute(func() (ports.DistanceResult, error) {
		return p.inner.GetDistance(ctx, origin, destination, mode)
	})
	p.metrics.ProviderDuration.WithLabelValues(mode.String()).Observe(time.Since(start).Seconds())

	if err == nil {
		p.metrics.ProviderRequests.WithLabelValues(mode.String(), "success").Inc()
		return res, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ports.DistanceResult{}, ctxErr
	}
	if errors.Is(err, domain.ErrInvalidMode) {
		return ports.DistanceResult{}, err
	}

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		p.metrics.ProviderRequests.WithLabelValues(mode.String(), "rejected").Inc()
	} else {
		p.metrics.ProviderRequests.WithLabelValues(mode.String(), "error").Inc()
	}

	return p.degrade(ctx, origin, destination, mode, err)
}

func (p *ResilientProvider) degrade(
	ctx context.Context,
	origin domain.Coordinates,
	destination domain.Coordinates,
	mode domain.TravelMode,
	cause error,
) (ports.DistanceResult, error) {
	if !p.fallback {
		if errors.Is(cause, domain.ErrProviderUnavailable) {
			return ports.DistanceResult{}, cause
		}
		return ports.DistanceResult{}, fmt.Errorf("%w: %s: %w", domain.ErrProviderUnavailable, mode, cause)
	}

	p.metrics.ProviderRequests.WithLabelValues(mode.String(), "fallback").Inc()
	zerolog.Ctx(ctx).Warn().
		Err(cause).
		Str("mode", mode.String()).
		Msg("routing provider unavailable, using straight-line estimate")

	return Estimate(origin, destination, mode), nil
}
