package distance

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"property-distance-service/internal/domain"
	"property-distance-service/internal/platform/obs"
	"property-distance-service/internal/ports"
	"strings"
	"time"
)

const defaultORSBaseURL = "https://api.openrouteservice.org"

// ORS routing profile per travel mode.
var orsProfiles = map[domain.TravelMode]string{
	domain.Walking: "foot-walking",
	domain.Driving: "driving-car",
}

type ORSConfig struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// ORSProvider implements DistanceProvider using the OpenRouteService
// matrix endpoint. It is safe for concurrent use.
type ORSProvider struct {
	session      *http.Client
	apiKey       string
	baseURL      string
	initialDelay time.Duration
}

func NewORSProvider(cfg ORSConfig) (*ORSProvider, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("ORS api key is empty")
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultORSBaseURL
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ORSProvider{
		session:      &http.Client{Timeout: timeout},
		apiKey:       cfg.APIKey,
		baseURL:      baseURL,
		initialDelay: 200 * time.Millisecond,
	}, nil
}

func (o *ORSProvider) GetDistance(
	ctx context.Context,
	origin domain.Coordinates,
	destination domain.Coordinates,
	mode domain.TravelMode,
) (_ ports.DistanceResult, err error) {
	defer obs.Time(ctx, "ors.GetDistance")(&err)

	profile, ok := orsProfiles[mode]
	if !ok {
		return ports.DistanceResult{}, fmt.Errorf("%w: %q", domain.ErrInvalidMode, mode)
	}

	row, err := o.fetchMatrixRow(ctx, profile, origin, []domain.Coordinates{destination})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ports.DistanceResult{}, ctxErr
		}
		return ports.DistanceResult{}, fmt.Errorf("%w: ors %s: %w", domain.ErrProviderUnavailable, profile, err)
	}

	return row[0], nil
}
