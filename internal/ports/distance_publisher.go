package ports

import (
	"context"
	"property-distance-service/internal/domain"
)

// Optional sink notified after a record has been computed and stored.
// rec is the full stored row, so legs cached by earlier calls are included.
type DistancePublisher interface {
	PublishDistance(ctx context.Context, rec domain.DistanceRecord) error
}
