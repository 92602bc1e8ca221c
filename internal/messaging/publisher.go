package messaging

import (
	"context"

	"github.com/haven-markets/haven-indexer/internal/domain"
)

// Publisher defines the interface for announcing marketplace events on the
// message broker
type Publisher interface {
	// PublishTokenCreated announces a newly registered token so the realtime
	// indexer can pick it up without waiting for its poll cycle
	PublishTokenCreated(ctx context.Context, event *domain.TokenCreated) error
	// Close closes the connection
	Close()
}
