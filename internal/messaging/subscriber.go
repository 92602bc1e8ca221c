package messaging

import (
	"context"

	"github.com/haven-markets/haven-indexer/internal/domain"
)

// TokenCreatedHandler is called when a token creation announcement is received
type TokenCreatedHandler func(event *domain.TokenCreated) error

// Subscriber defines the interface for consuming token creation announcements
type Subscriber interface {
	// Run consumes announcements until the context is cancelled.
	// handler: callback function to process each announcement
	Run(ctx context.Context, handler TokenCreatedHandler) error
	// Close closes the connection and cleans up resources
	Close()
}
