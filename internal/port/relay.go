package port

import "context"

// Relay moves pending outbox records onto the durable stream at least once.
type Relay interface {
	Run(ctx context.Context) error
}
