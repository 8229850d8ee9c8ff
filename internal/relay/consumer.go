package relay

import "context"

// Consumer drains the durable channel and fans each notification out to the
// live-connection transport.
type Consumer interface {
	// Pull processes one batch: decode, route, broadcast, acknowledge.
	// Returns the number of records it attempted to process.
	Pull(ctx context.Context) (int, error)
}
