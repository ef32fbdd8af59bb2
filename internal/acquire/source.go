// Package acquire reads live loop measurements from a message broker.
//
// Both sources decode the same JSON payload (see [Decoder]) and push
// [Reading] values onto a caller-owned channel until the context ends.
// Payloads that fail to decode are logged and skipped.
package acquire

import (
	"context"
	"log/slog"
)

// Source streams readings into out until ctx is cancelled or the
// underlying connection fails. Run does not close out.
type Source interface {
	Run(ctx context.Context, out chan<- Reading) error
	Close() error
}

// deliver blocks until r is accepted or ctx ends.
func deliver(ctx context.Context, out chan<- Reading, r Reading) bool {
	select {
	case out <- r:
		return true
	case <-ctx.Done():
		return false
	}
}

func componentLog(log *slog.Logger, name string) *slog.Logger {
	if log == nil {
		log = slog.Default()
	}
	return log.With(slog.String("component", name))
}
