package bus

import (
	"context"

	"github.com/yungbote/quoteflow-backend/internal/realtime"
)

// Bus fans job and case events out to every API process.
type Bus interface {
	Publish(ctx context.Context, msg realtime.SSEMessage) error
	StartForwarder(ctx context.Context, onMsg func(m realtime.SSEMessage)) error
	Close() error
}
