package bus

import (
	"context"
	"testing"

	"github.com/yungbote/quoteflow-backend/internal/realtime"
)

func TestLocalBusForwardsToAllSubscribers(t *testing.T) {
	b := NewLocalBus()
	ctx := context.Background()
	var a, c []realtime.SSEEvent
	if err := b.StartForwarder(ctx, func(m realtime.SSEMessage) { a = append(a, m.Event) }); err != nil {
		t.Fatalf("StartForwarder: %v", err)
	}
	if err := b.StartForwarder(ctx, func(m realtime.SSEMessage) { c = append(c, m.Event) }); err != nil {
		t.Fatalf("StartForwarder: %v", err)
	}
	if err := b.Publish(ctx, realtime.SSEMessage{Channel: "job:x", Event: realtime.SSEEventJobDone}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if len(a) != 1 || len(c) != 1 || a[0] != realtime.SSEEventJobDone {
		t.Fatalf("fan-out failed: %v %v", a, c)
	}
	_ = b.Close()
	_ = b.Publish(ctx, realtime.SSEMessage{Channel: "job:x", Event: realtime.SSEEventJobDone})
	if len(a) != 1 {
		t.Fatalf("closed bus still delivering")
	}
}
