package worker

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
)

type countingEvictor struct {
	calls atomic.Int32
}

func (c *countingEvictor) EvictIdle() int {
	c.calls.Add(1)
	return 1
}

func TestSessionJanitorRunsUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	ev := &countingEvictor{}
	done := StartSessionJanitor(ctx, ev, 5*time.Millisecond, zap.NewNop())

	deadline := time.After(2 * time.Second)
	for ev.calls.Load() < 2 {
		select {
		case <-deadline:
			t.Fatal("janitor did not run")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("janitor did not stop")
	}
}

func TestSessionJanitorDisabled(t *testing.T) {
	done := StartSessionJanitor(context.Background(), nil, time.Second, zap.NewNop())
	select {
	case <-done:
	default:
		t.Fatal("disabled janitor must report done immediately")
	}
}
