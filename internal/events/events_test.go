package events

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAsyncHandlesEveryEvent(t *testing.T) {
	var (
		mu   sync.Mutex
		seen = map[int64]Op{}
	)
	var running, peak atomic.Int32
	h := HandlerFunc(func(ctx context.Context, e Event) error {
		n := running.Add(1)
		defer running.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		mu.Lock()
		seen[e.TransactionID] = e.Op
		mu.Unlock()
		if e.TransactionID == 3 {
			return errors.New("index down")
		}
		return nil
	})

	a := NewAsync(h, 2, time.Second, nil)
	ctx, cancel := context.WithCancel(context.Background())
	for i := int64(1); i <= 6; i++ {
		a.Dispatch(ctx, Upsert(i))
	}
	// Handlers are detached from the caller's cancellation.
	cancel()
	a.Wait()

	assert.Len(t, seen, 6)
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestAsyncAppliesTimeout(t *testing.T) {
	var sawDeadline atomic.Bool
	h := HandlerFunc(func(ctx context.Context, _ Event) error {
		_, ok := ctx.Deadline()
		sawDeadline.Store(ok)
		return nil
	})
	a := NewAsync(h, 0, 50*time.Millisecond, nil)
	a.Dispatch(context.Background(), Remove(1))
	a.Wait()
	assert.True(t, sawDeadline.Load())
}

func TestInlineAndRecorder(t *testing.T) {
	rec := &Recorder{}
	inline := Inline{H: HandlerFunc(func(ctx context.Context, e Event) error {
		rec.Dispatch(ctx, e)
		return nil
	})}

	DispatchAll(context.Background(), inline, Upsert(1), Remove(2))
	evs := rec.Events()
	require.Len(t, evs, 2)
	assert.Equal(t, OpUpsert, evs[0].Op)
	assert.Equal(t, OpRemove, evs[1].Op)
	assert.Equal(t, int64(2), evs[1].TransactionID)
	assert.False(t, evs[0].At.IsZero())

	// Failing handlers are absorbed.
	Inline{H: HandlerFunc(func(context.Context, Event) error { return errors.New("x") })}.Dispatch(context.Background(), Upsert(3))
	Nop{}.Dispatch(context.Background(), Upsert(4))
}
