// Package now provides a context-injectable clock so that time-dependent
// logic (stale-claim windows, autoscaler sampling) can be tested without
// sleeping.
package now

import (
	"context"
	"fmt"
	"sync"
	"time"
)

type contextKey string

// ContextKey is used by tests to make the time deterministic.
//
// Either a fixed time.Time or a NowProvider may be stored under this key:
//
//	ctx = context.WithValue(ctx, now.ContextKey, time.Unix(100, 0).UTC())
//	ctx = context.WithValue(ctx, now.ContextKey, now.NowProvider(myClock))
const ContextKey contextKey = "nowOverride"

// NowProvider is a function evaluated on every Now() call with the context
// it is stored in. It must be threadsafe if the context crosses goroutines.
type NowProvider func() time.Time

// Now returns the current time, or the time injected into the context.
func Now(ctx context.Context) time.Time {
	switch v := ctx.Value(ContextKey).(type) {
	case nil:
		return time.Now()
	case time.Time:
		return v
	case NowProvider:
		return v()
	default:
		panic(fmt.Sprintf("context value under now.ContextKey has type %T, want time.Time or NowProvider", v))
	}
}

// TimeTravelCtx is a context whose apparent time can be moved around by the
// test that owns it:
//
//	ctx := now.TimeTravelingContext(start)
//	claimed, _ := engine.Claim(ctx)
//	ctx.Advance(6 * time.Minute) // the claim is now stale
type TimeTravelCtx struct {
	context.Context

	mtx     sync.RWMutex
	current time.Time
}

// TimeTravelingContext returns a *TimeTravelCtx over the background context,
// starting at the given time.
func TimeTravelingContext(start time.Time) *TimeTravelCtx {
	t := &TimeTravelCtx{current: start}
	t.Context = context.WithValue(context.Background(), ContextKey, NowProvider(t.now))
	return t
}

func (t *TimeTravelCtx) now() time.Time {
	t.mtx.RLock()
	defer t.mtx.RUnlock()
	return t.current
}

// SetTime replaces the apparent time. Threadsafe.
func (t *TimeTravelCtx) SetTime(newTime time.Time) {
	t.mtx.Lock()
	defer t.mtx.Unlock()
	t.current = newTime
}

// Advance moves the apparent time forward by d and returns the new time.
func (t *TimeTravelCtx) Advance(d time.Duration) time.Time {
	t.mtx.Lock()
	defer t.mtx.Unlock()
	t.current = t.current.Add(d)
	return t.current
}
