// Package cleanup coordinates graceful shutdown of long-running binaries.
//
// Periodic background tasks register with Repeat and teardown hooks with
// AtExit; Cleanup, normally reached via common.Defer, stops the tasks, waits
// for any in-flight tick to return, and then runs the hooks in order.
package cleanup

import (
	"context"
	"sync"
	"time"

	"github.com/easyctf/openctf-judge/go/sklog"
	"github.com/easyctf/openctf-judge/go/util"
)

var (
	ctx     context.Context
	cancel  context.CancelFunc
	running sync.WaitGroup

	atExitMtx sync.Mutex
	atExit    []func()
)

func init() {
	ctx, cancel = context.WithCancel(context.Background())
}

// Repeat runs tick immediately and then once per tickFrequency until Cleanup
// is called. The optional cleanup func runs after the final tick returns.
func Repeat(tickFrequency time.Duration, tick, cleanup func()) {
	running.Add(1)
	go func() {
		defer running.Done()
		// Blocks until ctx is canceled and any in-flight tick has returned.
		util.RepeatCtx(tickFrequency, ctx, tick)
		if cleanup != nil {
			cleanup()
		}
	}()
}

// AtExit registers fn to run during Cleanup, after all repeated tasks have
// stopped. Functions run in registration order.
func AtExit(fn func()) {
	atExitMtx.Lock()
	defer atExitMtx.Unlock()
	atExit = append(atExit, fn)
}

// Cleanup stops all tasks registered via Repeat, waits for them and their
// cleanup funcs to finish, then runs the AtExit functions.
func Cleanup() {
	sklog.Warningf("Shutdown request received")
	cancel()
	running.Wait()
	atExitMtx.Lock()
	fns := atExit
	atExit = nil
	atExitMtx.Unlock()
	for _, fn := range fns {
		fn()
	}
	sklog.Warningf("Finished clean shutdown procedure.")
}
