package metrics2

// Liveness values are reported in seconds since the last Reset. Periodic
// processes reset theirs on every successful pass, so a growing value means
// the process has stopped making progress.

import (
	"sync"
	"time"
)

const (
	MEASUREMENT_LIVENESS = "liveness"

	livenessReportFrequency = time.Minute
)

// liveness implements the Liveness interface.
type liveness struct {
	mtx       sync.Mutex
	lastReset time.Time
	m         Int64Metric
}

// newLiveness creates a Liveness. The current age is pushed to the backing
// gauge once per minute and immediately on every Reset.
func newLiveness(c Client, name string, tagsList ...map[string]string) Liveness {
	tags := map[string]string{}
	for _, t := range tagsList {
		for k, v := range t {
			tags[k] = v
		}
	}
	tags["name"] = name
	l := &liveness{
		lastReset: time.Now(),
		m:         c.GetInt64Metric(MEASUREMENT_LIVENESS, tags),
	}
	l.report()
	go func() {
		for range time.Tick(livenessReportFrequency) {
			l.report()
		}
	}()
	return l
}

// report pushes the current age to the backing gauge.
func (l *liveness) report() {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	l.reportLocked()
}

func (l *liveness) reportLocked() {
	l.m.Update(int64(time.Since(l.lastReset).Seconds()))
}

// Get implements Liveness.
func (l *liveness) Get() int64 {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	l.reportLocked()
	return l.m.Get()
}

// Reset implements Liveness; call it when a unit of work completes
// successfully.
func (l *liveness) Reset() {
	l.ManualReset(time.Now())
}

// ManualReset implements Liveness; it backdates the last success to an
// arbitrary time. Useful for testing.
func (l *liveness) ManualReset(lastSuccessfulUpdate time.Time) {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	l.lastReset = lastSuccessfulUpdate
	l.reportLocked()
}

var _ Liveness = (*liveness)(nil)
