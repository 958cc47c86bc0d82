package metrics2

import (
	"runtime"
	"strings"
	"time"
)

const (
	MEASUREMENT_TIMER = "timer"
	NAME_FUNC_TIMER   = "func_timer"
)

// timer implements the Timer interface. Unlike the other metrics helpers,
// a timer does not continuously report data; it reports a single observation,
// in seconds, when Stop() is called.
type timer struct {
	begin time.Time
	m     Float64SummaryMetric
}

// newTimer creates and starts a new Timer.
func newTimer(c Client, name string, tagsList ...map[string]string) Timer {
	tags := map[string]string{}
	for _, t := range tagsList {
		for k, v := range t {
			tags[k] = v
		}
	}
	tags["name"] = name
	return &timer{
		begin: time.Now(),
		m:     c.GetFloat64SummaryMetric(MEASUREMENT_TIMER, tags),
	}
}

// Start implements Timer.
func (t *timer) Start() {
	t.begin = time.Now()
}

// Stop implements Timer.
func (t *timer) Stop() time.Duration {
	elapsed := time.Since(t.begin)
	t.m.Observe(elapsed.Seconds())
	return elapsed
}

// FuncTimer measures the duration of the calling function, tagged by package
// and function name. Place it at the top of the func to be measured:
//
//	func myfunc() {
//	    defer metrics2.FuncTimer().Stop()
//	    ...
//	}
func FuncTimer() Timer {
	pkg, fn := "unknown", "unknown"
	if pc, _, _, ok := runtime.Caller(1); ok {
		name := runtime.FuncForPC(pc).Name()
		// Method names contain dots; the function name starts after the last.
		if i := strings.LastIndex(name, "."); i >= 0 {
			pkg, fn = name[:i], name[i+1:]
		}
	}
	return NewTimer(NAME_FUNC_TIMER, map[string]string{"package": pkg, "func": fn})
}

var _ Timer = (*timer)(nil)
