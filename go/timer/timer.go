// Package timer reports how long an operation took via the logs.
package timer

import (
	"time"

	"github.com/easyctf/openctf-judge/go/sklog"
)

// Timer logs the elapsed time between New and Stop. Use it at the top of
// the function being measured:
//
//	defer timer.New("database sync time").Stop()
type Timer struct {
	Begin time.Time
	Name  string
}

func New(name string) *Timer {
	return &Timer{
		Begin: time.Now(),
		Name:  name,
	}
}

func (t Timer) Stop() {
	sklog.Infof("%s %v", t.Name, time.Since(t.Begin))
}
