// Package sklogimpl contains the pluggable logging backend used by sklog.
// Applications normally never import this directly; sklog installs a stderr
// backend at init and binaries may swap it out.
package sklogimpl

// Severity identifies the reported level of a log line.
type Severity int

const (
	Debug Severity = iota
	Info
	Warning
	Error
	Fatal
)

// Logger is implemented by logging backends. depth is the number of stack
// frames between the backend and the original logging call site, for
// file:line attribution. If format is empty the args are formatted as
// fmt.Sprint would.
type Logger interface {
	Log(depth int, severity Severity, format string, args ...interface{})
	Flush()
}

var logger Logger

// SetLogger installs the backend. Not goroutine-safe; call during init or
// single-threaded bring-up.
func SetLogger(l Logger) {
	logger = l
}

// Log dispatches one log line to the installed backend.
func Log(depth int, severity Severity, format string, args ...interface{}) {
	logger.Log(depth+1, severity, format, args...)
}

// Flush flushes any buffered log lines.
func Flush() {
	if logger != nil {
		logger.Flush()
	}
}
