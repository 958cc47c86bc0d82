// Package stdlogging implements sklogimpl.Logger over a plain SyncWriter,
// normally os.Stderr or os.Stdout.
package stdlogging

import (
	logger "github.com/jcgregorio/logger"

	"github.com/easyctf/openctf-judge/go/sklog/sklogimpl"
)

type stdlog struct {
	logger *logger.Logger
}

// New returns a sklogimpl.Logger writing to dst.
func New(dst logger.SyncWriter) sklogimpl.Logger {
	return &stdlog{
		logger: logger.NewFromOptions(&logger.Options{
			SyncWriter:   dst,
			DepthDelta:   3,
			IncludeDebug: true,
		}),
	}
}

// Log implements sklogimpl.Logger. Unknown severities log as errors.
func (s stdlog) Log(_ int, severity sklogimpl.Severity, format string, args ...interface{}) {
	print, printf := s.logger.Error, s.logger.Errorf
	switch severity {
	case sklogimpl.Debug:
		print, printf = s.logger.Debug, s.logger.Debugf
	case sklogimpl.Info:
		print, printf = s.logger.Info, s.logger.Infof
	case sklogimpl.Warning:
		print, printf = s.logger.Warning, s.logger.Warningf
	case sklogimpl.Fatal:
		print, printf = s.logger.Fatal, s.logger.Fatalf
	}
	if format == "" {
		print(args...)
	} else {
		printf(format, args...)
	}
}

// Flush implements sklogimpl.Logger. The underlying writer is unbuffered.
func (s stdlog) Flush() {}
