package pipeline

import (
	"io"
	"log"
	"sync"

	"github.com/banshee-data/skyfollow/internal/tracking"
)

var (
	logMu       sync.RWMutex
	opsLogger   *log.Logger
	diagLogger  *log.Logger
	traceLogger *log.Logger
)

// SetLogWriters configures the runtime's log streams. A nil writer
// disables that stream.
func SetLogWriters(w tracking.LogWriters) {
	logMu.Lock()
	defer logMu.Unlock()
	opsLogger = newLogger(w.Ops)
	diagLogger = newLogger(w.Diag)
	traceLogger = newLogger(w.Trace)
}

func newLogger(w io.Writer) *log.Logger {
	if w == nil {
		return nil
	}
	return log.New(w, "[pipeline] ", log.LstdFlags|log.Lmicroseconds)
}

func logf(l **log.Logger, format string, args ...any) {
	logMu.RLock()
	lg := *l
	logMu.RUnlock()
	if lg != nil {
		lg.Printf(format, args...)
	}
}

// Opsf logs runtime lifecycle and operator commands.
func Opsf(format string, args ...any) { logf(&opsLogger, format, args...) }

// Diagf logs recoverable upstream problems.
func Diagf(format string, args ...any) { logf(&diagLogger, format, args...) }

// Tracef logs per-frame timing.
func Tracef(format string, args ...any) { logf(&traceLogger, format, args...) }
