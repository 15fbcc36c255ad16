// Package form fills admin-panel forms from field maps, switches form tabs,
// acquires edit locks and presses the right save button.
package form

import (
	"strings"
	"time"

	"go.uber.org/zap"

	"panelqa-runner/internal/resolver"
	"panelqa-runner/internal/wait"
)

// Timings are the form layer's wait windows.
type Timings struct {
	FieldRetry    time.Duration
	FieldAttempts int
	TabSettle     time.Duration
	PollInterval  time.Duration
	SaveToast     time.Duration
	SaveBackdrop  time.Duration
}

// Filler writes field maps into the active form.
type Filler struct {
	res             *resolver.Resolver
	clock           wait.Clock
	timing          Timings
	sidebarKeywords []string
	log             *zap.Logger
}

// New creates a filler. sidebarKeywords seed the tab scan.
func New(res *resolver.Resolver, clock wait.Clock, timing Timings, sidebarKeywords []string, log *zap.Logger) *Filler {
	if log == nil {
		log = zap.NewNop()
	}
	if timing.FieldAttempts < 1 {
		timing.FieldAttempts = 1
	}
	return &Filler{
		res:             res,
		clock:           clock,
		timing:          timing,
		sidebarKeywords: sidebarKeywords,
		log:             log.Named("form"),
	}
}

// Result reports which fields were written.
type Result struct {
	Filled []string
	Missed []string
}

// Count is the number of fields written.
func (r Result) Count() int { return len(r.Filled) }

// Complete reports whether every requested field was written.
func (r Result) Complete() bool { return len(r.Missed) == 0 && len(r.Filled) > 0 }

// String summarises the result for a log entry.
func (r Result) String() string {
	var b strings.Builder
	b.WriteString("filled ")
	b.WriteString(strings.Join(r.Filled, ", "))
	if len(r.Filled) == 0 {
		b.WriteString("nothing")
	}
	if len(r.Missed) > 0 {
		b.WriteString("; missed ")
		b.WriteString(strings.Join(r.Missed, ", "))
	}
	return b.String()
}
