package sanitize

import (
	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
)

// Phase names the stage of a run an Event belongs to.
type Phase string

const (
	PhaseScan   Phase = "scan"
	PhaseWrite  Phase = "write"
	PhaseVerify Phase = "verify"
)

// Outcome is what happened to a region.
type Outcome int

const (
	OutcomeScanned Outcome = iota
	OutcomeSkipped
	OutcomeWritten
	OutcomeFailed
	OutcomeVerified
	OutcomeMismatch
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSkipped:
		return "skipped"
	case OutcomeWritten:
		return "written"
	case OutcomeFailed:
		return "failed"
	case OutcomeVerified:
		return "verified"
	case OutcomeMismatch:
		return "mismatch"
	}
	return "scanned"
}

// Event reports one region transition. Events are informational only.
type Event struct {
	Phase   Phase
	Region  Region
	Outcome Outcome
}

// Observer receives events synchronously from the run's goroutine.
type Observer interface {
	Observe(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

func (f ObserverFunc) Observe(ev Event) { f(ev) }

// Observers fans an event out to several observers.
type Observers []Observer

func (obs Observers) Observe(ev Event) {
	for _, o := range obs {
		if o != nil {
			o.Observe(ev)
		}
	}
}

// MilestoneEvery is the default spacing of progress log lines.
const MilestoneEvery = 256 << 20

// Milestones logs a line each time a phase crosses another multiple of
// every processed bytes.
type Milestones struct {
	log   *zap.Logger
	every int64
	done  map[Phase]int64
}

func NewMilestones(log *zap.Logger, every int64) *Milestones {
	if every <= 0 {
		every = MilestoneEvery
	}
	return &Milestones{log: log, every: every, done: make(map[Phase]int64)}
}

func (m *Milestones) Observe(ev Event) {
	// a scanned region is counted again when it is written or skipped
	if ev.Outcome == OutcomeScanned {
		return
	}
	phase := ev.Phase
	before := m.done[phase]
	after := before + ev.Region.Length
	m.done[phase] = after
	if after/m.every > before/m.every {
		m.log.Info("progress",
			zap.String("phase", string(phase)),
			zap.String("processed", humanize.IBytes(uint64(after))),
		)
	}
}

// Processed returns the bytes counted so far for phase.
func (m *Milestones) Processed(phase Phase) int64 { return m.done[phase] }
