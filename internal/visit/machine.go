package visit

import (
	"time"

	"github.com/google/uuid"
)

// State is the session engine lifecycle state.
type State int

const (
	// StateIdle means no bird and no open visit.
	StateIdle State = iota
	// StatePresent means a bird is on the feeder and a visit is open.
	StatePresent
	// StateAbsent means the bird has disappeared but the grace period has
	// not yet elapsed; the visit stays open.
	StateAbsent
	// StateComplete means the last visit just ended and the cooldown is
	// running before a new one may begin.
	StateComplete
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePresent:
		return "present"
	case StateAbsent:
		return "absent"
	case StateComplete:
		return "complete"
	default:
		return "unknown"
	}
}

// EffectKind enumerates the side-effect instructions the machine can emit.
type EffectKind int

const (
	// EffectNone means no side effect this tick.
	EffectNone EffectKind = iota
	// EffectStartVisit opens a new visit; the caller records the initial
	// capture from the current frame.
	EffectStartVisit
	// EffectCapture records an additional capture on the open visit.
	EffectCapture
	// EffectCompleteVisit closes the visit and hands ownership to the
	// caller for analysis; no further captures can attach to it.
	EffectCompleteVisit
)

func (k EffectKind) String() string {
	switch k {
	case EffectNone:
		return "none"
	case EffectStartVisit:
		return "start_visit"
	case EffectCapture:
		return "capture"
	case EffectCompleteVisit:
		return "complete_visit"
	default:
		return "unknown"
	}
}

// Effect is the tagged instruction returned by Observe. Visit is set for
// every kind except EffectNone.
type Effect struct {
	Kind  EffectKind
	Visit *Visit
}

// Config is the immutable timing snapshot the machine runs on.
type Config struct {
	AbsenceGracePeriod time.Duration
	Cooldown           time.Duration
	CaptureInterval    time.Duration
	MaxCaptures        int
}

// Machine is the visit state machine. It owns the open visit exclusively and
// is not safe for concurrent use; the engine calls it from a single
// goroutine.
type Machine struct {
	cfg       Config
	sessionID string

	state         State
	current       *Visit
	absenceStart  time.Time
	cooldownStart time.Time
	lastCapture   time.Time

	newID func() string
}

// NewMachine builds an idle machine for the given daemon session.
func NewMachine(sessionID string, cfg Config) *Machine {
	return &Machine{
		cfg:       cfg,
		sessionID: sessionID,
		state:     StateIdle,
		newID:     uuid.NewString,
	}
}

// State returns the current lifecycle state.
func (m *Machine) State() State {
	return m.state
}

// Current returns the open visit, or nil.
func (m *Machine) Current() *Visit {
	return m.current
}

// Observe advances the machine one tick. detected reports whether an
// accepted bird detection exists in the current frame; now is monotonic
// wall-clock time supplied by the caller.
func (m *Machine) Observe(detected bool, now time.Time) Effect {
	switch m.state {
	case StateIdle:
		if detected && m.cooldownElapsed(now) {
			return m.startVisit(now)
		}

	case StatePresent:
		if !detected {
			m.state = StateAbsent
			m.absenceStart = now
			break
		}
		if m.shouldCapture(now) {
			return m.capture(now)
		}

	case StateAbsent:
		if detected {
			m.state = StatePresent
			m.absenceStart = time.Time{}
			break
		}
		if now.Sub(m.absenceStart) >= m.cfg.AbsenceGracePeriod {
			return m.completeVisit(now)
		}

	case StateComplete:
		if m.cooldownElapsed(now) {
			// Cooldown over: fall back to idle and re-evaluate this same
			// tick, so a bird already present starts its next visit
			// without waiting another interval.
			m.state = StateIdle
			if detected {
				return m.startVisit(now)
			}
		}
	}
	return Effect{Kind: EffectNone}
}

func (m *Machine) startVisit(now time.Time) Effect {
	m.current = &Visit{
		ID:        m.newID(),
		SessionID: m.sessionID,
		StartedAt: now,
		Status:    StatusActive,
		BirdCount: 1,
	}
	m.state = StatePresent
	m.lastCapture = now
	return Effect{Kind: EffectStartVisit, Visit: m.current}
}

func (m *Machine) capture(now time.Time) Effect {
	if len(m.current.Captures) >= m.cfg.MaxCaptures {
		return Effect{Kind: EffectNone}
	}
	m.lastCapture = now
	return Effect{Kind: EffectCapture, Visit: m.current}
}

func (m *Machine) completeVisit(now time.Time) Effect {
	closed := m.current
	closed.EndedAt = now
	closed.Status = StatusAnalyzing

	m.current = nil
	m.state = StateComplete
	m.cooldownStart = now
	m.absenceStart = time.Time{}
	return Effect{Kind: EffectCompleteVisit, Visit: closed}
}

func (m *Machine) shouldCapture(now time.Time) bool {
	if m.lastCapture.IsZero() {
		return true
	}
	return now.Sub(m.lastCapture) >= m.cfg.CaptureInterval
}

func (m *Machine) cooldownElapsed(now time.Time) bool {
	if m.cooldownStart.IsZero() {
		return true
	}
	return now.Sub(m.cooldownStart) >= m.cfg.Cooldown
}
