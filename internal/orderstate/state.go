// Package orderstate implements the Order State Machine (spec.md §4.5,
// component E): the per-symbol send → ack → cancel-prior → ack closed loop,
// with retry-on-rejection and timeout-driven cancel retries. A single
// worker goroutine serializes every transition; callers only ever reach it
// through TryArm, HasArmed and HandleSeal, which take and release the
// per-symbol lock for the duration of a single check.
package orderstate

import (
	"sync"
)

// Phase is a symbol's position in the closed loop (spec.md §3).
type Phase uint8

const (
	PhaseIdle Phase = iota
	PhaseWaitSend
	PhaseWaitNewAck
	PhaseWaitCancelAck
	PhaseStopped
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "IDLE"
	case PhaseWaitSend:
		return "WAIT_SEND"
	case PhaseWaitNewAck:
		return "WAIT_NEW_ACK"
	case PhaseWaitCancelAck:
		return "WAIT_CANCEL_ACK"
	case PhaseStopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

// symbolState is one symbol's mutable order-state record (spec.md §3). All
// field access happens under mu, held only for the duration of a single
// check-and-transition.
type symbolState struct {
	mu sync.Mutex

	phase Phase

	seq             int64
	activeSysID     int64
	pendingSysID    int64
	toCancelSysID   int64
	cancelAttempts  int
	lastCancelSendNs int64

	stopAfterDone       bool
	suppressedWhileBusy uint64

	// Closed-loop context captured at WAIT_SEND time, used only for logging.
	reason          string
	triggerTime     int32
	signalSteadyNs  int64
	sendSteadyNs    int64
	limitUpRaw      int64
	baseRaw         int64
	tickRaw         int64
	sumTriggerCount int
}

// newSymbolState returns a fresh, idle state record.
func newSymbolState() *symbolState {
	return &symbolState{phase: PhaseIdle}
}

// resolveAfterDone applies spec.md §3's invariant: "If stop_after_done=true
// and phase reaches IDLE, phase transitions to STOPPED." Call with mu held.
func (s *symbolState) resolveAfterDone() Phase {
	if s.stopAfterDone {
		s.phase = PhaseStopped
	} else {
		s.phase = PhaseIdle
	}
	return s.phase
}

// Snapshot is an immutable copy of a symbolState used for logging and for
// the admin console's read-only inspection commands.
type Snapshot struct {
	Symbol              string
	Phase               Phase
	Seq                 int64
	ActiveSysID         int64
	PendingSysID        int64
	ToCancelSysID       int64
	CancelAttempts      int
	StopAfterDone       bool
	SuppressedWhileBusy uint64
}

func (s *symbolState) snapshot(symbol string) Snapshot {
	return Snapshot{
		Symbol:              symbol,
		Phase:               s.phase,
		Seq:                 s.seq,
		ActiveSysID:         s.activeSysID,
		PendingSysID:        s.pendingSysID,
		ToCancelSysID:       s.toCancelSysID,
		CancelAttempts:      s.cancelAttempts,
		StopAfterDone:       s.stopAfterDone,
		SuppressedWhileBusy: s.suppressedWhileBusy,
	}
}
