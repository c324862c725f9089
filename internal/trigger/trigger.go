// Package trigger implements the Trigger Channel (spec.md §4.4, component
// D): the mailbox from the Symbol Engine to the Order State Machine. All of
// its ingress rules operate on internal/orderstate's busy/armed state, so
// this package depends on orderstate — never the reverse.
package trigger

import (
	"limitup-agent/internal/orderstate"
	"limitup-agent/internal/signal"
)

// marketOpenTime is 09:30:00.000 in HHMMSSmmm form (spec.md §4.4).
const marketOpenTime = 93000000

// Arming is the subset of *orderstate.Registry this package depends on.
// Expressed as an interface so trigger can be tested without a full
// registry.
type Arming interface {
	TryArm(trig signal.LimitUpTrigger) bool
	HasArmed(symbol string) bool
	HandleSeal(symbol string)
}

// Sink archives every trigger the Symbol Engine posts, regardless of
// whether ingress rules accept or reject it (SPEC_FULL.md §4.12:
// "every LimitUpTrigger the Symbol Engine posts"). internal/store.Store
// satisfies this; expressed here as an interface so trigger never imports
// store.
type Sink interface {
	RecordTrigger(trig signal.LimitUpTrigger)
}

// Channel validates and routes triggers posted by the Symbol Engine.
type Channel struct {
	arming Arming
	sink   Sink
}

// New builds a Channel backed by the given order-state registry.
func New(arming Arming) *Channel {
	return &Channel{arming: arming}
}

// SetSink installs the archive sink. Optional; a nil sink (the default)
// disables archiving.
func (c *Channel) SetSink(sink Sink) {
	c.sink = sink
}

// Submit applies spec.md §4.4's ingress rules and, if accepted, hands the
// trigger to the order state machine.
func (c *Channel) Submit(trig signal.LimitUpTrigger) {
	if c.sink != nil {
		c.sink.RecordTrigger(trig)
	}

	if trig.EventTime < marketOpenTime || trig.LimitUpRaw <= 0 {
		return
	}

	if trig.Type == signal.TriggerSealedStop {
		c.arming.HandleSeal(trig.Symbol)
		return
	}

	if trig.Type == signal.TriggerPrice107 && c.arming.HasArmed(trig.Symbol) {
		return
	}

	c.arming.TryArm(trig)
}
