package trigger

import (
	"testing"

	"limitup-agent/internal/signal"
)

type fakeArming struct {
	armed     map[string]bool
	tryArmed  []signal.LimitUpTrigger
	sealed    []string
	tryArmRet bool
}

func (f *fakeArming) TryArm(trig signal.LimitUpTrigger) bool {
	f.tryArmed = append(f.tryArmed, trig)
	return f.tryArmRet
}

func (f *fakeArming) HasArmed(symbol string) bool { return f.armed[symbol] }

func (f *fakeArming) HandleSeal(symbol string) { f.sealed = append(f.sealed, symbol) }

func TestSubmitRejectsBeforeMarketOpen(t *testing.T) {
	f := &fakeArming{armed: map[string]bool{}}
	c := New(f)
	c.Submit(signal.LimitUpTrigger{Symbol: "600519.SH", Type: signal.TriggerSellSum50W, EventTime: 92959999, LimitUpRaw: 1})
	if len(f.tryArmed) != 0 {
		t.Fatal("expected pre-open trigger to be rejected")
	}
}

func TestSubmitRejectsZeroLimitUp(t *testing.T) {
	f := &fakeArming{armed: map[string]bool{}}
	c := New(f)
	c.Submit(signal.LimitUpTrigger{Symbol: "600519.SH", Type: signal.TriggerSellSum50W, EventTime: 93000001, LimitUpRaw: 0})
	if len(f.tryArmed) != 0 {
		t.Fatal("expected zero limit_up_raw trigger to be rejected")
	}
}

func TestSealedStopBypassesArming(t *testing.T) {
	f := &fakeArming{armed: map[string]bool{}}
	c := New(f)
	c.Submit(signal.LimitUpTrigger{Symbol: "600519.SH", Type: signal.TriggerSealedStop, EventTime: 93000001, LimitUpRaw: 1})
	if len(f.sealed) != 1 || f.sealed[0] != "600519.SH" {
		t.Fatalf("expected HandleSeal called once, got %v", f.sealed)
	}
	if len(f.tryArmed) != 0 {
		t.Fatal("SEALED_STOP must not be enqueued via TryArm")
	}
}

func TestPrice107DroppedOnceArmed(t *testing.T) {
	f := &fakeArming{armed: map[string]bool{"600519.SH": true}}
	c := New(f)
	c.Submit(signal.LimitUpTrigger{Symbol: "600519.SH", Type: signal.TriggerPrice107, EventTime: 93000001, LimitUpRaw: 1})
	if len(f.tryArmed) != 0 {
		t.Fatal("expected PRICE_107 to be dropped once armed")
	}
}

type recordingSink struct {
	recorded []signal.LimitUpTrigger
}

func (s *recordingSink) RecordTrigger(trig signal.LimitUpTrigger) {
	s.recorded = append(s.recorded, trig)
}

func TestSubmitRecordsEveryTriggerRegardlessOfIngress(t *testing.T) {
	f := &fakeArming{armed: map[string]bool{}}
	sink := &recordingSink{}
	c := New(f)
	c.SetSink(sink)

	c.Submit(signal.LimitUpTrigger{Symbol: "600519.SH", Type: signal.TriggerSellSum50W, EventTime: 92959999, LimitUpRaw: 1})
	c.Submit(signal.LimitUpTrigger{Symbol: "600519.SH", Type: signal.TriggerSellSum50W, EventTime: 93000001, LimitUpRaw: 0})
	c.Submit(signal.LimitUpTrigger{Symbol: "600519.SH", Type: signal.TriggerSellSum50W, EventTime: 93000001, LimitUpRaw: 1})

	if len(sink.recorded) != 3 {
		t.Fatalf("recorded %d triggers, want 3 (every Submit call, regardless of ingress outcome)", len(sink.recorded))
	}
	if len(f.tryArmed) != 1 {
		t.Fatalf("tryArmed = %d, want 1 (only the valid trigger reaches arming)", len(f.tryArmed))
	}
}

func TestSellSum50WPassesThrough(t *testing.T) {
	f := &fakeArming{armed: map[string]bool{"600519.SH": true}, tryArmRet: true}
	c := New(f)
	c.Submit(signal.LimitUpTrigger{Symbol: "600519.SH", Type: signal.TriggerSellSum50W, EventTime: 93000001, LimitUpRaw: 1})
	if len(f.tryArmed) != 1 {
		t.Fatal("expected SELL_SUM_50W to reach TryArm even when already armed")
	}
}
