package orderstate

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"limitup-agent/internal/broker"
	"limitup-agent/internal/signal"
)

type fakeGateway struct {
	cb          chan broker.Callback
	nextSysID   int64
	sendResults []int64 // queued sys_ids to return from SendSellLimit, in order
	cancels     []broker.CancelRequest
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{cb: make(chan broker.Callback, 64)}
}

func (f *fakeGateway) SendSellLimit(req broker.SellOrderRequest) (int64, error) {
	if len(f.sendResults) > 0 {
		id := f.sendResults[0]
		f.sendResults = f.sendResults[1:]
		return id, nil
	}
	f.nextSysID++
	return f.nextSysID, nil
}

func (f *fakeGateway) SendBuyLimit(req broker.BuyOrderRequest) (int64, error) {
	f.nextSysID++
	return f.nextSysID, nil
}

func (f *fakeGateway) Cancel(req broker.CancelRequest) (int64, error) {
	f.cancels = append(f.cancels, req)
	return 1, nil
}

func (f *fakeGateway) Callbacks() <-chan broker.Callback { return f.cb }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestRegistry(t *testing.T, gw broker.Gateway) *Registry {
	t.Helper()
	logPath := filepath.Join(t.TempDir(), "time_spend.log")
	return NewRegistry(gw, nil, logPath, testLogger())
}

func TestSealStopsImmediatelyFromIdle(t *testing.T) {
	gw := newFakeGateway()
	reg := newTestRegistry(t, gw)

	reg.HandleSeal("600519.SH")

	if got := reg.PhaseOf("600519.SH"); got != PhaseStopped {
		t.Fatalf("phase = %v, want STOPPED", got)
	}
}

func TestSealDefersUntilIdle(t *testing.T) {
	gw := newFakeGateway()
	reg := newTestRegistry(t, gw)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go reg.Run(ctx)
	defer reg.Stop()

	trig := signal.LimitUpTrigger{Symbol: "600519.SH", Type: signal.TriggerSellSum50W, LimitUpRaw: 110000000}
	if !reg.TryArm(trig) {
		t.Fatal("expected TryArm to succeed from IDLE")
	}

	waitForPhase(t, reg, "600519.SH", PhaseWaitNewAck)

	// Seal while WAIT_NEW_ACK is in flight; must not stop immediately.
	reg.HandleSeal("600519.SH")
	waitForPhase(t, reg, "600519.SH", PhaseWaitNewAck)

	// Ack the new order with no prior active order.
	gw.cb <- broker.Callback{Type: broker.PushOrder, OrderID: 1, Market: "SH", StockCode: "600519"}
	waitForPhase(t, reg, "600519.SH", PhaseStopped)
}

func TestCancelRetryGivesUpAfterThreeInvalids(t *testing.T) {
	gw := newFakeGateway()
	reg := newTestRegistry(t, gw)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go reg.Run(ctx)
	defer reg.Stop()

	trig := signal.LimitUpTrigger{Symbol: "000002.SZ", Type: signal.TriggerSellSum50W, LimitUpRaw: 110000000}
	reg.TryArm(trig)
	waitForPhase(t, reg, "000002.SZ", PhaseWaitNewAck)

	// First order acked with sysID 1, no prior -> resolves IDLE. Arm again to
	// get an active order, then arm a second closed loop that cancels it.
	gw.cb <- broker.Callback{Type: broker.PushOrder, OrderID: 1, Market: "SZ", StockCode: "000002"}
	waitForPhase(t, reg, "000002.SZ", PhaseIdle)

	reg.TryArm(trig)
	waitForPhase(t, reg, "000002.SZ", PhaseWaitNewAck)
	gw.cb <- broker.Callback{Type: broker.PushOrder, OrderID: 2, Market: "SZ", StockCode: "000002"}
	waitForPhase(t, reg, "000002.SZ", PhaseWaitCancelAck)

	gw.cb <- broker.Callback{Type: broker.PushInvalid, CxOrderID: 1, Market: "SZ", StockCode: "000002"}
	waitForCancelAttempts(t, reg, "000002.SZ", 2)
	gw.cb <- broker.Callback{Type: broker.PushInvalid, CxOrderID: 1, Market: "SZ", StockCode: "000002"}
	waitForCancelAttempts(t, reg, "000002.SZ", 3)
	gw.cb <- broker.Callback{Type: broker.PushInvalid, CxOrderID: 1, Market: "SZ", StockCode: "000002"}

	time.Sleep(50 * time.Millisecond)
	snap := reg.Snapshot("000002.SZ")
	if snap.Phase != PhaseWaitCancelAck {
		t.Fatalf("phase = %v, want sticky WAIT_CANCEL_ACK", snap.Phase)
	}
	if snap.CancelAttempts != 3 {
		t.Fatalf("cancel attempts = %d, want 3 (capped)", snap.CancelAttempts)
	}
}

func TestCancelTimeoutRetries(t *testing.T) {
	gw := newFakeGateway()
	reg := newTestRegistry(t, gw)
	reg.nowFn = fakeClock(0)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go reg.Run(ctx)
	defer reg.Stop()

	trig := signal.LimitUpTrigger{Symbol: "600519.SH", Type: signal.TriggerSellSum50W, LimitUpRaw: 110000000}
	reg.TryArm(trig)
	waitForPhase(t, reg, "600519.SH", PhaseWaitNewAck)
	gw.cb <- broker.Callback{Type: broker.PushOrder, OrderID: 1, Market: "SH", StockCode: "600519"}
	waitForPhase(t, reg, "600519.SH", PhaseIdle)

	reg.TryArm(trig)
	waitForPhase(t, reg, "600519.SH", PhaseWaitNewAck)
	gw.cb <- broker.Callback{Type: broker.PushOrder, OrderID: 2, Market: "SH", StockCode: "600519"}
	waitForPhase(t, reg, "600519.SH", PhaseWaitCancelAck)

	if len(gw.cancels) != 1 {
		t.Fatalf("expected 1 cancel sent at ack time, got %d", len(gw.cancels))
	}

	// Advance the fake clock past the 2s timeout; the ticker should fire a retry.
	reg.nowFn = fakeClock(int64(3 * time.Second))
	time.Sleep(250 * time.Millisecond)

	snap := reg.Snapshot("600519.SH")
	if snap.CancelAttempts < 2 {
		t.Fatalf("cancel attempts = %d, want >= 2 after timeout", snap.CancelAttempts)
	}
}

func waitForPhase(t *testing.T, reg *Registry, symbol string, want Phase) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if reg.PhaseOf(symbol) == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s phase %v, got %v", symbol, want, reg.PhaseOf(symbol))
}

func waitForCancelAttempts(t *testing.T, reg *Registry, symbol string, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if reg.Snapshot(symbol).CancelAttempts == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s cancel attempts %d", symbol, want)
}

func fakeClock(ns int64) func() int64 {
	return func() int64 { return ns }
}
