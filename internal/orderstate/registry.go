package orderstate

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"limitup-agent/internal/broker"
	"limitup-agent/internal/signal"
)

// cancelTimeout is the re-send interval for an unacknowledged cancel
// (spec.md §5: "Order-state cancellation timeout is 2 s").
const cancelTimeout = 2 * time.Second

// maxCancelAttempts caps automatic cancel retries (spec.md §3, invariant 7).
const maxCancelAttempts = 3

// tickInterval bounds the worker's timeout-check wakeup (spec.md §5: "Worker
// wakeup is every 100 ms at most").
const tickInterval = 100 * time.Millisecond

// EventSink optionally observes closed-loop events for archival (e.g. the
// sqlite side-channel in internal/store). orderstate never imports the
// store package directly; store implements this interface instead.
type EventSink interface {
	OnClosedLoopEvent(symbol, event string, seq int64, sysID int64)
}

type noopSink struct{}

func (noopSink) OnClosedLoopEvent(string, string, int64, int64) {}

// MatchSink observes PUSH_MATCH callbacks. The order state machine itself
// has no use for fills (spec.md §4.5 only reacts to PUSH_ORDER/PUSH_INVALID/
// PUSH_WITHDRAW); the Follow-up Monitor (spec.md §4.7) is the consumer, and
// since Gateway.Callbacks() has exactly one reader (this Registry's worker
// loop), matches are forwarded here rather than read from a second channel.
type MatchSink interface {
	OnMatch(symbol string, c broker.Callback)
}

type noopMatchSink struct{}

func (noopMatchSink) OnMatch(string, broker.Callback) {}

type queuedTrigger struct {
	symbol string
	trig   signal.LimitUpTrigger
}

// Registry holds one symbolState per watched symbol and runs the single
// worker goroutine that is the sole mutator of that state (spec.md §5:
// "Order state map: mutated only under the worker's state lock").
type Registry struct {
	mu     sync.RWMutex
	states map[string]*symbolState

	gateway   broker.Gateway
	sink      EventSink
	matchSink MatchSink
	logger    *slog.Logger
	clog      *closedLoopLog

	triggers chan queuedTrigger
	stopCh   chan struct{}
	doneCh   chan struct{}

	nowFn func() int64 // monotonic nanoseconds; overridable in tests
}

// NewRegistry constructs a Registry. logPath is the time_spend.log file
// path (spec.md §6); sink may be nil.
func NewRegistry(gateway broker.Gateway, sink EventSink, logPath string, logger *slog.Logger) *Registry {
	if sink == nil {
		sink = noopSink{}
	}
	return &Registry{
		states:    make(map[string]*symbolState),
		gateway:   gateway,
		sink:      sink,
		matchSink: noopMatchSink{},
		logger:    logger,
		clog:      newClosedLoopLog(logPath),
		triggers:  make(chan queuedTrigger, 4096),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
		nowFn:     func() int64 { return time.Now().UnixNano() },
	}
}

// SetMatchSink installs the Follow-up Monitor (or any other PUSH_MATCH
// observer). Intended to be called once at startup before Run.
func (r *Registry) SetMatchSink(sink MatchSink) {
	if sink == nil {
		sink = noopMatchSink{}
	}
	r.matchSink = sink
}

func (r *Registry) stateFor(symbol string) *symbolState {
	r.mu.RLock()
	st, ok := r.states[symbol]
	r.mu.RUnlock()
	if ok {
		return st
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if st, ok := r.states[symbol]; ok {
		return st
	}
	st = newSymbolState()
	r.states[symbol] = st
	return st
}

// PhaseOf reports a symbol's current phase.
func (r *Registry) PhaseOf(symbol string) Phase {
	st := r.stateFor(symbol)
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.phase
}

// HasArmed reports whether the symbol has ever entered the closed loop
// (spec.md §4.4: PRICE_107 ingress guard — "dropped ... if the symbol has
// ever armed (seq > 0 or any active/pending id is non-zero)").
func (r *Registry) HasArmed(symbol string) bool {
	st := r.stateFor(symbol)
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.seq > 0 || st.activeSysID != 0 || st.pendingSysID != 0
}

// TryArm is the Trigger Channel's busy-suppression gate (spec.md §4.4): if
// the symbol is not IDLE the trigger is dropped and suppressedWhileBusy is
// incremented; otherwise phase advances to WAIT_SEND and the trigger is
// handed to the worker.
func (r *Registry) TryArm(trig signal.LimitUpTrigger) bool {
	st := r.stateFor(trig.Symbol)
	st.mu.Lock()
	if st.phase != PhaseIdle {
		st.suppressedWhileBusy++
		st.mu.Unlock()
		return false
	}
	st.phase = PhaseWaitSend
	st.mu.Unlock()

	select {
	case r.triggers <- queuedTrigger{symbol: trig.Symbol, trig: trig}:
	default:
		// Queue capacity is sized well beyond the number of symbols that can
		// be concurrently armed; reaching this means the worker has stalled.
		// Roll the phase back so the symbol isn't stuck WAIT_SEND forever.
		r.logger.Error("trigger queue full, dropping", "symbol", trig.Symbol)
		st.mu.Lock()
		st.phase = PhaseIdle
		st.mu.Unlock()
		return false
	}
	return true
}

// HandleSeal applies spec.md §4.4's SEALED_STOP bypass: it never touches the
// trigger queue. stop_after_done is latched unconditionally, and if the
// symbol is IDLE or WAIT_SEND it transitions straight to STOPPED.
func (r *Registry) HandleSeal(symbol string) {
	st := r.stateFor(symbol)
	st.mu.Lock()
	st.stopAfterDone = true
	if st.phase == PhaseIdle || st.phase == PhaseWaitSend {
		st.phase = PhaseStopped
	}
	st.mu.Unlock()
}

// Snapshot returns a read-only copy of a symbol's state, for the admin
// console.
func (r *Registry) Snapshot(symbol string) Snapshot {
	st := r.stateFor(symbol)
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.snapshot(symbol)
}

// Snapshots returns every tracked symbol's state.
func (r *Registry) Snapshots() []Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Snapshot, 0, len(r.states))
	for symbol, st := range r.states {
		st.mu.Lock()
		out = append(out, st.snapshot(symbol))
		st.mu.Unlock()
	}
	return out
}

// Run drives the worker loop until ctx is cancelled or Stop is called. It is
// the sole goroutine permitted to mutate symbolState beyond phase checks
// already made by TryArm/HandleSeal.
func (r *Registry) Run(ctx context.Context) {
	defer close(r.doneCh)
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	cb := r.gateway.Callbacks()
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopCh:
			return
		case qt := <-r.triggers:
			r.handleTrigger(qt)
		case c := <-cb:
			r.handleCallback(c)
		case <-ticker.C:
			r.handleTimeouts()
		}
	}
}

// Stop requests the worker loop to exit and waits for it to finish.
func (r *Registry) Stop() {
	select {
	case <-r.stopCh:
	default:
		close(r.stopCh)
	}
	<-r.doneCh
	r.clog.close()
}

func (r *Registry) handleTrigger(qt queuedTrigger) {
	st := r.stateFor(qt.symbol)

	st.mu.Lock()
	if st.phase != PhaseWaitSend {
		st.mu.Unlock()
		return
	}
	if qt.trig.LimitUpRaw <= 0 {
		st.resolveAfterDone()
		st.mu.Unlock()
		return
	}

	st.seq++
	seq := st.seq
	st.reason = qt.trig.Type.String()
	st.triggerTime = qt.trig.EventTime
	st.signalSteadyNs = qt.trig.SteadyNs
	st.limitUpRaw = qt.trig.LimitUpRaw
	st.baseRaw = qt.trig.BaseRaw
	st.tickRaw = qt.trig.TickRaw
	st.sumTriggerCount = qt.trig.SumTriggerCount
	st.mu.Unlock()

	sysID, err := r.gateway.SendSellLimit(broker.SellOrderRequest{
		Symbol:   qt.symbol,
		Qty:      100,
		PriceRaw: qt.trig.LimitUpRaw,
		Kind:     broker.KindLimit,
	})
	sendNs := r.nowFn()

	st.mu.Lock()
	defer st.mu.Unlock()
	st.sendSteadyNs = sendNs
	r.clog.orderSend(qt.symbol, seq, st.reason, st.triggerTime, st.signalSteadyNs, sendNs, st.limitUpRaw, st.baseRaw, st.tickRaw, sysID, st.sumTriggerCount)

	if err != nil || sysID <= 0 {
		r.logger.Warn("send_sell_limit rejected", "symbol", qt.symbol, "seq", seq, "err", err)
		st.resolveAfterDone()
		return
	}
	st.pendingSysID = sysID
	st.phase = PhaseWaitNewAck
	r.sink.OnClosedLoopEvent(qt.symbol, "ORDER_SEND", seq, sysID)
}

func (r *Registry) handleCallback(c broker.Callback) {
	symbol := canonicalSymbol(c.Market, c.StockCode)
	st := r.stateFor(symbol)

	st.mu.Lock()
	defer st.mu.Unlock()

	switch c.Type {
	case broker.PushOrder:
		r.onPushOrder(st, symbol, c)
	case broker.PushInvalid:
		r.onPushInvalid(st, symbol, c)
	case broker.PushWithdraw:
		r.onPushWithdraw(st, symbol, c)
	case broker.PushMatch:
		r.matchSink.OnMatch(symbol, c)
	}
}

func (r *Registry) onPushOrder(st *symbolState, symbol string, c broker.Callback) {
	if st.phase != PhaseWaitNewAck || c.OrderID != st.pendingSysID {
		return
	}
	seq := st.seq
	prior := st.activeSysID
	st.activeSysID = st.pendingSysID
	st.pendingSysID = 0
	r.clog.orderAck(symbol, seq, st.activeSysID, st.triggerTime, c.ConfirmTime, r.nowFn(), c.OrderStatus, c.ResultInfo)
	r.sink.OnClosedLoopEvent(symbol, "ORDER_ACK", seq, st.activeSysID)

	if prior == 0 {
		st.resolveAfterDone()
		return
	}

	st.toCancelSysID = prior
	st.cancelAttempts = 1
	status, err := r.gateway.Cancel(broker.CancelRequest{Symbol: symbol, SysID: prior})
	st.lastCancelSendNs = r.nowFn()
	r.clog.cancelSend(symbol, seq, prior, st.cancelAttempts, st.lastCancelSendNs)
	if err != nil || status <= 0 {
		r.logger.Warn("cancel rejected", "symbol", symbol, "sys_id", prior, "err", err)
	}
	st.phase = PhaseWaitCancelAck
}

func (r *Registry) onPushInvalid(st *symbolState, symbol string, c broker.Callback) {
	switch st.phase {
	case PhaseWaitNewAck:
		if c.OrderID != st.pendingSysID {
			return
		}
		seq := st.seq
		r.clog.orderInvalid(symbol, seq, st.pendingSysID, st.triggerTime, c.ConfirmTime, r.nowFn(), c.OrderStatus, c.ResultInfo)
		r.sink.OnClosedLoopEvent(symbol, "ORDER_INVALID", seq, st.pendingSysID)
		st.pendingSysID = 0
		st.resolveAfterDone()

	case PhaseWaitCancelAck:
		if c.OrderID != st.toCancelSysID && c.CxOrderID != st.toCancelSysID {
			return
		}
		seq := st.seq
		if st.cancelAttempts >= maxCancelAttempts {
			r.clog.cancelInvalid(symbol, seq, st.toCancelSysID, st.cancelAttempts, st.triggerTime, c.ConfirmTime, r.nowFn(), c.OrderStatus, c.ResultInfo)
			r.sink.OnClosedLoopEvent(symbol, "CANCEL_INVALID_FINAL", seq, st.toCancelSysID)
			return // sticky: no further automatic retry (spec.md §4.5)
		}
		r.clog.cancelInvalid(symbol, seq, st.toCancelSysID, st.cancelAttempts, st.triggerTime, c.ConfirmTime, r.nowFn(), c.OrderStatus, c.ResultInfo)
		st.cancelAttempts++
		status, err := r.gateway.Cancel(broker.CancelRequest{Symbol: symbol, SysID: st.toCancelSysID})
		st.lastCancelSendNs = r.nowFn()
		r.clog.cancelSend(symbol, seq, st.toCancelSysID, st.cancelAttempts, st.lastCancelSendNs)
		if err != nil || status <= 0 {
			r.logger.Warn("cancel retry rejected", "symbol", symbol, "sys_id", st.toCancelSysID, "err", err)
		}
	}
}

func (r *Registry) onPushWithdraw(st *symbolState, symbol string, c broker.Callback) {
	if st.phase != PhaseWaitCancelAck {
		return
	}
	if c.OrderID != st.toCancelSysID && c.CxOrderID != st.toCancelSysID {
		return
	}
	seq := st.seq
	r.clog.cancelAck(symbol, seq, st.toCancelSysID, st.triggerTime, c.ConfirmTime, r.nowFn(), c.OrderStatus, c.ResultInfo)
	r.sink.OnClosedLoopEvent(symbol, "CANCEL_ACK", seq, st.toCancelSysID)
	st.toCancelSysID = 0
	st.cancelAttempts = 0
	st.resolveAfterDone()
}

// handleTimeouts walks every tracked symbol and re-sends a cancel whose
// acknowledgement has not arrived within cancelTimeout (spec.md §4.5, S5).
func (r *Registry) handleTimeouts() {
	now := r.nowFn()

	r.mu.RLock()
	symbols := make(map[string]*symbolState, len(r.states))
	for k, v := range r.states {
		symbols[k] = v
	}
	r.mu.RUnlock()

	for symbol, st := range symbols {
		st.mu.Lock()
		if st.phase == PhaseWaitCancelAck &&
			st.toCancelSysID != 0 &&
			st.cancelAttempts < maxCancelAttempts &&
			now-st.lastCancelSendNs >= cancelTimeout.Nanoseconds() {

			seq := st.seq
			st.cancelAttempts++
			sysID := st.toCancelSysID
			attempts := st.cancelAttempts
			st.mu.Unlock()

			status, err := r.gateway.Cancel(broker.CancelRequest{Symbol: symbol, SysID: sysID})
			sendNs := r.nowFn()
			r.clog.cancelSend(symbol, seq, sysID, attempts, sendNs)
			if err != nil || status <= 0 {
				r.logger.Warn("cancel timeout retry rejected", "symbol", symbol, "sys_id", sysID, "err", err)
			}

			st.mu.Lock()
			st.lastCancelSendNs = sendNs
			st.mu.Unlock()
			continue
		}
		st.mu.Unlock()
	}
}

// canonicalSymbol rebuilds "NNNNNN.SH"/"NNNNNN.SZ" from a callback's market
// and stock-code fields.
func canonicalSymbol(market, stockCode string) string {
	switch market {
	case "SH", "1":
		return stockCode + ".SH"
	case "SZ", "0":
		return stockCode + ".SZ"
	default:
		if len(stockCode) == 6 && stockCode[0] == '6' {
			return stockCode + ".SH"
		}
		return stockCode + ".SZ"
	}
}
