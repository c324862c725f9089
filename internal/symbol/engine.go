// Package symbol implements the Symbol Engine (spec.md §4.3, component C):
// a process-wide registry of per-symbol signal detectors, each tracking the
// price-107 and cumulative-50万 sell-notional triggers plus seal detection.
package symbol

import (
	"strings"
	"sync"

	"limitup-agent/internal/bus"
	"limitup-agent/internal/signal"
)

// marketOpenTime is 09:30:00.000 in HHMMSSmmm form (spec.md §4.3).
const marketOpenTime = 93000000

// sellSumThresholdRaw is 500000 × 10000, the 50万 cumulative-notional
// threshold on the ×10000-scaled raw price*volume accumulator (spec.md §4.3).
const sellSumThresholdRaw = 500000 * 10000

// Submitter is the Trigger Channel surface the engine posts to.
// *trigger.Channel satisfies this; kept as an interface so symbol never
// imports orderstate transitively through trigger.
type Submitter interface {
	Submit(trig signal.LimitUpTrigger)
}

// state is one symbol's signal-detection record (spec.md §3).
type state struct {
	mu sync.Mutex

	symbol string

	limitUpRaw int64
	baseRaw    int64
	baseReady  bool

	sealed   bool
	sealTime int32

	flagOrderInitialized bool
	flagOrder             int64
	sumRaw                int64

	sumTriggerCount   int
	price107Triggered bool
}

// Registry holds one state per watched symbol, created lazily.
type Registry struct {
	mu     sync.RWMutex
	states map[string]*state

	submitter Submitter
	nowSteady func() int64
}

// New builds a Registry that posts accepted triggers to submitter.
func New(submitter Submitter, nowSteady func() int64) *Registry {
	return &Registry{
		states:    make(map[string]*state),
		submitter: submitter,
		nowSteady: nowSteady,
	}
}

func (r *Registry) stateFor(symbol string) *state {
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
	st = &state{symbol: symbol}
	r.states[symbol] = st
	return st
}

// Seed creates an empty state for every watched symbol at startup. It sets
// no prices; UpdateLimitUpPriceFromQuery's ".SH" fallback for suffix-less
// keys only finds symbols that already have a state.
func (r *Registry) Seed(symbols []string) {
	for _, s := range symbols {
		r.stateFor(s)
	}
}

// ProcessMarket implements spec.md §4.3's process_market.
func (r *Registry) ProcessMarket(symbol string, md bus.MarketDataItem) {
	if md.HighLimited <= 0 {
		return
	}
	st := r.stateFor(symbol)
	st.mu.Lock()
	defer st.mu.Unlock()

	st.limitUpRaw = md.HighLimited
	if !st.baseReady {
		// base_tick = round(limit_up_raw/100 / 1.1 + 1e-6); limit_up_raw is
		// the ceiling price *10000, so limit_up_raw/100 is the price in
		// 0.01-yuan ticks already.
		baseTick := roundTicks(float64(md.HighLimited) / 100.0 / 1.1)
		st.baseRaw = baseTick * 100
		st.baseReady = true
	}
}

func roundTicks(ticks float64) int64 {
	const eps = 1e-6
	if ticks < 0 {
		return int64(ticks - 0.5 + eps)
	}
	return int64(ticks + 0.5 + eps)
}

// ProcessOrder implements spec.md §4.3's process_order.
func (r *Registry) ProcessOrder(symbol string, eventTime int32, o bus.OrderItem) {
	if o.FunctionCode != 'S' || eventTime < marketOpenTime || o.OrderID <= 0 {
		return
	}
	st := r.stateFor(symbol)
	st.mu.Lock()

	if o.PriceRaw != st.limitUpRaw || st.limitUpRaw <= 0 {
		st.mu.Unlock()
		return
	}

	isSHCancel := o.OrderKind == 'D'

	if !st.flagOrderInitialized {
		if isSHCancel {
			st.mu.Unlock()
			return
		}
		st.flagOrder = o.OrderID
		st.flagOrderInitialized = true
		st.sumRaw = 0
		st.mu.Unlock()
		return
	}

	if o.OrderID <= st.flagOrder {
		st.mu.Unlock()
		return
	}
	delta := o.PriceRaw * o.Volume
	if delta <= 0 {
		st.mu.Unlock()
		return
	}

	if isSHCancel {
		st.sumRaw -= delta
		if st.sumRaw < 0 {
			st.sumRaw = 0
		}
		st.mu.Unlock()
		return
	}

	if st.sealed {
		st.mu.Unlock()
		return
	}

	st.sumRaw += delta
	if st.sumRaw >= sellSumThresholdRaw {
		st.flagOrder = o.OrderID
		st.sumRaw = 0
		st.sumTriggerCount++
		st.price107Triggered = true
		trig := r.buildTrigger(st, symbol, signal.TriggerSellSum50W, eventTime, 0)
		st.mu.Unlock()
		r.submitter.Submit(trig)
		return
	}
	st.mu.Unlock()
}

// ProcessTransaction implements spec.md §4.3's process_transaction.
func (r *Registry) ProcessTransaction(symbol string, eventTime int32, t bus.TransactionItem) {
	isSZCancel := t.FunctionCode == 'C'
	if eventTime < marketOpenTime || isSZCancel {
		r.processSumDecrement(symbol, t, isSZCancel)
		return
	}

	st := r.stateFor(symbol)
	st.mu.Lock()

	if !st.sealed && t.BSFlag == 'S' && st.limitUpRaw > 0 && t.PriceRaw == st.limitUpRaw {
		st.sealed = true
		st.sealTime = eventTime
		trig := r.buildTrigger(st, symbol, signal.TriggerSealedStop, eventTime, t.PriceRaw)
		st.mu.Unlock()
		r.submitter.Submit(trig)
		r.processSumDecrement(symbol, t, false)
		return
	}

	if !st.sealed && !st.price107Triggered && st.baseReady && t.PriceRaw*100 > st.baseRaw*107 {
		st.price107Triggered = true
		trig := r.buildTrigger(st, symbol, signal.TriggerPrice107, eventTime, t.PriceRaw)
		st.mu.Unlock()
		r.submitter.Submit(trig)
		r.processSumDecrement(symbol, t, false)
		return
	}
	st.mu.Unlock()

	r.processSumDecrement(symbol, t, false)
}

// processSumDecrement implements spec.md §4.3 process_transaction step 3:
// sum decrement for executions/cancels referencing an order-id past the
// flag-order watermark.
func (r *Registry) processSumDecrement(symbol string, t bus.TransactionItem, isSZCancel bool) {
	st := r.stateFor(symbol)
	st.mu.Lock()
	defer st.mu.Unlock()

	if !st.flagOrderInitialized || t.AskOrder <= st.flagOrder {
		return
	}

	priceRaw := t.PriceRaw
	if isSZCancel {
		priceRaw = st.limitUpRaw
	} else if priceRaw != st.limitUpRaw {
		return
	}

	delta := priceRaw * t.Volume
	st.sumRaw -= delta
	if st.sumRaw < 0 {
		st.sumRaw = 0
	}
}

// buildTrigger must be called with st.mu held; it reads the fields needed
// for the trigger payload before the caller releases the lock.
func (r *Registry) buildTrigger(st *state, symbol string, typ signal.TriggerType, eventTime int32, tickRaw int64) signal.LimitUpTrigger {
	return signal.LimitUpTrigger{
		Symbol:          symbol,
		Type:            typ,
		EventTime:       eventTime,
		LimitUpRaw:      st.limitUpRaw,
		BaseRaw:         st.baseRaw,
		BaseReady:       st.baseReady,
		TickRaw:         tickRaw,
		SteadyNs:        r.nowSteady(),
		SumTriggerCount: st.sumTriggerCount,
	}
}

// UpdateLimitUpPriceFromQuery implements spec.md §4.3's
// update_limit_up_price_from_query: a one-shot broker-query seed, matching
// by canonical symbol with a ".SH" then ".SZ" fallback when the query
// result has no market suffix.
func (r *Registry) UpdateLimitUpPriceFromQuery(prices map[string]int64) {
	for key, raw := range prices {
		if raw <= 0 {
			continue
		}
		symbol := key
		if !strings.Contains(key, ".") {
			if _, ok := r.lookup(key + ".SH"); ok {
				symbol = key + ".SH"
			} else {
				symbol = key + ".SZ"
			}
		}
		st := r.stateFor(symbol)
		st.mu.Lock()
		if st.limitUpRaw == 0 {
			st.limitUpRaw = raw
		}
		if !st.baseReady {
			baseTick := roundTicks(float64(raw) / 100.0 / 1.1)
			st.baseRaw = baseTick * 100
			st.baseReady = true
		}
		st.mu.Unlock()
	}
}

func (r *Registry) lookup(symbol string) (*state, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	st, ok := r.states[symbol]
	return st, ok
}

// Snapshot is a read-only view of a symbol's signal state, for tests and the
// admin console.
type Snapshot struct {
	Symbol            string
	LimitUpRaw        int64
	BaseRaw           int64
	BaseReady         bool
	Sealed            bool
	SumRaw            int64
	FlagOrder         int64
	SumTriggerCount   int
	Price107Triggered bool
}

// Snapshot returns the current state of one symbol.
func (r *Registry) Snapshot(symbol string) Snapshot {
	st := r.stateFor(symbol)
	st.mu.Lock()
	defer st.mu.Unlock()
	return Snapshot{
		Symbol:            symbol,
		LimitUpRaw:        st.limitUpRaw,
		BaseRaw:           st.baseRaw,
		BaseReady:         st.baseReady,
		Sealed:            st.sealed,
		SumRaw:            st.sumRaw,
		FlagOrder:         st.flagOrder,
		SumTriggerCount:   st.sumTriggerCount,
		Price107Triggered: st.price107Triggered,
	}
}
