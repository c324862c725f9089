// Package followup implements the Follow-up Monitor (spec.md §4.7,
// component G): after 09:17 it snapshots today's own pending SZ sell
// orders, then after 09:30 watches execution callbacks for those orders
// (or a same-price repeat sale) and emits a pair of follow-up buy orders
// the first time a watched symbol repeats.
package followup

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"limitup-agent/internal/broker"
)

const marketOpenTime = 93000000 // 09:30:00.000, HHMMSSmmm

// RecordedOrder is one symbol's earliest-qualifying SZ sell order found by
// the 09:17 snapshot query (spec.md §4.7: "keep the single earliest
// (earliest entrust-time, then lowest order-id)").
type RecordedOrder struct {
	Symbol    string
	OrderID   int64
	PriceRaw  int64
	EntrustMs int32
}

// SnapshotQuery performs the one-shot paginated query of today's own SZ
// sell orders (spec.md §4.7). internal/fixgw implements this over the broker
// order-entry session.
type SnapshotQuery interface {
	QueryPendingSZSellOrders(ctx context.Context, symbols []string, cutoffMs int32) ([]RecordedOrder, error)
}

type symbolRecord struct {
	recorded RecordedOrder
	emitted  bool
}

// Monitor is the Follow-up Monitor's runtime state.
type Monitor struct {
	query    SnapshotQuery
	gateway  broker.Gateway
	symbols  []string
	logger   *slog.Logger
	nowFn    func() time.Time
	sleepFn  func(context.Context, time.Duration) bool

	mu      sync.Mutex
	records map[string]*symbolRecord // symbol -> recorded order
	seen    map[string]struct{}      // dedup key -> present
}

// New builds a Monitor watching the given symbol set (the whitelist, or an
// already-classified market-wide set).
func New(query SnapshotQuery, gateway broker.Gateway, symbols []string, logger *slog.Logger) *Monitor {
	return &Monitor{
		query:   query,
		gateway: gateway,
		symbols: symbols,
		logger:  logger,
		nowFn:   time.Now,
		sleepFn: sleepUntilCancelled,
		records: make(map[string]*symbolRecord),
		seen:    make(map[string]struct{}),
	}
}

func sleepUntilCancelled(ctx context.Context, d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-ctx.Done():
		return false
	}
}

// Run is T_snapshot (spec.md §5): it sleeps until 09:17 local, performs the
// one-shot query, then blocks until ctx is cancelled (the execution-callback
// watching happens via OnMatch, invoked from the order state worker).
func (m *Monitor) Run(ctx context.Context) {
	if d := durationUntil0917(m.nowFn()); d > 0 {
		if !m.sleepFn(ctx, d) {
			return
		}
	}

	results, err := m.query.QueryPendingSZSellOrders(ctx, m.symbols, 91700000)
	if err != nil {
		m.logger.Error("0917 snapshot query failed", "err", err)
	} else {
		m.ingestSnapshot(results)
	}

	<-ctx.Done()
}

func durationUntil0917(now time.Time) time.Duration {
	target := time.Date(now.Year(), now.Month(), now.Day(), 9, 17, 0, 0, now.Location())
	if now.After(target) {
		return 0
	}
	return target.Sub(now)
}

// ingestSnapshot keeps, per symbol, the earliest-entrust/lowest-order-id
// record (spec.md §4.7).
func (m *Monitor) ingestSnapshot(results []RecordedOrder) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range results {
		cur, ok := m.records[r.Symbol]
		if !ok {
			m.records[r.Symbol] = &symbolRecord{recorded: r}
			continue
		}
		if r.EntrustMs < cur.recorded.EntrustMs ||
			(r.EntrustMs == cur.recorded.EntrustMs && r.OrderID < cur.recorded.OrderID) {
			cur.recorded = r
		}
	}
}

// OnMatch implements internal/orderstate.MatchSink. It is invoked by the
// order-state worker (the sole reader of Gateway.Callbacks()) for every
// PUSH_MATCH callback (spec.md §4.7: "on every incoming execution callback
// for a watched SZ sell").
func (m *Monitor) OnMatch(symbol string, c broker.Callback) {
	if c.ConfirmTime < marketOpenTime {
		return
	}

	m.mu.Lock()
	rec, watched := m.records[symbol]
	m.mu.Unlock()
	if !watched {
		return
	}

	dedupKey := dedupKeyFor(c)
	m.mu.Lock()
	if _, dup := m.seen[dedupKey]; dup {
		m.mu.Unlock()
		return
	}
	m.seen[dedupKey] = struct{}{}
	m.mu.Unlock()

	if c.ExchangeOrderID == rec.recorded.OrderID {
		m.logger.Info("recorded_0917_order", "symbol", symbol, "order_id", c.ExchangeOrderID, "match_serial", c.MatchSerial)
		return
	}

	if c.MatchPriceRaw != rec.recorded.PriceRaw {
		return
	}
	m.logger.Info("same_price_second_sale", "symbol", symbol, "order_id", c.ExchangeOrderID, "recorded_order_id", rec.recorded.OrderID, "price_raw", c.MatchPriceRaw)

	m.mu.Lock()
	alreadyEmitted := rec.emitted
	if !alreadyEmitted {
		rec.emitted = true
	}
	m.mu.Unlock()
	if alreadyEmitted {
		return
	}

	m.emitFollowUpBuys(symbol, rec.recorded.PriceRaw)
}

// emitFollowUpBuys sends the twin follow-up buy orders (spec.md §4.7): a
// plain 100-share limit buy, and a 100-share best-own-side buy to avoid
// price-cage rejection.
func (m *Monitor) emitFollowUpBuys(symbol string, priceRaw int64) {
	if _, err := m.gateway.SendBuyLimit(broker.BuyOrderRequest{
		Symbol: symbol, Qty: 100, PriceRaw: priceRaw, Kind: broker.KindLimit,
	}); err != nil {
		m.logger.Error("follow-up limit buy failed", "symbol", symbol, "err", err)
	}
	if _, err := m.gateway.SendBuyLimit(broker.BuyOrderRequest{
		Symbol: symbol, Qty: 100, PriceRaw: priceRaw, Kind: broker.KindBestOwnSide,
	}); err != nil {
		m.logger.Error("follow-up best-own-side buy failed", "symbol", symbol, "err", err)
	}
}

func dedupKeyFor(c broker.Callback) string {
	if c.MatchSerial != 0 {
		return intKey(c.ExchangeOrderID) + ":" + intKey(c.MatchSerial)
	}
	return intKey(c.ExchangeOrderID) + ":" + intKey(int64(c.ConfirmTime)) + ":" + intKey(c.MatchQty) + ":" + intKey(c.MatchPriceRaw)
}

func intKey(n int64) string {
	return strconv.FormatInt(n, 10)
}
