package fixgw

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/quickfixgo/quickfix"

	"limitup-agent/internal/broker"
	"limitup-agent/internal/followup"
	"limitup-agent/internal/textenc"
)

// massStatusCollectWindow bounds how long QueryPendingSZSellOrders waits for
// the broker session to finish replaying ExecutionReports for the mass
// status request (spec.md §4.7's one-shot 09:17 query).
const massStatusCollectWindow = 5 * time.Second

// pendingOrder tracks the clOrdID<->sysID mapping this adapter owns locally;
// the broker's exchange-assigned OrderID only arrives later via an
// ExecutionReport (spec.md §4.6: "sys_id is this agent's own handle, not the
// exchange order id").
type pendingOrder struct {
	clOrdID   string
	symbol    string
	ordID     string // exchange OrderID, filled in once known
	side      string
	cancelling bool
}

// OrderEntryApp is the quickfix.Application for the order-entry session and
// this repo's concrete broker.Gateway (spec.md §4.6, component F).
// Grounded on fixclient/fixapp.go's Application-callback shape and
// builder/messages.go's New Order Single / Order Cancel Request builders,
// adapted from Coinbase Prime's async order-ack flow to a synchronous
// "accepted for transmission" sys_id handed back from Send*.
type OrderEntryApp struct {
	account      string
	senderCompID string
	targetCompID string
	logon        LogonParams
	logger       *slog.Logger

	sessionID quickfix.SessionID
	ready     atomic.Bool

	seq    atomic.Int64
	mu     sync.Mutex
	orders map[int64]*pendingOrder // sysID -> pending order

	callbacks chan broker.Callback

	massMu        sync.Mutex
	massCollector *massCollector
}

// massCollector accumulates ExecutionReports replayed in response to an
// in-flight Order Mass Status Request.
type massCollector struct {
	reqID   string
	results []followup.RecordedOrder
}

func NewOrderEntryApp(account, senderCompID, targetCompID string, logon LogonParams, logger *slog.Logger) *OrderEntryApp {
	return &OrderEntryApp{
		account:      account,
		senderCompID: senderCompID,
		targetCompID: targetCompID,
		logon:        logon,
		logger:       logger,
		orders:       make(map[int64]*pendingOrder),
		callbacks:    make(chan broker.Callback, 4096),
	}
}

func (a *OrderEntryApp) OnCreate(sid quickfix.SessionID) { a.sessionID = sid }

func (a *OrderEntryApp) OnLogon(sid quickfix.SessionID) {
	a.sessionID = sid
	a.ready.Store(true)
	a.logger.Info("order entry session logon", "session", sid.String())
}

func (a *OrderEntryApp) OnLogout(sid quickfix.SessionID) {
	a.ready.Store(false)
	a.logger.Warn("order entry session logout", "session", sid.String())
}

func (a *OrderEntryApp) ToAdmin(msg *quickfix.Message, _ quickfix.SessionID) {
	if t, _ := msg.Header.GetString(TagMsgType); t == MsgTypeLogon {
		BuildLogon(&msg.Body, a.logon)
	}
}

func (a *OrderEntryApp) FromAdmin(_ *quickfix.Message, _ quickfix.SessionID) quickfix.MessageRejectError {
	return nil
}

func (a *OrderEntryApp) ToApp(_ *quickfix.Message, _ quickfix.SessionID) error { return nil }

func (a *OrderEntryApp) FromApp(msg *quickfix.Message, _ quickfix.SessionID) quickfix.MessageRejectError {
	msgType, err := msg.Header.GetString(TagMsgType)
	if err != nil {
		return nil
	}
	if msgType == MsgTypeExecutionReport {
		a.handleExecutionReport(msg)
	}
	return nil
}

func (a *OrderEntryApp) nextSysID() int64 {
	return a.seq.Add(1)
}

// SendSellLimit implements broker.Gateway. It sends synchronously and
// returns the locally-generated sys_id immediately (spec.md §4.6); the
// exchange's own acknowledgement arrives later as a PUSH_ORDER callback.
func (a *OrderEntryApp) SendSellLimit(req broker.SellOrderRequest) (int64, error) {
	return a.send(req.Symbol, SideSell, req.PriceRaw, req.Qty, req.Kind)
}

func (a *OrderEntryApp) SendBuyLimit(req broker.BuyOrderRequest) (int64, error) {
	return a.send(req.Symbol, SideBuy, req.PriceRaw, req.Qty, req.Kind)
}

func (a *OrderEntryApp) send(symbol, side string, priceRaw, qty int64, kind broker.OrderKind) (int64, error) {
	if !a.ready.Load() {
		return 0, fmt.Errorf("order entry session not logged on")
	}
	sysID := a.nextSysID()
	clOrdID := strconv.FormatInt(sysID, 10)

	execInst := ExecInstNone
	if kind == broker.KindBestOwnSide {
		execInst = ExecInstBestOwnSide
	}

	msg := BuildNewOrderSingle(NewOrderParams{
		Account:  a.account,
		ClOrdID:  clOrdID,
		Symbol:   symbol,
		Side:     side,
		PriceRaw: priceRaw,
		Qty:      qty,
		ExecInst: execInst,
	}, a.senderCompID, a.targetCompID)

	a.mu.Lock()
	a.orders[sysID] = &pendingOrder{clOrdID: clOrdID, symbol: symbol, side: side}
	a.mu.Unlock()

	if err := quickfix.SendToTarget(msg, a.sessionID); err != nil {
		a.mu.Lock()
		delete(a.orders, sysID)
		a.mu.Unlock()
		return 0, err
	}
	return sysID, nil
}

// Cancel implements broker.Gateway.
func (a *OrderEntryApp) Cancel(req broker.CancelRequest) (int64, error) {
	if !a.ready.Load() {
		return -1, fmt.Errorf("order entry session not logged on")
	}
	a.mu.Lock()
	pending, ok := a.orders[req.SysID]
	a.mu.Unlock()
	if !ok {
		return -1, fmt.Errorf("unknown sys_id %d", req.SysID)
	}

	cancelClOrdID := pending.clOrdID + "-c" + strconv.FormatInt(time.Now().UnixNano(), 36)
	msg := BuildOrderCancelRequest(CancelOrderParams{
		Account:     a.account,
		ClOrdID:     cancelClOrdID,
		OrigClOrdID: pending.clOrdID,
		OrderID:     pending.ordID,
		Symbol:      pending.symbol,
		Side:        pending.side,
	}, a.senderCompID, a.targetCompID)

	a.mu.Lock()
	pending.cancelling = true
	a.mu.Unlock()

	if err := quickfix.SendToTarget(msg, a.sessionID); err != nil {
		return -1, err
	}
	return 1, nil
}

func (a *OrderEntryApp) Callbacks() <-chan broker.Callback {
	return a.callbacks
}

func (a *OrderEntryApp) handleExecutionReport(msg *quickfix.Message) {
	clOrdID, _ := msg.Body.GetString(TagClOrdID)
	origClOrdID, _ := msg.Body.GetString(TagOrigClOrdID)
	ordID, _ := msg.Body.GetString(TagOrderID)
	ordStatus, _ := msg.Body.GetString(TagOrdStatus)
	execType, _ := msg.Body.GetString(TagExecType)
	cumQtyStr, _ := msg.Body.GetString(TagCumQty)
	symbol, _ := msg.Body.GetString(TagSymbol)
	side, _ := msg.Body.GetString(TagSide)
	text, _ := msg.Body.GetString(TagText)
	transactTime, _ := msg.Body.GetString(TagTransactTime)
	lastPxStr, _ := msg.Body.GetString(TagLastPx)
	lastQtyStr, _ := msg.Body.GetString(TagLastQty)
	execIDStr, _ := msg.Body.GetString(TagExecID)

	lookupClOrdID := clOrdID
	if origClOrdID != "" {
		lookupClOrdID = origClOrdID
	}

	sysID, pending := a.resolveBySymbolClOrdID(lookupClOrdID)
	cumQty, _ := strconv.ParseInt(cumQtyStr, 10, 64)
	exchangeOrdID, _ := strconv.ParseInt(ordID, 10, 64)

	market, stockCode := splitSymbol(symbol)
	cb := broker.Callback{
		OrderID:         sysID,
		ExchangeOrderID: exchangeOrdID,
		Market:          market,
		StockCode:       stockCode,
		TotalMatchQty:   cumQty,
		OrderStatus:     ordStatus,
		ConfirmTime:     parseFixTimeHHMMSSmmm(transactTime),
		ResultInfo:      textenc.DecodeLocalCodePage(text),
	}

	if pending != nil {
		a.mu.Lock()
		pending.ordID = ordID
		a.mu.Unlock()
		cb.CxOrderID = sysID
	}

	switch execType {
	case ExecTypeNew, ExecTypePendingNew:
		cb.Type = broker.PushOrder
	case ExecTypePartialFill, ExecTypeFilled:
		cb.Type = broker.PushMatch
		lastPx, _ := parsePriceRaw(lastPxStr)
		lastQty, _ := strconv.ParseInt(lastQtyStr, 10, 64)
		execID, _ := strconv.ParseInt(execIDStr, 10, 64)
		cb.MatchPriceRaw = lastPx
		cb.MatchQty = lastQty
		cb.MatchSerial = execID
	case ExecTypeCanceled, ExecTypePendingCancel:
		cb.Type = broker.PushWithdraw
		cb.WithdrawFlag = "1"
	case ExecTypeRejected:
		cb.Type = broker.PushInvalid
	default:
		a.logger.Warn("unmapped ExecType, discarding execution report",
			"symbol", symbol, "exec_type", execType, "ord_status", ordStatus)
		return
	}

	select {
	case a.callbacks <- cb:
	default:
		a.logger.Error("order callback channel full, dropping callback", "sys_id", sysID, "exec_type", execType)
	}

	a.collectMassStatusEntry(symbol, side, ordID, ordStatus, transactTime, lastPxStr)
}

// collectMassStatusEntry feeds an in-flight Order Mass Status Request
// collector (if any) with pending SZ sell orders replayed as
// ExecutionReports, for QueryPendingSZSellOrders.
func (a *OrderEntryApp) collectMassStatusEntry(symbol, side, ordID, ordStatus, transactTime, priceStr string) {
	market, _ := splitSymbol(symbol)
	if market != "SZ" || side != SideSell || (ordStatus != OrdStatusNew && ordStatus != OrdStatusPartialFill && ordStatus != OrdStatusPendingNew) {
		return
	}
	exchangeOrdID, err := strconv.ParseInt(ordID, 10, 64)
	if err != nil {
		return
	}
	priceRaw, _ := parsePriceRaw(priceStr)

	a.massMu.Lock()
	defer a.massMu.Unlock()
	if a.massCollector == nil {
		return
	}
	a.massCollector.results = append(a.massCollector.results, followup.RecordedOrder{
		Symbol:    symbol,
		OrderID:   exchangeOrdID,
		PriceRaw:  priceRaw,
		EntrustMs: parseFixTimeHHMMSSmmm(transactTime),
	})
}

// QueryPendingSZSellOrders implements internal/followup.SnapshotQuery: it
// sends an Order Mass Status Request and collects SZ sell-side
// ExecutionReports replayed in response within massStatusCollectWindow, then
// keeps only those whose symbol is in symbols and whose entrust time is at or
// before cutoffMs.
func (a *OrderEntryApp) QueryPendingSZSellOrders(ctx context.Context, symbols []string, cutoffMs int32) ([]followup.RecordedOrder, error) {
	if !a.ready.Load() {
		return nil, fmt.Errorf("order entry session not logged on")
	}
	reqID := "mass-" + strconv.FormatInt(time.Now().UnixNano(), 36)

	a.massMu.Lock()
	a.massCollector = &massCollector{reqID: reqID}
	a.massMu.Unlock()
	defer func() {
		a.massMu.Lock()
		a.massCollector = nil
		a.massMu.Unlock()
	}()

	msg := BuildOrderMassStatusRequest(reqID, a.account, a.senderCompID, a.targetCompID)
	if err := quickfix.SendToTarget(msg, a.sessionID); err != nil {
		return nil, err
	}

	select {
	case <-time.After(massStatusCollectWindow):
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	a.massMu.Lock()
	results := a.massCollector.results
	a.massMu.Unlock()

	wanted := make(map[string]struct{}, len(symbols))
	for _, s := range symbols {
		wanted[s] = struct{}{}
	}
	filtered := results[:0]
	for _, r := range results {
		if _, ok := wanted[r.Symbol]; ok && r.EntrustMs <= cutoffMs {
			filtered = append(filtered, r)
		}
	}
	return filtered, nil
}

func (a *OrderEntryApp) resolveBySymbolClOrdID(clOrdID string) (int64, *pendingOrder) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for sysID, p := range a.orders {
		if p.clOrdID == clOrdID {
			return sysID, p
		}
	}
	sysID, err := strconv.ParseInt(clOrdID, 10, 64)
	if err != nil {
		return 0, nil
	}
	return sysID, a.orders[sysID]
}

func splitSymbol(symbol string) (market, stockCode string) {
	parts := strings.SplitN(symbol, ".", 2)
	if len(parts) != 2 {
		return "", symbol
	}
	return parts[1], parts[0]
}

// parseFixTimeHHMMSSmmm converts a FIX "20060102-15:04:05.000" timestamp
// string into this repo's HHMMSSmmm int32 time representation.
func parseFixTimeHHMMSSmmm(fixTime string) int32 {
	t, err := time.Parse(FixTimeFormat, fixTime)
	if err != nil {
		return 0
	}
	h, m, s := t.Clock()
	ms := t.Nanosecond() / 1_000_000
	return int32(h)*10000000 + int32(m)*100000 + int32(s)*1000 + int32(ms)
}
