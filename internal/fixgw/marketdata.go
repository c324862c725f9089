package fixgw

import (
	"log/slog"
	"strconv"
	"sync/atomic"

	"github.com/quickfixgo/quickfix"

	"limitup-agent/internal/bus"
)

// Pusher is the Ring Bus surface the market data adapter depends on.
type Pusher interface {
	Push(batch bus.Batch)
}

// MarketDataApp is the quickfix.Application for the market-data session. It
// is the only place in this repo that decodes raw FIX fields into bus.Batch
// items (spec.md §9's "adapter is the only module that knows vendor types").
// Grounded on fixclient/fixapp.go's FromApp/handleMarketDataMessage pattern,
// adapted from trade-only parsing to the three record kinds this agent's
// Symbol Engine needs (market/order/transaction).
type MarketDataApp struct {
	senderCompID string
	targetCompID string
	symbols      []string
	logon        LogonParams
	ring         Pusher
	logger       *slog.Logger

	sessionID quickfix.SessionID
	mdReqSeq  atomic.Uint64
}

func NewMarketDataApp(senderCompID, targetCompID string, symbols []string, logon LogonParams, ring Pusher, logger *slog.Logger) *MarketDataApp {
	return &MarketDataApp{senderCompID: senderCompID, targetCompID: targetCompID, symbols: symbols, logon: logon, ring: ring, logger: logger}
}

func (a *MarketDataApp) OnCreate(sid quickfix.SessionID) { a.sessionID = sid }

func (a *MarketDataApp) OnLogon(sid quickfix.SessionID) {
	a.sessionID = sid
	a.logger.Info("market data session logon", "session", sid.String())

	reqID := "md-" + strconv.FormatUint(a.mdReqSeq.Add(1), 10)
	msg := BuildMarketDataRequest(reqID, a.symbols, true, a.senderCompID, a.targetCompID)
	if err := quickfix.SendToTarget(msg, sid); err != nil {
		a.logger.Error("failed to send market data subscription", "err", err)
	}
}

func (a *MarketDataApp) OnLogout(sid quickfix.SessionID) {
	a.logger.Warn("market data session logout", "session", sid.String())
}

func (a *MarketDataApp) ToAdmin(msg *quickfix.Message, _ quickfix.SessionID) {
	if t, _ := msg.Header.GetString(TagMsgType); t == MsgTypeLogon {
		BuildLogon(&msg.Body, a.logon)
	}
}

func (a *MarketDataApp) FromAdmin(_ *quickfix.Message, _ quickfix.SessionID) quickfix.MessageRejectError {
	return nil
}

func (a *MarketDataApp) ToApp(_ *quickfix.Message, _ quickfix.SessionID) error { return nil }

// FromApp is the entry point for every application-level message on the
// market-data session (spec.md §4.1's feed producer).
func (a *MarketDataApp) FromApp(msg *quickfix.Message, _ quickfix.SessionID) quickfix.MessageRejectError {
	msgType, err := msg.Header.GetString(TagMsgType)
	if err != nil {
		return nil
	}
	switch msgType {
	case MsgTypeMarketDataSnapshot, MsgTypeMarketDataIncremental:
		a.handleMarketData(msg)
	case MsgTypeMarketDataReject:
		a.handleReject(msg)
	default:
		a.logger.Debug("unhandled application message", "msg_type", msgType)
	}
	return nil
}

func (a *MarketDataApp) handleReject(msg *quickfix.Message) {
	reqID, _ := msg.Body.GetString(TagMdReqID)
	reason, _ := msg.Body.GetString(TagMdReqRejReason)
	text, _ := msg.Body.GetString(TagText)
	a.logger.Error("market data request rejected", "req_id", reqID, "reason", reason, "text", text)
}

// handleMarketData decodes the NoMdEntries repeating group into a bus.Batch
// and pushes it. Each entry becomes one BatchItem; entry type decides
// whether it becomes a DataMarket/DataOrder/DataTransaction record.
func (a *MarketDataApp) handleMarketData(msg *quickfix.Message) {
	symbol, _ := msg.Body.GetString(TagSymbol)
	seqNum, _ := msg.Header.GetString(TagMsgSeqNum)
	seq, _ := strconv.ParseInt(seqNum, 10, 64)

	group := quickfix.NewRepeatingGroup(TagNoMdEntries, quickfix.GroupTemplate{
		quickfix.GroupElement(TagMdEntryType),
		quickfix.GroupElement(TagMdEntryPx),
		quickfix.GroupElement(TagMdEntrySize),
		quickfix.GroupElement(TagMdEntryTime),
		quickfix.GroupElement(TagHighLimitPx),
		quickfix.GroupElement(TagFunctionCode),
		quickfix.GroupElement(TagOrderKind),
		quickfix.GroupElement(TagBSFlag),
		quickfix.GroupElement(TagAskOrderID),
		quickfix.GroupElement(TagExchangeOrdID),
	})
	if err := msg.Body.GetGroup(group); err != nil {
		a.logger.Warn("market data message missing NoMdEntries group", "symbol", symbol)
		return
	}

	batch := bus.Batch{Handle: uintptr(seq), Items: make([]bus.BatchItem, 0, group.Len())}
	for i := 0; i < group.Len(); i++ {
		entry := group.Get(i)
		item, ok := a.decodeEntry(symbol, int32(seq), entry)
		if !ok {
			continue
		}
		batch.Items = append(batch.Items, item)
	}
	if len(batch.Items) > 0 {
		a.ring.Push(batch)
	}
}

func (a *MarketDataApp) decodeEntry(symbol string, exchangeTime int32, entry *quickfix.Group) (bus.BatchItem, bool) {
	entryType, _ := entry.GetString(TagMdEntryType)

	item := bus.BatchItem{ExchangeTime: exchangeTime, Symbol: symbol}

	switch entryType {
	case MDEntryTypeBid, MDEntryTypeOffer:
		highLimitStr, _ := entry.GetString(TagHighLimitPx)
		highLimit, _ := parsePriceRaw(highLimitStr)
		if highLimit == 0 {
			return bus.BatchItem{}, false
		}
		item.Type = bus.DataMarket
		item.PayloadLen = bus.EncodeMarketData(item.Payload[:], bus.MarketDataItem{Symbol: symbol, HighLimited: highLimit})

	case MDEntryTypeOrderEvent:
		priceStr, _ := entry.GetString(TagMdEntryPx)
		sizeStr, _ := entry.GetString(TagMdEntrySize)
		ordIDStr, _ := entry.GetString(TagExchangeOrdID)
		funcCode, _ := entry.GetString(TagFunctionCode)
		orderKind, _ := entry.GetString(TagOrderKind)

		price, _ := parsePriceRaw(priceStr)
		size, _ := strconv.ParseInt(sizeStr, 10, 64)
		ordID, _ := strconv.ParseInt(ordIDStr, 10, 64)

		oi := bus.OrderItem{Symbol: symbol, PriceRaw: price, Volume: size, OrderID: ordID}
		if funcCode != "" {
			oi.FunctionCode = funcCode[0]
		}
		if orderKind != "" {
			oi.OrderKind = orderKind[0]
		}
		item.Type = bus.DataOrder
		item.SeqOrderNum = ordID
		item.PayloadLen = bus.EncodeOrder(item.Payload[:], oi)

	case MDEntryTypeTransaction:
		priceStr, _ := entry.GetString(TagMdEntryPx)
		sizeStr, _ := entry.GetString(TagMdEntrySize)
		askOrderStr, _ := entry.GetString(TagAskOrderID)
		bsFlag, _ := entry.GetString(TagBSFlag)
		funcCode, _ := entry.GetString(TagFunctionCode)

		price, _ := parsePriceRaw(priceStr)
		size, _ := strconv.ParseInt(sizeStr, 10, 64)
		askOrder, _ := strconv.ParseInt(askOrderStr, 10, 64)

		ti := bus.TransactionItem{Symbol: symbol, PriceRaw: price, Volume: size, AskOrder: askOrder}
		if bsFlag != "" {
			ti.BSFlag = bsFlag[0]
		}
		if funcCode != "" {
			ti.FunctionCode = funcCode[0]
		}
		item.Type = bus.DataTransaction
		item.SeqOrderNum = askOrder
		item.PayloadLen = bus.EncodeTransaction(item.Payload[:], ti)

	default:
		return bus.BatchItem{}, false
	}

	return item, true
}
