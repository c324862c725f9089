package fixgw

import (
	"strconv"
	"time"

	"github.com/quickfixgo/quickfix"
)

// fieldSetter abstracts setting fields on FIX message components (header or
// body), following the teacher's FieldSetter pattern.
type fieldSetter interface {
	SetField(tag quickfix.Tag, field quickfix.FieldValueWriter) *quickfix.FieldMap
}

func setString(fs fieldSetter, tag quickfix.Tag, value string) {
	fs.SetField(tag, quickfix.FIXString(value))
}

func setStringIfNotEmpty(fs fieldSetter, tag quickfix.Tag, value string) {
	if value != "" {
		setString(fs, tag, value)
	}
}

func buildHeader(header *quickfix.Header, msgType, senderCompID, targetCompID string) {
	setString(header, TagBeginString, FixBeginString)
	setString(header, TagMsgType, msgType)
	setString(header, TagSenderCompID, senderCompID)
	setString(header, TagTargetCompID, targetCompID)
	setString(header, TagSendingTime, time.Now().UTC().Format(FixTimeFormat))
}

// --- Logon (A) ---

// LogonParams carries the broker-session credentials from
// internal/config.TradingConfig. There is no HMAC signature scheme here —
// the broker session authenticates with a plain username/password/account
// triple, unlike the Coinbase Prime FIX API this package's structure is
// grounded on.
type LogonParams struct {
	Username      string
	Password      string
	Account       string // s_khh, the client account number
	HeartBtIntSec int
}

func BuildLogon(body *quickfix.Body, p LogonParams) {
	setString(body, TagEncryptMethod, "0")
	setString(body, TagHeartBtInt, itoa(p.HeartBtIntSec))
	setStringIfNotEmpty(body, TagUsername, p.Username)
	setStringIfNotEmpty(body, TagPassword, p.Password)
	setStringIfNotEmpty(body, TagAccount, p.Account)
}

// --- Market Data Request (V) ---

func BuildMarketDataRequest(mdReqID string, symbols []string, subscribe bool, senderCompID, targetCompID string) *quickfix.Message {
	m := quickfix.NewMessage()
	buildHeader(&m.Header, MsgTypeMarketDataRequest, senderCompID, targetCompID)

	setString(&m.Body, TagMdReqID, mdReqID)
	if subscribe {
		setString(&m.Body, TagSubscriptionRequestType, "1")
		setString(&m.Body, TagMdUpdateType, "1")
	} else {
		setString(&m.Body, TagSubscriptionRequestType, "2")
	}
	setString(&m.Body, TagMarketDepth, "0")

	entryGroup := quickfix.NewRepeatingGroup(
		TagNoMdEntryTypes,
		quickfix.GroupTemplate{quickfix.GroupElement(TagMdEntryType)},
	)
	for _, entryType := range []string{MDEntryTypeBid, MDEntryTypeOffer, MDEntryTypeTrade, MDEntryTypeOrderEvent, MDEntryTypeTransaction} {
		setString(entryGroup.Add(), TagMdEntryType, entryType)
	}
	m.Body.SetGroup(entryGroup)

	relatedSymGroup := quickfix.NewRepeatingGroup(
		TagNoRelatedSym,
		quickfix.GroupTemplate{quickfix.GroupElement(TagSymbol)},
	)
	for _, sym := range symbols {
		setString(relatedSymGroup.Add(), TagSymbol, sym)
	}
	m.Body.SetGroup(relatedSymGroup)

	return m
}

// --- New Order Single (D) ---

// NewOrderParams builds a limit order. ExecInst distinguishes a plain limit
// order from a "best-own-side" order (spec.md §4.6).
type NewOrderParams struct {
	Account  string
	ClOrdID  string
	Symbol   string
	Side     string // SideBuy / SideSell
	PriceRaw int64  // price * 10000 (spec.md glossary scale)
	Qty      int64
	ExecInst string // "" or ExecInstBestOwnSide
}

func BuildNewOrderSingle(p NewOrderParams, senderCompID, targetCompID string) *quickfix.Message {
	m := quickfix.NewMessage()
	buildHeader(&m.Header, MsgTypeNewOrderSingle, senderCompID, targetCompID)

	setString(&m.Body, TagAccount, p.Account)
	setString(&m.Body, TagClOrdID, p.ClOrdID)
	setString(&m.Body, TagSymbol, p.Symbol)
	setString(&m.Body, TagSide, p.Side)
	setString(&m.Body, TagOrdType, OrdTypeLimit)
	setString(&m.Body, TagTimeInForce, TimeInForceGTC)
	setString(&m.Body, TagOrderQty, itoa64(p.Qty))
	setString(&m.Body, TagPrice, formatPriceRaw(p.PriceRaw))
	setString(&m.Body, TagTransactTime, time.Now().UTC().Format(FixTimeFormat))
	setStringIfNotEmpty(&m.Body, TagExecInst, p.ExecInst)

	return m
}

// --- Order Cancel Request (F) ---

type CancelOrderParams struct {
	Account     string
	ClOrdID     string
	OrigClOrdID string
	OrderID     string // exchange-assigned order id being cancelled
	Symbol      string
	Side        string
}

func BuildOrderCancelRequest(p CancelOrderParams, senderCompID, targetCompID string) *quickfix.Message {
	m := quickfix.NewMessage()
	buildHeader(&m.Header, MsgTypeOrderCancelRequest, senderCompID, targetCompID)

	setString(&m.Body, TagAccount, p.Account)
	setString(&m.Body, TagClOrdID, p.ClOrdID)
	setString(&m.Body, TagOrigClOrdID, p.OrigClOrdID)
	setStringIfNotEmpty(&m.Body, TagOrderID, p.OrderID)
	setString(&m.Body, TagSymbol, p.Symbol)
	setString(&m.Body, TagSide, p.Side)
	setString(&m.Body, TagTransactTime, time.Now().UTC().Format(FixTimeFormat))

	return m
}

// --- Order Mass Status Request (AF) ---

// BuildOrderMassStatusRequest asks the broker session to replay
// ExecutionReports for every order currently on file for the account,
// used by the Follow-up Monitor's 09:17 snapshot query (spec.md §4.7).
func BuildOrderMassStatusRequest(massStatusReqID, account string, senderCompID, targetCompID string) *quickfix.Message {
	m := quickfix.NewMessage()
	buildHeader(&m.Header, MsgTypeOrderMassStatusReq, senderCompID, targetCompID)

	setString(&m.Body, TagMassStatusReqID, massStatusReqID)
	setString(&m.Body, TagMassStatusReqType, "7") // status for all orders
	setStringIfNotEmpty(&m.Body, TagAccount, account)

	return m
}

func itoa(n int) string {
	return strconv.Itoa(n)
}

func itoa64(n int64) string {
	return strconv.FormatInt(n, 10)
}

// formatPriceRaw renders a price*10000 integer as a decimal yuan string,
// e.g. 110000 -> "11.0000".
func formatPriceRaw(raw int64) string {
	neg := raw < 0
	if neg {
		raw = -raw
	}
	whole := raw / 10000
	frac := raw % 10000
	s := itoa64(whole) + "." + padFrac(frac)
	if neg {
		s = "-" + s
	}
	return s
}

func padFrac(frac int64) string {
	s := strconv.FormatInt(frac, 10)
	for len(s) < 4 {
		s = "0" + s
	}
	return s
}

// parsePriceRaw is the inverse of formatPriceRaw: parses a FIX decimal
// price string into the price*10000 integer representation.
func parsePriceRaw(s string) (int64, bool) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return int64(f*10000 + 0.5), true
}
