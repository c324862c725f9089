// Package fixgw is the vendor adapter (spec.md §9: "Adapter pattern — the
// core depends on a trait/interface receive(msg_batch) implemented by the
// vendor adapter; the adapter is the only module that knows vendor types").
// It is the sole package in this repo that imports quickfixgo/quickfix; it
// implements broker.Gateway for order entry and pushes decoded records onto
// the Ring Bus for market data.
package fixgw

import "github.com/quickfixgo/quickfix"

// Message types used by this agent. Standard FIX values except where noted.
const (
	MsgTypeLogon                 = "A"
	MsgTypeLogout                = "5"
	MsgTypeMarketDataRequest     = "V"
	MsgTypeMarketDataSnapshot    = "W"
	MsgTypeMarketDataIncremental = "X"
	MsgTypeMarketDataReject      = "Y"
	MsgTypeNewOrderSingle        = "D"
	MsgTypeOrderCancelRequest    = "F"
	MsgTypeExecutionReport       = "8"
	MsgTypeOrderCancelReject     = "9"
	MsgTypeOrderMassStatusReq    = "AF"
)

const (
	FixTimeFormat  = "20060102-15:04:05.000"
	FixBeginString = "FIXT.1.1"
)

// Side (tag 54).
const (
	SideBuy  = "1"
	SideSell = "2"
)

// OrdType (tag 40). This agent only ever sends limit orders.
const OrdTypeLimit = "2"

// TimeInForce (tag 59).
const TimeInForceGTC = "1"

// OrdStatus (tag 39), standard FIX values.
const (
	OrdStatusNew           = "0"
	OrdStatusPartialFill   = "1"
	OrdStatusFilled        = "2"
	OrdStatusCanceled      = "4"
	OrdStatusPendingCancel = "6"
	OrdStatusRejected      = "8"
	OrdStatusPendingNew    = "A"
)

// ExecType (tag 150), standard FIX values.
const (
	ExecTypeNew           = "0"
	ExecTypePartialFill   = "1"
	ExecTypeFilled        = "2"
	ExecTypeCanceled      = "4"
	ExecTypeRejected      = "8"
	ExecTypePendingCancel = "6"
	ExecTypePendingNew    = "A"
)

// ExecInst (tag 18). bestOwnSide is this venue's extension for
// "best-own-side" order placement (spec.md glossary: "places an order at
// the best price currently standing on the side being submitted").
const (
	ExecInstNone        = ""
	ExecInstBestOwnSide = "Q"
)

// MDEntryType (tag 269). Standard bid/offer/trade plus two vendor
// extensions for the raw order-stream and transaction-stream events this
// agent's signal engine depends on — the exchange-order and exchange-
// transaction records a classic FIX market-data feed does not carry.
const (
	MDEntryTypeBid         = "0"
	MDEntryTypeOffer       = "1"
	MDEntryTypeTrade       = "2"
	MDEntryTypeOrderEvent  = "J" // vendor extension: raw order-stream event
	MDEntryTypeTransaction = "K" // vendor extension: raw transaction-stream event
)

// Standard FIX tags.
var (
	TagBeginString             = quickfix.Tag(8)
	TagMsgType                 = quickfix.Tag(35)
	TagSenderCompID            = quickfix.Tag(49)
	TagTargetCompID            = quickfix.Tag(56)
	TagMsgSeqNum               = quickfix.Tag(34)
	TagSendingTime             = quickfix.Tag(52)
	TagEncryptMethod           = quickfix.Tag(98)
	TagHeartBtInt              = quickfix.Tag(108)
	TagUsername                = quickfix.Tag(553)
	TagPassword                = quickfix.Tag(554)
	TagAccount                 = quickfix.Tag(1)
	TagClOrdID                 = quickfix.Tag(11)
	TagOrigClOrdID             = quickfix.Tag(41)
	TagSymbol                  = quickfix.Tag(55)
	TagSide                    = quickfix.Tag(54)
	TagOrdType                 = quickfix.Tag(40)
	TagPrice                   = quickfix.Tag(44)
	TagOrderQty                = quickfix.Tag(38)
	TagTimeInForce             = quickfix.Tag(59)
	TagExecInst                = quickfix.Tag(18)
	TagTransactTime            = quickfix.Tag(60)
	TagOrderID                 = quickfix.Tag(37)
	TagOrdStatus               = quickfix.Tag(39)
	TagExecType                = quickfix.Tag(150)
	TagLeavesQty               = quickfix.Tag(151)
	TagCumQty                  = quickfix.Tag(14)
	TagLastPx                  = quickfix.Tag(31)
	TagLastQty                 = quickfix.Tag(32)
	TagExecID                  = quickfix.Tag(17)
	TagText                    = quickfix.Tag(58)
	TagMdReqID                 = quickfix.Tag(262)
	TagSubscriptionRequestType = quickfix.Tag(263)
	TagMarketDepth             = quickfix.Tag(264)
	TagMdUpdateType            = quickfix.Tag(265)
	TagNoMdEntryTypes          = quickfix.Tag(267)
	TagNoMdEntries             = quickfix.Tag(268)
	TagMdEntryType             = quickfix.Tag(269)
	TagMdEntryPx               = quickfix.Tag(270)
	TagMdEntrySize             = quickfix.Tag(271)
	TagMdEntryTime             = quickfix.Tag(273)
	TagNoRelatedSym            = quickfix.Tag(146)
	TagMdReqRejReason          = quickfix.Tag(281)
	TagMassStatusReqID         = quickfix.Tag(584)
	TagMassStatusReqType       = quickfix.Tag(585)

	// Vendor extensions for the exchange order-stream/transaction-stream
	// events this agent's Symbol Engine is grounded on (spec.md §3's Record
	// payload fields). Numbered in the same unassigned-range style the
	// donor's own custom tags (9406, 9407, 8002...) use.
	TagHighLimitPx   = quickfix.Tag(9501) // MARKET: today's ceiling price
	TagFunctionCode  = quickfix.Tag(9502) // ORDER: 'S' sell / 'B' buy; TRANSACTION: 'C' marks an SZ cancel
	TagOrderKind     = quickfix.Tag(9503) // ORDER: 'D' marks an SH cancel
	TagBSFlag        = quickfix.Tag(9504) // TRANSACTION: 'S' sell / 'B' buy execution
	TagAskOrderID    = quickfix.Tag(9505) // TRANSACTION: the originating ask order id
	TagExchangeOrdID = quickfix.Tag(9506) // ORDER: the exchange-assigned order id
)
