// Package broker defines the Broker Gateway interface (spec.md §4.6), the
// external collaborator that places and cancels orders and delivers
// asynchronous confirmation callbacks. internal/fixgw is this agent's
// concrete implementation over a FIX order-entry session; internal/orderstate
// and internal/followup depend only on this interface.
package broker

// OrderKind selects how the venue should price a resting order (spec.md
// glossary: "price-cage / best-own-side").
type OrderKind uint8

const (
	KindLimit OrderKind = iota
	KindBestOwnSide
)

// SellOrderRequest is the argument to Gateway.SendSellLimit (spec.md §4.5:
// "qty is fixed at 100 shares; price is the symbol's current limit_up_raw").
type SellOrderRequest struct {
	Symbol   string // canonical "NNNNNN.SH"/"NNNNNN.SZ"
	Qty      int64
	PriceRaw int64 // price * 10000
	Kind     OrderKind
}

// BuyOrderRequest is the argument to Gateway.SendBuyLimit, used only by the
// Follow-up Monitor (spec.md §4.7).
type BuyOrderRequest struct {
	Symbol   string
	Qty      int64
	PriceRaw int64
	Kind     OrderKind
}

// CancelRequest is the argument to Gateway.Cancel (spec.md §4.6).
type CancelRequest struct {
	Symbol string
	SysID  int64
}

// CallbackType tags an asynchronous confirmation (spec.md §4.6).
type CallbackType uint8

const (
	CallbackUnknown CallbackType = iota
	PushOrder
	PushMatch
	PushWithdraw
	PushInvalid
)

func (c CallbackType) String() string {
	switch c {
	case PushOrder:
		return "PUSH_ORDER"
	case PushMatch:
		return "PUSH_MATCH"
	case PushWithdraw:
		return "PUSH_WITHDRAW"
	case PushInvalid:
		return "PUSH_INVALID"
	default:
		return "UNKNOWN"
	}
}

// Callback is the confirmation message delivered asynchronously by the
// broker session (spec.md §4.6 field list). MatchPriceRaw/MatchQty/
// MatchSerial are populated only for Type == PushMatch, consumed by the
// Follow-up Monitor (spec.md §4.7) for its execution dedup key.
type Callback struct {
	Type          CallbackType
	OrderID       int64
	CxOrderID     int64
	Market        string // "SH"/"SZ"
	StockCode     string
	OrderQty      int64
	TotalMatchQty int64
	OrderStatus   string
	WithdrawFlag  string
	ConfirmTime   int32 // HHMMSSmmm
	ResultInfo    string

	MatchPriceRaw   int64 // price * 10000, PushMatch only
	MatchQty        int64 // PushMatch only
	MatchSerial     int64 // exchange execution id, PushMatch only
	ExchangeOrderID int64 // the broker's own order id, as opposed to OrderID (our sys_id)
}

// Gateway is the interface the Order State Machine and Follow-up Monitor
// depend on. SendSellLimit/SendBuyLimit/Cancel are synchronous per spec.md
// §4.6 ("positive sys_id on success; ≤ 0 with an error string on failure").
// Callbacks delivers confirmations serialized onto a single channel drained
// by the order-state worker.
type Gateway interface {
	SendSellLimit(req SellOrderRequest) (sysID int64, err error)
	SendBuyLimit(req BuyOrderRequest) (sysID int64, err error)
	Cancel(req CancelRequest) (status int64, err error)
	Callbacks() <-chan Callback
}
