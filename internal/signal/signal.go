// Package signal holds the trigger value type shared between the Symbol
// Engine (internal/symbol) and the Trigger Channel / Order State Machine
// (internal/trigger, internal/orderstate). It exists as its own leaf package
// so those two sides of the pipeline never need to import one another.
package signal

// TriggerType identifies which of the two limit-up pressure signals (or the
// seal event) a LimitUpTrigger carries (spec.md §2, §4.3).
type TriggerType uint8

const (
	TriggerUnknown TriggerType = iota
	TriggerPrice107
	TriggerSellSum50W
	TriggerSealedStop
)

func (t TriggerType) String() string {
	switch t {
	case TriggerPrice107:
		return "PRICE_107"
	case TriggerSellSum50W:
		return "SELL_SUM_50W"
	case TriggerSealedStop:
		return "SEALED_STOP"
	default:
		return "UNKNOWN"
	}
}

// LimitUpTrigger is posted by the Symbol Engine and consumed by the Trigger
// Channel (spec.md §4.3: "Trigger posting carries: type, symbol, event time,
// limit_up_raw, base_raw, tick_raw, a steady-clock timestamp, and current
// sum_trigger_count").
type LimitUpTrigger struct {
	Symbol          string
	Type            TriggerType
	EventTime       int32 // HHMMSSmmm
	LimitUpRaw      int64
	BaseRaw         int64
	BaseReady       bool
	TickRaw         int64 // trade price that caused PRICE_107/SEALED_STOP; 0 for SELL_SUM_50W
	SteadyNs        int64
	SumTriggerCount int
}
