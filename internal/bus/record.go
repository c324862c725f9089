// Package bus implements the bounded multi-producer/single-consumer ring
// buffer message bus described in spec.md §4.1. It ingests raw market-data
// batches from a vendor callback, explodes multi-item batches into per-record
// slots with whitelist filtering, and tracks backpressure statistics.
//
// Concurrency model (spec.md §5): T_feed producers call Push concurrently and
// never block; T_consumer calls Pop from a single goroutine. Producers
// serialize on a short mutex and advance an atomic write cursor; a full ring
// drops the item instead of waiting for space.
package bus

import "encoding/binary"

// DataType tags a Record's payload shape, mirroring the vendor feed's three
// message kinds (spec.md §3).
type DataType uint8

const (
	// DataUnknown marks a zero-value Record; never published on the ring.
	DataUnknown DataType = iota
	DataMarket
	DataOrder
	DataTransaction
)

func (t DataType) String() string {
	switch t {
	case DataMarket:
		return "MARKET"
	case DataOrder:
		return "ORDER"
	case DataTransaction:
		return "TRANSACTION"
	default:
		return "UNKNOWN"
	}
}

// SymbolKeyLen is the fixed width of the symbol key at the front of every
// record payload (spec.md §4.1: "Interpret the first 32 payload bytes as the
// symbol key").
const SymbolKeyLen = 32

// Record is a fixed-size ring-buffer slot (spec.md §3). It is written once by
// a producer, read once by the consumer, then overwritten on the next pass of
// the write cursor — there is no shared ownership of a slot at any time.
type Record struct {
	Handle          uintptr  // opaque feed handle
	Type            DataType // data-type tag
	ExchangeTime    int32    // HHMMSSmmm
	SeqOrderNum     int64    // exchange order id / sequence, when applicable
	Length          int32    // declared length of the payload actually used
	Payload         [1024]byte
	EnqueueSteadyNs int64 // enqueue-time monotonic nanosecond stamp
}

// SymbolKey extracts the zero-padded 32-byte symbol key from the payload.
func (r *Record) SymbolKey() string {
	end := SymbolKeyLen
	for end > 0 && r.Payload[end-1] == 0 {
		end--
	}
	return string(r.Payload[:end])
}

// zeroEmbeddedPointers clears bytes that the raw vendor payload might have carried
// as embedded pointers (spec.md §3: "All inner pointers that the raw payload
// might carry must be zeroed after copy"). Our payload never contains actual
// pointers, but the field-layout offsets below are reserved so an adapter
// that does copy raw vendor bytes has a canonical place to zero.
const pointerFieldOffset = SymbolKeyLen + 32

func (r *Record) zeroEmbeddedPointers() {
	if int(r.Length) <= pointerFieldOffset {
		return
	}
	end := pointerFieldOffset + 8
	if end > len(r.Payload) {
		end = len(r.Payload)
	}
	for i := pointerFieldOffset; i < end; i++ {
		r.Payload[i] = 0
	}
}

// MarketDataItem is the decoded shape of a DataMarket payload.
type MarketDataItem struct {
	Symbol      string
	HighLimited int64 // limit-up price raw (*10000); 0 if not present in this tick
}

// OrderItem is the decoded shape of a DataOrder payload.
type OrderItem struct {
	Symbol       string
	FunctionCode byte // 'S' sell, 'B' buy, others ignored upstream
	OrderKind    byte // 'D' marks an SH cancel; 0 otherwise
	PriceRaw     int64
	Volume       int64
	OrderID      int64
}

// TransactionItem is the decoded shape of a DataTransaction payload.
type TransactionItem struct {
	Symbol       string
	FunctionCode byte // 'C' marks an SZ cancel
	BSFlag       byte // 'S' sell execution, 'B' buy execution
	PriceRaw     int64
	Volume       int64
	AskOrder     int64
}

// Payload field layout, all multi-byte integers big-endian:
//
//	[0:32)   symbol key, zero-padded ASCII
//	[32:40)  int64 field1 (HighLimited / PriceRaw)
//	[40:48)  int64 field2 (unused / Volume)
//	[48:56)  int64 field3 (unused / OrderID or AskOrder)
//	[56]     flag1 (FunctionCode)
//	[57]     flag2 (OrderKind / BSFlag)
const (
	offField1 = 32
	offField2 = 40
	offField3 = 48
	offFlag1  = 56
	offFlag2  = 57
	minLen    = 58
)

func putSymbolKey(buf []byte, symbol string) {
	n := copy(buf[:SymbolKeyLen], symbol)
	for i := n; i < SymbolKeyLen; i++ {
		buf[i] = 0
	}
}

// EncodeMarketData packs a MarketDataItem into a Record payload buffer and
// returns the declared length.
func EncodeMarketData(buf []byte, item MarketDataItem) int32 {
	putSymbolKey(buf, item.Symbol)
	binary.BigEndian.PutUint64(buf[offField1:], uint64(item.HighLimited))
	return minLen
}

// EncodeOrder packs an OrderItem into a Record payload buffer.
func EncodeOrder(buf []byte, item OrderItem) int32 {
	putSymbolKey(buf, item.Symbol)
	binary.BigEndian.PutUint64(buf[offField1:], uint64(item.PriceRaw))
	binary.BigEndian.PutUint64(buf[offField2:], uint64(item.Volume))
	binary.BigEndian.PutUint64(buf[offField3:], uint64(item.OrderID))
	buf[offFlag1] = item.FunctionCode
	buf[offFlag2] = item.OrderKind
	return minLen
}

// EncodeTransaction packs a TransactionItem into a Record payload buffer.
func EncodeTransaction(buf []byte, item TransactionItem) int32 {
	putSymbolKey(buf, item.Symbol)
	binary.BigEndian.PutUint64(buf[offField1:], uint64(item.PriceRaw))
	binary.BigEndian.PutUint64(buf[offField2:], uint64(item.Volume))
	binary.BigEndian.PutUint64(buf[offField3:], uint64(item.AskOrder))
	buf[offFlag1] = item.FunctionCode
	buf[offFlag2] = item.BSFlag
	return minLen
}

// DecodeMarketData reinterprets the record payload as a MarketDataItem.
// ok is false if the record is not a DataMarket record or is too short.
func (r *Record) DecodeMarketData() (MarketDataItem, bool) {
	if r.Type != DataMarket || int(r.Length) < minLen {
		return MarketDataItem{}, false
	}
	return MarketDataItem{
		Symbol:      r.SymbolKey(),
		HighLimited: int64(binary.BigEndian.Uint64(r.Payload[offField1:])),
	}, true
}

// DecodeOrder reinterprets the record payload as an OrderItem.
func (r *Record) DecodeOrder() (OrderItem, bool) {
	if r.Type != DataOrder || int(r.Length) < minLen {
		return OrderItem{}, false
	}
	return OrderItem{
		Symbol:       r.SymbolKey(),
		FunctionCode: r.Payload[offFlag1],
		OrderKind:    r.Payload[offFlag2],
		PriceRaw:     int64(binary.BigEndian.Uint64(r.Payload[offField1:])),
		Volume:       int64(binary.BigEndian.Uint64(r.Payload[offField2:])),
		OrderID:      int64(binary.BigEndian.Uint64(r.Payload[offField3:])),
	}, true
}

// DecodeTransaction reinterprets the record payload as a TransactionItem.
func (r *Record) DecodeTransaction() (TransactionItem, bool) {
	if r.Type != DataTransaction || int(r.Length) < minLen {
		return TransactionItem{}, false
	}
	return TransactionItem{
		Symbol:       r.SymbolKey(),
		FunctionCode: r.Payload[offFlag1],
		BSFlag:       r.Payload[offFlag2],
		PriceRaw:     int64(binary.BigEndian.Uint64(r.Payload[offField1:])),
		Volume:       int64(binary.BigEndian.Uint64(r.Payload[offField2:])),
		AskOrder:     int64(binary.BigEndian.Uint64(r.Payload[offField3:])),
	}, true
}
