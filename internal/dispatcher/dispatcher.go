// Package dispatcher implements the single-consumer loop (spec.md §4.2,
// component B) that pops records off the Ring Bus and demultiplexes them by
// data-type to the Symbol Engine.
package dispatcher

import (
	"log/slog"

	"limitup-agent/internal/bus"
	"limitup-agent/internal/symbol"
)

// Popper is the bus surface the dispatcher depends on.
type Popper interface {
	Pop() (bus.Record, bool)
}

// Loop runs the dispatch loop. It recovers from panics in downstream
// processing so a single bad record never kills the consumer thread
// (spec.md §4.2: "Exceptions (from downstream) are caught and logged
// without terminating the loop").
type Loop struct {
	ring    Popper
	symbols *symbol.Registry
	logger  *slog.Logger
}

// New builds a dispatcher Loop.
func New(ring Popper, symbols *symbol.Registry, logger *slog.Logger) *Loop {
	return &Loop{ring: ring, symbols: symbols, logger: logger}
}

// Run pops records until the bus reports stopped-and-drained.
func (l *Loop) Run() {
	for {
		rec, ok := l.ring.Pop()
		if !ok {
			return
		}
		l.dispatch(rec)
	}
}

func (l *Loop) dispatch(rec bus.Record) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("panic while dispatching record", "recover", r, "type", rec.Type.String())
		}
	}()

	symbolKey := rec.SymbolKey()
	switch rec.Type {
	case bus.DataMarket:
		md, ok := rec.DecodeMarketData()
		if !ok {
			l.logger.Warn("malformed market record", "symbol", symbolKey)
			return
		}
		l.symbols.ProcessMarket(symbolKey, md)

	case bus.DataOrder:
		o, ok := rec.DecodeOrder()
		if !ok {
			l.logger.Warn("malformed order record", "symbol", symbolKey)
			return
		}
		l.symbols.ProcessOrder(symbolKey, rec.ExchangeTime, o)

	case bus.DataTransaction:
		tr, ok := rec.DecodeTransaction()
		if !ok {
			l.logger.Warn("malformed transaction record", "symbol", symbolKey)
			return
		}
		l.symbols.ProcessTransaction(symbolKey, rec.ExchangeTime, tr)

	default:
		l.logger.Warn("unknown record type dropped", "type", rec.Type)
	}
}
