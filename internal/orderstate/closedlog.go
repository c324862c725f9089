package orderstate

import (
	"bufio"
	"fmt"
	"os"
	"sync"

	"limitup-agent/internal/textenc"
)

// closedLoopLog is the append-only time_spend.log writer (spec.md §6): one
// line per event, comma-separated, newline-terminated, line-buffered,
// single writer. Open failures are lazily retried on the next write rather
// than treated as fatal (spec.md §7: "Log-file open failure: lazily
// retried; never fatal").
type closedLoopLog struct {
	mu   sync.Mutex
	path string
	file *os.File
	w    *bufio.Writer
}

func newClosedLoopLog(path string) *closedLoopLog {
	l := &closedLoopLog{path: path}
	l.tryOpen()
	return l
}

func (l *closedLoopLog) tryOpen() {
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		l.file = nil
		l.w = nil
		return
	}
	l.file = f
	l.w = bufio.NewWriter(f)
}

func (l *closedLoopLog) writeLine(fields ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.w == nil {
		l.tryOpen()
		if l.w == nil {
			return
		}
	}

	for i, f := range fields {
		if i > 0 {
			l.w.WriteByte(',')
		}
		switch v := f.(type) {
		case string:
			l.w.WriteString(textenc.SanitizeCSVField(v))
		default:
			fmt.Fprintf(l.w, "%v", v)
		}
	}
	l.w.WriteByte('\n')
	if err := l.w.Flush(); err != nil {
		// Drop the underlying handle so the next write retries opening it.
		l.file.Close()
		l.file = nil
		l.w = nil
	}
}

func (l *closedLoopLog) orderSend(symbol string, seq int64, reason string, triggerTime int32, signalSteadyNs, sendSteadyNs, limitUpRaw, baseRaw, tickRaw, sysID int64, sumTriggerCount int) {
	l.writeLine("v1", "ORDER_SEND", symbol, seq, reason, triggerTime, signalSteadyNs, sendSteadyNs, limitUpRaw, baseRaw, tickRaw, sysID, sumTriggerCount)
}

func (l *closedLoopLog) orderAck(symbol string, seq, sysID int64, pTime, confirmTime int32, nowNs int64, orderStatus, resultInfo string) {
	l.writeLine("v1", "ORDER_ACK", symbol, seq, sysID, pTime, confirmTime, nowNs, orderStatus, resultInfo)
}

func (l *closedLoopLog) orderInvalid(symbol string, seq, sysID int64, pTime, confirmTime int32, nowNs int64, orderStatus, resultInfo string) {
	l.writeLine("v1", "ORDER_INVALID", symbol, seq, sysID, pTime, confirmTime, nowNs, orderStatus, resultInfo)
}

func (l *closedLoopLog) cancelSend(symbol string, seq, targetSysID int64, attempt int, sendNs int64) {
	l.writeLine("v1", "CANCEL_SEND", symbol, seq, targetSysID, attempt, sendNs)
}

func (l *closedLoopLog) cancelAck(symbol string, seq, targetSysID int64, pTime, confirmTime int32, nowNs int64, orderStatus, resultInfo string) {
	l.writeLine("v1", "CANCEL_ACK", symbol, seq, targetSysID, pTime, confirmTime, nowNs, orderStatus, resultInfo)
}

func (l *closedLoopLog) cancelInvalid(symbol string, seq, targetSysID int64, attempt int, pTime, confirmTime int32, nowNs int64, orderStatus, resultInfo string) {
	l.writeLine("v1", "CANCEL_INVALID", symbol, seq, targetSysID, attempt, pTime, confirmTime, nowNs, orderStatus, resultInfo)
}

func (l *closedLoopLog) close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.w != nil {
		l.w.Flush()
	}
	if l.file != nil {
		l.file.Close()
	}
}
