package store

import (
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"limitup-agent/internal/bus"
	"limitup-agent/internal/signal"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRecordTriggerWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.db")
	s, err := Open(path, testLogger())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	s.RecordTrigger(signal.LimitUpTrigger{
		Symbol: "600519.SH", Type: signal.TriggerSellSum50W, EventTime: 93000100,
		LimitUpRaw: 1234560000, BaseRaw: 1123236000, TickRaw: 10000, SumTriggerCount: 2,
	})
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s2, err := Open(path, testLogger())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()

	var n int
	if err := s2.db.QueryRow("SELECT COUNT(*) FROM triggers WHERE symbol = ?", "600519.SH").Scan(&n); err != nil {
		t.Fatalf("query: %v", err)
	}
	if n != 1 {
		t.Fatalf("triggers rows = %d, want 1", n)
	}
}

func TestRecordBusStatsWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.db")
	s, err := Open(path, testLogger())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	s.RecordBusStats(bus.Stats{
		Pushed: 10, Dropped: 3,
		DroppedByType: map[bus.DataType]uint64{bus.DataOrder: 2, bus.DataTransaction: 1},
		MaxDepth:      5,
		LastStatsEmitNs: time.Now().UnixNano(),
	})
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s2, err := Open(path, testLogger())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()

	var pushed, droppedOrder int64
	if err := s2.db.QueryRow("SELECT pushed, dropped_order FROM bus_stats ORDER BY id DESC LIMIT 1").Scan(&pushed, &droppedOrder); err != nil {
		t.Fatalf("query: %v", err)
	}
	if pushed != 10 || droppedOrder != 2 {
		t.Fatalf("pushed=%d dropped_order=%d, want 10/2", pushed, droppedOrder)
	}
}

func TestEnqueueDropsOnFullQueue(t *testing.T) {
	s := &Store{logger: testLogger(), writes: make(chan writeRequest)}
	// Unbuffered channel with no reader: enqueue must not block.
	done := make(chan struct{})
	go func() {
		s.enqueue(writeRequest{query: "noop"})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("enqueue blocked on a full queue")
	}
}
