// Package store is the sqlite side-channel archive (SPEC_FULL.md §4.12): an
// optional, best-effort record of bus throughput stats, Symbol Engine
// triggers, and closed-loop events, for post-session analysis. It never sits
// on the hot path — writes are buffered onto a channel drained by a single
// background goroutine; when the channel is full the new write is dropped
// and logged rather than blocking a caller.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"limitup-agent/internal/bus"
	"limitup-agent/internal/signal"
)

const (
	createTriggersTable = `CREATE TABLE IF NOT EXISTS triggers (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		symbol TEXT NOT NULL,
		trigger_type TEXT NOT NULL,
		event_time INTEGER NOT NULL,
		limit_up_raw INTEGER NOT NULL,
		base_raw INTEGER NOT NULL,
		tick_raw INTEGER NOT NULL,
		sum_trigger_count INTEGER NOT NULL,
		recorded_at_ns INTEGER NOT NULL
	)`
	insertTrigger = `INSERT INTO triggers (symbol, trigger_type, event_time, limit_up_raw, base_raw, tick_raw, sum_trigger_count, recorded_at_ns) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	createClosedLoopTable = `CREATE TABLE IF NOT EXISTS closed_loop_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		symbol TEXT NOT NULL,
		event TEXT NOT NULL,
		seq INTEGER NOT NULL,
		sys_id INTEGER NOT NULL,
		recorded_at_ns INTEGER NOT NULL
	)`
	insertClosedLoopEvent = `INSERT INTO closed_loop_events (symbol, event, seq, sys_id, recorded_at_ns) VALUES (?, ?, ?, ?, ?)`

	createBusStatsTable = `CREATE TABLE IF NOT EXISTS bus_stats (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		pushed INTEGER NOT NULL,
		dropped INTEGER NOT NULL,
		dropped_order INTEGER NOT NULL,
		dropped_transaction INTEGER NOT NULL,
		dropped_market INTEGER NOT NULL,
		filtered INTEGER NOT NULL,
		max_depth INTEGER NOT NULL,
		max_enqueue_ns INTEGER NOT NULL,
		max_dwell_ns INTEGER NOT NULL,
		last_stats_emit_ns INTEGER NOT NULL,
		recorded_at_ns INTEGER NOT NULL
	)`
	insertBusStats = `INSERT INTO bus_stats (pushed, dropped, dropped_order, dropped_transaction, dropped_market, filtered, max_depth, max_enqueue_ns, max_dwell_ns, last_stats_emit_ns, recorded_at_ns) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
)

type writeRequest struct {
	query string
	args  []any
}

// Store owns the sqlite connection and the single background writer
// goroutine. Grounded on database/marketdata.go's prepared-statement batch
// pattern, adapted from a request/reply API to a buffered async sink since
// nothing on the hot path may block on disk I/O (spec.md §5).
type Store struct {
	db     *sql.DB
	logger *slog.Logger

	writes chan writeRequest
	doneCh chan struct{}

	closeOnce sync.Once
	closeErr  error
}

// Open creates (if necessary) the sqlite file at path and starts the
// background writer. WAL mode matches the teacher's connection string.
func Open(path string, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_cache_size=1000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite store: %w", err)
	}
	for _, stmt := range []string{createTriggersTable, createClosedLoopTable, createBusStatsTable} {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init sqlite schema: %w", err)
		}
	}

	s := &Store{
		db:     db,
		logger: logger,
		writes: make(chan writeRequest, 4096),
		doneCh: make(chan struct{}),
	}
	go s.run()
	return s, nil
}

func (s *Store) run() {
	defer close(s.doneCh)
	for req := range s.writes {
		if _, err := s.db.Exec(req.query, req.args...); err != nil {
			s.logger.Warn("sqlite store write failed", "err", err)
		}
	}
}

// enqueue drops the write rather than blocking the caller's hot path; a full
// channel means the writer has fallen behind, which is counted via the
// dropped log rather than surfaced as an error (spec.md §7: never fatal).
func (s *Store) enqueue(req writeRequest) {
	select {
	case s.writes <- req:
	default:
		s.logger.Warn("sqlite write queue full, dropping record", "query", req.query)
	}
}

// RecordTrigger archives one Symbol Engine trigger.
func (s *Store) RecordTrigger(trig signal.LimitUpTrigger) {
	s.enqueue(writeRequest{insertTrigger, []any{
		trig.Symbol, trig.Type.String(), trig.EventTime,
		trig.LimitUpRaw, trig.BaseRaw, trig.TickRaw, trig.SumTriggerCount,
		time.Now().UnixNano(),
	}})
}

// OnClosedLoopEvent implements internal/orderstate.EventSink.
func (s *Store) OnClosedLoopEvent(symbol, event string, seq int64, sysID int64) {
	s.enqueue(writeRequest{insertClosedLoopEvent, []any{symbol, event, seq, sysID, time.Now().UnixNano()}})
}

// RecordBusStats archives a point-in-time Ring Bus stats snapshot, for
// periodic logging (SPEC_FULL.md §4.11, §4.12).
func (s *Store) RecordBusStats(stats bus.Stats) {
	s.enqueue(writeRequest{insertBusStats, []any{
		stats.Pushed, stats.Dropped, stats.DroppedByType[bus.DataOrder], stats.DroppedByType[bus.DataTransaction], stats.DroppedByType[bus.DataMarket],
		stats.Filtered, stats.MaxDepth, stats.MaxEnqueueNs, stats.MaxDwellNs, stats.LastStatsEmitNs,
		time.Now().UnixNano(),
	}})
}

// Close drains pending writes then closes the database. Calls after the
// first return the first call's result.
func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		close(s.writes)
		<-s.doneCh
		s.closeErr = s.db.Close()
	})
	return s.closeErr
}
