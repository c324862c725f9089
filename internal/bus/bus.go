package bus

import (
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// BatchItem is one record within a vendor callback batch. Vendor callbacks
// hand back parallel arrays (one entry per order/transaction in the batch),
// each with its own exchange time and sequence number — there is no single
// shared header across the whole batch.
type BatchItem struct {
	ExchangeTime int32
	SeqOrderNum  int64
	Type         DataType
	Symbol       string
	PayloadLen   int32
	Payload      [1024]byte
}

// Batch is a vendor callback's full set of items for one invocation.
type Batch struct {
	Handle uintptr
	Items  []BatchItem
}

// Stats is a point-in-time snapshot of ring bus health (spec.md §8,
// testable property: "operators can observe drop counts and max depth").
// DroppedByType and LastStatsEmitNs satisfy spec.md:69's "monotonic counters
// of dropped records per type ... and last-stats-emit timestamp".
type Stats struct {
	Pushed          uint64
	Dropped         uint64
	DroppedByType   map[DataType]uint64
	Filtered        uint64
	MaxDepth        int
	MaxEnqueueNs    int64 // worst observed producer-side enqueue latency
	MaxDwellNs      int64 // worst observed slot dwell time (enqueue to pop)
	LastStatsEmitNs int64
}

// clone returns a deep copy so callers can read DroppedByType without racing
// the next Push.
func (s Stats) clone() Stats {
	out := s
	out.DroppedByType = make(map[DataType]uint64, len(s.DroppedByType))
	for k, v := range s.DroppedByType {
		out.DroppedByType[k] = v
	}
	return out
}

// Ring is a bounded, single-consumer, multi-producer ring buffer of Record
// slots. Capacity is a power of two so index wrapping is a mask, not a
// modulo (spec.md §4.1, §5 hot-path requirements).
type Ring struct {
	mask  uint64
	slots []Record

	writeCursor uint64 // atomic, advanced by producers under writeMu
	readCursor  uint64 // only touched by the single consumer

	writeMu sync.Mutex // serializes the multiple producer goroutines

	whitelistMu sync.RWMutex
	whitelist   WhitelistFilter

	notify chan struct{} // buffered(1) wake-up for a blocking Pop

	closed atomic.Bool

	statsMu sync.Mutex
	stats   Stats

	logger *slog.Logger
}

// dropWarnEvery is the per-type drop count at which ORDER and TRANSACTION
// overflow gets logged (spec.md §4.1: "for ORDER and TRANSACTION, emit a
// warning every 100 drops").
const dropWarnEvery = 100

// WhitelistFilter reports whether a canonical symbol passes the filter.
// internal/whitelist.Set satisfies this interface; it is expressed here as
// its own interface so bus never imports internal/whitelist.
type WhitelistFilter interface {
	Contains(symbol string) bool
}

type passAllFilter struct{}

func (passAllFilter) Contains(string) bool { return true }

// New creates a Ring with 1<<capacityPow2 slots. Filtering is disabled
// (monitor-all) until SetWhitelist is called. A nil logger disables the
// per-type drop warnings.
func New(capacityPow2 int, logger *slog.Logger) *Ring {
	n := uint64(1) << uint(capacityPow2)
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Ring{
		mask:      n - 1,
		slots:     make([]Record, n),
		whitelist: passAllFilter{},
		notify:    make(chan struct{}, 1),
		logger:    logger,
		stats:     Stats{DroppedByType: make(map[DataType]uint64)},
	}
}

// SetWhitelist installs the filter applied to every subsequent Push. Intended
// to be called once at startup before feed goroutines are started; safe to
// call concurrently regardless.
func (r *Ring) SetWhitelist(w WhitelistFilter) {
	r.whitelistMu.Lock()
	if w == nil {
		w = passAllFilter{}
	}
	r.whitelist = w
	r.whitelistMu.Unlock()
}

func (r *Ring) filter() WhitelistFilter {
	r.whitelistMu.RLock()
	defer r.whitelistMu.RUnlock()
	return r.whitelist
}

// Push explodes a vendor batch into individual slots, dropping any item
// whose symbol fails the whitelist and any item the ring has no room for
// (oldest-unread slot would be overwritten). Push never blocks — a full ring
// drops the newest item rather than stalling the feed thread (spec.md §5:
// "producers never block").
func (r *Ring) Push(batch Batch) {
	if r.closed.Load() || len(batch.Items) == 0 {
		return
	}
	start := time.Now()
	filter := r.filter()

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	var pushed, dropped, filtered uint64
	var droppedByType map[DataType]uint64
	for i := range batch.Items {
		item := &batch.Items[i]
		if !filter.Contains(item.Symbol) {
			filtered++
			continue
		}

		write := atomic.LoadUint64(&r.writeCursor)
		read := r.loadReadCursor()
		if write-read >= uint64(len(r.slots)) {
			dropped++
			if droppedByType == nil {
				droppedByType = make(map[DataType]uint64)
			}
			droppedByType[item.Type]++
			continue
		}

		slot := &r.slots[write&r.mask]
		slot.Handle = batch.Handle
		slot.Type = item.Type
		slot.ExchangeTime = item.ExchangeTime
		slot.SeqOrderNum = item.SeqOrderNum
		slot.Length = item.PayloadLen
		slot.Payload = item.Payload
		slot.zeroEmbeddedPointers()
		slot.EnqueueSteadyNs = time.Now().UnixNano()

		atomic.StoreUint64(&r.writeCursor, write+1)
		pushed++
	}

	r.recordPush(pushed, dropped, filtered, droppedByType, time.Since(start))
	r.wake()
}

func (r *Ring) loadReadCursor() uint64 {
	return atomic.LoadUint64(&r.readCursor)
}

func (r *Ring) wake() {
	select {
	case r.notify <- struct{}{}:
	default:
	}
}

func (r *Ring) recordPush(pushed, dropped, filtered uint64, droppedByType map[DataType]uint64, enqueueDur time.Duration) {
	if pushed == 0 && dropped == 0 && filtered == 0 {
		return
	}
	depth := int(atomic.LoadUint64(&r.writeCursor) - r.loadReadCursor())

	var warn []DataType
	r.statsMu.Lock()
	r.stats.Pushed += pushed
	r.stats.Dropped += dropped
	r.stats.Filtered += filtered
	for dt, n := range droppedByType {
		before := r.stats.DroppedByType[dt]
		after := before + n
		r.stats.DroppedByType[dt] = after
		if (dt == DataOrder || dt == DataTransaction) && before/dropWarnEvery != after/dropWarnEvery {
			warn = append(warn, dt)
		}
	}
	if depth > r.stats.MaxDepth {
		r.stats.MaxDepth = depth
	}
	if ns := enqueueDur.Nanoseconds(); ns > r.stats.MaxEnqueueNs {
		r.stats.MaxEnqueueNs = ns
	}
	total := make(map[DataType]uint64, len(warn))
	for _, dt := range warn {
		total[dt] = r.stats.DroppedByType[dt]
	}
	r.statsMu.Unlock()

	for _, dt := range warn {
		r.logger.Warn("ring bus dropping records", "type", dt.String(), "total_dropped", total[dt])
	}
}

// Pop blocks until a record is available or the ring is stopped, then
// returns it by value. ok is false only when the ring has been stopped and
// drained.
func (r *Ring) Pop() (Record, bool) {
	for {
		read := atomic.LoadUint64(&r.readCursor)
		write := atomic.LoadUint64(&r.writeCursor)
		if write != read {
			rec := r.slots[read&r.mask]
			atomic.StoreUint64(&r.readCursor, read+1)

			dwell := time.Now().UnixNano() - rec.EnqueueSteadyNs
			r.statsMu.Lock()
			if dwell > r.stats.MaxDwellNs {
				r.stats.MaxDwellNs = dwell
			}
			r.statsMu.Unlock()

			return rec, true
		}
		if r.closed.Load() {
			return Record{}, false
		}
		<-r.notify
	}
}

// Stop unblocks any pending or future Pop, returning ok=false once drained.
func (r *Ring) Stop() {
	r.closed.Store(true)
	r.wake()
}

// Clear discards all unread records without touching producer/consumer
// state otherwise. Only safe while the consumer is not calling Pop.
func (r *Ring) Clear() {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	r.readCursor = atomic.LoadUint64(&r.writeCursor)
}

// SnapshotStats returns a copy of the current counters for periodic logging
// (SPEC_FULL.md §4.11) or the admin console's "stats" command.
func (r *Ring) SnapshotStats() Stats {
	r.statsMu.Lock()
	defer r.statsMu.Unlock()
	return r.stats.clone()
}

// EmitStats logs an aggregated stats line and stamps LastStatsEmitNs
// (spec.md §4.1: "periodically (every >= 2s) emit an aggregated stats log
// line"). Returns the snapshot so callers can forward it elsewhere, e.g. the
// sqlite archive.
func (r *Ring) EmitStats(nowNs int64) Stats {
	r.statsMu.Lock()
	r.stats.LastStatsEmitNs = nowNs
	snap := r.stats.clone()
	r.statsMu.Unlock()

	r.logger.Info("ring bus stats",
		"pushed", snap.Pushed,
		"dropped", snap.Dropped,
		"dropped_order", snap.DroppedByType[DataOrder],
		"dropped_transaction", snap.DroppedByType[DataTransaction],
		"dropped_market", snap.DroppedByType[DataMarket],
		"filtered", snap.Filtered,
		"max_depth", snap.MaxDepth,
		"max_enqueue_ns", snap.MaxEnqueueNs,
		"max_dwell_ns", snap.MaxDwellNs,
		"depth", r.Depth(),
	)
	return snap
}

// Depth reports the number of unread records currently queued.
func (r *Ring) Depth() int {
	return int(atomic.LoadUint64(&r.writeCursor) - r.loadReadCursor())
}

// Capacity reports the total number of slots in the ring.
func (r *Ring) Capacity() int {
	return len(r.slots)
}
