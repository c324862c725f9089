package bus

import "testing"

func marketItem(symbol string, highLimited int64) BatchItem {
	var item BatchItem
	item.Type = DataMarket
	item.Symbol = symbol
	item.PayloadLen = EncodeMarketData(item.Payload[:], MarketDataItem{
		Symbol:      symbol,
		HighLimited: highLimited,
	})
	return item
}

func TestPushPopRoundTrip(t *testing.T) {
	r := New(4, nil)
	r.Push(Batch{Items: []BatchItem{marketItem("600519.SH", 1234560000)}})

	rec, ok := r.Pop()
	if !ok {
		t.Fatal("expected a record")
	}
	if rec.Type != DataMarket {
		t.Fatalf("type = %v, want DataMarket", rec.Type)
	}
	if got := rec.SymbolKey(); got != "600519.SH" {
		t.Fatalf("symbol key = %q", got)
	}
	md, ok := rec.DecodeMarketData()
	if !ok {
		t.Fatal("decode failed")
	}
	if md.HighLimited != 1234560000 {
		t.Fatalf("HighLimited = %d", md.HighLimited)
	}
}

func TestPushPreservesOrder(t *testing.T) {
	r := New(8, nil)
	r.Push(Batch{Items: []BatchItem{
		marketItem("000001.SZ", 1),
		marketItem("000002.SZ", 2),
		marketItem("000003.SZ", 3),
	}})

	for i, want := range []string{"000001.SZ", "000002.SZ", "000003.SZ"} {
		rec, ok := r.Pop()
		if !ok {
			t.Fatalf("item %d: expected record", i)
		}
		if got := rec.SymbolKey(); got != want {
			t.Fatalf("item %d: symbol = %q, want %q", i, got, want)
		}
	}
}

func TestWhitelistFiltersPush(t *testing.T) {
	r := New(4, nil)
	r.SetWhitelist(allowOnly{"600519.SH": struct{}{}})
	r.Push(Batch{Items: []BatchItem{
		marketItem("600519.SH", 1),
		marketItem("000001.SZ", 2),
	}})

	rec, ok := r.Pop()
	if !ok || rec.SymbolKey() != "600519.SH" {
		t.Fatalf("expected only whitelisted record, got ok=%v rec=%+v", ok, rec)
	}
	if got := r.SnapshotStats().Filtered; got != 1 {
		t.Fatalf("Filtered = %d, want 1", got)
	}
}

func TestFullRingDropsNewest(t *testing.T) {
	r := New(1, nil) // capacity 2
	items := make([]BatchItem, 0, 5)
	for i := 0; i < 5; i++ {
		items = append(items, marketItem("600519.SH", int64(i)))
	}
	r.Push(Batch{Items: items})

	stats := r.SnapshotStats()
	if stats.Pushed != 2 {
		t.Fatalf("Pushed = %d, want 2", stats.Pushed)
	}
	if stats.Dropped != 3 {
		t.Fatalf("Dropped = %d, want 3", stats.Dropped)
	}
	if r.Depth() != 2 {
		t.Fatalf("Depth = %d, want 2", r.Depth())
	}
	if got := stats.DroppedByType[DataMarket]; got != 3 {
		t.Fatalf("DroppedByType[DataMarket] = %d, want 3", got)
	}
}

func orderItem(symbol string) BatchItem {
	var item BatchItem
	item.Type = DataOrder
	item.PayloadLen = EncodeOrder(item.Payload[:], OrderItem{Symbol: symbol, FunctionCode: 'S'})
	item.Symbol = symbol
	return item
}

func TestOrderDropWarningEveryHundred(t *testing.T) {
	r := New(1, nil) // capacity 2
	items := make([]BatchItem, 0, 202)
	for i := 0; i < 202; i++ {
		items = append(items, orderItem("600519.SH"))
	}
	r.Push(Batch{Items: items})

	stats := r.SnapshotStats()
	if got := stats.DroppedByType[DataOrder]; got != 200 {
		t.Fatalf("DroppedByType[DataOrder] = %d, want 200", got)
	}
	if stats.LastStatsEmitNs != 0 {
		t.Fatalf("LastStatsEmitNs should only be set by EmitStats, got %d", stats.LastStatsEmitNs)
	}
}

func TestEmitStatsStampsTimestamp(t *testing.T) {
	r := New(4, nil)
	r.Push(Batch{Items: []BatchItem{marketItem("600519.SH", 1)}})

	snap := r.EmitStats(12345)
	if snap.LastStatsEmitNs != 12345 {
		t.Fatalf("LastStatsEmitNs = %d, want 12345", snap.LastStatsEmitNs)
	}
	if r.SnapshotStats().LastStatsEmitNs != 12345 {
		t.Fatal("EmitStats did not persist LastStatsEmitNs")
	}
}

func TestStopUnblocksPop(t *testing.T) {
	r := New(4, nil)
	r.Stop()
	if _, ok := r.Pop(); ok {
		t.Fatal("expected Pop to report closed ring")
	}
}

func TestClearDiscardsUnread(t *testing.T) {
	r := New(4, nil)
	r.Push(Batch{Items: []BatchItem{marketItem("600519.SH", 1)}})
	r.Clear()
	r.Stop()
	if _, ok := r.Pop(); ok {
		t.Fatal("expected no records after Clear")
	}
}

type allowOnly map[string]struct{}

func (a allowOnly) Contains(symbol string) bool {
	_, ok := a[symbol]
	return ok
}
