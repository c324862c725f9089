package fixgw

import (
	"io"
	"log/slog"
	"testing"

	"github.com/quickfixgo/quickfix"

	"limitup-agent/internal/broker"
)

func testApp() *OrderEntryApp {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewOrderEntryApp("khh", "AGENT", "BROKER", LogonParams{}, logger)
}

func execReport(clOrdID, symbol, execType, ordStatus string) *quickfix.Message {
	m := quickfix.NewMessage()
	buildHeader(&m.Header, "8", "BROKER", "AGENT")
	setString(&m.Body, TagClOrdID, clOrdID)
	setString(&m.Body, TagSymbol, symbol)
	setString(&m.Body, TagExecType, execType)
	setString(&m.Body, TagOrdStatus, ordStatus)
	return m
}

func TestHandleExecutionReportMapsKnownExecTypes(t *testing.T) {
	cases := []struct {
		execType string
		ordStat  string
		want     broker.CallbackType
	}{
		{ExecTypeNew, OrdStatusNew, broker.PushOrder},
		{ExecTypeFilled, OrdStatusFilled, broker.PushMatch},
		{ExecTypeCanceled, OrdStatusCanceled, broker.PushWithdraw},
		{ExecTypeRejected, OrdStatusRejected, broker.PushInvalid},
	}
	for _, tc := range cases {
		a := testApp()
		a.handleExecutionReport(execReport("cl1", "600519.SH", tc.execType, tc.ordStat))
		select {
		case cb := <-a.Callbacks():
			if cb.Type != tc.want {
				t.Fatalf("exec_type %s: callback type = %v, want %v", tc.execType, cb.Type, tc.want)
			}
		default:
			t.Fatalf("exec_type %s: expected a callback, got none", tc.execType)
		}
	}
}

func TestHandleExecutionReportDiscardsUnmappedExecType(t *testing.T) {
	a := testApp()
	// "C" (Expired) is valid FIX but unmapped by this adapter.
	a.handleExecutionReport(execReport("cl1", "600519.SH", "C", OrdStatusCanceled))

	select {
	case cb := <-a.Callbacks():
		t.Fatalf("expected unmapped ExecType to be discarded, got callback %+v", cb)
	default:
	}
}

func TestSplitSymbol(t *testing.T) {
	market, stock := splitSymbol("600001.SH")
	if market != "SH" || stock != "600001" {
		t.Fatalf("splitSymbol = (%q, %q)", market, stock)
	}
}

func TestSplitSymbolMalformed(t *testing.T) {
	market, stock := splitSymbol("600001")
	if market != "" || stock != "600001" {
		t.Fatalf("splitSymbol = (%q, %q)", market, stock)
	}
}

func TestParseFixTimeHHMMSSmmm(t *testing.T) {
	got := parseFixTimeHHMMSSmmm("20260731-09:30:01.500")
	want := int32(9)*10000000 + 30*100000 + 1*1000 + 500
	if got != want {
		t.Fatalf("parseFixTimeHHMMSSmmm = %d, want %d", got, want)
	}
}

func TestParseFixTimeInvalidReturnsZero(t *testing.T) {
	if got := parseFixTimeHHMMSSmmm("not-a-time"); got != 0 {
		t.Fatalf("parseFixTimeHHMMSSmmm(invalid) = %d, want 0", got)
	}
}
