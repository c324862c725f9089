package fixgw

import "testing"

func TestFormatPriceRawRoundTrip(t *testing.T) {
	cases := []int64{110000, 100000, 107100, 0, 99990000}
	for _, raw := range cases {
		s := formatPriceRaw(raw)
		got, ok := parsePriceRaw(s)
		if !ok {
			t.Fatalf("parsePriceRaw(%q) failed", s)
		}
		if got != raw {
			t.Fatalf("round trip %d -> %q -> %d", raw, s, got)
		}
	}
}

func TestFormatPriceRawDecimalShape(t *testing.T) {
	if got := formatPriceRaw(110000); got != "11.0000" {
		t.Fatalf("formatPriceRaw(110000) = %q, want 11.0000", got)
	}
	if got := formatPriceRaw(107100); got != "10.7100" {
		t.Fatalf("formatPriceRaw(107100) = %q, want 10.7100", got)
	}
}

func TestBuildNewOrderSingleSetsRequiredFields(t *testing.T) {
	msg := BuildNewOrderSingle(NewOrderParams{
		Account: "acct-1", ClOrdID: "1", Symbol: "600001.SH",
		Side: SideSell, PriceRaw: 110000, Qty: 100,
	}, "AGENT", "BROKER")

	if v, _ := msg.Body.GetString(TagSymbol); v != "600001.SH" {
		t.Fatalf("symbol = %q", v)
	}
	if v, _ := msg.Body.GetString(TagSide); v != SideSell {
		t.Fatalf("side = %q", v)
	}
	if v, _ := msg.Body.GetString(TagOrdType); v != OrdTypeLimit {
		t.Fatalf("ord_type = %q, want limit", v)
	}
	if v, _ := msg.Body.GetString(TagPrice); v != "11.0000" {
		t.Fatalf("price = %q", v)
	}
	if v, _ := msg.Header.GetString(TagMsgType); v != MsgTypeNewOrderSingle {
		t.Fatalf("msg_type = %q", v)
	}
}

func TestBuildOrderCancelRequestSetsOrigClOrdID(t *testing.T) {
	msg := BuildOrderCancelRequest(CancelOrderParams{
		Account: "acct-1", ClOrdID: "2", OrigClOrdID: "1",
		OrderID: "ex-1", Symbol: "600001.SH", Side: SideSell,
	}, "AGENT", "BROKER")

	if v, _ := msg.Body.GetString(TagOrigClOrdID); v != "1" {
		t.Fatalf("orig_cl_ord_id = %q", v)
	}
	if v, _ := msg.Header.GetString(TagMsgType); v != MsgTypeOrderCancelRequest {
		t.Fatalf("msg_type = %q", v)
	}
}

func TestBuildLogonSetsCredentials(t *testing.T) {
	msg := BuildNewOrderSingle(NewOrderParams{Account: "a", ClOrdID: "1", Symbol: "x", Side: SideBuy, Qty: 1}, "A", "B")
	BuildLogon(&msg.Body, LogonParams{Username: "u", Password: "p", Account: "acct", HeartBtIntSec: 30})

	if v, _ := msg.Body.GetString(TagUsername); v != "u" {
		t.Fatalf("username = %q", v)
	}
	if v, _ := msg.Body.GetString(TagPassword); v != "p" {
		t.Fatalf("password = %q", v)
	}
	if v, _ := msg.Body.GetString(TagHeartBtInt); v != "30" {
		t.Fatalf("heartbeat = %q", v)
	}
}
