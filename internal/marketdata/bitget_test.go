package marketdata

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"signal-screenerv1/internal/model"
)

func TestBitget_Candles(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v2/mix/market/candles" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("granularity"); got != "1H" {
			t.Errorf("granularity = %q, want 1H", got)
		}
		// Newest first on the wire; the client must re-sort ascending.
		w.Write([]byte(`{"code":"00000","msg":"success","data":[
			["1700003600000","101","103","100","102","7","700"],
			["1700000000000","100","102","99","101","5","500"]
		]}`))
	}))
	defer srv.Close()

	b := NewBitget(srv.URL)
	candles, err := b.Candles(context.Background(), "BTCUSDT", model.Hourly, 500)
	if err != nil {
		t.Fatalf("candles: %v", err)
	}
	if len(candles) != 2 {
		t.Fatalf("got %d candles, want 2", len(candles))
	}
	if !candles[0].TS.Before(candles[1].TS) {
		t.Error("candles must be sorted oldest first")
	}
	if candles[0].Open != 100 || candles[0].Close != 101 || candles[0].Volume != 5 {
		t.Errorf("first candle parsed wrong: %+v", candles[0])
	}
}

func TestBitget_CandlesAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"code":"40034","msg":"symbol not found","data":null}`))
	}))
	defer srv.Close()

	b := NewBitget(srv.URL)
	if _, err := b.Candles(context.Background(), "NOPEUSDT", model.Daily, 500); err == nil {
		t.Fatal("expected api error")
	}
}

func TestBitget_CandlesRetriesOnce(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"code":"00000","msg":"success","data":[["1700000000000","1","2","0.5","1.5","10","10"]]}`))
	}))
	defer srv.Close()

	b := NewBitget(srv.URL)
	candles, err := b.Candles(context.Background(), "BTCUSDT", model.Hourly, 10)
	if err != nil {
		t.Fatalf("expected retry to recover: %v", err)
	}
	if calls != 2 || len(candles) != 1 {
		t.Errorf("calls=%d candles=%d", calls, len(candles))
	}
}

func TestBitget_InstrumentsFiltersInactive(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v2/mix/market/contracts" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`{"code":"00000","msg":"success","data":[
			{"symbol":"ETHUSDT","symbolStatus":"normal"},
			{"symbol":"BTCUSDT","symbolStatus":"normal"},
			{"symbol":"OLDUSDT","symbolStatus":"off"},
			{"symbol":"BTCUSD","symbolStatus":"normal"}
		]}`))
	}))
	defer srv.Close()

	b := NewBitget(srv.URL)
	symbols, err := b.Instruments(context.Background())
	if err != nil {
		t.Fatalf("instruments: %v", err)
	}
	want := []string{"BTCUSDT", "ETHUSDT"}
	if len(symbols) != len(want) {
		t.Fatalf("got %v, want %v", symbols, want)
	}
	for i := range want {
		if symbols[i] != want[i] {
			t.Errorf("symbols[%d] = %s, want %s", i, symbols[i], want[i])
		}
	}
}
