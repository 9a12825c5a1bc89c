package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"golang.org/x/time/rate"
)

func newTestClient(t *testing.T, base string) *NseClient {
	t.Helper()
	c, err := NewNseClient()
	if err != nil {
		t.Fatalf("NewNseClient: %v", err)
	}
	c.SetBase(base)
	c.limiter = rate.NewLimiter(rate.Inf, 1)
	return c
}

const tradeJSON = `[
{"category":"DII **","date":"01-Oct-2025","buyValue":"14383.93","sellValue":"12920.13","netValue":"1463.80"},
{"category":"FII/FPI *","date":"01-Oct-2025","buyValue":"9381.20","sellValue":"10926.28","netValue":"-1545.08"}
]`

func TestTradeDataWarmsUpCookies(t *testing.T) {
	var warmups atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		warmups.Add(1)
		http.SetCookie(w, &http.Cookie{Name: "nsit", Value: "session", Path: "/"})
		w.Write([]byte("<html></html>"))
	})
	mux.HandleFunc("/market-data", func(w http.ResponseWriter, r *http.Request) {
		warmups.Add(1)
		w.Write([]byte("<html></html>"))
	})
	mux.HandleFunc(tradePath, func(w http.ResponseWriter, r *http.Request) {
		if c, err := r.Cookie("nsit"); err != nil || c.Value != "session" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if ua := r.Header.Get("User-Agent"); ua != userAgent {
			t.Errorf("User-Agent = %q", ua)
		}
		if ref := r.Header.Get("Referer"); ref == "" {
			t.Error("Referer header missing")
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(tradeJSON))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	entries, err := c.TradeData(context.Background())
	if err != nil {
		t.Fatalf("TradeData: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	if entries[0].Category != "DII **" || entries[0].BuyValue != "14383.93" {
		t.Errorf("entry[0] = %+v", entries[0])
	}
	if got := warmups.Load(); got != 2 {
		t.Errorf("warm-up requests = %d, want 2", got)
	}
}

func TestTradeDataRetriesOnStaleSession(t *testing.T) {
	var apiCalls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html></html>"))
	})
	mux.HandleFunc("/market-data", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html></html>"))
	})
	mux.HandleFunc(tradePath, func(w http.ResponseWriter, r *http.Request) {
		if apiCalls.Add(1) == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(tradeJSON))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	entries, err := c.TradeData(context.Background())
	if err != nil {
		t.Fatalf("TradeData: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	if got := apiCalls.Load(); got != 2 {
		t.Errorf("api calls = %d, want 2", got)
	}
}

func TestTradeDataEmptyPayload(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) { w.Write([]byte("ok")) })
	mux.HandleFunc("/market-data", func(w http.ResponseWriter, r *http.Request) { w.Write([]byte("ok")) })
	mux.HandleFunc(tradePath, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[]`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	if _, err := c.TradeData(context.Background()); err == nil {
		t.Fatal("expected error for empty payload")
	}
}
