package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/nsepulse/fiidii/models"
)

func sampleFlows() *models.DailyFlows {
	d := func(s string) decimal.NullDecimal {
		return decimal.NullDecimal{Decimal: decimal.RequireFromString(s), Valid: true}
	}
	return &models.DailyFlows{
		RunDate: time.Date(2025, time.October, 1, 0, 0, 0, 0, time.UTC),
		DIIBuy:  d("14383.93"), DIISell: d("12920.13"), DIINet: d("1463.80"),
		FIIBuy: d("9381.20"), FIISell: d("10926.28"), FIINet: d("-1545.08"),
	}
}

func TestSendDeliversFormattedMessage(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/bottok123/sendMessage" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	n := New("tok123", "42")
	n.SetEndpoint(srv.URL)
	if err := n.Send(context.Background(), sampleFlows()); err != nil {
		t.Fatalf("Send: %v", err)
	}

	if got["chat_id"] != "42" {
		t.Errorf("chat_id = %v", got["chat_id"])
	}
	if got["parse_mode"] != "HTML" {
		t.Errorf("parse_mode = %v", got["parse_mode"])
	}
	text, _ := got["text"].(string)
	if !strings.HasPrefix(text, "<pre>") || !strings.HasSuffix(text, "</pre>") {
		t.Errorf("text not wrapped in pre: %q", text)
	}
	if !strings.Contains(text, "01-Oct-2025") {
		t.Errorf("text missing run date: %q", text)
	}
	if !strings.Contains(text, "DII: Buy 14383.93 | Sell 12920.13 | Net 1463.80") {
		t.Errorf("text missing DII line: %q", text)
	}
}

func TestDeliverAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"ok":false,"description":"chat not found"}`))
	}))
	defer srv.Close()

	n := New("tok", "42")
	n.SetEndpoint(srv.URL)
	err := n.deliver(context.Background(), "x")
	if err == nil || !strings.Contains(err.Error(), "chat not found") {
		t.Fatalf("err = %v, want description surfaced", err)
	}
}

func TestFormatFlowsNullValues(t *testing.T) {
	f := sampleFlows()
	f.FIINet = decimal.NullDecimal{}
	text := FormatFlows(f)
	if !strings.Contains(text, "Net —") {
		t.Errorf("null net not rendered as placeholder: %q", text)
	}
}
