package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// DailyFlows is the normalized record persisted per run date: institutional
// buy/sell/net values in ₹ Crores for both investor categories.
// Values are nullable because the source occasionally publishes a row with
// a blank cell while the page is still settling.
type DailyFlows struct {
	RunDate time.Time

	DIIBuy  decimal.NullDecimal
	DIISell decimal.NullDecimal
	DIINet  decimal.NullDecimal

	FIIBuy  decimal.NullDecimal
	FIISell decimal.NullDecimal
	FIINet  decimal.NullDecimal
}

// TradeEntry is one object from the NSE fiidiiTradeNse JSON endpoint,
// the direct-API alternative to scraping the rendered report table.
type TradeEntry struct {
	Category  string `json:"category"`
	Date      string `json:"date"`
	BuyValue  string `json:"buyValue"`
	SellValue string `json:"sellValue"`
	NetValue  string `json:"netValue"`
}
