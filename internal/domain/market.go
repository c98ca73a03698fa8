package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Bar is one OHLCV candle from the market-data venue
type Bar struct {
	Time   time.Time       `json:"t"`
	Open   decimal.Decimal `json:"o"`
	High   decimal.Decimal `json:"h"`
	Low    decimal.Decimal `json:"l"`
	Close  decimal.Decimal `json:"c"`
	Volume int64           `json:"v"`
}

// Quote is a price observation pushed to live subscribers
type Quote struct {
	Symbol string          `json:"symbol"`
	Price  decimal.Decimal `json:"price"`
	Time   time.Time       `json:"time"`
}
