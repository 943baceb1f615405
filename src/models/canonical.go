package models

import "time"

// CanonicalTransaction is the unified, intermediate representation of a
// brokerage transaction. Each parser populates as many of these fields as
// possible straight from the source file, including the signed amount.
type CanonicalTransaction struct {
	Source          string    `json:"source"`
	TransactionDate time.Time `json:"transaction_date"`
	ProductName     string    `json:"product_name"`
	ISIN            string    `json:"isin"`
	BuySell         string    `json:"buy_sell"` // "BUY" or "SELL"
	Shares          float64   `json:"shares"`
	Price           float64   `json:"price"` // per share, original currency
	Fee             float64   `json:"fee"`
	Currency        string    `json:"currency"`
	Amount          float64   `json:"amount"` // signed gross amount, original currency
	RawText         string    `json:"raw_text"`

	// Filled in by the processor.
	Ticker       string  `json:"ticker,omitempty"`
	ExchangeRate float64 `json:"exchange_rate"`
	PriceSEK     float64 `json:"price_sek"`
	AmountSEK    float64 `json:"amount_sek"`
	HashID       string  `json:"hash_id"`
}
