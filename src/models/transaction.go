package models

// Transaction is a fully processed transaction as held in an ImportPreview
// and, once confirmed, in the transactions table. The HashID is a content
// hash over the raw source line and is the deduplication key.
type Transaction struct {
	ID        int64   `json:"id,omitempty"`
	Date      string  `json:"date"` // YYYY-MM-DD
	Source    string  `json:"source"`
	Ticker    string  `json:"ticker,omitempty"`
	Name      string  `json:"name"`
	ISIN      string  `json:"isin"`
	BuySell   string  `json:"buy_sell"`
	Shares    float64 `json:"shares"`
	Price     float64 `json:"price"`     // per share, original currency
	PriceSEK  float64 `json:"price_sek"` // per share, reporting currency
	Currency  string  `json:"currency"`
	Fee       float64 `json:"fee"`
	Rate      float64 `json:"exchange_rate"`
	Amount    float64 `json:"amount"`
	AmountSEK float64 `json:"amount_sek"`
	RawLine   string  `json:"raw_line"`
	HashID    string  `json:"hash_id"`
}

// MergeMode governs how a confirmed import is committed against existing
// history.
type MergeMode string

const (
	// MergeAddNew commits only transactions whose content hash has not been
	// seen before.
	MergeAddNew MergeMode = "add_new"
	// MergeReplace supersedes the entire stored history with the parsed set.
	MergeReplace MergeMode = "replace"
)

// Valid reports whether the mode is one of the two supported policies.
func (m MergeMode) Valid() bool {
	return m == MergeAddNew || m == MergeReplace
}

// ConfirmRequest is the body of POST /api/import/confirm.
type ConfirmRequest struct {
	Transactions []Transaction `json:"transactions"`
	Mode         MergeMode     `json:"mode"`
}

// ImportResult is the terminal state of one import cycle.
type ImportResult struct {
	Imported int `json:"imported"`
}
