package models

// UnmatchedInstrument describes a parsed transaction whose security could not
// be matched to a known instrument.
type UnmatchedInstrument struct {
	Name string `json:"name"`
	ISIN string `json:"isin"`
	Date string `json:"date"`
}

// PreviewPosition is the resulting holding per ticker if the parsed set were
// committed. Derived, never persisted.
type PreviewPosition struct {
	Ticker       string  `json:"ticker"`
	Name         string  `json:"name"`
	ISIN         string  `json:"isin"`
	Shares       float64 `json:"shares"`
	AvgCost      float64 `json:"avg_cost"`     // original currency
	AvgCostSEK   float64 `json:"avg_cost_sek"` // reporting currency
	TotalCostSEK float64 `json:"total_cost_sek"`
	FeesSEK      float64 `json:"fees_sek"`
	Currency     string  `json:"currency"`
	Rate         float64 `json:"exchange_rate"`
	Warning      string  `json:"warning,omitempty"`
}

// ImportPreview is the staged, unpersisted result of parsing an uploaded
// transaction file. It lives only in client memory between upload and
// confirm; on confirm only the Transactions list travels back.
//
// Invariant: New + DuplicatesSkipped == Parsed.
type ImportPreview struct {
	Parsed            int                   `json:"parsed"`
	New               int                   `json:"new"`
	DuplicatesSkipped int                   `json:"duplicates_skipped"`
	Matched           int                   `json:"matched"`
	Unmatched         []UnmatchedInstrument `json:"unmatched"`
	Positions         []PreviewPosition     `json:"positions"`
	Transactions      []Transaction         `json:"transactions"`
}
