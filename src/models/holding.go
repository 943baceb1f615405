package models

// Holding is a live position in the user's tracked portfolio, projected from
// committed transaction history by the sync-to-holdings operation.
type Holding struct {
	Ticker       string  `json:"ticker"`
	Name         string  `json:"name"`
	ISIN         string  `json:"isin"`
	Shares       float64 `json:"shares"`
	AvgCost      float64 `json:"avg_cost"`
	AvgCostSEK   float64 `json:"avg_cost_sek"`
	TotalCostSEK float64 `json:"total_cost_sek"`
	FeesSEK      float64 `json:"fees_sek"`
	Currency     string  `json:"currency"`
	Rate         float64 `json:"exchange_rate"`
	UpdatedAt    string  `json:"updated_at,omitempty"`
}

// SyncResult is returned by POST /api/import/sync. Warning is advisory; a
// non-empty value never blocks the holdings from being applied.
type SyncResult struct {
	Holdings []Holding `json:"holdings"`
	Warning  string    `json:"warning,omitempty"`
}
