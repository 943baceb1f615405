package services

import (
	"database/sql"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"

	"github.com/oggew2/Pengamannen-sub001/src/logger"
	"github.com/oggew2/Pengamannen-sub001/src/models"
	"github.com/oggew2/Pengamannen-sub001/src/parsers"
	"github.com/oggew2/Pengamannen-sub001/src/processors"
	"github.com/oggew2/Pengamannen-sub001/src/utils"
)

const (
	ckHoldings = "agg_holdings"
)

type importServiceImpl struct {
	db                   *sql.DB
	transactionProcessor *processors.TransactionProcessor
	reportCache          *cache.Cache
}

func NewImportService(db *sql.DB, transactionProcessor *processors.TransactionProcessor, reportCache *cache.Cache) ImportService {
	return &importServiceImpl{
		db:                   db,
		transactionProcessor: transactionProcessor,
		reportCache:          reportCache,
	}
}

// Preview parses and enriches an uploaded export and stages the result. It is
// a pure read: nothing is persisted, the preview lives only with the caller
// until Confirm sends the transaction list back.
func (s *importServiceImpl) Preview(fileReader io.Reader, source string) (*models.ImportPreview, error) {
	startTime := time.Now()

	parser, err := parsers.GetParser(source)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParsingFailed, err)
	}
	canonicalTxs, err := parser.Parse(fileReader)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParsingFailed, err)
	}

	txs := s.transactionProcessor.Process(canonicalTxs)

	committed, err := s.committedHashes()
	if err != nil {
		return nil, err
	}

	preview := &models.ImportPreview{
		Parsed:       len(txs),
		Unmatched:    []models.UnmatchedInstrument{},
		Transactions: txs,
	}
	for _, tx := range txs {
		if committed[tx.HashID] {
			preview.DuplicatesSkipped++
		} else {
			preview.New++
		}
		if tx.Ticker != "" {
			preview.Matched++
		} else {
			preview.Unmatched = append(preview.Unmatched, models.UnmatchedInstrument{
				Name: tx.Name,
				ISIN: tx.ISIN,
				Date: tx.Date,
			})
		}
	}
	preview.Positions = derivePositions(txs)

	if preview.New+preview.DuplicatesSkipped != preview.Parsed {
		// Should be impossible; every transaction is either new or a duplicate.
		logger.L.Error("Preview count invariant violated",
			"parsed", preview.Parsed, "new", preview.New, "duplicates", preview.DuplicatesSkipped)
	}

	logger.L.Info("Import preview built",
		"source", source, "parsed", preview.Parsed, "new", preview.New,
		"duplicates", preview.DuplicatesSkipped, "matched", preview.Matched,
		"duration", time.Since(startTime))
	return preview, nil
}

// Confirm commits a previewed transaction set. With MergeAddNew only
// previously unseen hashes are inserted and an all-duplicate set is rejected;
// with MergeReplace the stored history is superseded by the full set.
func (s *importServiceImpl) Confirm(txs []models.Transaction, mode models.MergeMode) (*models.ImportResult, error) {
	if !mode.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidMergeMode, mode)
	}

	toInsert := txs
	if mode == models.MergeAddNew {
		committed, err := s.committedHashes()
		if err != nil {
			return nil, err
		}
		toInsert = nil
		for _, tx := range txs {
			if !committed[tx.HashID] {
				toInsert = append(toInsert, tx)
			}
		}
		if len(toInsert) == 0 {
			return nil, ErrNothingToImport
		}
	}

	dbTx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("error beginning database transaction: %w", err)
	}
	defer dbTx.Rollback()

	if mode == models.MergeReplace {
		if _, err := dbTx.Exec(`DELETE FROM transactions`); err != nil {
			return nil, fmt.Errorf("error clearing transaction history for replace: %w", err)
		}
	}

	stmt, err := dbTx.Prepare(`INSERT OR IGNORE INTO transactions
		(date, source, ticker, name, isin, buy_sell, shares, price, price_sek,
		currency, fee, exchange_rate, amount, amount_sek, raw_line, hash_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return nil, fmt.Errorf("error preparing insert statement: %w", err)
	}
	defer stmt.Close()

	insertedCount := 0
	for _, tx := range toInsert {
		res, err := stmt.Exec(
			tx.Date, tx.Source, tx.Ticker, tx.Name, tx.ISIN, tx.BuySell,
			tx.Shares, tx.Price, tx.PriceSEK, tx.Currency, tx.Fee, tx.Rate,
			tx.Amount, tx.AmountSEK, tx.RawLine, tx.HashID,
		)
		if err != nil {
			return nil, fmt.Errorf("error inserting transaction %s: %w", tx.HashID, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			insertedCount++
		}
	}

	if err := dbTx.Commit(); err != nil {
		return nil, fmt.Errorf("error committing import: %w", err)
	}

	s.reportCache.Delete(ckHoldings)
	logger.L.Info("Import confirmed", "mode", mode, "imported", insertedCount)
	return &models.ImportResult{Imported: insertedCount}, nil
}

// SyncHoldings projects committed transaction history into the holdings
// table. Ambiguities (mixed trade currencies, oversold positions) come back
// as a non-fatal warning alongside the applied holdings.
func (s *importServiceImpl) SyncHoldings() (*models.SyncResult, error) {
	txs, err := s.loadCommittedTransactions()
	if err != nil {
		return nil, err
	}

	positions := derivePositions(txs)

	dbTx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("error beginning database transaction: %w", err)
	}
	defer dbTx.Rollback()

	if _, err := dbTx.Exec(`DELETE FROM holdings`); err != nil {
		return nil, fmt.Errorf("error clearing holdings: %w", err)
	}

	stmt, err := dbTx.Prepare(`INSERT INTO holdings
		(ticker, isin, name, shares, avg_cost, avg_cost_sek, total_cost_sek,
		fees_sek, currency, exchange_rate, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return nil, fmt.Errorf("error preparing holdings insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC().Format(time.RFC3339)
	var warnings []string
	result := &models.SyncResult{Holdings: []models.Holding{}}
	for _, pos := range positions {
		if pos.Warning != "" {
			warnings = append(warnings, fmt.Sprintf("%s: %s", pos.Ticker, pos.Warning))
		}
		if _, err := stmt.Exec(
			pos.Ticker, pos.ISIN, pos.Name, pos.Shares, pos.AvgCost,
			pos.AvgCostSEK, pos.TotalCostSEK, pos.FeesSEK, pos.Currency,
			pos.Rate, now,
		); err != nil {
			return nil, fmt.Errorf("error inserting holding %s: %w", pos.Ticker, err)
		}
		result.Holdings = append(result.Holdings, models.Holding{
			Ticker:       pos.Ticker,
			Name:         pos.Name,
			ISIN:         pos.ISIN,
			Shares:       pos.Shares,
			AvgCost:      pos.AvgCost,
			AvgCostSEK:   pos.AvgCostSEK,
			TotalCostSEK: pos.TotalCostSEK,
			FeesSEK:      pos.FeesSEK,
			Currency:     pos.Currency,
			Rate:         pos.Rate,
			UpdatedAt:    now,
		})
	}

	if err := dbTx.Commit(); err != nil {
		return nil, fmt.Errorf("error committing holdings sync: %w", err)
	}

	result.Warning = strings.Join(warnings, "; ")
	s.reportCache.Delete(ckHoldings)
	logger.L.Info("Holdings synced", "holdings", len(result.Holdings), "warning", result.Warning)
	return result, nil
}

// GetHoldings returns the current holdings snapshot, cached between syncs.
func (s *importServiceImpl) GetHoldings() ([]models.Holding, error) {
	if cached, found := s.reportCache.Get(ckHoldings); found {
		return cached.([]models.Holding), nil
	}

	rows, err := s.db.Query(`SELECT ticker, isin, name, shares, avg_cost,
		avg_cost_sek, total_cost_sek, fees_sek, currency, exchange_rate, updated_at
		FROM holdings ORDER BY ticker`)
	if err != nil {
		return nil, fmt.Errorf("error querying holdings: %w", err)
	}
	defer rows.Close()

	holdings := []models.Holding{}
	for rows.Next() {
		var h models.Holding
		if err := rows.Scan(&h.Ticker, &h.ISIN, &h.Name, &h.Shares, &h.AvgCost,
			&h.AvgCostSEK, &h.TotalCostSEK, &h.FeesSEK, &h.Currency, &h.Rate,
			&h.UpdatedAt); err != nil {
			return nil, fmt.Errorf("error scanning holding: %w", err)
		}
		holdings = append(holdings, h)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	s.reportCache.Set(ckHoldings, holdings, cache.DefaultExpiration)
	return holdings, nil
}

// committedHashes loads the content hashes of all committed transactions.
func (s *importServiceImpl) committedHashes() (map[string]bool, error) {
	rows, err := s.db.Query(`SELECT hash_id FROM transactions`)
	if err != nil {
		return nil, fmt.Errorf("error querying committed hashes: %w", err)
	}
	defer rows.Close()

	hashes := make(map[string]bool)
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, fmt.Errorf("error scanning hash: %w", err)
		}
		hashes[h] = true
	}
	return hashes, rows.Err()
}

func (s *importServiceImpl) loadCommittedTransactions() ([]models.Transaction, error) {
	rows, err := s.db.Query(`SELECT id, date, source, ticker, name, isin,
		buy_sell, shares, price, price_sek, currency, fee, exchange_rate,
		amount, amount_sek, raw_line, hash_id
		FROM transactions ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("error querying transactions: %w", err)
	}
	defer rows.Close()

	var txs []models.Transaction
	for rows.Next() {
		var tx models.Transaction
		if err := rows.Scan(&tx.ID, &tx.Date, &tx.Source, &tx.Ticker, &tx.Name,
			&tx.ISIN, &tx.BuySell, &tx.Shares, &tx.Price, &tx.PriceSEK,
			&tx.Currency, &tx.Fee, &tx.Rate, &tx.Amount, &tx.AmountSEK,
			&tx.RawLine, &tx.HashID); err != nil {
			return nil, fmt.Errorf("error scanning transaction: %w", err)
		}
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}

// positionState accumulates one security's running position while replaying
// its trades in order.
type positionState struct {
	ticker        string
	name          string
	isin          string
	currency      string
	rate          float64
	shares        decimal.Decimal
	totalCost     decimal.Decimal // original currency, excl. fees
	totalCostSEK  decimal.Decimal
	feesSEK       decimal.Decimal
	mixedCurrency bool
	oversold      bool
}

// derivePositions replays the transactions in order and produces the
// resulting position per security, average-cost method (genomsnittsmetoden):
// buys raise the average, sells release cost proportionally at the current
// average. Fully closed positions are dropped.
func derivePositions(txs []models.Transaction) []models.PreviewPosition {
	states := make(map[string]*positionState)
	var order []string

	for _, tx := range txs {
		key := tx.Ticker
		if key == "" {
			key = tx.ISIN
		}
		st, ok := states[key]
		if !ok {
			st = &positionState{
				ticker:   tx.Ticker,
				name:     tx.Name,
				isin:     tx.ISIN,
				currency: tx.Currency,
				rate:     tx.Rate,
			}
			if st.ticker == "" {
				st.ticker = tx.ISIN
			}
			states[key] = st
			order = append(order, key)
		}
		if tx.Currency != st.currency {
			st.mixedCurrency = true
		}
		st.rate = tx.Rate

		shares := decimal.NewFromFloat(tx.Shares)
		price := decimal.NewFromFloat(tx.Price)
		priceSEK := decimal.NewFromFloat(tx.PriceSEK)
		feeSEK := decimal.NewFromFloat(tx.Fee * tx.Rate)
		st.feesSEK = st.feesSEK.Add(feeSEK)

		switch tx.BuySell {
		case "BUY":
			st.shares = st.shares.Add(shares)
			st.totalCost = st.totalCost.Add(shares.Mul(price))
			st.totalCostSEK = st.totalCostSEK.Add(shares.Mul(priceSEK))
		case "SELL":
			if shares.GreaterThan(st.shares) {
				st.oversold = true
				shares = st.shares
			}
			if st.shares.IsPositive() {
				// Release cost at the running average
				fraction := shares.Div(st.shares)
				st.totalCost = st.totalCost.Sub(st.totalCost.Mul(fraction))
				st.totalCostSEK = st.totalCostSEK.Sub(st.totalCostSEK.Mul(fraction))
			}
			st.shares = st.shares.Sub(shares)
		}
	}

	var positions []models.PreviewPosition
	for _, key := range order {
		st := states[key]
		if st.shares.IsZero() {
			continue
		}
		pos := models.PreviewPosition{
			Ticker:       st.ticker,
			Name:         st.name,
			ISIN:         st.isin,
			Shares:       st.shares.InexactFloat64(),
			TotalCostSEK: utils.RoundFloat(st.totalCostSEK.InexactFloat64(), 2),
			FeesSEK:      utils.RoundFloat(st.feesSEK.InexactFloat64(), 2),
			Currency:     st.currency,
			Rate:         st.rate,
		}
		if st.shares.IsPositive() {
			pos.AvgCost = utils.RoundFloat(st.totalCost.Div(st.shares).InexactFloat64(), 4)
			pos.AvgCostSEK = utils.RoundFloat(st.totalCostSEK.Div(st.shares).InexactFloat64(), 4)
		}
		switch {
		case st.mixedCurrency:
			pos.Warning = "trades in multiple currencies, cost conversion may be ambiguous"
		case st.oversold:
			pos.Warning = "sell transactions exceed recorded holdings"
		}
		positions = append(positions, pos)
	}

	sort.SliceStable(positions, func(i, j int) bool { return positions[i].Ticker < positions[j].Ticker })
	return positions
}
