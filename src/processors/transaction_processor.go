package processors

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"

	"github.com/oggew2/Pengamannen-sub001/src/logger"
	"github.com/oggew2/Pengamannen-sub001/src/models"
	"github.com/oggew2/Pengamannen-sub001/src/security/validation"
)

// TransactionProcessor enriches canonical transactions with data that is not
// source-specific: the SEK exchange rate, the instrument match and the
// content hash used for deduplication.
type TransactionProcessor struct {
	db    *sql.DB
	rates *RateStore
}

func NewTransactionProcessor(db *sql.DB) *TransactionProcessor {
	return &TransactionProcessor{db: db, rates: NewRateStore(db)}
}

// Process iterates through canonical transactions and enriches them into the
// final Transaction shape. Rows are never dropped here; a missing rate or
// instrument match degrades the row, it does not lose it.
func (p *TransactionProcessor) Process(txs []models.CanonicalTransaction) []models.Transaction {
	tickerByISIN := p.loadInstrumentIndex()

	var processed []models.Transaction
	for _, tx := range txs {
		rate, err := p.rates.GetExchangeRate(tx.Currency)
		if err != nil {
			logger.L.Warn("Could not find exchange rate, defaulting to 1.0", "currency", tx.Currency, "date", tx.TransactionDate, "error", err)
			rate = 1.0
		}
		tx.ExchangeRate = rate
		tx.PriceSEK = tx.Price * rate
		tx.AmountSEK = tx.Amount * rate
		tx.Ticker = tickerByISIN[tx.ISIN]
		tx.HashID = generateHash(tx)

		name := validation.SanitizeText(tx.ProductName)
		name = validation.StripUnprintable(name)
		name = validation.SanitizeForFormulaInjection(name)

		processed = append(processed, models.Transaction{
			Date:      tx.TransactionDate.Format("2006-01-02"),
			Source:    tx.Source,
			Ticker:    tx.Ticker,
			Name:      name,
			ISIN:      tx.ISIN,
			BuySell:   tx.BuySell,
			Shares:    tx.Shares,
			Price:     tx.Price,
			PriceSEK:  tx.PriceSEK,
			Currency:  tx.Currency,
			Fee:       tx.Fee,
			Rate:      tx.ExchangeRate,
			Amount:    tx.Amount,
			AmountSEK: tx.AmountSEK,
			RawLine:   tx.RawText,
			HashID:    tx.HashID,
		})
	}
	return processed
}

// loadInstrumentIndex reads the known-instruments table into an ISIN->ticker
// map for the duration of one Process call.
func (p *TransactionProcessor) loadInstrumentIndex() map[string]string {
	index := make(map[string]string)
	rows, err := p.db.Query(`SELECT isin, ticker FROM instruments`)
	if err != nil {
		logger.L.Error("Failed to load instrument index", "error", err)
		return index
	}
	defer rows.Close()
	for rows.Next() {
		var isin, ticker string
		if err := rows.Scan(&isin, &ticker); err != nil {
			logger.L.Error("Failed to scan instrument row", "error", err)
			continue
		}
		index[isin] = ticker
	}
	return index
}

// generateHash creates the deduplication key for the transaction based on the
// raw source line. Re-importing the same export therefore always produces the
// same hashes.
func generateHash(tx models.CanonicalTransaction) string {
	hash := sha256.Sum256([]byte(tx.RawText))
	return hex.EncodeToString(hash[:])
}
