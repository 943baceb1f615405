package processors

import (
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oggew2/Pengamannen-sub001/src/database"
	"github.com/oggew2/Pengamannen-sub001/src/models"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, database.Migrate(db, ":memory:"))
	return db
}

func canonicalTx(raw string) models.CanonicalTransaction {
	return models.CanonicalTransaction{
		Source:          "avanza",
		TransactionDate: time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC),
		ProductName:     "Ericsson B",
		ISIN:            "SE0000108656",
		BuySell:         "BUY",
		Shares:          100,
		Price:           62.5,
		Fee:             19,
		Currency:        "SEK",
		Amount:          -6250,
		RawText:         raw,
	}
}

func TestProcessEnrichesAndMatches(t *testing.T) {
	p := NewTransactionProcessor(newTestDB(t))

	txs := p.Process([]models.CanonicalTransaction{canonicalTx("row-1")})
	require.Len(t, txs, 1)

	tx := txs[0]
	assert.Equal(t, "2024-05-10", tx.Date)
	assert.Equal(t, "ERIC B", tx.Ticker, "seeded instrument should match by ISIN")
	assert.Equal(t, 1.0, tx.Rate)
	assert.Equal(t, 62.5, tx.PriceSEK)
	assert.NotEmpty(t, tx.HashID)
}

func TestProcessAppliesExchangeRate(t *testing.T) {
	db := newTestDB(t)
	p := NewTransactionProcessor(db)

	usd := canonicalTx("row-usd")
	usd.ISIN = "US0378331005"
	usd.Currency = "USD"
	usd.Price = 180.25

	txs := p.Process([]models.CanonicalTransaction{usd})
	require.Len(t, txs, 1)
	assert.Equal(t, 10.50, txs[0].Rate, "seeded USD rate")
	assert.InDelta(t, 180.25*10.50, txs[0].PriceSEK, 0.001)
}

func TestProcessDefaultsMissingRateToOne(t *testing.T) {
	p := NewTransactionProcessor(newTestDB(t))

	tx := canonicalTx("row-chf")
	tx.Currency = "CHF" // not seeded

	txs := p.Process([]models.CanonicalTransaction{tx})
	require.Len(t, txs, 1)
	assert.Equal(t, 1.0, txs[0].Rate)
}

func TestProcessHashIsStableAndContentBound(t *testing.T) {
	p := NewTransactionProcessor(newTestDB(t))

	a := p.Process([]models.CanonicalTransaction{canonicalTx("row-1")})
	b := p.Process([]models.CanonicalTransaction{canonicalTx("row-1")})
	c := p.Process([]models.CanonicalTransaction{canonicalTx("row-2")})

	assert.Equal(t, a[0].HashID, b[0].HashID, "same source line, same hash")
	assert.NotEqual(t, a[0].HashID, c[0].HashID, "different source line, different hash")
}

func TestProcessLeavesUnknownInstrumentUnmatched(t *testing.T) {
	p := NewTransactionProcessor(newTestDB(t))

	tx := canonicalTx("row-x")
	tx.ISIN = "SE9999999999"

	txs := p.Process([]models.CanonicalTransaction{tx})
	require.Len(t, txs, 1)
	assert.Empty(t, txs[0].Ticker)
}

func TestProcessSanitizesProductName(t *testing.T) {
	p := NewTransactionProcessor(newTestDB(t))

	tx := canonicalTx("row-evil")
	tx.ProductName = "<script>alert(1)</script>Ericsson B"

	txs := p.Process([]models.CanonicalTransaction{tx})
	require.Len(t, txs, 1)
	assert.NotContains(t, txs[0].Name, "<script>")
}

func TestSetExchangeRateUpserts(t *testing.T) {
	rates := NewRateStore(newTestDB(t))

	require.NoError(t, rates.SetExchangeRate("GBP", 13.2))
	rate, err := rates.GetExchangeRate("GBP")
	require.NoError(t, err)
	assert.Equal(t, 13.2, rate)

	require.NoError(t, rates.SetExchangeRate("GBP", 13.5))
	rate, err = rates.GetExchangeRate("GBP")
	require.NoError(t, err)
	assert.Equal(t, 13.5, rate)
}

func TestRateCacheIsScopedToItsDatabase(t *testing.T) {
	first := NewRateStore(newTestDB(t))
	second := NewRateStore(newTestDB(t))

	require.NoError(t, first.SetExchangeRate("GBP", 13.2))

	// GBP is not seeded, so the second store must miss against its own
	// database instead of serving the rate cached by the first.
	_, err := second.GetExchangeRate("GBP")
	require.Error(t, err)

	// Seeded rates are still answered per store.
	rate, err := second.GetExchangeRate("USD")
	require.NoError(t, err)
	assert.Equal(t, 10.50, rate)
}
