package services

import (
	"database/sql"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oggew2/Pengamannen-sub001/src/database"
	"github.com/oggew2/Pengamannen-sub001/src/models"
	"github.com/oggew2/Pengamannen-sub001/src/processors"
)

const avanzaHeader = "Datum;Konto;Typ av transaktion;Värdepapper/beskrivning;Antal;Kurs;Belopp;Courtage;Valuta;ISIN"

func newTestService(t *testing.T) (ImportService, *sql.DB) {
	t.Helper()
	db, err := database.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, database.Migrate(db, ":memory:"))

	reportCache := cache.New(time.Minute, time.Minute)
	svc := NewImportService(db, processors.NewTransactionProcessor(db), reportCache)
	return svc, db
}

// tenBuysCSV builds an export with ten distinct buy rows, newest-first like a
// real Avanza file.
func tenBuysCSV() string {
	lines := []string{avanzaHeader}
	for i := 10; i >= 1; i-- {
		lines = append(lines, fmt.Sprintf(
			"2024-05-%02d;ISK;Köp;Ericsson B;%d;62,50;-%d,00;19,00;SEK;SE0000108656", i, i*10, i*625))
	}
	return strings.Join(lines, "\n")
}

func TestPreviewFreshFile(t *testing.T) {
	svc, _ := newTestService(t)

	// Scenario A, first half: ten transactions, none seen before.
	preview, err := svc.Preview(strings.NewReader(tenBuysCSV()), "avanza")
	require.NoError(t, err)

	assert.Equal(t, 10, preview.Parsed)
	assert.Equal(t, 10, preview.New)
	assert.Equal(t, 0, preview.DuplicatesSkipped)
	assert.Equal(t, preview.Parsed, preview.New+preview.DuplicatesSkipped)
	assert.Equal(t, 10, preview.Matched, "seeded Ericsson ISIN matches")
	assert.Empty(t, preview.Unmatched)
	require.Len(t, preview.Positions, 1)
	assert.Equal(t, "ERIC B", preview.Positions[0].Ticker)
}

func TestPreviewIsNotPersisted(t *testing.T) {
	svc, db := newTestService(t)

	_, err := svc.Preview(strings.NewReader(tenBuysCSV()), "avanza")
	require.NoError(t, err)

	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM transactions`).Scan(&count))
	assert.Zero(t, count, "preview must not write history")
}

func TestConfirmAddNewThenReimport(t *testing.T) {
	svc, _ := newTestService(t)

	// Scenario A: confirm a fresh file with add_new.
	preview, err := svc.Preview(strings.NewReader(tenBuysCSV()), "avanza")
	require.NoError(t, err)
	result, err := svc.Confirm(preview.Transactions, models.MergeAddNew)
	require.NoError(t, err)
	assert.Equal(t, 10, result.Imported)

	// Scenario B: the identical file previews as all duplicates...
	preview2, err := svc.Preview(strings.NewReader(tenBuysCSV()), "avanza")
	require.NoError(t, err)
	assert.Equal(t, 10, preview2.Parsed)
	assert.Equal(t, 0, preview2.New)
	assert.Equal(t, 10, preview2.DuplicatesSkipped)

	// ...add_new has nothing to commit and is rejected...
	_, err = svc.Confirm(preview2.Transactions, models.MergeAddNew)
	require.ErrorIs(t, err, ErrNothingToImport)

	// ...while replace supersedes the history with the full set.
	result, err = svc.Confirm(preview2.Transactions, models.MergeReplace)
	require.NoError(t, err)
	assert.Equal(t, 10, result.Imported)
}

func TestConfirmAddNewCommitsOnlyUnseen(t *testing.T) {
	svc, db := newTestService(t)

	preview, err := svc.Preview(strings.NewReader(tenBuysCSV()), "avanza")
	require.NoError(t, err)

	// Commit half first, then the whole set with add_new.
	_, err = svc.Confirm(preview.Transactions[:5], models.MergeAddNew)
	require.NoError(t, err)

	preview2, err := svc.Preview(strings.NewReader(tenBuysCSV()), "avanza")
	require.NoError(t, err)
	assert.Equal(t, 5, preview2.New)
	assert.Equal(t, 5, preview2.DuplicatesSkipped)
	assert.Equal(t, preview2.Parsed, preview2.New+preview2.DuplicatesSkipped)

	result, err := svc.Confirm(preview2.Transactions, models.MergeAddNew)
	require.NoError(t, err)
	assert.Equal(t, 5, result.Imported)

	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM transactions`).Scan(&count))
	assert.Equal(t, 10, count)
}

func TestConfirmRejectsInvalidMode(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.Confirm([]models.Transaction{{HashID: "h"}}, models.MergeMode("merge_all"))
	require.ErrorIs(t, err, ErrInvalidMergeMode)
}

func TestPreviewUnmatchedInstruments(t *testing.T) {
	svc, _ := newTestService(t)

	csvData := strings.Join([]string{
		avanzaHeader,
		"2024-05-10;ISK;Köp;Okänt Bolag;10;50,00;-500,00;9,00;SEK;SE1111111111",
	}, "\n")

	preview, err := svc.Preview(strings.NewReader(csvData), "avanza")
	require.NoError(t, err)
	assert.Equal(t, 0, preview.Matched)
	require.Len(t, preview.Unmatched, 1)
	assert.Equal(t, "SE1111111111", preview.Unmatched[0].ISIN)
	assert.Equal(t, "2024-05-10", preview.Unmatched[0].Date)
}

func TestPreviewPositionsAverageCost(t *testing.T) {
	svc, _ := newTestService(t)

	// Two buys at different prices, then a partial sell. Average cost method:
	// 100@60 + 100@70 -> avg 65; selling 50 releases cost at the average.
	csvData := strings.Join([]string{
		avanzaHeader,
		"2024-05-12;ISK;Sälj;Ericsson B;-50;80,00;4000,00;19,00;SEK;SE0000108656",
		"2024-05-11;ISK;Köp;Ericsson B;100;70,00;-7000,00;19,00;SEK;SE0000108656",
		"2024-05-10;ISK;Köp;Ericsson B;100;60,00;-6000,00;19,00;SEK;SE0000108656",
	}, "\n")

	preview, err := svc.Preview(strings.NewReader(csvData), "avanza")
	require.NoError(t, err)
	require.Len(t, preview.Positions, 1)

	pos := preview.Positions[0]
	assert.Equal(t, 150.0, pos.Shares)
	assert.InDelta(t, 65.0, pos.AvgCost, 0.001)
	assert.InDelta(t, 65.0*150, pos.TotalCostSEK, 0.01)
	assert.InDelta(t, 57.0, pos.FeesSEK, 0.001)
	assert.Empty(t, pos.Warning)
}

func TestPreviewClosedPositionIsDropped(t *testing.T) {
	svc, _ := newTestService(t)

	csvData := strings.Join([]string{
		avanzaHeader,
		"2024-05-12;ISK;Sälj;Ericsson B;-100;80,00;8000,00;19,00;SEK;SE0000108656",
		"2024-05-10;ISK;Köp;Ericsson B;100;60,00;-6000,00;19,00;SEK;SE0000108656",
	}, "\n")

	preview, err := svc.Preview(strings.NewReader(csvData), "avanza")
	require.NoError(t, err)
	assert.Empty(t, preview.Positions)
}

func TestPreviewOversoldWarning(t *testing.T) {
	svc, _ := newTestService(t)

	csvData := strings.Join([]string{
		avanzaHeader,
		"2024-05-12;ISK;Sälj;Ericsson B;-150;80,00;12000,00;19,00;SEK;SE0000108656",
		"2024-05-11;ISK;Köp;Ericsson B;200;60,00;-12000,00;19,00;SEK;SE0000108656",
		"2024-05-10;ISK;Sälj;Ericsson B;-50;80,00;4000,00;19,00;SEK;SE0000108656",
	}, "\n")

	preview, err := svc.Preview(strings.NewReader(csvData), "avanza")
	require.NoError(t, err)
	require.Len(t, preview.Positions, 1)
	assert.Contains(t, preview.Positions[0].Warning, "exceed")
}

func TestSyncHoldingsAppliesAndWarns(t *testing.T) {
	svc, _ := newTestService(t)

	// Apple traded in both USD and SEK: the position syncs, with an advisory
	// currency warning that must not block it.
	csvData := strings.Join([]string{
		avanzaHeader,
		"2024-05-11;Depå;Köp;Apple Inc;10;1900,00;-19000,00;39,00;SEK;US0378331005",
		"2024-05-10;Depå;Köp;Apple Inc;10;180,00;-1800,00;3,50;USD;US0378331005",
	}, "\n")

	preview, err := svc.Preview(strings.NewReader(csvData), "avanza")
	require.NoError(t, err)
	_, err = svc.Confirm(preview.Transactions, models.MergeAddNew)
	require.NoError(t, err)

	result, err := svc.SyncHoldings()
	require.NoError(t, err)
	require.Len(t, result.Holdings, 1)
	assert.Equal(t, "AAPL", result.Holdings[0].Ticker)
	assert.Equal(t, 20.0, result.Holdings[0].Shares)
	assert.NotEmpty(t, result.Warning, "mixed currencies warn without blocking")

	holdings, err := svc.GetHoldings()
	require.NoError(t, err)
	require.Len(t, holdings, 1)
	assert.Equal(t, result.Holdings[0].Shares, holdings[0].Shares)
}

func TestSyncHoldingsEmptyHistory(t *testing.T) {
	svc, _ := newTestService(t)

	result, err := svc.SyncHoldings()
	require.NoError(t, err)
	assert.Empty(t, result.Holdings)
	assert.Empty(t, result.Warning)
}

func TestPreviewRejectsUnknownSource(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.Preview(strings.NewReader("x"), "nordnet")
	require.ErrorIs(t, err, ErrParsingFailed)
}
