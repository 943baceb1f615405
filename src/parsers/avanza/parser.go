package avanza

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/oggew2/Pengamannen-sub001/src/logger"
	"github.com/oggew2/Pengamannen-sub001/src/models"
)

// rawTransaction holds the direct string values from a single row of an
// Avanza "transaktioner" CSV export.
type rawTransaction struct {
	Date, Account, Type, Product, Quantity, Price, Amount, Fee, Currency, ISIN string
	RawLine                                                                    string
}

// AvanzaParser implements the parsers.Parser interface for Avanza exports.
type AvanzaParser struct{}

// NewParser creates a new instance of the AvanzaParser.
func NewParser() *AvanzaParser {
	return &AvanzaParser{}
}

// normalizeDecimalString turns Avanza's Swedish number formatting
// ("1 234,56", "-") into something strconv can parse.
func normalizeDecimalString(s string) string {
	cleaned := strings.TrimSpace(s)
	cleaned = strings.Trim(cleaned, "\"")
	if cleaned == "-" || cleaned == "" {
		return "0"
	}
	// Thousands separators: regular and non-breaking spaces
	cleaned = strings.ReplaceAll(cleaned, " ", "")
	cleaned = strings.ReplaceAll(cleaned, " ", "")
	cleaned = strings.ReplaceAll(cleaned, ",", ".")
	return cleaned
}

// Parse reads an Avanza CSV export and converts its rows into a slice of
// CanonicalTransaction. Only buy and sell rows are kept; dividends, deposits
// and other cash events are not part of the import contract.
func (p *AvanzaParser) Parse(file io.Reader) ([]models.CanonicalTransaction, error) {
	reader := csv.NewReader(file)
	reader.Comma = ';'
	reader.FieldsPerRecord = -1 // Avanza has added columns over the years

	// Read and discard the header row
	if _, err := reader.Read(); err != nil {
		return nil, fmt.Errorf("avanza parser: failed to read CSV header: %w", err)
	}

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("avanza parser: failed to read all CSV records: %w", err)
	}

	var rawTxs []rawTransaction
	for _, record := range records {
		if len(record) >= 10 {
			rawTxs = append(rawTxs, rawTransaction{
				Date:     record[0],
				Account:  record[1],
				Type:     record[2],
				Product:  record[3],
				Quantity: record[4],
				Price:    record[5],
				Amount:   record[6],
				Fee:      record[7],
				Currency: record[8],
				ISIN:     record[9],
				RawLine:  strings.Join(record, ";"),
			})
		}
	}

	// Avanza exports are newest-first. Reverse so the committed history is
	// chronological and insertion order matches the day's timeline.
	for i, j := 0, len(rawTxs)-1; i < j; i, j = i+1, j-1 {
		rawTxs[i], rawTxs[j] = rawTxs[j], rawTxs[i]
	}

	var canonicalTxs []models.CanonicalTransaction
	for _, raw := range rawTxs {
		date, err := time.Parse("2006-01-02", raw.Date)
		if err != nil {
			logger.L.Warn("Avanza parser: skipping row with invalid date", "date", raw.Date, "product", raw.Product)
			continue
		}

		buySell, ok := classifyTransactionType(raw.Type)
		if !ok {
			logger.L.Debug("Avanza parser: skipping non-trade row", "type", raw.Type, "product", raw.Product)
			continue
		}

		shares, _ := strconv.ParseFloat(normalizeDecimalString(raw.Quantity), 64)
		price, _ := strconv.ParseFloat(normalizeDecimalString(raw.Price), 64)
		amount, _ := strconv.ParseFloat(normalizeDecimalString(raw.Amount), 64)
		fee, _ := strconv.ParseFloat(normalizeDecimalString(raw.Fee), 64)

		// Avanza reports sold quantity as negative and buy amounts as
		// negative cash flow. Keep shares positive and let BuySell carry the
		// direction; Amount stays a signed cash flow.
		shares = math.Abs(shares)
		if shares == 0 || price == 0 {
			logger.L.Warn("Avanza parser: skipping trade without quantity or price", "product", raw.Product, "date", raw.Date)
			continue
		}

		currency := strings.ToUpper(strings.TrimSpace(raw.Currency))
		if currency == "" {
			currency = "SEK"
		}

		canonicalTxs = append(canonicalTxs, models.CanonicalTransaction{
			Source:          "avanza",
			TransactionDate: date,
			ProductName:     strings.TrimSpace(raw.Product),
			ISIN:            strings.ToUpper(strings.TrimSpace(raw.ISIN)),
			BuySell:         buySell,
			Shares:          shares,
			Price:           price,
			Fee:             math.Abs(fee),
			Currency:        currency,
			Amount:          amount,
			RawText:         raw.RawLine,
		})
	}

	return canonicalTxs, nil
}

// classifyTransactionType maps Avanza's "Typ av transaktion" values onto the
// canonical BUY/SELL direction. Anything else is not a trade.
func classifyTransactionType(txType string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(txType)) {
	case "köp", "kop", "buy":
		return "BUY", true
	case "sälj", "salj", "sell":
		return "SELL", true
	default:
		return "", false
	}
}
