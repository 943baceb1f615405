package services

import (
	"errors"
	"io"

	"github.com/oggew2/Pengamannen-sub001/src/models"
)

// Common service errors.
var (
	ErrParsingFailed    = errors.New("csv parsing failed")
	ErrNothingToImport  = errors.New("nothing to import: every parsed transaction is already committed")
	ErrInvalidMergeMode = errors.New("invalid merge mode")
)

// ImportService drives the server side of the import contract: parse a
// brokerage export into a preview, commit a confirmed transaction set, and
// project committed history into live holdings.
type ImportService interface {
	Preview(fileReader io.Reader, source string) (*models.ImportPreview, error)
	Confirm(txs []models.Transaction, mode models.MergeMode) (*models.ImportResult, error)
	SyncHoldings() (*models.SyncResult, error)
	GetHoldings() ([]models.Holding, error)
}
