package parsers

import (
	"fmt"
	"io"
	"strings"

	"github.com/oggew2/Pengamannen-sub001/src/models"
	"github.com/oggew2/Pengamannen-sub001/src/parsers/avanza"
)

// Parser converts a broker transaction export into canonical transactions.
type Parser interface {
	Parse(file io.Reader) ([]models.CanonicalTransaction, error)
}

// GetParser returns the parser registered for the given broker source.
func GetParser(source string) (Parser, error) {
	switch strings.ToLower(strings.TrimSpace(source)) {
	case "avanza":
		return avanza.NewParser(), nil
	default:
		return nil, fmt.Errorf("unsupported broker source: %q", source)
	}
}
