package utils

import (
	"encoding/json"
	"math"
	"net/http"

	"github.com/oggew2/Pengamannen-sub001/src/logger"
)

// SendJSONError writes an error payload in the shape the frontend contract
// expects: {"detail": "..."}.
func SendJSONError(w http.ResponseWriter, detail string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(map[string]string{"detail": detail}); err != nil {
		logger.L.Error("Failed to encode JSON error response", "error", err)
	}
}

// RoundFloat rounds a float to the given number of decimal places.
func RoundFloat(val float64, precision uint) float64 {
	ratio := math.Pow(10, float64(precision))
	return math.Round(val*ratio) / ratio
}
