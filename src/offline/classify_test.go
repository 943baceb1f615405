package offline

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		path string
		want Strategy
	}{
		{"api prefix", "/api/holdings", NetworkFirst},
		{"api import", "/api/import/confirm", NetworkFirst},
		{"momentum strategy", "/strategies/sammansatt_momentum", NetworkFirst},
		{"value strategy", "/strategies/trendande_varde", NetworkFirst},
		{"dividend strategy", "/strategies/trendande_utdelning", NetworkFirst},
		{"quality strategy", "/strategies/trendande_kvalitet", NetworkFirst},
		{"strategy under extra prefix", "/v2/strategies/trendande_varde", NetworkFirst},
		{"default portfolio", "/portfolio/default", NetworkFirst},
		{"root document", "/", CacheFirst},
		{"entry html", "/index.html", CacheFirst},
		{"static asset", "/assets/app.js", CacheFirst},
		{"unknown strategy route", "/strategies/egen_strategi", CacheFirst},
		{"other portfolio", "/portfolio/pension", CacheFirst},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.path), "path %s", tt.path)
		})
	}
}
