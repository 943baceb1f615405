package processors

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"
)

// RateStore reads SEK exchange rates from one database with a read-through
// cache in front. Rates change slowly relative to an import session; caching
// them keeps a large upload from hitting the database once per row. The cache
// belongs to the store, so rates set against one database are never served
// for lookups against another.
type RateStore struct {
	db    *sql.DB
	cache *cache.Cache
}

func NewRateStore(db *sql.DB) *RateStore {
	return &RateStore{
		db:    db,
		cache: cache.New(24*time.Hour, 48*time.Hour),
	}
}

// GetExchangeRate returns the SEK rate for one unit of the given currency,
// from the exchange_rates table with the cache in front.
func (r *RateStore) GetExchangeRate(currency string) (float64, error) {
	if currency == "SEK" || currency == "" {
		return 1.0, nil
	}

	cacheKey := fmt.Sprintf("rate-%s", currency)
	if rate, found := r.cache.Get(cacheKey); found {
		return rate.(float64), nil
	}

	var rate float64
	err := r.db.QueryRow(`SELECT rate_sek FROM exchange_rates WHERE currency = ?`, currency).Scan(&rate)
	if err != nil {
		if err == sql.ErrNoRows {
			return 0, fmt.Errorf("no exchange rate stored for currency %s", currency)
		}
		return 0, fmt.Errorf("exchange rate lookup for %s: %w", currency, err)
	}

	r.cache.Set(cacheKey, rate, cache.DefaultExpiration)
	return rate, nil
}

// SetExchangeRate upserts a rate, used when fresh rates arrive from the
// upstream API. The cache entry is replaced so the new rate takes effect
// immediately.
func (r *RateStore) SetExchangeRate(currency string, rateSEK float64) error {
	_, err := r.db.Exec(
		`INSERT INTO exchange_rates (currency, rate_sek) VALUES (?, ?)
		 ON CONFLICT(currency) DO UPDATE SET rate_sek = excluded.rate_sek`,
		currency, rateSEK,
	)
	if err != nil {
		return fmt.Errorf("store exchange rate for %s: %w", currency, err)
	}
	r.cache.Set(fmt.Sprintf("rate-%s", currency), rateSEK, cache.DefaultExpiration)
	return nil
}
