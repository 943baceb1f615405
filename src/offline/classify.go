package offline

import "strings"

// Strategy is the caching decision for one request.
type Strategy int

const (
	// CacheFirst serves a stored response when one exists and only then
	// touches the network. Misses are fetched but not stored; the static
	// bucket is populated at install time only.
	CacheFirst Strategy = iota
	// NetworkFirst prefers a live response, storing a copy on success and
	// falling back to the stored copy on failure.
	NetworkFirst
)

func (s Strategy) String() string {
	if s == NetworkFirst {
		return "network-first"
	}
	return "cache-first"
}

// APIPrefix marks requests that carry live dashboard data.
const APIPrefix = "/api/"

// networkFirstFragments is the fixed allow-list of route fragments that get
// network-first treatment even outside the API prefix: the four strategy
// listings and the default portfolio route.
var networkFirstFragments = []string{
	"strategies/sammansatt_momentum",
	"strategies/trendande_varde",
	"strategies/trendande_utdelning",
	"strategies/trendande_kvalitet",
	"portfolio/default",
}

// Classify maps a request path to its caching strategy. It is a pure
// function; the controller applies whatever it returns.
func Classify(path string) Strategy {
	if strings.HasPrefix(path, APIPrefix) {
		return NetworkFirst
	}
	for _, fragment := range networkFirstFragments {
		if strings.Contains(path, fragment) {
			return NetworkFirst
		}
	}
	return CacheFirst
}
