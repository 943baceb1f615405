package offline

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oggew2/Pengamannen-sub001/src/database"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, database.Migrate(db, ":memory:"))
	return db
}

// newTestUpstream serves a tiny origin: static pages plus a strategy route,
// counting hits per path.
func newTestUpstream(t *testing.T) (*httptest.Server, *atomic.Int64) {
	t.Helper()
	var hits atomic.Int64
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		switch r.URL.Path {
		case "/", "/index.html":
			w.Header().Set("Content-Type", "text/html")
			fmt.Fprint(w, "<html>dashboard</html>")
		default:
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprintf(w, `{"route":%q,"hit":%d}`, r.URL.Path, hits.Load())
		}
	}))
	t.Cleanup(ts.Close)
	return ts, &hits
}

func installActive(t *testing.T, store *Store, upstream string, version string) (*Controller, *Switchboard) {
	t.Helper()
	sb := NewSwitchboard(nil)
	c := NewController(store, upstream, version, nil)
	require.NoError(t, c.Install(context.Background()))
	require.NoError(t, c.Activate(context.Background(), sb))
	require.Equal(t, StateActive, c.State())
	return c, sb
}

func TestInstallPopulatesStaticBucket(t *testing.T) {
	store := NewStore(newTestDB(t))
	ts, _ := newTestUpstream(t)

	c, _ := installActive(t, store, ts.URL, "v1")

	for _, path := range StaticAssets {
		entry, err := store.Get(c.StaticBucket(), ts.URL+path)
		require.NoError(t, err, "static asset %s should be installed", path)
		assert.Equal(t, http.StatusOK, entry.Status)
		assert.Equal(t, "<html>dashboard</html>", string(entry.Body))
	}
}

func TestInstallFailureLeavesControllerInactive(t *testing.T) {
	store := NewStore(newTestDB(t))
	ts, _ := newTestUpstream(t)
	ts.Close() // origin unreachable

	sb := NewSwitchboard(nil)
	c := NewController(store, ts.URL, "v1", nil)
	err := c.Install(context.Background())
	require.Error(t, err)
	assert.Equal(t, StateNew, c.State())

	// Activation without a completed install is refused; the switchboard is
	// never claimed.
	require.ErrorIs(t, c.Activate(context.Background(), sb), ErrNotInstalled)
	assert.Nil(t, sb.Active())
}

func TestNetworkFirstStoresAndFallsBackOffline(t *testing.T) {
	store := NewStore(newTestDB(t))
	ts, _ := newTestUpstream(t)

	_, sb := installActive(t, store, ts.URL, "v1")
	client := &http.Client{Transport: sb}

	// Online: the live response is returned and a copy is stored.
	url := ts.URL + "/strategies/sammansatt_momentum"
	resp, err := client.Get(url)
	require.NoError(t, err)
	online := readBody(t, resp)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// Offline: the same request returns the stored copy byte-for-byte.
	ts.Close()
	resp, err = client.Get(url)
	require.NoError(t, err)
	offline := readBody(t, resp)
	assert.Equal(t, online, offline)
}

func TestNetworkFirstWithoutFallbackPropagatesError(t *testing.T) {
	store := NewStore(newTestDB(t))
	ts, _ := newTestUpstream(t)

	_, sb := installActive(t, store, ts.URL, "v1")
	client := &http.Client{Transport: sb}

	ts.Close()
	_, err := client.Get(ts.URL + "/api/never-fetched")
	require.Error(t, err, "no cached fallback exists for this key")
}

func TestNetworkFirstKeysAreExact(t *testing.T) {
	store := NewStore(newTestDB(t))
	ts, _ := newTestUpstream(t)

	_, sb := installActive(t, store, ts.URL, "v1")
	client := &http.Client{Transport: sb}

	_, err := client.Get(ts.URL + "/api/a")
	require.NoError(t, err)

	// A different key must not be served the stored response for /api/a.
	ts.Close()
	_, err = client.Get(ts.URL + "/api/b")
	require.Error(t, err)
}

func TestCacheFirstServesInstalledAssetWithoutNetwork(t *testing.T) {
	store := NewStore(newTestDB(t))
	ts, hits := newTestUpstream(t)

	_, sb := installActive(t, store, ts.URL, "v1")
	client := &http.Client{Transport: sb}

	installHits := hits.Load()
	resp, err := client.Get(ts.URL + "/index.html")
	require.NoError(t, err)
	assert.Equal(t, "<html>dashboard</html>", readBody(t, resp))
	assert.Equal(t, installHits, hits.Load(), "cache-first hit must not touch the network")
}

func TestCacheFirstMissFetchesButDoesNotPopulate(t *testing.T) {
	store := NewStore(newTestDB(t))
	ts, hits := newTestUpstream(t)

	_, sb := installActive(t, store, ts.URL, "v1")
	client := &http.Client{Transport: sb}

	before := hits.Load()
	_, err := client.Get(ts.URL + "/assets/app.js")
	require.NoError(t, err)
	_, err = client.Get(ts.URL + "/assets/app.js")
	require.NoError(t, err)
	assert.Equal(t, before+2, hits.Load(), "misses always go to the network, nothing is stored")
}

func TestActivationSweepsOnlyStaleBuckets(t *testing.T) {
	db := newTestDB(t)
	store := NewStore(db)
	ts, _ := newTestUpstream(t)

	// Leftovers from an older deployment.
	require.NoError(t, store.Put("static-v0", ts.URL+"/", 200, http.Header{}, []byte("old")))
	require.NoError(t, store.Put("api-v0", ts.URL+"/api/x", 200, http.Header{}, []byte("old")))

	c, _ := installActive(t, store, ts.URL, "v1")

	buckets, err := store.Buckets()
	require.NoError(t, err)
	assert.NotContains(t, buckets, "static-v0")
	assert.NotContains(t, buckets, "api-v0")
	assert.Contains(t, buckets, c.StaticBucket())
}

func TestStorePutOverwrites(t *testing.T) {
	store := NewStore(newTestDB(t))

	require.NoError(t, store.Put("api-v1", "http://x/api/a", 200, http.Header{}, []byte("one")))
	require.NoError(t, store.Put("api-v1", "http://x/api/a", 200, http.Header{}, []byte("two")))

	entry, err := store.Get("api-v1", "http://x/api/a")
	require.NoError(t, err)
	assert.Equal(t, "two", string(entry.Body))
}

func TestGetAnyPrefersLatestWriteAcrossBuckets(t *testing.T) {
	store := NewStore(newTestDB(t))

	// Back-to-back writes of the same URL to different buckets land within
	// the same second; the later write must still win.
	require.NoError(t, store.Put("static-v1", "http://x/page", 200, http.Header{}, []byte("static copy")))
	require.NoError(t, store.Put("api-v1", "http://x/page", 200, http.Header{}, []byte("api copy")))

	entry, err := store.GetAny("http://x/page")
	require.NoError(t, err)
	assert.Equal(t, "api-v1", entry.Bucket)
	assert.Equal(t, "api copy", string(entry.Body))

	// Overwriting the older row makes it the newest again.
	require.NoError(t, store.Put("static-v1", "http://x/page", 200, http.Header{}, []byte("fresh static")))
	entry, err = store.GetAny("http://x/page")
	require.NoError(t, err)
	assert.Equal(t, "static-v1", entry.Bucket)
	assert.Equal(t, "fresh static", string(entry.Body))
}

func TestInactiveControllerRefusesTraffic(t *testing.T) {
	store := NewStore(newTestDB(t))
	c := NewController(store, "http://x", "v1", nil)

	req := httptest.NewRequest(http.MethodGet, "http://x/api/a", nil)
	_, err := c.RoundTrip(req)
	require.ErrorIs(t, err, ErrNotActive)
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(body)
}
