package offline

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrCacheMiss is returned when no entry is stored for a key.
var ErrCacheMiss = errors.New("offline cache miss")

// storedAtLayout keeps a fixed-width fractional second so stored timestamps
// sort chronologically as strings; second resolution would tie two writes of
// the same URL to different buckets within the same second.
const storedAtLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Entry is one stored response, keyed by bucket and full request URL.
type Entry struct {
	Bucket   string
	URL      string
	Status   int
	Header   http.Header
	Body     []byte
	StoredAt time.Time
}

// Store persists cache buckets in SQLite. Buckets exist implicitly: a bucket
// is the set of rows sharing a bucket name, so deleting all rows deletes the
// bucket. Writes are keyed upserts; last write per key wins.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Put stores an entry, overwriting any previous entry for the same key.
func (s *Store) Put(bucket, url string, status int, header http.Header, body []byte) error {
	headerJSON, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("marshal cached headers: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO offline_cache (bucket, url, status, headers, body, stored_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(bucket, url) DO UPDATE SET
			status = excluded.status,
			headers = excluded.headers,
			body = excluded.body,
			stored_at = excluded.stored_at`,
		bucket, url, status, string(headerJSON), body, time.Now().UTC().Format(storedAtLayout),
	)
	if err != nil {
		return fmt.Errorf("store cache entry %s in bucket %s: %w", url, bucket, err)
	}
	return nil
}

// Get returns the entry for the exact key in the given bucket.
func (s *Store) Get(bucket, url string) (*Entry, error) {
	row := s.db.QueryRow(
		`SELECT status, headers, body, stored_at FROM offline_cache WHERE bucket = ? AND url = ?`,
		bucket, url,
	)
	return scanEntry(row, bucket, url)
}

// GetAny returns the entry for the exact URL from whichever bucket holds one,
// newest first. This backs the cache-first lookup, which does not care which
// bucket a response came from.
func (s *Store) GetAny(url string) (*Entry, error) {
	row := s.db.QueryRow(
		`SELECT bucket, status, headers, body, stored_at FROM offline_cache
		 WHERE url = ? ORDER BY stored_at DESC LIMIT 1`,
		url,
	)
	var bucket string
	var e Entry
	var headerJSON, storedAt string
	if err := row.Scan(&bucket, &e.Status, &headerJSON, &e.Body, &storedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("read cache entry %s: %w", url, err)
	}
	e.Bucket = bucket
	e.URL = url
	if err := json.Unmarshal([]byte(headerJSON), &e.Header); err != nil {
		return nil, fmt.Errorf("unmarshal cached headers for %s: %w", url, err)
	}
	e.StoredAt, _ = time.Parse(storedAtLayout, storedAt)
	return &e, nil
}

// Buckets enumerates the names of all buckets currently holding entries.
func (s *Store) Buckets() ([]string, error) {
	rows, err := s.db.Query(`SELECT DISTINCT bucket FROM offline_cache ORDER BY bucket`)
	if err != nil {
		return nil, fmt.Errorf("list cache buckets: %w", err)
	}
	defer rows.Close()

	var buckets []string
	for rows.Next() {
		var b string
		if err := rows.Scan(&b); err != nil {
			return nil, err
		}
		buckets = append(buckets, b)
	}
	return buckets, rows.Err()
}

// DeleteBucket removes a bucket and every entry in it.
func (s *Store) DeleteBucket(bucket string) error {
	if _, err := s.db.Exec(`DELETE FROM offline_cache WHERE bucket = ?`, bucket); err != nil {
		return fmt.Errorf("delete cache bucket %s: %w", bucket, err)
	}
	return nil
}

func scanEntry(row *sql.Row, bucket, url string) (*Entry, error) {
	var e Entry
	var headerJSON, storedAt string
	if err := row.Scan(&e.Status, &headerJSON, &e.Body, &storedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("read cache entry %s from bucket %s: %w", url, bucket, err)
	}
	e.Bucket = bucket
	e.URL = url
	if err := json.Unmarshal([]byte(headerJSON), &e.Header); err != nil {
		return nil, fmt.Errorf("unmarshal cached headers for %s: %w", url, err)
	}
	e.StoredAt, _ = time.Parse(storedAtLayout, storedAt)
	return &e, nil
}
