package offline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/oggew2/Pengamannen-sub001/src/logger"
)

// Lifecycle states of a controller version.
type State int

const (
	StateNew State = iota
	StateInstalling
	StateInstalled
	StateActivating
	StateActive
)

func (s State) String() string {
	switch s {
	case StateInstalling:
		return "installing"
	case StateInstalled:
		return "installed"
	case StateActivating:
		return "activating"
	case StateActive:
		return "active"
	default:
		return "new"
	}
}

var (
	ErrNotInstalled = errors.New("offline controller has not completed install")
	ErrNotActive    = errors.New("offline controller is not active")
)

// StaticAssets is the minimal asset set fetched into the static bucket at
// install time: the document root and the entry HTML.
var StaticAssets = []string{"/", "/index.html"}

// Controller owns one version of the offline cache. It installs the static
// asset set, sweeps stale buckets on activation, and afterwards serves as an
// http.RoundTripper applying the classified strategy per request.
//
// Requests may round-trip concurrently; the only shared mutable state is the
// bucket store, where concurrent keyed writes are safe (last write wins).
type Controller struct {
	store    *Store
	upstream string // base URL of the origin, no trailing slash
	version  string
	inner    http.RoundTripper

	mu    sync.Mutex
	state State
}

func NewController(store *Store, upstreamBaseURL, version string, inner http.RoundTripper) *Controller {
	if inner == nil {
		inner = http.DefaultTransport
	}
	return &Controller{
		store:    store,
		upstream: strings.TrimRight(upstreamBaseURL, "/"),
		version:  version,
		inner:    inner,
		state:    StateNew,
	}
}

// StaticBucket is the name of this version's static asset bucket.
func (c *Controller) StaticBucket() string { return "static-" + c.version }

// APIBucket is the name of this version's API response bucket.
func (c *Controller) APIBucket() string { return "api-" + c.version }

// State reports the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// Install fetches the static asset set into the static bucket. Any fetch
// failure fails the whole install and the controller drops back to New; a
// previously active controller keeps serving, so a failed rollout never
// degrades the running app.
func (c *Controller) Install(ctx context.Context) error {
	c.setState(StateInstalling)

	for _, path := range StaticAssets {
		url := c.upstream + path
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			c.setState(StateNew)
			return fmt.Errorf("install: build request for %s: %w", url, err)
		}
		resp, err := c.inner.RoundTrip(req)
		if err != nil {
			c.setState(StateNew)
			return fmt.Errorf("install: fetch %s: %w", url, err)
		}
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			c.setState(StateNew)
			return fmt.Errorf("install: read %s: %w", url, err)
		}
		if err := c.store.Put(c.StaticBucket(), url, resp.StatusCode, resp.Header, body); err != nil {
			c.setState(StateNew)
			return fmt.Errorf("install: %w", err)
		}
		logger.L.Debug("Installed static asset", "url", url, "bucket", c.StaticBucket())
	}

	c.setState(StateInstalled)
	logger.L.Info("Offline controller installed", "version", c.version, "assets", len(StaticAssets))
	return nil
}

// Activate sweeps every bucket whose name matches neither the current static
// nor the current API bucket, then claims the switchboard so this version
// starts intercepting traffic immediately. The sweep is the only point where
// stale data is purged; a version bump evicts obsolete entries without
// per-entry expiry.
func (c *Controller) Activate(ctx context.Context, sb *Switchboard) error {
	if c.State() != StateInstalled {
		return ErrNotInstalled
	}
	c.setState(StateActivating)

	buckets, err := c.store.Buckets()
	if err != nil {
		c.setState(StateInstalled)
		return fmt.Errorf("activate: %w", err)
	}
	for _, bucket := range buckets {
		if bucket == c.StaticBucket() || bucket == c.APIBucket() {
			continue
		}
		if err := c.store.DeleteBucket(bucket); err != nil {
			c.setState(StateInstalled)
			return fmt.Errorf("activate: %w", err)
		}
		logger.L.Info("Swept stale cache bucket", "bucket", bucket)
	}

	c.setState(StateActive)
	if sb != nil {
		sb.claim(c)
	}
	logger.L.Info("Offline controller active", "version", c.version)
	return nil
}

// RoundTrip applies the caching strategy for the request. A request always
// gets either a genuine network response or the stored response for its own
// exact key, never a response stored under a different key.
func (c *Controller) RoundTrip(req *http.Request) (*http.Response, error) {
	if c.State() != StateActive {
		return nil, ErrNotActive
	}

	key := req.URL.String()
	switch Classify(req.URL.Path) {
	case NetworkFirst:
		return c.networkFirst(req, key)
	default:
		return c.cacheFirst(req, key)
	}
}

// networkFirst fetches live, stores a copy of the resolved response under the
// request key in the API bucket, and returns the live response. On fetch
// failure it falls back to the stored copy for that exact key, or propagates
// the fetch error when nothing is cached. No retries.
func (c *Controller) networkFirst(req *http.Request, key string) (*http.Response, error) {
	resp, err := c.inner.RoundTrip(req)
	if err != nil {
		entry, cacheErr := c.store.Get(c.APIBucket(), key)
		if cacheErr != nil {
			logger.L.Warn("Network-first fetch failed with no cached fallback", "url", key, "error", err)
			return nil, err
		}
		logger.L.Info("Serving cached fallback after network failure", "url", key)
		return entry.response(req), nil
	}

	body, readErr := io.ReadAll(resp.Body)
	resp.Body.Close()
	if readErr != nil {
		return nil, fmt.Errorf("read response for %s: %w", key, readErr)
	}
	if err := c.store.Put(c.APIBucket(), key, resp.StatusCode, resp.Header, body); err != nil {
		// Failing to cache must not fail the live response.
		logger.L.Error("Failed to store API response in cache", "url", key, "error", err)
	}
	resp.Body = io.NopCloser(bytes.NewReader(body))
	resp.ContentLength = int64(len(body))
	return resp, nil
}

// cacheFirst serves a stored response for the exact key without touching the
// network. On a miss it fetches and returns the live response; this path does
// not populate the cache, only install does.
func (c *Controller) cacheFirst(req *http.Request, key string) (*http.Response, error) {
	entry, err := c.store.GetAny(key)
	if err == nil {
		return entry.response(req), nil
	}
	if !errors.Is(err, ErrCacheMiss) {
		logger.L.Error("Cache lookup failed, falling through to network", "url", key, "error", err)
	}
	return c.inner.RoundTrip(req)
}

// response materializes a stored entry as an *http.Response for the request.
func (e *Entry) response(req *http.Request) *http.Response {
	header := make(http.Header, len(e.Header))
	for k, v := range e.Header {
		header[k] = append([]string(nil), v...)
	}
	return &http.Response{
		Status:        http.StatusText(e.Status),
		StatusCode:    e.Status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(e.Body)),
		ContentLength: int64(len(e.Body)),
		Request:       req,
	}
}

// Switchboard routes outbound traffic through whichever controller version
// last claimed it, so a freshly activated version starts intercepting
// in-flight traffic without a restart. Before any claim it falls through to
// the plain transport.
type Switchboard struct {
	fallback http.RoundTripper

	mu     sync.RWMutex
	active *Controller
}

func NewSwitchboard(fallback http.RoundTripper) *Switchboard {
	if fallback == nil {
		fallback = http.DefaultTransport
	}
	return &Switchboard{fallback: fallback}
}

func (s *Switchboard) claim(c *Controller) {
	s.mu.Lock()
	s.active = c
	s.mu.Unlock()
}

// Active returns the controller currently claiming the switchboard, or nil.
func (s *Switchboard) Active() *Controller {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// RoundTrip implements http.RoundTripper.
func (s *Switchboard) RoundTrip(req *http.Request) (*http.Response, error) {
	if c := s.Active(); c != nil {
		return c.RoundTrip(req)
	}
	return s.fallback.RoundTrip(req)
}
