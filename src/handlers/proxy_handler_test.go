package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleProxyRelaysUpstreamResponse(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/strategies/sammansatt_momentum", r.URL.Path)
		assert.Equal(t, "top=10", r.URL.RawQuery)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"strategy":"sammansatt_momentum"}`)
	}))
	defer upstream.Close()

	h := NewProxyHandler(upstream.URL, upstream.Client())
	r := chi.NewRouter()
	r.Get("/strategies/{name}", h.HandleProxy)

	srv := httptest.NewServer(r)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/strategies/sammansatt_momentum?top=10")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.JSONEq(t, `{"strategy":"sammansatt_momentum"}`, string(body))
}

func TestHandleProxyUnreachableUpstreamIsBadGateway(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	upstream.Close()

	h := NewProxyHandler(upstream.URL, &http.Client{})
	req := httptest.NewRequest(http.MethodGet, "/strategies/trendande_varde", nil)
	rec := httptest.NewRecorder()
	h.HandleProxy(rec, req)

	assert.Equal(t, http.StatusBadGateway, rec.Code)

	var payload map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.NotEmpty(t, payload["detail"], "errors carry a detail field")
}
