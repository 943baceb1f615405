package handlers

import (
	"io"
	"net/http"
	"strings"

	"github.com/oggew2/Pengamannen-sub001/src/logger"
	"github.com/oggew2/Pengamannen-sub001/src/utils"
)

// ProxyHandler forwards requests the dashboard cannot answer locally
// (strategy rankings, backtests, portfolio data, static assets) to the
// upstream API. The client's transport is the offline switchboard, so every
// forwarded request gets the classified caching strategy and keeps working
// offline once a copy has been stored.
type ProxyHandler struct {
	upstream string
	client   *http.Client
}

func NewProxyHandler(upstreamBaseURL string, client *http.Client) *ProxyHandler {
	return &ProxyHandler{
		upstream: strings.TrimRight(upstreamBaseURL, "/"),
		client:   client,
	}
}

// HandleProxy forwards the request path and query upstream and relays the
// response. A transport error here means the network failed and no cached
// copy existed for the exact key; that failure is surfaced, not swallowed.
func (h *ProxyHandler) HandleProxy(w http.ResponseWriter, r *http.Request) {
	ctxLogger := logger.FromContext(r.Context())

	url := h.upstream + r.URL.Path
	if r.URL.RawQuery != "" {
		url += "?" + r.URL.RawQuery
	}

	req, err := http.NewRequestWithContext(r.Context(), r.Method, url, nil)
	if err != nil {
		ctxLogger.Error("Failed to build upstream request", "url", url, "error", err)
		utils.SendJSONError(w, "failed to build upstream request", http.StatusInternalServerError)
		return
	}
	if accept := r.Header.Get("Accept"); accept != "" {
		req.Header.Set("Accept", accept)
	}
	if requestID := RequestIDFromContext(r.Context()); requestID != "" {
		req.Header.Set("X-Request-ID", requestID)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		ctxLogger.Warn("Upstream unreachable and no cached copy available", "url", url, "error", err)
		utils.SendJSONError(w, "upstream unreachable and no cached copy available", http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	for k, v := range resp.Header {
		w.Header()[k] = v
	}
	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		ctxLogger.Error("Error relaying upstream response", "url", url, "error", err)
	}
}
