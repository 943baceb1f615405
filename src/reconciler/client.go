package reconciler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"

	"github.com/oggew2/Pengamannen-sub001/src/models"
)

// genericErrorMessage is shown when the server's error detail is not a plain
// string. A structured detail must never be displayed raw.
const genericErrorMessage = "the server rejected the request, please try again"

// APIError is a backend rejection with a user-displayable detail.
type APIError struct {
	Status int
	Detail string
}

func (e *APIError) Error() string {
	return e.Detail
}

// Client talks to the import endpoints of the backend.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

// UploadFile posts a transaction export as multipart form data and returns
// the parsed preview.
func (c *Client) UploadFile(ctx context.Context, filename string, file io.Reader, source string) (*models.ImportPreview, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	// CreateFormFile would declare the part as application/octet-stream,
	// which upload validation rejects; declare the real content type.
	partHeader := textproto.MIMEHeader{}
	partHeader.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	partHeader.Set("Content-Type", "text/csv")
	part, err := writer.CreatePart(partHeader)
	if err != nil {
		return nil, fmt.Errorf("build multipart body: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, fmt.Errorf("copy file into multipart body: %w", err)
	}
	if err := writer.WriteField("source", source); err != nil {
		return nil, fmt.Errorf("write source field: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("finalize multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/import", &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	var preview models.ImportPreview
	if err := c.do(req, &preview); err != nil {
		return nil, err
	}
	return &preview, nil
}

// ConfirmImport posts the full transaction list with the chosen merge mode.
func (c *Client) ConfirmImport(ctx context.Context, txs []models.Transaction, mode models.MergeMode) (*models.ImportResult, error) {
	body, err := json.Marshal(models.ConfirmRequest{Transactions: txs, Mode: mode})
	if err != nil {
		return nil, fmt.Errorf("marshal confirm request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/import/confirm", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	var result models.ImportResult
	if err := c.do(req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// SyncToHoldings asks the backend to project committed history into the live
// holdings snapshot.
func (c *Client) SyncToHoldings(ctx context.Context) (*models.SyncResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/import/sync", nil)
	if err != nil {
		return nil, err
	}

	var result models.SyncResult
	if err := c.do(req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// do executes the request and decodes either the expected payload or the
// error envelope.
func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeAPIError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// decodeAPIError turns an error response into an APIError with a detail that
// is always safe to display.
func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode, Detail: genericErrorMessage}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return apiErr
	}

	var envelope struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || len(envelope.Detail) == 0 {
		return apiErr
	}
	apiErr.Detail = normalizeDetail(envelope.Detail)
	return apiErr
}

// normalizeDetail extracts a displayable message from a detail payload that
// may be a string or a structured object. Anything non-string collapses to
// the generic message rather than a stringified object.
func normalizeDetail(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil && strings.TrimSpace(s) != "" {
		return s
	}
	return genericErrorMessage
}
