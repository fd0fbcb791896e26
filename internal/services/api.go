// Raw HTTP access shared by the Smarty client and the catalog crawler
package services

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// maxBodySize caps how much of a response body is buffered.
const maxBodySize = 8 << 20

// APIService provides methods for making raw HTTP requests against a base URL.
type APIService struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
}

// NewAPIService creates a new API service instance for baseURL.
func NewAPIService(baseURL string, client *http.Client) *APIService {
	if client == nil {
		client = http.DefaultClient
	}

	return &APIService{
		baseURL:    baseURL,
		userAgent:  "noncmra/1.0",
		httpClient: client,
	}
}

// BaseURL returns the URL every request path is joined to.
func (a *APIService) BaseURL() string {
	return a.baseURL
}

// SetUserAgent overrides the User-Agent header sent with every request.
func (a *APIService) SetUserAgent(ua string) {
	a.userAgent = ua
}

// APIResponse represents a raw API response with status and body. Callers decode Body themselves.
type APIResponse struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
}

// Get performs a GET request to the specified path and returns the raw response.
func (a *APIService) Get(ctx context.Context, path string) (*APIResponse, error) {
	return a.GetWithQuery(ctx, path, nil)
}

// GetWithQuery performs a GET request with query parameters.
//
// Non-2xx statuses are not errors; only transport and body read failures are.
func (a *APIService) GetWithQuery(ctx context.Context, path string, query url.Values) (*APIResponse, error) {
	fullURL := a.baseURL + path
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", a.userAgent)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	return &APIResponse{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       body,
	}, nil
}
