package renamer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"

	"golang.org/x/net/publicsuffix"
	"golang.org/x/time/rate"
)

const maxResponseBytes = 32 << 20

// Client communicates with the media renamer backend.
type Client struct {
	httpClient *http.Client
	baseURL    string
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// New creates a backend client with default HTTP settings and a cookie jar
// for the backend's session cookie.
func New(baseURL string, timeout time.Duration, logger *slog.Logger) (*Client, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("creating cookie jar: %w", err)
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return NewWithHTTPClient(baseURL, &http.Client{Timeout: timeout, Jar: jar}, logger), nil
}

// NewWithHTTPClient creates a backend client with a custom HTTP client (for testing).
func NewWithHTTPClient(baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		limiter:    rate.NewLimiter(rate.Inf, 0),
		logger:     logger.With(slog.String("component", "renamer-client")),
	}
}

// SetRateLimit caps outgoing requests at perSecond with the given burst.
// A non-positive perSecond removes the cap.
func (c *Client) SetRateLimit(perSecond float64, burst int) {
	if perSecond <= 0 {
		c.limiter.SetLimit(rate.Inf)
		return
	}
	if burst < 1 {
		burst = 1
	}
	c.limiter.SetBurst(burst)
	c.limiter.SetLimit(rate.Limit(perSecond))
}

// BaseURL returns the backend root URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Health calls GET /api/health.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	var h Health
	if err := c.do(ctx, "checking health", http.MethodGet, "/api/health", nil, &h); err != nil {
		return nil, err
	}
	return &h, nil
}

// GetConfig returns the backend configuration.
func (c *Client) GetConfig(ctx context.Context) (*Settings, error) {
	var resp settingsResponse
	if err := c.do(ctx, "loading config", http.MethodGet, "/api/config", nil, &resp); err != nil {
		return nil, err
	}
	return &resp.Config, nil
}

// SaveConfig sends changed settings to the backend. Unknown keys and
// non-boolean values for boolean keys are rejected before sending.
func (c *Client) SaveConfig(ctx context.Context, values map[string]any) error {
	if len(values) == 0 {
		return &ValidationError{Field: "config", Reason: "no settings to save"}
	}
	for k, v := range values {
		isBool, ok := SettingKinds[k]
		if !ok {
			return &ValidationError{Field: k, Reason: "unknown setting"}
		}
		if _, b := v.(bool); isBool && !b {
			return &ValidationError{Field: k, Reason: "must be true or false"}
		}
	}
	return c.do(ctx, "saving config", http.MethodPost, "/api/config", values, nil)
}

// StartScan asks the backend to begin a scan. The scan runs in the
// background; progress is read with ScanStatus.
func (c *Client) StartScan(ctx context.Context, req ScanRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}
	if err := c.do(ctx, "starting scan", http.MethodPost, "/api/scan", req, nil); err != nil {
		return err
	}
	c.logger.Debug("scan started", "media_type", string(req.MediaType), "path", req.ScanPath)
	return nil
}

// ScanStatus returns the current scan progress and counters.
func (c *Client) ScanStatus(ctx context.Context) (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.do(ctx, "polling scan status", http.MethodGet, "/api/scan/status", nil, &resp); err != nil {
		return nil, err
	}
	resp.Status.normalize()
	return &resp, nil
}

// ScanResults returns the full result list of the last completed scan.
func (c *Client) ScanResults(ctx context.Context) ([]Result, error) {
	var resp resultsResponse
	if err := c.do(ctx, "loading scan results", http.MethodGet, "/api/scan/results", nil, &resp); err != nil {
		return nil, err
	}
	results := resp.Results
	if results == nil {
		results = []Result{}
	}
	for i := range results {
		results[i].normalize()
	}
	return results, nil
}

// Apply performs (or simulates, when req.DryRun is set) the selected renames.
func (c *Client) Apply(ctx context.Context, req ApplyRequest) (*ApplyResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	var resp ApplyResponse
	if err := c.do(ctx, "applying changes", http.MethodPost, "/api/rename", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Browse lists a directory on the backend host.
func (c *Client) Browse(ctx context.Context, dir string) (*Listing, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, &ValidationError{Field: "path", Reason: "is required"}
	}
	var l Listing
	body := map[string]string{"path": dir}
	if err := c.do(ctx, "browsing directory", http.MethodPost, "/api/browse", body, &l); err != nil {
		return nil, err
	}
	return &l, nil
}

// DiscoverFolders starts media folder discovery under basePath.
func (c *Client) DiscoverFolders(ctx context.Context, basePath string) error {
	if strings.TrimSpace(basePath) == "" {
		return &ValidationError{Field: "base_path", Reason: "is required"}
	}
	body := map[string]string{"base_path": basePath}
	return c.do(ctx, "starting discovery", http.MethodPost, "/api/discover-media-folders", body, nil)
}

// MediaFolders returns the folders found by the last discovery.
func (c *Client) MediaFolders(ctx context.Context) ([]MediaFolder, error) {
	var resp foldersResponse
	if err := c.do(ctx, "loading media folders", http.MethodGet, "/api/media-folders", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Folders, nil
}

// do sends one request and decodes the shared envelope and, when result is
// non-nil, the full body into result.
func (c *Client) do(ctx context.Context, op, method, path string, body, result any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return &TransportError{Op: op, Err: fmt.Errorf("waiting for rate limiter: %w", err)}
	}

	var reqBody io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return &TransportError{Op: op, Err: fmt.Errorf("marshaling request: %w", err)}
		}
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return &TransportError{Op: op, Err: fmt.Errorf("creating request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &TransportError{Op: op, Err: fmt.Errorf("executing request: %w", err)}
	}
	defer resp.Body.Close() //nolint:errcheck

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return &TransportError{Op: op, Err: fmt.Errorf("reading response: %w", err)}
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		if resp.StatusCode >= 300 {
			return &APIError{Op: op, StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		}
		return &TransportError{Op: op, Err: fmt.Errorf("decoding response: %w", err)}
	}

	if !env.Success || resp.StatusCode >= 300 {
		msg := env.Error
		if msg == "" && resp.StatusCode >= 300 {
			msg = http.StatusText(resp.StatusCode)
		}
		if msg == "" {
			msg = "request failed"
		}
		c.logger.Debug("backend reported failure", "op", op, "status", resp.StatusCode, "error", msg)
		return &APIError{Op: op, StatusCode: resp.StatusCode, Message: msg}
	}

	if result != nil {
		if err := json.Unmarshal(data, result); err != nil {
			return &TransportError{Op: op, Err: fmt.Errorf("decoding response: %w", err)}
		}
	}
	return nil
}
