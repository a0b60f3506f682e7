package neo

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

const (
	defaultSourceURL = "https://api.nasa.gov/neo/rest/v1/feed"
	defaultAPIKey    = "DEMO_KEY"

	// maxBodyBytes bounds a feed response.
	maxBodyBytes = 50 << 20

	// feedDays is the widest window the feed accepts in one request.
	feedDays = 7
)

// Fetcher retrieves raw feed JSON from a remote source.
type Fetcher struct {
	sourceURL  string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewFetcher creates a Fetcher for the given source URL and API key.
func NewFetcher(sourceURL, apiKey string, logger *slog.Logger) *Fetcher {
	if sourceURL == "" {
		sourceURL = defaultSourceURL
	}
	if apiKey == "" {
		apiKey = defaultAPIKey
	}
	return &Fetcher{
		sourceURL: sourceURL,
		apiKey:    apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
	}
}

// SourceURL returns the configured source URL.
func (f *Fetcher) SourceURL() string {
	return f.sourceURL
}

// requestURL builds the feed URL for the week starting at start.
func (f *Fetcher) requestURL(start time.Time) (string, error) {
	u, err := url.Parse(f.sourceURL)
	if err != nil {
		return "", fmt.Errorf("parsing source URL: %w", err)
	}
	start = start.UTC()
	q := u.Query()
	q.Set("start_date", start.Format(time.DateOnly))
	q.Set("end_date", start.AddDate(0, 0, feedDays-1).Format(time.DateOnly))
	q.Set("api_key", f.apiKey)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Fetch performs an HTTP GET for the close approaches in the week starting
// at start.
func (f *Fetcher) Fetch(ctx context.Context, start time.Time) ([]byte, error) {
	reqURL, err := f.requestURL(start)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching NEO feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code %d from %s", resp.StatusCode, f.sourceURL)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}
	if len(body) > maxBodyBytes {
		return nil, fmt.Errorf("response exceeds %d byte limit", maxBodyBytes)
	}

	f.logger.Debug("NEO feed fetched", "bytes", len(body), "start_date", start.UTC().Format(time.DateOnly))
	return body, nil
}
