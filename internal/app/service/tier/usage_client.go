package tier

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// HTTPUsageReader reads usage from the core application's internal API.
type HTTPUsageReader struct {
	baseURL string
	http    *http.Client
}

func NewHTTPUsageReader(baseURL string) *HTTPUsageReader {
	return &HTTPUsageReader{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 5 * time.Second},
	}
}

func (r *HTTPUsageReader) GetUsage(ctx context.Context, userID string) (*Usage, error) {
	endpoint := fmt.Sprintf("%s/internal/usage/%s", r.baseURL, url.PathEscape(userID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := r.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("usage API unreachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("usage API returned %d", resp.StatusCode)
	}

	var usage Usage
	if err := json.NewDecoder(resp.Body).Decode(&usage); err != nil {
		return nil, fmt.Errorf("failed to decode usage: %w", err)
	}
	return &usage, nil
}
