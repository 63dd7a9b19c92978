package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/framefolio/billing/internal/models"
)

// HTTPNotifier posts notifications to the core application's internal
// notification API.
type HTTPNotifier struct {
	baseURL string
	http    *http.Client
}

func NewHTTPNotifier(baseURL string) *HTTPNotifier {
	return &HTTPNotifier{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

func (n *HTTPNotifier) Notify(ctx context.Context, row *models.NotificationOutbox) error {
	payload, err := json.Marshal(map[string]any{
		"user_id":    row.UserID,
		"category":   row.Category,
		"type":       row.Type,
		"title":      row.Title,
		"body":       row.Body,
		"action_url": row.ActionURL,
		"metadata":   row.Metadata,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.baseURL+"/internal/notifications", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.http.Do(req)
	if err != nil {
		return fmt.Errorf("notification API unreachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("notification API returned %d", resp.StatusCode)
	}
	return nil
}
