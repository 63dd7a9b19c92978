package tier

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/framefolio/billing/pkg/config"
	"github.com/framefolio/billing/pkg/logctx"
	"github.com/framefolio/billing/pkg/types"
)

// Usage is a point-in-time snapshot of a user's resource consumption.
type Usage struct {
	StorageBytes    int64 `json:"storage_bytes"`
	ProjectCount    int64 `json:"project_count"`
	CollectionCount int64 `json:"collection_count"`
}

// UsageReader reads current resource usage from the core application.
type UsageReader interface {
	GetUsage(ctx context.Context, userID string) (*Usage, error)
}

// ResourceLimitError names one resource whose current usage exceeds the
// target tier's limit. It is surfaced to the caller as data, not an error:
// the user resolves it by freeing the resource.
type ResourceLimitError struct {
	Resource string `json:"resource"`
	Current  int64  `json:"current"`
	Limit    int64  `json:"limit"`
}

func (e ResourceLimitError) Error() string {
	return fmt.Sprintf("%s usage %d exceeds limit %d", e.Resource, e.Current, e.Limit)
}

// DowngradeCheck is the result of validating a tier downgrade/cancellation.
type DowngradeCheck struct {
	Valid  bool                 `json:"valid"`
	Errors []ResourceLimitError `json:"errors,omitempty"`
	Usage  *Usage               `json:"usage"`
	Limits *config.TierLimits   `json:"limits"`
}

type Service struct {
	cfg   *config.Config
	log   *zap.SugaredLogger
	usage UsageReader
}

func NewService(cfg *config.Config, log *zap.SugaredLogger, usage UsageReader) *Service {
	return &Service{cfg: cfg, log: log, usage: usage}
}

// ValidateDowngrade checks whether the user's current usage fits inside the
// target tier's limits. Runs synchronously in the cancellation/downgrade
// request path: the user-facing action needs an immediate yes/no. A forced
// (administrative) transition reports usage but always validates.
func (s *Service) ValidateDowngrade(ctx context.Context, userID string, target types.Tier, forced bool) (*DowngradeCheck, error) {
	limits := s.cfg.GetTierLimits(target)
	if limits == nil {
		return nil, fmt.Errorf("tier not configured: %s", target)
	}

	usage, err := s.usage.GetUsage(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to read usage: %w", err)
	}

	check := &DowngradeCheck{Usage: usage, Limits: limits}
	if usage.StorageBytes > limits.StorageBytes {
		check.Errors = append(check.Errors, ResourceLimitError{Resource: "storage_bytes", Current: usage.StorageBytes, Limit: limits.StorageBytes})
	}
	if usage.ProjectCount > limits.ProjectLimit {
		check.Errors = append(check.Errors, ResourceLimitError{Resource: "projects", Current: usage.ProjectCount, Limit: limits.ProjectLimit})
	}
	if usage.CollectionCount > limits.CollectionLimit {
		check.Errors = append(check.Errors, ResourceLimitError{Resource: "collections", Current: usage.CollectionCount, Limit: limits.CollectionLimit})
	}
	check.Valid = len(check.Errors) == 0 || forced

	if !check.Valid {
		logctx.FromCtx(ctx, s.log).Infow("downgrade blocked by usage",
			"user_id", userID, "target_tier", target, "violations", len(check.Errors))
	}
	return check, nil
}
