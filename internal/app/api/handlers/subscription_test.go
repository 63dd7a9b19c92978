package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/framefolio/billing/internal/app/api/middleware"
	subsvc "github.com/framefolio/billing/internal/app/service/subscription"
	"github.com/framefolio/billing/internal/app/service/tier"
	"github.com/framefolio/billing/pkg/config"
	"github.com/framefolio/billing/pkg/types"
)

type countingUsageReader struct {
	usage *tier.Usage
	err   error
	calls int
}

func (r *countingUsageReader) GetUsage(context.Context, string) (*tier.Usage, error) {
	r.calls++
	return r.usage, r.err
}

func cancelTestConfig() *config.Config {
	cfg := &config.Config{
		Tiers: []*config.TierLimits{
			{Tier: types.TierStarter, StorageBytes: 5 << 30, ProjectLimit: 3, CollectionLimit: 10},
		},
	}
	cfg.Cancel.FallbackTier = types.TierStarter
	return cfg
}

// cancelTestRouter wires the real cancel route with a nil-DB subscription
// service: reaching the mutation without passing validation would panic.
func cancelTestRouter(cfg *config.Config, reader *countingUsageReader) *gin.Engine {
	gin.SetMode(gin.TestMode)
	log := zap.NewNop().Sugar()

	r := gin.New()
	r.Use(func(c *gin.Context) { c.Set(middleware.UserIDKey, "user-1") })

	sub := subsvc.NewService(cfg, nil, log, nil)
	tiers := tier.NewService(cfg, log, reader)
	RegisterSubscriptionRoutes(r, sub, tiers, cfg, log)
	return r
}

func TestApiCancelSubscription_BlockedByUsage(t *testing.T) {
	// 6 GiB stored against starter's 5 GiB cap
	reader := &countingUsageReader{usage: &tier.Usage{StorageBytes: 6 << 30, ProjectCount: 1, CollectionCount: 1}}
	r := cancelTestRouter(cancelTestConfig(), reader)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/subscription/cancel", nil)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, 1, reader.calls)
	require.Contains(t, w.Body.String(), `"code":40000`)
	require.Contains(t, w.Body.String(), `"valid":false`)
	require.Contains(t, w.Body.String(), `"storage_bytes"`)
}

func TestApiCancelSubscription_UsageReadFailure(t *testing.T) {
	reader := &countingUsageReader{err: context.DeadlineExceeded}
	r := cancelTestRouter(cancelTestConfig(), reader)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/subscription/cancel", nil)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, 1, reader.calls)
	require.Contains(t, w.Body.String(), `"code":50000`)
}
