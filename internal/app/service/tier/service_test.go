package tier

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/framefolio/billing/pkg/config"
	"github.com/framefolio/billing/pkg/types"
)

type fakeUsage struct {
	usage *Usage
	err   error
}

func (f *fakeUsage) GetUsage(context.Context, string) (*Usage, error) {
	return f.usage, f.err
}

func tierTestConfig() *config.Config {
	return &config.Config{
		Tiers: []*config.TierLimits{
			{Tier: types.TierStarter, StorageBytes: 5 << 30, ProjectLimit: 3, CollectionLimit: 10},
			{Tier: types.TierPro, StorageBytes: 100 << 30, ProjectLimit: 50, CollectionLimit: 200},
		},
	}
}

func newTierService(usage *Usage) *Service {
	return NewService(tierTestConfig(), zap.NewNop().Sugar(), &fakeUsage{usage: usage})
}

func TestValidateDowngrade_UsageFits(t *testing.T) {
	svc := newTierService(&Usage{StorageBytes: 1 << 30, ProjectCount: 2, CollectionCount: 5})

	check, err := svc.ValidateDowngrade(context.Background(), "user-1", types.TierStarter, false)
	require.NoError(t, err)
	require.True(t, check.Valid)
	require.Empty(t, check.Errors)
}

func TestValidateDowngrade_StorageOverLimit(t *testing.T) {
	// 6 GiB used against starter's 5 GiB cap
	svc := newTierService(&Usage{StorageBytes: 6 << 30, ProjectCount: 1, CollectionCount: 1})

	check, err := svc.ValidateDowngrade(context.Background(), "user-1", types.TierStarter, false)
	require.NoError(t, err)
	require.False(t, check.Valid)
	require.Len(t, check.Errors, 1)
	require.Equal(t, "storage_bytes", check.Errors[0].Resource)
	require.Equal(t, int64(6<<30), check.Errors[0].Current)
	require.Equal(t, int64(5<<30), check.Errors[0].Limit)
}

func TestValidateDowngrade_MultipleViolations(t *testing.T) {
	svc := newTierService(&Usage{StorageBytes: 6 << 30, ProjectCount: 10, CollectionCount: 30})

	check, err := svc.ValidateDowngrade(context.Background(), "user-1", types.TierStarter, false)
	require.NoError(t, err)
	require.False(t, check.Valid)
	require.Len(t, check.Errors, 3)
}

func TestValidateDowngrade_ForcedReportsButValidates(t *testing.T) {
	svc := newTierService(&Usage{StorageBytes: 6 << 30, ProjectCount: 1, CollectionCount: 1})

	check, err := svc.ValidateDowngrade(context.Background(), "user-1", types.TierStarter, true)
	require.NoError(t, err)
	require.True(t, check.Valid)
	require.Len(t, check.Errors, 1)
}

func TestValidateDowngrade_UnconfiguredTier(t *testing.T) {
	svc := newTierService(&Usage{})

	_, err := svc.ValidateDowngrade(context.Background(), "user-1", types.TierBusiness, false)
	require.Error(t, err)
	require.Contains(t, err.Error(), "tier not configured")
}

func TestValidateDowngrade_UsageReadFailure(t *testing.T) {
	svc := NewService(tierTestConfig(), zap.NewNop().Sugar(), &fakeUsage{err: context.DeadlineExceeded})

	_, err := svc.ValidateDowngrade(context.Background(), "user-1", types.TierStarter, false)
	require.Error(t, err)
}
