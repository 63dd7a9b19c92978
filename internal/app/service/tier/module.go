package tier

import (
	"go.uber.org/fx"

	"github.com/framefolio/billing/pkg/config"
)

func newUsageReader(cfg *config.Config) UsageReader {
	return NewHTTPUsageReader(cfg.Collaborators.UsageURL)
}

var Module = fx.Options(
	fx.Provide(newUsageReader),
	fx.Provide(NewService),
)
