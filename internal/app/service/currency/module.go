package currency

import (
	"context"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/framefolio/billing/pkg/config"
)

// registerRefreshJob schedules the periodic rate refresh. Half the cache TTL
// keeps the snapshot fresh before conversions ever hit the stale path.
func registerRefreshJob(lc fx.Lifecycle, log *zap.SugaredLogger, cfg *config.Config, svc *Service) error {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return err
	}

	interval := cfg.Currency.CacheTTL / 2
	_, err = scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			if err := svc.Refresh(context.Background()); err != nil {
				log.Warnw("scheduled rate refresh failed", "error", err.Error())
			}
		}),
		gocron.WithName("exchange-rate-refresh"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return err
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			scheduler.Start()
			log.Infow("rate refresh scheduler started", "interval", interval.String())
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return scheduler.Shutdown()
		},
	})
	return nil
}

var Module = fx.Options(
	fx.Provide(NewService),
	fx.Invoke(registerRefreshJob),
)
