package subscription

import (
	"context"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const sweepInterval = time.Hour

// registerExpirySweep schedules the periodic pass that moves lapsed
// grace-period subscriptions to expired.
func registerExpirySweep(lc fx.Lifecycle, log *zap.SugaredLogger, svc *Service) error {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return err
	}

	_, err = scheduler.NewJob(
		gocron.DurationJob(sweepInterval),
		gocron.NewTask(func() {
			if _, err := svc.ExpireLapsed(context.Background()); err != nil {
				log.Warnw("subscription expiry sweep failed", "error", err.Error())
			}
		}),
		gocron.WithName("subscription-expiry-sweep"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return err
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			scheduler.Start()
			log.Infow("subscription expiry sweep started", "interval", sweepInterval.String())
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return scheduler.Shutdown()
		},
	})
	return nil
}

// Module exposes the subscription state machine via Fx.
var Module = fx.Options(
	fx.Provide(NewService),
	fx.Invoke(registerExpirySweep),
)
