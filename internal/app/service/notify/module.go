package notify

import (
	"context"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/framefolio/billing/pkg/config"
)

func newNotifier(cfg *config.Config) Notifier {
	return NewHTTPNotifier(cfg.Collaborators.NotifyURL)
}

// runWorker drains the outbox in the background. Webhook handlers never block
// on notification delivery; they only write rows.
func runWorker(lc fx.Lifecycle, log *zap.SugaredLogger, svc *Service) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				ticker := time.NewTicker(5 * time.Second)
				defer ticker.Stop()
				for {
					select {
					case <-ctx.Done():
						return
					case <-ticker.C:
						svc.DispatchPending(ctx, 50)
					}
				}
			}()
			log.Infow("notification outbox worker started")
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
			case <-stopCtx.Done():
			}
			return nil
		},
	})
}

var Module = fx.Options(
	fx.Provide(newNotifier),
	fx.Provide(NewService),
	fx.Invoke(runWorker),
)
