package dispatch

import (
	"go.uber.org/fx"

	"github.com/framefolio/billing/internal/app/service/subscription"
)

func newApplier(svc *subscription.Service) Applier { return svc }

var Module = fx.Options(
	fx.Provide(newApplier),
	fx.Provide(NewDispatcher),
)
