package app

import (
	"time"

	"go.uber.org/fx"

	"github.com/framefolio/billing/internal/app/api/server"
	"github.com/framefolio/billing/internal/app/service/currency"
	"github.com/framefolio/billing/internal/app/service/dispatch"
	"github.com/framefolio/billing/internal/app/service/ledger"
	"github.com/framefolio/billing/internal/app/service/notify"
	"github.com/framefolio/billing/internal/app/service/payment"
	"github.com/framefolio/billing/internal/app/service/provider"
	"github.com/framefolio/billing/internal/app/service/records"
	"github.com/framefolio/billing/internal/app/service/stats"
	"github.com/framefolio/billing/internal/app/service/subscription"
	"github.com/framefolio/billing/internal/app/service/tier"
	"github.com/framefolio/billing/internal/platform/cache"
	"github.com/framefolio/billing/internal/platform/db"
	"github.com/framefolio/billing/pkg/config"
	"github.com/framefolio/billing/pkg/logger"
)

const (
	DefaultStartTimeout = 15 * time.Second
	DefaultStopTimeout  = 10 * time.Second
)

var Module = fx.Options(
	logger.Module,
	config.Module,
	db.Module,
	cache.Module,
	server.Module,
	currency.Module,
	tier.Module,
	notify.Module,
	ledger.Module,
	subscription.Module,
	provider.Module,
	dispatch.Module,
	payment.Module,
	records.Module,
	stats.Module,
)
