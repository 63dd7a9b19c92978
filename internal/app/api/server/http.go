package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/framefolio/billing/docs"
	"github.com/framefolio/billing/internal/app/api/handlers"
	mw "github.com/framefolio/billing/internal/app/api/middleware"
	"github.com/framefolio/billing/internal/app/service/dispatch"
	"github.com/framefolio/billing/internal/app/service/payment"
	"github.com/framefolio/billing/internal/app/service/records"
	"github.com/framefolio/billing/internal/app/service/stats"
	subsvc "github.com/framefolio/billing/internal/app/service/subscription"
	"github.com/framefolio/billing/internal/app/service/tier"
	cfgpkg "github.com/framefolio/billing/pkg/config"
	"github.com/framefolio/billing/pkg/metrics"
)

func newEngine() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	// Add request tracing middleware only; request logger & access log are attached per group in registerRoutes
	r.Use(mw.TraceMiddleware())
	return r
}

func registerRoutes(
	r *gin.Engine,
	log *zap.SugaredLogger,
	cfg *cfgpkg.Config,
	dispatcher *dispatch.Dispatcher,
	sub *subsvc.Service,
	tiers *tier.Service,
	pay *payment.Service,
	rec *records.Service,
	statsSvc *stats.Service,
) {
	// Prometheus metrics
	if cfg != nil && cfg.MetricsAddr != "" {
		p := metrics.NewPrometheus(metrics.NewPrometheusOptions{
			MetricsList: []*metrics.Metric{metrics.MetricWebhookProcess},
			ReqCntURLLabelMappingFn: func(c *gin.Context) string {
				if fp := c.FullPath(); fp != "" {
					return fp
				}
				return c.Request.URL.Path
			},
			Logger: log,
		})
		p.SetListenAddress(cfg.MetricsAddr)
		p.Use(r)

		log.Infow("metrics started", "addr", cfg.MetricsAddr)
	}

	// Public group: request logger + access log
	pub := r.Group("/")
	pub.Use(mw.RequestLoggerMiddleware(log), mw.AccessLogMiddleware())
	handlers.RegisterHealthRoutes(pub)
	// Swagger UI
	docs.SwaggerInfo.BasePath = "/"
	pub.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Webhook endpoints are signed by the providers, not bearer-authed.
	webhooks := r.Group("/webhooks")
	webhooks.Use(mw.RequestLoggerMiddleware(log), mw.AccessLogMiddleware())
	handlers.RegisterWebhookRoutes(webhooks, dispatcher, log)

	// User group behind bearer auth
	apiV1 := r.Group("/api/v1")
	apiV1.Use(mw.AuthMiddleware(cfg.Auth.JWTSecret), mw.RequestLoggerMiddleware(log), mw.AccessLogMiddleware())
	handlers.RegisterSubscriptionRoutes(apiV1, sub, tiers, cfg, log)
	handlers.RegisterPaymentRoutes(apiV1, pay, log)

	// Admin group additionally gated on the role claim
	admin := apiV1.Group("/admin")
	admin.Use(mw.AdminRequired(cfg.Auth.AdminRole))
	handlers.RegisterAdminRoutes(admin, rec, statsSvc, sub, tiers, pay, log)
}

func runServer(lc fx.Lifecycle, log *zap.SugaredLogger, cfg *cfgpkg.Config, r *gin.Engine) {
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 5 * time.Second}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Infow("starting HTTP server", "addr", addr)
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Errorf("server error: %v", err)
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Infow("stopping HTTP server")
			shutdownCtx, cancel := context.WithTimeout(ctx, 120*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

var Module = fx.Options(
	fx.Provide(newEngine),
	fx.Invoke(registerRoutes),
	fx.Invoke(runServer),
)
