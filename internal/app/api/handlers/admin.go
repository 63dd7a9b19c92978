package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/framefolio/billing/internal/app/service/payment"
	"github.com/framefolio/billing/internal/app/service/records"
	"github.com/framefolio/billing/internal/app/service/stats"
	subsvc "github.com/framefolio/billing/internal/app/service/subscription"
	"github.com/framefolio/billing/internal/app/service/tier"
	"github.com/framefolio/billing/pkg/logctx"
	"github.com/framefolio/billing/pkg/response"
	"github.com/framefolio/billing/pkg/types"
)

// @Summary      List Payments (Admin)
// @Description  Retrieves a paginated and filterable list of settled payments.
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Param        request body records.ScanRequest true "List request with filters, pagination, and sorting"
// @Success      200  {object}  handlers.RespListPayments
// @Router       /api/v1/admin/payments/list [post]
func ApiListPayments(rec *records.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req records.ScanRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		res, err := rec.ScanPayments(c.Request.Context(), &req)
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

// @Summary      List Webhook Events (Admin)
// @Description  Retrieves idempotency ledger entries for delivery debugging.
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Param        request body records.ScanRequest true "List request with filters, pagination, and sorting"
// @Success      200  {object}  handlers.RespListWebhookEvents
// @Router       /api/v1/admin/webhook_events/list [post]
func ApiListWebhookEvents(rec *records.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req records.ScanRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		res, err := rec.ScanWebhookEvents(c.Request.Context(), &req)
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

// @Summary      Get Billing Statistics (Admin)
// @Description  Retrieves daily payment counts, USD-normalized gross volume, and subscription breakdowns.
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Param        request body stats.StatisticRequest true "Statistic request parameters"
// @Success      200  {object}  handlers.RespStatistics
// @Router       /api/v1/admin/statistics [post]
func ApiGetStatistics(svc *stats.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req stats.StatisticRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		res, err := svc.Query(c.Request.Context(), &req)
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

type AdminCancelRequest struct {
	UserID string `json:"user_id" binding:"required"`
}

// @Summary      Cancel User Subscription (Admin)
// @Description  Cancels the given user's subscription on their behalf. Skips the usage validation the user-facing cancel runs; this is the forced path.
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Param        request body AdminCancelRequest true "Target user"
// @Success      200  {object}  handlers.RespSubscription
// @Router       /api/v1/admin/subscription/cancel [post]
func ApiAdminCancelSubscription(sub *subsvc.Service, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req AdminCancelRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		m, err := sub.CancelByUser(c.Request.Context(), req.UserID)
		if err != nil {
			if errors.Is(err, subsvc.ErrNoActiveSubscription) {
				c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, "no active subscription"))
				return
			}
			logctx.FromGin(c, log).Errorw("admin_cancel_error", "target_user", req.UserID, "error", err)
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(toSubscriptionItem(m)))
	}
}

type AdminValidateDowngradeRequest struct {
	UserID string     `json:"user_id" binding:"required"`
	Target types.Tier `json:"target" binding:"required"`
	// Forced reports the usage conflicts without blocking the downgrade.
	Forced bool `json:"forced"`
}

// @Summary      Validate User Downgrade (Admin)
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Param        request body AdminValidateDowngradeRequest true "Target user and tier"
// @Success      200  {object}  handlers.RespDowngradeCheck
// @Router       /api/v1/admin/subscription/validate_downgrade [post]
func ApiAdminValidateDowngrade(tiers *tier.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req AdminValidateDowngradeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		check, err := tiers.ValidateDowngrade(c.Request.Context(), req.UserID, req.Target, req.Forced)
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(check))
	}
}

func RegisterAdminRoutes(r gin.IRouter, rec *records.Service, statsSvc *stats.Service, sub *subsvc.Service, tiers *tier.Service, pay *payment.Service, log *zap.SugaredLogger) {
	r.POST("/payments/list", ApiListPayments(rec))
	r.POST("/payments/refund", ApiRefundCharge(pay, log))
	r.POST("/webhook_events/list", ApiListWebhookEvents(rec))
	r.POST("/statistics", ApiGetStatistics(statsSvc))
	r.POST("/subscription/cancel", ApiAdminCancelSubscription(sub, log))
	r.POST("/subscription/validate_downgrade", ApiAdminValidateDowngrade(tiers))
}
