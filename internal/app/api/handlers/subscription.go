package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/framefolio/billing/internal/app/api/middleware"
	subsvc "github.com/framefolio/billing/internal/app/service/subscription"
	"github.com/framefolio/billing/internal/app/service/tier"
	"github.com/framefolio/billing/internal/models"
	"github.com/framefolio/billing/pkg/config"
	"github.com/framefolio/billing/pkg/logctx"
	"github.com/framefolio/billing/pkg/response"
	"github.com/framefolio/billing/pkg/types"
)

type SubscriptionItem struct {
	ID                 string                   `json:"id"`
	Tier               types.Tier               `json:"tier"`
	Cycle              types.BillingCycle       `json:"billing_cycle"`
	Status             types.SubscriptionStatus `json:"status"`
	Provider           types.PaymentProvider    `json:"provider"`
	Amount             int64                    `json:"amount"`
	Currency           string                   `json:"currency"`
	CurrentPeriodStart time.Time                `json:"current_period_start"`
	CurrentPeriodEnd   time.Time                `json:"current_period_end"`
	CanceledAt         *time.Time               `json:"canceled_at"`
	Entitled           bool                     `json:"entitled"`
}

func toSubscriptionItem(m *models.Subscription) *SubscriptionItem {
	return &SubscriptionItem{
		ID:                 m.ID,
		Tier:               m.Tier,
		Cycle:              m.Cycle,
		Status:             m.Status,
		Provider:           m.Provider,
		Amount:             m.Amount,
		Currency:           m.Currency,
		CurrentPeriodStart: m.CurrentPeriodStart,
		CurrentPeriodEnd:   m.CurrentPeriodEnd,
		CanceledAt:         m.CanceledAt,
		Entitled:           m.Entitled(time.Now()),
	}
}

// @Summary      Get Current Subscription
// @Description  Returns the acting user's most recent subscription, if any.
// @Tags         Subscription
// @Produce      json
// @Success      200  {object}  handlers.RespSubscription
// @Router       /api/v1/subscription [get]
func ApiGetSubscription(sub *subsvc.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		m, err := sub.GetByUser(c.Request.Context(), middleware.UserID(c))
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		if m == nil {
			c.JSON(http.StatusOK, response.OKT[any](nil))
			return
		}
		c.JSON(http.StatusOK, response.OKT(toSubscriptionItem(m)))
	}
}

// @Summary      Cancel Subscription
// @Description  Cancels the acting user's subscription. Current usage is validated against the fallback tier's limits first; violations block the cancellation. Depending on the grace policy, access runs to period end or stops immediately.
// @Tags         Subscription
// @Produce      json
// @Success      200  {object}  handlers.RespSubscription
// @Router       /api/v1/subscription/cancel [post]
func ApiCancelSubscription(sub *subsvc.Service, tiers *tier.Service, cfg *config.Config, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := middleware.UserID(c)

		// the post-cancel tier must fit the user's usage before anything mutates
		check, err := tiers.ValidateDowngrade(c.Request.Context(), userID, cfg.Cancel.FallbackTier, false)
		if err != nil {
			logctx.FromGin(c, log).Errorw("subscription_cancel_validate_error", "error", err)
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		if !check.Valid {
			c.JSON(http.StatusOK, response.ErrorT(response.APIResponseCodeBadRequest, check))
			return
		}

		m, err := sub.CancelByUser(c.Request.Context(), userID)
		if err != nil {
			if errors.Is(err, subsvc.ErrNoActiveSubscription) {
				c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, "no active subscription"))
				return
			}
			logctx.FromGin(c, log).Errorw("subscription_cancel_error", "error", err)
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(toSubscriptionItem(m)))
	}
}

type ValidateDowngradeRequest struct {
	Target types.Tier `json:"target" binding:"required"`
}

// @Summary      Validate Tier Downgrade
// @Description  Checks the acting user's current usage against the target tier's limits.
// @Tags         Subscription
// @Accept       json
// @Produce      json
// @Param        request body ValidateDowngradeRequest true "Target tier"
// @Success      200  {object}  handlers.RespDowngradeCheck
// @Router       /api/v1/subscription/validate_downgrade [post]
func ApiValidateDowngrade(tiers *tier.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ValidateDowngradeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		if !req.Target.Valid() {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, "unknown tier"))
			return
		}
		check, err := tiers.ValidateDowngrade(c.Request.Context(), middleware.UserID(c), req.Target, false)
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(check))
	}
}

func RegisterSubscriptionRoutes(r gin.IRouter, sub *subsvc.Service, tiers *tier.Service, cfg *config.Config, log *zap.SugaredLogger) {
	r.GET("/subscription", ApiGetSubscription(sub))
	r.POST("/subscription/cancel", ApiCancelSubscription(sub, tiers, cfg, log))
	r.POST("/subscription/validate_downgrade", ApiValidateDowngrade(tiers))
}
