package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/framefolio/billing/internal/app/api/middleware"
	"github.com/framefolio/billing/internal/app/service/payment"
	"github.com/framefolio/billing/pkg/logctx"
	"github.com/framefolio/billing/pkg/response"
)

const idempotencyKeyHeader = "Idempotency-Key"

// @Summary      Create Charge
// @Description  Initiates a synchronous charge against the configured gateway. Supply an Idempotency-Key header so retried requests replay the first result instead of charging twice.
// @Tags         Payment
// @Accept       json
// @Produce      json
// @Param        Idempotency-Key header string false "Client-supplied idempotency key"
// @Param        request body payment.ChargeRequest true "Charge request"
// @Success      200  {object}  handlers.RespChargeResult
// @Router       /api/v1/payments/charge [post]
func ApiCreateCharge(svc *payment.Service, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req payment.ChargeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		// the acting user pays; a caller cannot charge someone else
		req.UserID = middleware.UserID(c)

		res, err := svc.Charge(c.Request.Context(), &req, c.GetHeader(idempotencyKeyHeader))
		if err != nil {
			logctx.FromGin(c, log).Errorw("charge_error", "error", err)
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

// @Summary      Refund Charge (Admin)
// @Description  Forwards a refund to the configured gateway. The refund is reconciled into records by the provider's refund webhook.
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Param        request body payment.RefundRequest true "Refund request"
// @Success      200  {object}  handlers.RespRefundResult
// @Router       /api/v1/admin/payments/refund [post]
func ApiRefundCharge(svc *payment.Service, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req payment.RefundRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}

		res, err := svc.Refund(c.Request.Context(), &req)
		if err != nil {
			logctx.FromGin(c, log).Errorw("refund_error", "reference", req.Reference, "error", err)
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

func RegisterPaymentRoutes(r gin.IRouter, svc *payment.Service, log *zap.SugaredLogger) {
	r.POST("/payments/charge", ApiCreateCharge(svc, log))
}
