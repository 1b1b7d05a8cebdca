// Gateway callback handler.
//
// This file exposes the endpoint Daraja posts asynchronous STK results to:
//   - POST /payments/callback
//
// The response contract is dictated by the gateway: anything other than a
// zero ResultCode acknowledgment makes Daraja re-deliver the callback,
// potentially for hours. The handler therefore always acknowledges once the
// payload parses, even when reconciliation hits an internal problem; the
// problem is logged and the retry is absorbed by the ledger's idempotent
// reconciliation. Only a structurally invalid body is rejected with 400.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/PeterNgeno/perontips-fliers-backend/internal/daraja"
	"github.com/PeterNgeno/perontips-fliers-backend/internal/http/middleware"
)

// GatewayCallback godoc
// @ID          gatewayCallback
// @Summary     Receive an STK push result
// @Description Endpoint registered with the gateway as the CallBackURL. Not intended for API clients.
// @Tags        Payments
// @Accept      json
// @Produce     json
//
// @Success     200  {object}  daraja.Ack
// @Failure     400  {object}  daraja.Ack  "Structurally invalid payload"
// @Router      /payments/callback [post]
func (h *Handlers) GatewayCallback(c *gin.Context) {
	var env daraja.CallbackEnvelope
	if err := c.ShouldBindJSON(&env); err != nil {
		c.JSON(http.StatusBadRequest, daraja.Ack{ResultCode: 1, ResultDesc: "invalid payload"})
		return
	}

	cb := env.Body.StkCallback
	lg := middleware.LoggerFrom(c)

	if err := h.paySvc.Reconcile(c.Request.Context(), cb); err != nil {
		// Acknowledge anyway: failing the delivery only summons a retry storm
		// that reconciliation has to absorb again.
		lg.Error().
			Err(err).
			Str("checkout_request_id", cb.CheckoutRequestID).
			Int("result_code", cb.ResultCode).
			Msg("callback reconciliation failed")
		c.JSON(http.StatusOK, daraja.AckOK)
		return
	}

	lg.Info().
		Str("checkout_request_id", cb.CheckoutRequestID).
		Int("result_code", cb.ResultCode).
		Str("receipt", cb.ReceiptNumber()).
		Msg("callback reconciled")
	c.JSON(http.StatusOK, daraja.AckOK)
}
