// Package echo adapts the x402 paywall to echo.
package echo

import (
	"net/http"

	"github.com/labstack/echo/v4"

	x402 "github.com/x402-foundation/x402exact"
	x402http "github.com/x402-foundation/x402exact/http"
	"github.com/x402-foundation/x402exact/logger"
)

// PaymentInfoKey is the echo context key holding the settled *x402.PaymentInfo.
const PaymentInfoKey = "x402_payment"

// Config configures the echo middleware
type Config struct {
	// ResourceRootURL prefixes the request path to form the resource URL.
	ResourceRootURL string
	Logger          logger.Logger
}

// Middleware returns echo middleware guarding restricted routes with paywall.
func Middleware(paywall *x402.Paywall, cfg Config) echo.MiddlewareFunc {
	log := cfg.Logger
	if log == nil {
		log = logger.NoopLogger{}
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			result, err := paywall.Process(req.Context(), x402http.NewRequest(req, cfg.ResourceRootURL))
			if err != nil {
				log.Error("paywall failed", map[string]any{"path": req.URL.Path, "error": err.Error()})
				return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
			}

			x402http.SetHeaders(c.Response().Header(), result)
			switch result.Outcome {
			case x402.PaywallPaymentRequired:
				return c.JSON(http.StatusPaymentRequired, result.Required)
			case x402.PaywallSettled:
				c.Set(PaymentInfoKey, result.Payment)
				c.SetRequest(req.WithContext(x402.WithPaymentInfo(req.Context(), result.Payment)))
			}
			return next(c)
		}
	}
}

// PaymentInfo returns the payment settled for this request, if any.
func PaymentInfo(c echo.Context) (*x402.PaymentInfo, bool) {
	info, ok := c.Get(PaymentInfoKey).(*x402.PaymentInfo)
	return info, ok && info != nil
}
