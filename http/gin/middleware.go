// Package gin adapts the x402 paywall to gin.
package gin

import (
	"net/http"

	"github.com/gin-gonic/gin"

	x402 "github.com/x402-foundation/x402exact"
	x402http "github.com/x402-foundation/x402exact/http"
	"github.com/x402-foundation/x402exact/logger"
)

// PaymentInfoKey is the gin context key holding the settled *x402.PaymentInfo.
const PaymentInfoKey = "x402_payment"

// Config configures the gin middleware
type Config struct {
	// ResourceRootURL prefixes the request path to form the resource URL.
	ResourceRootURL string
	Logger          logger.Logger
}

// Middleware returns gin middleware guarding restricted routes with paywall.
func Middleware(paywall *x402.Paywall, cfg Config) gin.HandlerFunc {
	log := cfg.Logger
	if log == nil {
		log = logger.NoopLogger{}
	}

	return func(c *gin.Context) {
		result, err := paywall.Process(c.Request.Context(), x402http.NewRequest(c.Request, cfg.ResourceRootURL))
		if err != nil {
			log.Error("paywall failed", map[string]any{"path": c.Request.URL.Path, "error": err.Error()})
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		x402http.SetHeaders(c.Writer.Header(), result)
		switch result.Outcome {
		case x402.PaywallPaymentRequired:
			c.AbortWithStatusJSON(http.StatusPaymentRequired, result.Required)
			return
		case x402.PaywallSettled:
			c.Set(PaymentInfoKey, result.Payment)
			c.Request = c.Request.WithContext(x402.WithPaymentInfo(c.Request.Context(), result.Payment))
		}
		c.Next()
	}
}

// PaymentInfo returns the payment settled for this request, if any.
func PaymentInfo(c *gin.Context) (*x402.PaymentInfo, bool) {
	value, ok := c.Get(PaymentInfoKey)
	if !ok {
		return nil, false
	}
	info, ok := value.(*x402.PaymentInfo)
	return info, ok
}
