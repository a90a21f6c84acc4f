package handler

import (
	"net/http"

	"ridepay/internal/config"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// SetupRouter wires middleware and routes onto a new engine.
func SetupRouter(cfg *config.Config, log logrus.FieldLogger, h *Handler) (*gin.Engine, error) {
	if cfg.Server.Prod {
		gin.SetMode(gin.ReleaseMode)
	}
	if err := RegisterValidators(cfg.Wallet.AllowedPaymentMethods); err != nil {
		return nil, err
	}

	r := gin.New()
	r.Use(RecoveryMiddleware(log))
	r.Use(LoggerMiddleware(log))
	r.Use(CORSMiddleware())
	r.SetHTMLTemplate(paymentReturnPage)

	wallet := r.Group("/wallet")
	{
		// Gateway facing, authenticated by signature or not at all.
		wallet.POST("/webhook", h.Webhook)
		wallet.GET("/payment-return", h.PaymentReturn)

		authed := wallet.Group("", AuthMiddleware(cfg.JWT.Secret))
		authed.GET("/balance", h.GetBalance)
		authed.GET("/transactions", h.ListTransactions)
		authed.POST("/deposit", h.Deposit)
		authed.POST("/withdraw", h.Withdraw)
		authed.GET("/withdraw", h.ListWithdrawals)
		authed.GET("/events", h.Events)
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	return r, nil
}
