package handler

import (
	"errors"
	"net/http"

	"ridepay/internal/gateway/chapa"
	"ridepay/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const maxWebhookBody = 1 << 20

// Webhook POST /wallet/webhook
//
// Chapa expects a 2xx for anything it should not retry, so only
// authentication and payload problems answer 4xx.
func (h *Handler) Webhook(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody)
	body, err := c.GetRawData()
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"ok": false, "error": "unreadable body"})
		return
	}

	result, err := h.deposits.HandleWebhook(c.Request.Context(), body, service.Signatures{
		Chapa:  c.GetHeader(chapa.HeaderSignature),
		XChapa: c.GetHeader(chapa.HeaderXSignature),
	})
	if err != nil {
		status := http.StatusInternalServerError
		message := "internal server error"
		switch {
		case errors.Is(err, service.ErrInvalidSignature):
			status, message = http.StatusBadRequest, "invalid signature"
		case errors.Is(err, service.ErrMissingReference):
			status, message = http.StatusBadRequest, "missing transaction reference"
		case errors.Is(err, service.ErrInvalidPayload):
			status, message = http.StatusBadRequest, "invalid payload"
		case errors.Is(err, service.ErrTransactionNotFound):
			status, message = http.StatusNotFound, "transaction not found"
		default:
			h.log.WithFields(logrus.Fields{"error": err}).Error("webhook processing failed")
		}
		c.AbortWithStatusJSON(status, gin.H{"ok": false, "error": message})
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true, "result": result})
}
