package handler

import (
	"html/template"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"
)

const paymentReturnTemplate = "payment_return"

var paymentReturnPage = template.Must(template.New(paymentReturnTemplate).Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Payment received</title>
<style>
body{font-family:sans-serif;text-align:center;padding:48px 16px;color:#1f2933}
a.button{display:inline-block;margin-top:24px;padding:12px 28px;background:#0b7a3e;color:#fff;border-radius:6px;text-decoration:none}
</style>
</head>
<body>
<h1>Thank you</h1>
<p>Your payment is being confirmed. Your wallet balance updates automatically once it completes.</p>
{{if .TxRef}}<p><small>Reference: {{.TxRef}}</small></p>{{end}}
<a class="button" href="{{.DeepLink}}">Return to the app</a>
<script>setTimeout(function(){window.location.href={{.DeepLink}};},1500);</script>
</body>
</html>`))

// deepLink builds <scheme>://wallet/payment-return carrying the reference
// and status back to the app.
func deepLink(scheme, txRef, status string) template.URL {
	q := url.Values{}
	if txRef != "" {
		q.Set("tx_ref", txRef)
	}
	if status != "" {
		q.Set("status", status)
	}
	u := url.URL{Scheme: scheme, Host: "wallet", Path: "/payment-return", RawQuery: q.Encode()}
	return template.URL(u.String())
}

// PaymentReturn GET /wallet/payment-return
func (h *Handler) PaymentReturn(c *gin.Context) {
	txRef := c.Query("tx_ref")
	if txRef == "" {
		txRef = c.Query("trx_ref")
	}
	c.HTML(http.StatusOK, paymentReturnTemplate, gin.H{
		"TxRef":    txRef,
		"DeepLink": deepLink(h.cfg.App.DeepLinkScheme, txRef, c.Query("status")),
	})
}
