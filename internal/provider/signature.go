package provider

import (
	"crypto/hmac"
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
)

// RequestSignature computes the per-request MD5 signature PayWithAccount
// expects: md5 of "request_ref;client_secret", hex encoded.
func RequestSignature(requestRef, clientSecret string) string {
	sum := md5.Sum([]byte(requestRef + ";" + clientSecret))
	return hex.EncodeToString(sum[:])
}

// VerifyWebhookSignature checks an inbound webhook's HMAC-SHA256 signature
// against the raw body. Returns true when no secret is configured, so
// deployments without a shared secret still accept traffic.
func VerifyWebhookSignature(secret string, body []byte, signature string) bool {
	if secret == "" {
		return true
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	computed := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(computed), []byte(signature))
}
