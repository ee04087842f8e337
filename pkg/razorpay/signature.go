package razorpay

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Sign computes the checkout signature the gateway sends back with a
// successful payment: hex(HMAC-SHA256(orderID + "|" + paymentID, secret)).
func Sign(orderID, paymentID, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(orderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature compares in constant time.
func VerifySignature(orderID, paymentID, signature, secret string) bool {
	expected := Sign(orderID, paymentID, secret)
	return hmac.Equal([]byte(expected), []byte(signature))
}
