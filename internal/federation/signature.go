package federation

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// SignDelivery computes the hex MAC a peer expects over one delivery:
// HMAC-SHA256(secret, timestamp + "." + body).
func SignDelivery(secret, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyDeliverySignature recomputes the MAC and compares it to the
// supplied hex signature. Lengths are checked before the constant-time
// comparison; unequal lengths reject immediately.
func VerifyDeliverySignature(secret, timestamp string, body []byte, signature string) bool {
	expected := SignDelivery(secret, timestamp, body)
	if len(signature) != len(expected) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(signature), []byte(expected)) == 1
}
