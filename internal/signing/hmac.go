package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// Sign produces a "v1=<hex>" signature over "<unix ts>.<payload>" so
// receivers can verify both integrity and freshness.
func Sign(secret string, payload []byte) (signature string, timestamp int64) {
	timestamp = time.Now().Unix()
	return signAt(secret, payload, timestamp), timestamp
}

func signAt(secret string, payload []byte, timestamp int64) string {
	toSign := fmt.Sprintf("%d.%s", timestamp, string(payload))

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(toSign))
	return fmt.Sprintf("v1=%s", hex.EncodeToString(mac.Sum(nil)))
}

func Verify(secret string, payload []byte, timestamp int64, signature string) bool {
	expected := signAt(secret, payload, timestamp)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// VerifyWithTolerance additionally rejects signatures whose timestamp is
// outside the replay window.
func VerifyWithTolerance(secret string, payload []byte, timestamp int64, signature string, tolerance time.Duration) bool {
	age := time.Since(time.Unix(timestamp, 0))
	if age < -tolerance || age > tolerance {
		return false
	}
	return Verify(secret, payload, timestamp, signature)
}
