package gate

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
)

// signRequest produces the APIv4 signature: HMAC-SHA512 over the canonical
// request string
//
//	METHOD\nPATH\nQUERY\nSHA512(body)\nTIMESTAMP
//
// hex-encoded with the API secret as key.
func signRequest(secret, method, path, query, body string, timestamp int64) string {
	bodyHash := sha512.Sum512([]byte(body))
	payload := fmt.Sprintf("%s\n%s\n%s\n%s\n%d",
		method, path, query, hex.EncodeToString(bodyHash[:]), timestamp)

	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}
