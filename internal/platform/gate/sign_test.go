package gate

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSignRequestKnownVectors(t *testing.T) {
	const secret = "test-secret"
	const ts = 1700000000

	sig := signRequest(secret, "POST", "/api/v4/futures/usdt/orders", "",
		`{"contract":"BTC_USDT","size":100,"price":"0","tif":"ioc"}`, ts)
	assert.Equal(t,
		"adf602c6d67ad3348094c8dcc2b2c953bd2ff9ea8ec10b5ea0fb800a2118c742b2181a82fd08fac1e95d431dcc30ee1531c70026bfbc6fafbee0dfc46b5f2d61",
		sig)

	sig = signRequest(secret, "GET", "/api/v4/futures/usdt/positions", "contract=BTC_USDT", "", ts)
	assert.Equal(t,
		"821cee066381acd8423800bcddbfa66b1c41aa06ec3ddf3a77dc618fe158d370f816d4b078aa6769ff44a7b8249bef898c27c12c3abcc336f1f3866196dcf969",
		sig)
}

func TestSignRequestSensitivity(t *testing.T) {
	base := signRequest("secret", "GET", "/api/v4/futures/usdt/positions", "", "", 1700000000)
	assert.Len(t, base, 128)

	assert.NotEqual(t, base, signRequest("other", "GET", "/api/v4/futures/usdt/positions", "", "", 1700000000))
	assert.NotEqual(t, base, signRequest("secret", "POST", "/api/v4/futures/usdt/positions", "", "", 1700000000))
	assert.NotEqual(t, base, signRequest("secret", "GET", "/api/v4/futures/usdt/positions", "", "", 1700000001))
	assert.Equal(t, base, signRequest("secret", "GET", "/api/v4/futures/usdt/positions", "", "", 1700000000))
}
