package exchange

import (
	"strings"

	"github.com/atlas-desktop/trading-core/pkg/types"
)

// RouteSymbol classifies a ticker by its shape so a multi-market provider
// can pick the right sub-route internally: an all-digit 6-character code
// is a Korean equity (e.g. "005930"), a symbol containing "/" is a crypto
// pair (e.g. "BTC/USDT"), anything else is treated as a US equity.
func RouteSymbol(symbol string) types.MarketTag {
	if strings.Contains(symbol, "/") {
		return types.MarketCrypto
	}
	if len(symbol) == 6 && isAllDigits(symbol) {
		return types.MarketKorea
	}
	return types.MarketUS
}

func isAllDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
