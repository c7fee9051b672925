package symbols

import (
	"fmt"
	"strings"

	"orderly/models"
)

// Split breaks a canonical pair such as "BTC/USDT" into its upper-cased base
// and quote currencies.
func Split(pair string) (base, quote string, err error) {
	parts := strings.Split(strings.TrimSpace(pair), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("symbol %q is not of the form BASE/QUOTE", pair)
	}
	return strings.ToUpper(parts[0]), strings.ToUpper(parts[1]), nil
}

// ForExchange converts a canonical pair to the venue's own notation.
//
//	bitstamp  btcusdt
//	binance   btcusdt
//	kraken    XBT/USDT
//	coinbase  BTC-USDT
//	gateio    BTC_USDT
func ForExchange(exchange models.Exchange, pair string) (string, error) {
	base, quote, err := Split(pair)
	if err != nil {
		return "", err
	}
	switch exchange {
	case models.Bitstamp, models.Binance:
		return strings.ToLower(base + quote), nil
	case models.Kraken:
		if base == "BTC" {
			base = "XBT"
		}
		if quote == "BTC" {
			quote = "XBT"
		}
		return base + "/" + quote, nil
	case models.Coinbase:
		return base + "-" + quote, nil
	case models.Gateio:
		return base + "_" + quote, nil
	default:
		return "", fmt.Errorf("no symbol mapping for %s", exchange)
	}
}

// GateioSettle returns the settlement currency path segment gate.io uses in
// its futures websocket URL, e.g. "usdt" for BTC/USDT.
func GateioSettle(pair string) (string, error) {
	_, quote, err := Split(pair)
	if err != nil {
		return "", err
	}
	return strings.ToLower(quote), nil
}
