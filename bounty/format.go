package bounty

import (
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var usdPrinter = message.NewPrinter(language.English)

// FormatUSD renders an amount with thousands grouping for log lines, e.g. "$12,345.60".
func FormatUSD(d decimal.Decimal) string {
	f, _ := d.Round(moneyPlaces).Float64()
	return usdPrinter.Sprintf("$%.2f", f)
}
