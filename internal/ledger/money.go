package ledger

import (
	"github.com/govalues/money"
	"github.com/shopspring/decimal"
)

// DefaultCurrency is the ISO code amounts are displayed in.
const DefaultCurrency = "VND"

// FormatAmount renders d in currency for user-facing messages, rounded to the
// currency's minor unit.
func FormatAmount(currency string, d decimal.Decimal) string {
	a, err := money.ParseAmount(currency, d.String())
	if err != nil {
		return d.StringFixed(2) + " " + currency
	}
	return a.RoundToCurr().String()
}
