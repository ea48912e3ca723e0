package cmd

import "github.com/shopspring/decimal"

// dollars renders cents as a signed dollar amount.
func dollars(c int64) string {
	d := decimal.New(c, -2)
	if d.IsNegative() {
		return "-$" + d.Neg().StringFixed(2)
	}
	return "$" + d.StringFixed(2)
}
