// Package pricing holds the derived-value arithmetic shared by the form
// preview, the persisted records, the exports and the statistics: line totals,
// quotation totals, USD/IQD conversion and display formatting.
package pricing

import (
	"errors"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// Currency codes as stored on quotations.
const (
	USD = "usd"
	IQD = "iqd"
)

// ErrMissingRate marks a conversion that fell back to the unconverted amount.
var ErrMissingRate = errors.New("no exchange rate configured")

// Line is anything carrying a computed line total.
type Line interface {
	LineTotal() float64
}

// LineTotal returns quantity × unitPrice computed in decimal, so integer and
// two-place inputs never pick up binary rounding noise.
func LineTotal(quantity, unitPrice float64) float64 {
	return decimal.NewFromFloat(quantity).Mul(decimal.NewFromFloat(unitPrice)).InexactFloat64()
}

// Subtotal sums the line totals.
func Subtotal[L Line](items []L) float64 {
	sum := decimal.Zero
	for _, it := range items {
		sum = sum.Add(decimal.NewFromFloat(it.LineTotal()))
	}
	return sum.InexactFloat64()
}

// CalculateTotalPrice is the subtotal minus discount. The result is not
// clamped, so a discount larger than the subtotal yields a negative total.
func CalculateTotalPrice[L Line](items []L, discount float64) float64 {
	sub := decimal.NewFromFloat(Subtotal(items))
	return sub.Sub(decimal.NewFromFloat(discount)).InexactFloat64()
}

// Conversion is the outcome of ConvertCurrency. Warning is set when the
// amount could not be converted and is returned as-is.
type Conversion struct {
	Amount    float64 `json:"amount"`
	Currency  string  `json:"currency"`
	Converted bool    `json:"converted"`
	Warning   string  `json:"warning,omitempty"`
}

// ConvertCurrency converts amount between USD and IQD using rate (IQD per USD).
// Equal currencies are an identity. A non-positive rate means no rate is
// known: the original amount comes back with a warning instead of an error.
func ConvertCurrency(amount float64, from, to string, rate float64) Conversion {
	if from == to {
		return Conversion{Amount: amount, Currency: to, Converted: true}
	}
	if rate <= 0 {
		return Conversion{Amount: amount, Currency: from, Warning: ErrMissingRate.Error()}
	}
	a := decimal.NewFromFloat(amount)
	r := decimal.NewFromFloat(rate)
	switch {
	case from == USD && to == IQD:
		return Conversion{Amount: a.Mul(r).InexactFloat64(), Currency: to, Converted: true}
	case from == IQD && to == USD:
		return Conversion{Amount: a.DivRound(r, 10).InexactFloat64(), Currency: to, Converted: true}
	}
	return Conversion{Amount: amount, Currency: from, Warning: "unsupported currency pair " + from + "/" + to}
}

// ConvertToIQD converts amount in currency to IQD.
func ConvertToIQD(amount float64, currency string, rate float64) Conversion {
	return ConvertCurrency(amount, currency, IQD, rate)
}

var printer = message.NewPrinter(language.English)

// FormatNumber renders n with thousands separators and at most two decimals,
// e.g. 1234567.5 → "1,234,567.5".
func FormatNumber(n float64) string {
	return printer.Sprint(number.Decimal(n, number.MaxFractionDigits(2)))
}

// FormatMoney renders n with the upper-case currency code appended.
func FormatMoney(n float64, currency string) string {
	code := "USD"
	if currency == IQD {
		code = "IQD"
	}
	return FormatNumber(n) + " " + code
}
