package models

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	amountRegex   = regexp.MustCompile(`\d[\d.,]*\d|\d`)
	currencyRegex = regexp.MustCompile(`(?:^|[^A-Za-z])(RM|MYR|USD|EUR|GBP|SGD|AUD|THB|IDR|JPY|KRW|VND|INR|PHP|CNY|HKD)(?:[^A-Za-z]|$)|([$€£¥₩₫₹฿₱₦₪])`)
)

// Money is a parsed price. Display keeps the text as the site rendered it,
// Amount is what gets compared.
type Money struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
	Display  string          `json:"display"`
}

// ParseMoney extracts the first amount in text. The currency is taken from the
// text when present, otherwise fallbackCurrency is used.
func ParseMoney(text, fallbackCurrency string) (Money, bool) {
	display := collapseSpace(text)
	amount, ok := ParseAmount(display)
	if !ok {
		return Money{Display: display}, false
	}
	currency := DetectCurrency(display)
	if currency == "" {
		currency = fallbackCurrency
	}
	return Money{Amount: amount, Currency: currency, Display: display}, true
}

// ParseAmount reads the first number in text, handling thousands separators.
// When both ',' and '.' occur the last one is the decimal separator. A lone
// ',' followed by exactly three digits is a thousands separator.
func ParseAmount(text string) (decimal.Decimal, bool) {
	token := amountRegex.FindString(text)
	if token == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(normalizeSeparators(token))
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// DetectCurrency returns the first currency code or symbol found in text
func DetectCurrency(text string) string {
	m := currencyRegex.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	if m[1] != "" {
		return m[1]
	}
	return m[2]
}

func normalizeSeparators(token string) string {
	lastComma := strings.LastIndex(token, ",")
	lastDot := strings.LastIndex(token, ".")

	switch {
	case lastComma >= 0 && lastDot >= 0:
		if lastComma > lastDot {
			return keepLastAsDecimal(strings.ReplaceAll(token, ".", ""), ",")
		}
		return keepLastAsDecimal(strings.ReplaceAll(token, ",", ""), ".")
	case lastComma >= 0:
		if strings.Count(token, ",") > 1 || len(token)-lastComma-1 == 3 {
			return strings.ReplaceAll(token, ",", "")
		}
		return strings.Replace(token, ",", ".", 1)
	case lastDot >= 0:
		if strings.Count(token, ".") > 1 {
			return strings.ReplaceAll(token, ".", "")
		}
	}
	return token
}

func keepLastAsDecimal(token, sep string) string {
	idx := strings.LastIndex(token, sep)
	intPart := strings.ReplaceAll(token[:idx], sep, "")
	return intPart + "." + token[idx+1:]
}

// Valid reports whether the amount is a usable positive price
func (m Money) Valid() bool {
	return m.Amount.IsPositive()
}

// Equal compares amounts only
func (m Money) Equal(other Money) bool {
	return m.Amount.Equal(other.Amount)
}

func (m Money) String() string {
	if m.Display != "" {
		return m.Display
	}
	if m.Currency == "" {
		return m.Amount.String()
	}
	return m.Currency + " " + m.Amount.String()
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
