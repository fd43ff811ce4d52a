package parser

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

const defaultCurrency = "CRC"

var (
	amountBodyRegex = regexp.MustCompile(`(?i)(₡|\$|CRC|USD)\s?([\d.,]+)`)
	amountDigits    = regexp.MustCompile(`([\d.,]+)`)
)

// extractAmount resolves the amount and currency from a label field first and
// the full text second, defaulting to zero colones.
func extractAmount(labels map[string]string, body string) (decimal.Decimal, string) {
	if value := firstLabel(labels, "monto", "monto total", "monto a pagar"); value != "" {
		if amount, currency, ok := parseAmountText(value); ok {
			return amount, currency
		}
	}

	if m := amountBodyRegex.FindStringSubmatch(body); m != nil {
		currency := currencyFromToken(m[1])
		if amount, err := decimal.NewFromString(normalizeAmount(m[2])); err == nil {
			return amount.Round(2), currency
		}
	}

	return decimal.Zero.Round(2), defaultCurrency
}

// parseAmountText parses a label value such as "CRC 15,320.50" or "$120.00".
func parseAmountText(text string) (decimal.Decimal, string, bool) {
	currency := defaultCurrency
	upper := strings.ToUpper(text)
	if strings.Contains(upper, "USD") || strings.Contains(upper, "US$") || strings.Contains(text, "$") {
		currency = "USD"
	}
	if strings.Contains(upper, "CRC") || strings.Contains(text, "₡") {
		currency = "CRC"
	}

	m := amountDigits.FindStringSubmatch(text)
	if m == nil {
		return decimal.Zero, "", false
	}
	amount, err := decimal.NewFromString(normalizeAmount(m[1]))
	if err != nil {
		return decimal.Zero, "", false
	}
	return amount.Round(2), currency, true
}

// normalizeAmount resolves the decimal separator heuristically: when both
// separators appear, whichever comes later is the decimal point; a lone comma
// is treated as the decimal point.
func normalizeAmount(raw string) string {
	value := strings.ReplaceAll(raw, " ", "")
	hasComma := strings.Contains(value, ",")
	hasDot := strings.Contains(value, ".")
	switch {
	case hasComma && hasDot:
		if strings.LastIndex(value, ",") > strings.LastIndex(value, ".") {
			value = strings.ReplaceAll(value, ".", "")
			value = strings.ReplaceAll(value, ",", ".")
		} else {
			value = strings.ReplaceAll(value, ",", "")
		}
	case hasComma:
		value = strings.ReplaceAll(value, ",", ".")
	}
	return value
}

func currencyFromToken(token string) string {
	switch strings.ToUpper(token) {
	case "₡", "CRC":
		return "CRC"
	case "$", "US$", "USD":
		return "USD"
	}
	return defaultCurrency
}
