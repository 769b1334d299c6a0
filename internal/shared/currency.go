package shared

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var brl = message.NewPrinter(language.BrazilianPortuguese)

// FormatBRL renders a monetary amount in Brazilian convention, thousands
// separated by dots and a decimal comma.
func FormatBRL(v float64) string {
	return brl.Sprintf("R$ %.2f", v)
}
