package report

import (
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var printer = message.NewPrinter(language.English)

var elementNames = map[string]string{
	"N": "nitrogen",
	"P": "phosphorus",
	"K": "potassium",
}

func grams(d decimal.Decimal) string {
	return printer.Sprintf("%.2f g", d.InexactFloat64())
}

func money(d decimal.Decimal) string {
	return printer.Sprintf("%.2f", d.InexactFloat64())
}
