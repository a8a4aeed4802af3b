package billing

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// DateLayout is the short date format used in billing views (e.g. "Mar 5, 2024").
const DateLayout = "Jan 2, 2006"

const defaultCurrency = "usd"

var currencySymbols = map[string]string{
	"usd": "$",
	"eur": "€",
	"gbp": "£",
	"jpy": "¥",
	"cad": "CA$",
	"aud": "A$",
}

var amountPrinter = message.NewPrinter(language.AmericanEnglish)

// FormatAmount renders an amount in minor currency units, e.g. 123456 usd -> "$1,234.56".
func FormatAmount(minor int64, cur string) string {
	cur = strings.ToLower(cur)
	if cur == "" {
		cur = defaultCurrency
	}

	scale := 2
	if unit, err := currency.ParseISO(cur); err == nil {
		scale, _ = currency.Standard.Rounding(unit)
	}

	sign := ""
	if minor < 0 {
		sign = "-"
		minor = -minor
	}

	major, _ := decimal.New(minor, -int32(scale)).Float64()
	number := amountPrinter.Sprintf(fmt.Sprintf("%%.%df", scale), major)

	if symbol, ok := currencySymbols[cur]; ok {
		return sign + symbol + number
	}
	return sign + strings.ToUpper(cur) + " " + number
}

// FormatDate renders t as a short date in loc.
func FormatDate(t time.Time, loc *time.Location) string {
	if t.IsZero() {
		return ""
	}
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(DateLayout)
}

// DescribeDiscount builds a human-readable description of an applied coupon,
// e.g. "Launch: -20% for 3 months".
func DescribeDiscount(d *Discount) string {
	if d == nil {
		return ""
	}
	var off string
	if d.PercentOff > 0 {
		off = strconv.FormatFloat(d.PercentOff, 'f', -1, 64) + "%"
	} else {
		off = FormatAmount(d.AmountOff, d.Currency)
	}

	desc := fmt.Sprintf("-%s", off)
	if d.Name != "" {
		desc = d.Name + ": " + desc
	}
	if d.DurationInMonths > 0 {
		desc += fmt.Sprintf(" for %d months", d.DurationInMonths)
	}
	return desc
}
