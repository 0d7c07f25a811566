package model

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// Amounts are int64 in the currency's minor unit to avoid float errors.

var zeroDecimalCurrencies = map[string]bool{
	"BIF": true, "CLP": true, "DJF": true, "GNF": true, "JPY": true, "KMF": true,
	"KRW": true, "MGA": true, "PYG": true, "RWF": true, "UGX": true, "VND": true,
	"VUV": true, "XAF": true, "XOF": true, "XPF": true,
}

// MinorUnitExponent returns how many decimal places the currency's minor unit has.
func MinorUnitExponent(currency string) int32 {
	if zeroDecimalCurrencies[strings.ToUpper(currency)] {
		return 0
	}
	return 2
}

// NormalizeCurrency upper-cases and trims an ISO currency code.
func NormalizeCurrency(c string) string { return strings.ToUpper(strings.TrimSpace(c)) }

// FormatAmount renders a minor-unit amount as a fixed-point string, e.g. 2550 USD -> "25.50".
func FormatAmount(amount int64, currency string) string {
	exp := MinorUnitExponent(currency)
	return decimal.New(amount, -exp).StringFixed(exp)
}

// ApplyDiscount returns amount * (1 - percent/100) rounded half-up to a whole minor unit.
func ApplyDiscount(amount int64, percent decimal.Decimal) int64 {
	factor := decimal.NewFromInt(1).Sub(percent.Div(decimal.NewFromInt(100)))
	return decimal.NewFromInt(amount).Mul(factor).Round(0).IntPart()
}

// BundlePrice is the pricing summary of a bundle checkout.
type BundlePrice struct {
	ComicCount      int
	OriginalPrice   int64
	DiscountedPrice int64
	Savings         int64
	// PerItem holds the discounted share of each item in input order; shares sum to DiscountedPrice.
	PerItem []int64
}

// PriceBundle computes the bundle total from the item prices and splits it back across items.
// The total is discounted once so rounding happens on the aggregate. The split is
// proportional to price with largest-remainder rounding, so no share is negative
// and each differs from its exact value by less than one minor unit.
func PriceBundle(prices []int64, percent decimal.Decimal) BundlePrice {
	var original int64
	for _, p := range prices {
		original += p
	}
	discounted := ApplyDiscount(original, percent)

	per := make([]int64, len(prices))
	if original > 0 && discounted > 0 {
		total, whole := decimal.NewFromInt(original), decimal.NewFromInt(discounted)
		rems := make([]decimal.Decimal, len(prices))
		order := make([]int, len(prices))
		var allocated int64
		for i, p := range prices {
			q, r := decimal.NewFromInt(p).Mul(whole).QuoRem(total, 0)
			per[i], rems[i], order[i] = q.IntPart(), r, i
			allocated += per[i]
		}
		// ties go to the earlier item
		sort.SliceStable(order, func(a, b int) bool { return rems[order[a]].GreaterThan(rems[order[b]]) })
		for k := int64(0); k < discounted-allocated; k++ {
			per[order[k]]++
		}
	}
	return BundlePrice{
		ComicCount:      len(prices),
		OriginalPrice:   original,
		DiscountedPrice: discounted,
		Savings:         original - discounted,
		PerItem:         per,
	}
}
