package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	stellarAssetPrefix = "stellar:"
	fiatAssetPrefix    = "iso4217:"
)

// Amount is a decimal string paired with the asset it is denominated in.
type Amount struct {
	Amount string `json:"amount"`
	Asset  string `json:"asset"`
}

// IsEmpty reports whether neither value nor asset is set.
func (a Amount) IsEmpty() bool {
	return a.Amount == "" && a.Asset == ""
}

// IsStellarAsset reports whether the asset id refers to an asset issued on the ledger.
func IsStellarAsset(asset string) bool {
	return strings.HasPrefix(asset, stellarAssetPrefix)
}

// AssetCode extracts the code from a "stellar:CODE:ISSUER", "stellar:native" or "iso4217:CODE" id.
func AssetCode(asset string) string {
	switch {
	case strings.HasPrefix(asset, stellarAssetPrefix):
		rest := strings.TrimPrefix(asset, stellarAssetPrefix)
		if rest == "native" {
			return "native"
		}
		code, _, _ := strings.Cut(rest, ":")
		return code
	case strings.HasPrefix(asset, fiatAssetPrefix):
		return strings.TrimPrefix(asset, fiatAssetPrefix)
	default:
		return asset
	}
}

// AssetIssuer extracts the issuer from a "stellar:CODE:ISSUER" id.
func AssetIssuer(asset string) string {
	if !strings.HasPrefix(asset, stellarAssetPrefix) {
		return ""
	}
	parts := strings.SplitN(strings.TrimPrefix(asset, stellarAssetPrefix), ":", 2)
	if len(parts) != 2 {
		return ""
	}
	return parts[1]
}

// ParseAmount parses a decimal amount string.
func ParseAmount(value string) (decimal.Decimal, error) {
	if strings.TrimSpace(value) == "" {
		return decimal.Zero, fmt.Errorf("empty amount")
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse amount %q: %w", value, err)
	}
	return d, nil
}

// RoundHalfDown rounds d to scale places, resolving ties towards zero.
func RoundHalfDown(d decimal.Decimal, scale int32) decimal.Decimal {
	truncated := d.Truncate(scale)
	remainder := d.Sub(truncated).Abs()
	half := decimal.New(5, -(scale + 1))
	if remainder.GreaterThan(half) {
		unit := decimal.New(1, -scale)
		if d.IsNegative() {
			return truncated.Sub(unit)
		}
		return truncated.Add(unit)
	}
	return truncated
}

// ScaledAmount parses value and rounds it half-down at scale. An empty value is zero.
func ScaledAmount(value string, scale int32) (decimal.Decimal, error) {
	if strings.TrimSpace(value) == "" {
		return decimal.Zero, nil
	}
	d, err := ParseAmount(value)
	if err != nil {
		return decimal.Zero, err
	}
	return RoundHalfDown(d, scale), nil
}

// SumAmounts adds the values after rounding each one at scale.
func SumAmounts(scale int32, values ...string) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, v := range values {
		d, err := ScaledAmount(v, scale)
		if err != nil {
			return decimal.Zero, err
		}
		total = total.Add(d)
	}
	return total, nil
}

// FormatAmount renders d with exactly scale decimal places.
func FormatAmount(d decimal.Decimal, scale int32) string {
	return d.StringFixed(scale)
}

// DecimalPlaces returns the number of digits after the decimal point in value.
func DecimalPlaces(value string) int32 {
	_, frac, ok := strings.Cut(strings.TrimSpace(value), ".")
	if !ok {
		return 0
	}
	return int32(len(frac))
}
