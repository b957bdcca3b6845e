package domain

import "github.com/shopspring/decimal"

// minorUnits maps ISO 4217 currency codes to their number of decimal places.
// Currencies not listed use the common two-decimal default.
var minorUnits = map[string]int32{
	"BHD": 3,
	"CLP": 0,
	"ISK": 0,
	"JOD": 3,
	"JPY": 0,
	"KRW": 0,
	"KWD": 3,
	"OMR": 3,
	"TND": 3,
	"VND": 0,
}

// MinorUnits returns the number of decimal places for a currency.
func MinorUnits(currency string) int32 {
	if places, ok := minorUnits[currency]; ok {
		return places
	}
	return 2
}

// RoundToMinorUnit rounds an amount to the currency's smallest denomination,
// half away from zero.
func RoundToMinorUnit(amount decimal.Decimal, currency string) decimal.Decimal {
	return amount.Round(MinorUnits(currency))
}

// OneMinorUnit returns the smallest representable amount in a currency,
// the tolerance for reconciliation checks.
func OneMinorUnit(currency string) decimal.Decimal {
	return decimal.New(1, -MinorUnits(currency))
}
