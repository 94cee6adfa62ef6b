package checkout

import (
	"fmt"
	"math"
	"strings"
)

// Currency pairs an ISO code with its number of minor-unit decimals.
type Currency struct {
	Code     string
	Decimals int
}

// DefaultCurrency is the Tunisian dinar, which has 1000 millimes.
var DefaultCurrency = Currency{Code: "tnd", Decimals: 3}

// Factor returns 10^Decimals.
func (c Currency) Factor() int64 {
	f := int64(1)
	for i := 0; i < c.Decimals; i++ {
		f *= 10
	}
	return f
}

// ToMinor converts a display amount to minor units, rounding half away
// from zero. Truncation would undercharge values like 150.005.
func (c Currency) ToMinor(amount float64) (int64, error) {
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return 0, fmt.Errorf("amount %v is not a finite number", amount)
	}
	if amount < 0 {
		return 0, fmt.Errorf("amount %v is negative", amount)
	}
	scaled := math.Round(amount * float64(c.Factor()))
	if scaled > float64(math.MaxInt64/2) {
		return 0, fmt.Errorf("amount %v is out of range", amount)
	}
	return int64(scaled), nil
}

// FromMinor converts minor units back to a display amount.
func (c Currency) FromMinor(minor int64) float64 {
	return float64(minor) / float64(c.Factor())
}

// Round rounds amount to the currency precision.
func (c Currency) Round(amount float64) float64 {
	f := float64(c.Factor())
	return math.Round(amount*f) / f
}

func (c Currency) String() string {
	return strings.ToUpper(c.Code)
}
