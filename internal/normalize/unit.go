package normalize

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Canonical unit labels produced by Unit.
const (
	UnitPercent    = "%"
	UnitMillimetre = "mm"
	UnitNewton     = "N"
)

var (
	ten      = decimal.NewFromInt(10)
	hundred  = decimal.NewFromInt(100)
	thousand = decimal.NewFromInt(1000)
	one      = decimal.NewFromInt(1)
)

// Unit maps a measured value and its unit label into one canonical unit family.
//
// The label is trimmed and lower-cased before lookup. Three families are
// recognized:
//
//   - percentage: "%", "percent", "pct" → "%". Ratios ≤ 1 are interpreted as
//     fractions and multiplied by 100; values > 1 are assumed to already be a
//     percentage. Unit(0.995, "%") → (99.5, "%"); Unit(99.5, "%") → (99.5, "%").
//   - length: cm ×10, m ×1000, mm ×1 → "mm". Unit(2.5, "cm") → (25, "mm").
//   - force: kN ×1000, N ×1 → "N".
//
// An unrecognized label passes the value through unchanged with the original
// label preserved — never silently coerced to an unrelated unit.
//
// Spec bounds share the measured value's unit, so callers apply Unit with the
// same label to spec_min and spec_max as to the measurement itself.
func Unit(value decimal.Decimal, unit string) (decimal.Decimal, string) {
	switch strings.ToLower(strings.TrimSpace(unit)) {
	case "%", "percent", "pct":
		if value.Cmp(one) <= 0 {
			return value.Mul(hundred), UnitPercent
		}

		return value, UnitPercent

	case "cm", "centimeter", "centimeters", "centimetre", "centimetres":
		return value.Mul(ten), UnitMillimetre
	case "m", "meter", "meters", "metre", "metres":
		return value.Mul(thousand), UnitMillimetre
	case "mm", "millimeter", "millimeters", "millimetre", "millimetres":
		return value, UnitMillimetre

	case "kn", "kilonewton", "kilonewtons":
		return value.Mul(thousand), UnitNewton
	case "n", "newton", "newtons":
		return value, UnitNewton
	}

	return value, unit
}
