package patient

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// numericRule mirrors a numeric(precision, scale) column.
type numericRule struct {
	precision int32
	scale     int32
}

var (
	weightRule      = numericRule{5, 2}
	heightRule      = numericRule{4, 1}
	temperatureRule = numericRule{4, 1}
	oxygenRule      = numericRule{4, 1}
)

func (r numericRule) check(d decimal.Decimal) string {
	if d.IsNegative() {
		return "must not be negative"
	}
	if !d.Round(r.scale).Equal(d) {
		return fmt.Sprintf("must have at most %d decimal places", r.scale)
	}
	if !d.LessThan(decimal.New(1, r.precision-r.scale)) {
		return fmt.Sprintf("must have at most %d digits before the decimal point", r.precision-r.scale)
	}
	return ""
}

// fieldErrors collects per-field messages for apperr.ValidationFields.
type fieldErrors map[string]string

func (f fieldErrors) numeric(name string, d *decimal.Decimal, r numericRule) {
	if d == nil {
		return
	}
	if msg := r.check(*d); msg != "" {
		f[name] = msg
	}
}

func (f fieldErrors) nonNegative(name string, n *int) {
	if n != nil && *n < 0 {
		f[name] = "must not be negative"
	}
}

func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(*d)
}
