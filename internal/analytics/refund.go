package analytics

import (
	"errors"

	"github.com/shopspring/decimal"
)

var (
	ErrZeroPrice       = errors.New("sale price must not be zero")
	ErrAlreadyRefunded = errors.New("sale is already refunded")
	ErrNotRefunded     = errors.New("sale is not refunded")
)

// RefundPrice flips a paid price negative.
func RefundPrice(price decimal.Decimal) (decimal.Decimal, error) {
	switch price.Sign() {
	case 0:
		return decimal.Zero, ErrZeroPrice
	case -1:
		return price, ErrAlreadyRefunded
	}
	return price.Neg(), nil
}

// UndoRefundPrice restores a refunded price to its positive value.
func UndoRefundPrice(price decimal.Decimal) (decimal.Decimal, error) {
	switch price.Sign() {
	case 0:
		return decimal.Zero, ErrZeroPrice
	case 1:
		return price, ErrNotRefunded
	}
	return price.Abs(), nil
}
