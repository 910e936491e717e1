package domain

import (
	"errors"

	"github.com/shopspring/decimal"
)

var errInvalidDistribution = errors.New("distribution requires a non-negative total and at least one recipient")

// Distribute splits total into n integer shares that sum exactly to total.
//
// The base share is total/n rounded half-to-even. When that base leaves a
// remainder outside [0, n) the base over-rounded and the largest-remainder
// method takes over: every recipient gets floor(total/n) and the first
// remainder recipients, in input order, get one extra unit.
func Distribute(total int64, n int) ([]int64, error) {
	if n < 1 || total < 0 {
		return nil, errInvalidDistribution
	}

	count := int64(n)
	base := decimal.NewFromInt(total).
		Div(decimal.NewFromInt(count)).
		RoundBank(0).
		IntPart()

	remainder := total - base*count
	if remainder < 0 || remainder >= count {
		base = total / count
		remainder = total - base*count
	}

	shares := make([]int64, n)
	for i := range shares {
		shares[i] = base
		if int64(i) < remainder {
			shares[i]++
		}
	}

	return shares, nil
}
