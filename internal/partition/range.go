// Package partition hosts the stock partitions of this process: each owns a
// contiguous productId range, its own store and its background loops.
package partition

import (
	"errors"
	"fmt"
)

var ErrNoPartition = errors.New("no partition owns product")

// Range is the inclusive productId interval owned by partition ID.
type Range struct {
	ID   int `json:"partitionId"`
	Low  int `json:"lowKey"`
	High int `json:"highKey"`
}

func (r Range) Contains(productID int) bool {
	return productID >= r.Low && productID <= r.High
}

// Ranges splits [low, high] into count contiguous ranges of near equal size.
// The first ranges absorb the remainder.
func Ranges(count, low, high int) ([]Range, error) {
	if count < 1 {
		return nil, fmt.Errorf("partition count %d must be positive", count)
	}
	if high < low {
		return nil, fmt.Errorf("productId range [%d, %d] is empty", low, high)
	}
	span := high - low + 1
	if count > span {
		return nil, fmt.Errorf("%d partitions for %d productIds", count, span)
	}

	size, rem := span/count, span%count
	out := make([]Range, 0, count)
	next := low
	for i := 0; i < count; i++ {
		n := size
		if i < rem {
			n++
		}
		out = append(out, Range{ID: i, Low: next, High: next + n - 1})
		next += n
	}
	return out, nil
}

// Lookup returns the range containing productID.
func Lookup(ranges []Range, productID int) (Range, error) {
	for _, r := range ranges {
		if r.Contains(productID) {
			return r, nil
		}
	}
	return Range{}, fmt.Errorf("%w %d", ErrNoPartition, productID)
}
