package lottery

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// RandomFunc returns a uniform integer in [min, max].
type RandomFunc func(min, max int64) (int64, error)

// Selection records everything needed to replay a pick.
type Selection struct {
	ItemID      uuid.UUID
	Index       int
	RandomValue int64
	TotalWeight int64
}

// Pick draws r in [1, total] and resolves it with an inverse-CDF walk.
func (c Catalog) Pick(random RandomFunc) (Selection, error) {
	if len(c.entries) == 0 || c.total <= 0 {
		return Selection{}, ErrEmptyCatalog
	}
	if random == nil {
		return Selection{}, errors.New("lottery: random source is nil")
	}

	r, err := random(1, c.total)
	if err != nil {
		return Selection{}, err
	}
	return c.Resolve(r)
}

// Resolve maps r to the first entry whose cumulative weight reaches it. The
// walk follows declared order so (weights, r) always replays to the same item.
func (c Catalog) Resolve(r int64) (Selection, error) {
	if r < 1 || r > c.total {
		return Selection{}, fmt.Errorf("%w: r=%d total=%d", ErrNoCandidate, r, c.total)
	}

	var cumulative int64
	for i, entry := range c.entries {
		cumulative += entry.Weight
		if cumulative >= r {
			return Selection{
				ItemID:      entry.ItemID,
				Index:       i,
				RandomValue: r,
				TotalWeight: c.total,
			}, nil
		}
	}

	return Selection{}, fmt.Errorf("%w: r=%d total=%d", ErrNoCandidate, r, c.total)
}

// Cumulative returns the running sums in declared order; the last element
// equals TotalWeight.
func (c Catalog) Cumulative() []int64 {
	out := make([]int64, len(c.entries))
	var cumulative int64
	for i, entry := range c.entries {
		cumulative += entry.Weight
		out[i] = cumulative
	}
	return out
}
