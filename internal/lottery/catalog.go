package lottery

import (
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"
)

var (
	ErrEmptyCatalog   = errors.New("lottery: catalog has no entries")
	ErrInvalidWeight  = errors.New("lottery: weight must be positive")
	ErrInvalidItemID  = errors.New("lottery: entry item id is empty")
	ErrWeightOverflow = errors.New("lottery: total weight overflows")

	// ErrNoCandidate means the cumulative walk selected nothing. Resolve returns it
	// instead of falling back to any entry.
	ErrNoCandidate = errors.New("lottery: weighted walk selected no candidate")
)

// Entry is one (item, weight) pair in catalog-declared order.
type Entry struct {
	ItemID uuid.UUID `json:"item_id" yaml:"item_id"`
	Weight int64     `json:"weight" yaml:"weight"`
}

// Catalog is a validated, ordered weight list. The zero value is empty and
// refuses to pick.
type Catalog struct {
	entries []Entry
	total   int64
}

// NewCatalog validates weights once so draw code never re-checks them.
func NewCatalog(entries []Entry) (Catalog, error) {
	if len(entries) == 0 {
		return Catalog{}, ErrEmptyCatalog
	}

	copied := make([]Entry, len(entries))
	var total int64
	for i, entry := range entries {
		if entry.ItemID == uuid.Nil {
			return Catalog{}, fmt.Errorf("%w at position %d", ErrInvalidItemID, i)
		}
		if entry.Weight <= 0 {
			return Catalog{}, fmt.Errorf("%w at position %d: %d", ErrInvalidWeight, i, entry.Weight)
		}
		if total > math.MaxInt64-entry.Weight {
			return Catalog{}, ErrWeightOverflow
		}
		total += entry.Weight
		copied[i] = entry
	}

	return Catalog{entries: copied, total: total}, nil
}

func (c Catalog) Len() int {
	return len(c.entries)
}

func (c Catalog) TotalWeight() int64 {
	return c.total
}

// Entries returns a copy in declared order.
func (c Catalog) Entries() []Entry {
	out := make([]Entry, len(c.entries))
	copy(out, c.entries)
	return out
}

func (c Catalog) Contains(itemID uuid.UUID) bool {
	for _, entry := range c.entries {
		if entry.ItemID == itemID {
			return true
		}
	}
	return false
}
