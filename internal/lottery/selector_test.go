package lottery

import (
	"errors"
	"math"
	"testing"

	"github.com/google/uuid"

	"lootbox-hub/pkg/fairness"
)

func mustCatalog(t *testing.T, weights ...int64) (Catalog, []uuid.UUID) {
	t.Helper()

	ids := make([]uuid.UUID, 0, len(weights))
	entries := make([]Entry, 0, len(weights))
	for _, w := range weights {
		id := uuid.New()
		ids = append(ids, id)
		entries = append(entries, Entry{ItemID: id, Weight: w})
	}
	catalog, err := NewCatalog(entries)
	if err != nil {
		t.Fatalf("NewCatalog: %v", err)
	}
	return catalog, ids
}

func TestNewCatalog_Validation(t *testing.T) {
	t.Parallel()

	if _, err := NewCatalog(nil); !errors.Is(err, ErrEmptyCatalog) {
		t.Fatalf("expected ErrEmptyCatalog, got %v", err)
	}
	if _, err := NewCatalog([]Entry{{ItemID: uuid.New(), Weight: 0}}); !errors.Is(err, ErrInvalidWeight) {
		t.Fatalf("expected ErrInvalidWeight for zero weight, got %v", err)
	}
	if _, err := NewCatalog([]Entry{{ItemID: uuid.New(), Weight: -3}}); !errors.Is(err, ErrInvalidWeight) {
		t.Fatalf("expected ErrInvalidWeight for negative weight, got %v", err)
	}
	if _, err := NewCatalog([]Entry{{ItemID: uuid.Nil, Weight: 1}}); !errors.Is(err, ErrInvalidItemID) {
		t.Fatalf("expected ErrInvalidItemID, got %v", err)
	}
	overflow := []Entry{
		{ItemID: uuid.New(), Weight: math.MaxInt64},
		{ItemID: uuid.New(), Weight: 1},
	}
	if _, err := NewCatalog(overflow); !errors.Is(err, ErrWeightOverflow) {
		t.Fatalf("expected ErrWeightOverflow, got %v", err)
	}
}

func TestResolve_InverseCDFBoundaries(t *testing.T) {
	t.Parallel()

	catalog, ids := mustCatalog(t, 90, 10)

	tests := []struct {
		r    int64
		want uuid.UUID
	}{
		{r: 1, want: ids[0]},
		{r: 90, want: ids[0]},
		{r: 91, want: ids[1]},
		{r: 100, want: ids[1]},
	}
	for _, tc := range tests {
		got, err := catalog.Resolve(tc.r)
		if err != nil {
			t.Fatalf("Resolve(%d): %v", tc.r, err)
		}
		if got.ItemID != tc.want {
			t.Fatalf("Resolve(%d): expected %s, got %s", tc.r, tc.want, got.ItemID)
		}
		if got.TotalWeight != 100 || got.RandomValue != tc.r {
			t.Fatalf("Resolve(%d): unexpected selection %+v", tc.r, got)
		}
	}
}

func TestResolve_OutOfRangeIsInvariantViolation(t *testing.T) {
	t.Parallel()

	catalog, _ := mustCatalog(t, 5, 5)
	for _, r := range []int64{0, 11, -1} {
		if _, err := catalog.Resolve(r); !errors.Is(err, ErrNoCandidate) {
			t.Fatalf("Resolve(%d): expected ErrNoCandidate, got %v", r, err)
		}
	}

	var empty Catalog
	if _, err := empty.Pick(fairness.SecureRandomInRange); !errors.Is(err, ErrEmptyCatalog) {
		t.Fatalf("expected ErrEmptyCatalog from zero catalog, got %v", err)
	}
}

func TestPick_PropagatesRandomError(t *testing.T) {
	t.Parallel()

	catalog, _ := mustCatalog(t, 1, 2)
	boom := errors.New("entropy gone")
	_, err := catalog.Pick(func(_, _ int64) (int64, error) { return 0, boom })
	if !errors.Is(err, boom) {
		t.Fatalf("expected random error, got %v", err)
	}
}

func TestCumulative_EndsAtTotal(t *testing.T) {
	t.Parallel()

	catalog, _ := mustCatalog(t, 3, 7, 11, 1)
	cumulative := catalog.Cumulative()
	if cumulative[len(cumulative)-1] != catalog.TotalWeight() {
		t.Fatalf("expected last cumulative %d to equal total %d", cumulative[len(cumulative)-1], catalog.TotalWeight())
	}
	for i := 1; i < len(cumulative); i++ {
		if cumulative[i] <= cumulative[i-1] {
			t.Fatalf("cumulative sums must be strictly increasing: %v", cumulative)
		}
	}
}

func TestPick_EmpiricalDistribution(t *testing.T) {
	t.Parallel()

	weights := []int64{50, 30, 15, 5}
	catalog, ids := mustCatalog(t, weights...)
	index := make(map[uuid.UUID]int, len(ids))
	for i, id := range ids {
		index[id] = i
	}

	const draws = 40000
	counts := make([]int, len(ids))
	for i := 0; i < draws; i++ {
		sel, err := catalog.Pick(fairness.SecureRandomInRange)
		if err != nil {
			t.Fatalf("Pick: %v", err)
		}
		pos, ok := index[sel.ItemID]
		if !ok {
			t.Fatalf("Pick returned %s which is not in the catalog", sel.ItemID)
		}
		if sel.Index != pos {
			t.Fatalf("selection index %d does not match item position %d", sel.Index, pos)
		}
		counts[pos]++
	}

	for i, w := range weights {
		expected := float64(w) / float64(catalog.TotalWeight())
		observed := float64(counts[i]) / draws
		// ~6 standard deviations at this sample size.
		tolerance := 6 * math.Sqrt(expected*(1-expected)/draws)
		if math.Abs(observed-expected) > tolerance {
			t.Fatalf("item %d: observed %.4f, expected %.4f ± %.4f", i, observed, expected, tolerance)
		}
	}
}

func TestRarityBand(t *testing.T) {
	t.Parallel()

	tests := []struct {
		p    float64
		want Band
	}{
		{p: 90, want: BandVeryCommon},
		{p: 50, want: BandVeryCommon},
		{p: 49.99, want: BandCommon},
		{p: 20, want: BandCommon},
		{p: 10, want: BandUncommon},
		{p: 1, want: BandRare},
		{p: 0.5, want: BandVeryRare},
		{p: 0.1, want: BandVeryRare},
		{p: 0.01, want: BandExtremelyRare},
	}
	for _, tc := range tests {
		if got := RarityBand(tc.p); got != tc.want {
			t.Fatalf("RarityBand(%v): expected %s, got %s", tc.p, tc.want, got)
		}
	}
	if BandRare.Label() != "Rare (1-5%)" {
		t.Fatalf("unexpected label %q", BandRare.Label())
	}
}

func TestOdds_SumToHundred(t *testing.T) {
	t.Parallel()

	catalog, _ := mustCatalog(t, 90, 10)
	odds := catalog.Odds()
	if len(odds) != 2 {
		t.Fatalf("expected 2 odds entries, got %d", len(odds))
	}
	if odds[0].Probability != 90 || odds[1].Probability != 10 {
		t.Fatalf("unexpected probabilities: %+v", odds)
	}
}
