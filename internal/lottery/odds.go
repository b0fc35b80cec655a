package lottery

import "github.com/google/uuid"

type Band string

const (
	BandVeryCommon    Band = "very_common"
	BandCommon        Band = "common"
	BandUncommon      Band = "uncommon"
	BandRare          Band = "rare"
	BandVeryRare      Band = "very_rare"
	BandExtremelyRare Band = "extremely_rare"
)

var bandLabels = map[Band]string{
	BandVeryCommon:    "Very Common (50%+)",
	BandCommon:        "Common (20-50%)",
	BandUncommon:      "Uncommon (5-20%)",
	BandRare:          "Rare (1-5%)",
	BandVeryRare:      "Very Rare (0.1-1%)",
	BandExtremelyRare: "Extremely Rare (<0.1%)",
}

func (b Band) Label() string {
	return bandLabels[b]
}

// RarityBand buckets an exact percentage into the public disclosure band.
func RarityBand(probabilityPercent float64) Band {
	switch {
	case probabilityPercent >= 50:
		return BandVeryCommon
	case probabilityPercent >= 20:
		return BandCommon
	case probabilityPercent >= 5:
		return BandUncommon
	case probabilityPercent >= 1:
		return BandRare
	case probabilityPercent >= 0.1:
		return BandVeryRare
	default:
		return BandExtremelyRare
	}
}

type Odds struct {
	ItemID      uuid.UUID
	Weight      int64
	Probability float64
}

// Odds returns exact per-entry probabilities in percent. Only privileged
// callers should see these; everyone else gets RarityBand.
func (c Catalog) Odds() []Odds {
	out := make([]Odds, 0, len(c.entries))
	if c.total <= 0 {
		return out
	}
	for _, entry := range c.entries {
		out = append(out, Odds{
			ItemID:      entry.ItemID,
			Weight:      entry.Weight,
			Probability: float64(entry.Weight) / float64(c.total) * 100,
		})
	}
	return out
}
