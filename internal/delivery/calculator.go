package delivery

import (
	"strings"

	"merceria/backend/internal/domain"
)

// Tier is one distance bucket of the capital-zone fee table. MaxKm is the
// inclusive upper bound; the last tier is open-ended.
type Tier struct {
	MaxKm    float64
	FeeCents int64
	Label    string
}

// capitalTiers is the canonical distance table. Two tables circulated with a
// 4.50 vs 5.00 disagreement on the 12-15km bucket; 5.00 is the one in force
// (see DESIGN.md).
var capitalTiers = []Tier{
	{MaxKm: 12, FeeCents: 400, Label: "0-12km"},
	{MaxKm: 15, FeeCents: 500, Label: "12-15km"},
	{MaxKm: 20, FeeCents: 600, Label: "15-20km"},
	{MaxKm: 30, FeeCents: 700, Label: "20-30km"},
	{MaxKm: -1, FeeCents: 1000, Label: "+30km"},
}

const (
	standardFeeCents = 500
	standardLabel    = "Estándar"

	// nationalNote accompanies the zero fee on non-capital shipments:
	// the carrier collects payment on delivery.
	nationalNote = "cobro a destino"
)

// zoneBucket maps destination keywords to a capital tier, checked in order.
type zoneBucket struct {
	keywords []string
	tier     Tier
}

// zoneBuckets partitions the Asunción metro area by rough driving distance
// from the warehouse. Matching is lower-cased substring containment,
// first bucket wins.
var zoneBuckets = []zoneBucket{
	{
		keywords: []string{"asuncion", "asunción", "centro", "sajonia", "recoleta", "villa morra", "trinidad", "lambare", "lambaré"},
		tier:     capitalTiers[0],
	},
	{
		keywords: []string{"fernando de la mora", "san lorenzo", "luque", "villa elisa", "mariano roque alonso"},
		tier:     capitalTiers[1],
	},
	{
		keywords: []string{"capiata", "capiatá", "limpio", "nemby", "ñemby", "san antonio"},
		tier:     capitalTiers[2],
	},
	{
		keywords: []string{"itaugua", "itauguá", "aregua", "areguá", "ypane", "ypané", "villeta", "guarambare", "guarambaré", "ita ", "itá"},
		tier:     capitalTiers[3],
	},
}

// QuoteForDistance maps a resolved driving distance (km, capital zone) to a
// fee and tier label. Fees are non-decreasing in distance.
func QuoteForDistance(distanceKm float64) domain.DeliveryQuote {
	if distanceKm < 0 {
		distanceKm = 0
	}
	for _, tier := range capitalTiers {
		if tier.MaxKm < 0 || distanceKm <= tier.MaxKm {
			km := distanceKm
			return domain.DeliveryQuote{
				DistanceKm: &km,
				Tier:       tier.Label,
				FeeCents:   tier.FeeCents,
			}
		}
	}
	// Unreachable: the last tier is open-ended.
	km := distanceKm
	last := capitalTiers[len(capitalTiers)-1]
	return domain.DeliveryQuote{DistanceKm: &km, Tier: last.Label, FeeCents: last.FeeCents}
}

// QuoteForZoneText is the fallback when no resolved distance is available:
// match the destination against the keyword buckets, or fall back to the
// standard fee.
func QuoteForZoneText(destination string) domain.DeliveryQuote {
	needle := strings.ToLower(strings.TrimSpace(destination))
	if needle != "" {
		for _, bucket := range zoneBuckets {
			for _, keyword := range bucket.keywords {
				if strings.Contains(needle, keyword) {
					return domain.DeliveryQuote{
						Tier:     bucket.tier.Label,
						FeeCents: bucket.tier.FeeCents,
					}
				}
			}
		}
	}
	return domain.DeliveryQuote{
		Tier:     standardLabel,
		FeeCents: standardFeeCents,
	}
}

// Quote is the pure entry point: pickup and national shipments are flat
// zero-fee paths, the capital zone uses the distance table when a distance
// is known and the zone-text fallback otherwise.
func Quote(method string, zone string, destination string, distanceKm *float64) domain.DeliveryQuote {
	if method == domain.DeliveryMethodPickup {
		return domain.DeliveryQuote{Tier: "pickup", FeeCents: 0}
	}
	if strings.EqualFold(strings.TrimSpace(zone), domain.ZoneNational) {
		return domain.DeliveryQuote{Tier: domain.ZoneNational, FeeCents: 0, Note: nationalNote}
	}
	if distanceKm != nil {
		return QuoteForDistance(*distanceKm)
	}
	return QuoteForZoneText(destination)
}
