// Package recommend assembles personalized content buckets from ranked
// results: a fixed number of general picks plus a fixed number of regional
// picks for the visitor's state.
package recommend

import "github.com/curbside-labs/contenthub/engine/domain"

// Bucket sizes for the current selection policy.
const (
	GeneralCount  = 3
	RegionalCount = 2
)

// Buckets holds the assembled recommendation output.
type Buckets struct {
	General  []domain.RankedResult `json:"general"`
	Regional []domain.RankedResult `json:"regional"`
}

// Assemble picks the regional bucket first (top regionalCount of the
// regional list), then fills the general bucket from the general list,
// excluding ids already chosen. Each bucket holds exactly
// min(requested, available) items; a regional deficit is never backfilled
// from the general pool. Inputs are not mutated.
func Assemble(general, regional []domain.RankedResult, generalCount, regionalCount int) Buckets {
	chosen := make(map[string]bool)
	var out Buckets

	for _, r := range regional {
		if len(out.Regional) >= regionalCount {
			break
		}
		if chosen[r.Item.ID] {
			continue
		}
		chosen[r.Item.ID] = true
		out.Regional = append(out.Regional, r)
	}

	for _, r := range general {
		if len(out.General) >= generalCount {
			break
		}
		if chosen[r.Item.ID] {
			continue
		}
		chosen[r.Item.ID] = true
		out.General = append(out.General, r)
	}

	return out
}
