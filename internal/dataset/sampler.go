package dataset

import (
	"math/rand"
	"sort"

	"github.com/tradecrew/tradecrew/internal/models"
)

// recencySampler draws independent weighted samples from a pool sorted
// ascending by timestamp, with weight 1 + i/(n-1) so the newest record
// weighs twice the oldest. Outputs are reproducible for a given
// (seed, pool, k) because the generator is seeded deterministically.
type recencySampler struct {
	rng *rand.Rand
}

func newRecencySampler(seed int64) *recencySampler {
	return &recencySampler{rng: rand.New(rand.NewSource(seed))}
}

func (s *recencySampler) Sample(records []models.DecisionLogRecord, count int) []models.DecisionLogRecord {
	if count <= 0 || len(records) == 0 {
		return nil
	}

	ordered := make([]models.DecisionLogRecord, len(records))
	copy(ordered, records)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Timestamp.Before(ordered[j].Timestamp)
	})

	n := len(ordered)
	cumulative := make([]float64, n)
	running := 0.0
	for i := range ordered {
		running += 1.0 + float64(i)/float64(max(1, n-1))
		cumulative[i] = running
	}
	total := cumulative[n-1]

	out := make([]models.DecisionLogRecord, 0, count)
	for i := 0; i < count; i++ {
		r := s.rng.Float64() * total
		idx := sort.SearchFloat64s(cumulative, r)
		if idx >= n {
			idx = n - 1
		}
		out = append(out, ordered[idx])
	}
	return out
}
