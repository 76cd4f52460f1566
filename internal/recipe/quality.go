package recipe

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/loadgen/profiler/pkg/models"
)

// BatchQuality tallies batch-level parse outcomes for the validation block
// of every recipe in a run.
type BatchQuality struct {
	TotalLines    int64
	ParseErrors   int64
	MissingSource int64
}

// Coverage is the fraction of lines that produced a usable record.
func (q *BatchQuality) Coverage() float64 {
	if q.TotalLines == 0 {
		return 1
	}
	return float64(q.TotalLines-q.ParseErrors-q.MissingSource) / float64(q.TotalLines)
}

// ErrorRate is the fraction of lines rejected as parse errors.
func (q *BatchQuality) ErrorRate() float64 {
	if q.TotalLines == 0 {
		return 0
	}
	return float64(q.ParseErrors) / float64(q.TotalLines)
}

// DropReasons returns the per-reason drop counts.
func (q *BatchQuality) DropReasons() map[string]int64 {
	return map[string]int64{
		"parse_error":    q.ParseErrors,
		"missing_source": q.MissingSource,
	}
}

// splitHalf accumulates a family's records into two interleaved halves so
// goodness-of-fit statistics can be measured between them. Two halves of the
// same well-behaved family should look alike; divergent halves signal an
// unstable or undersampled profile.
//
// Memory per half is bounded: at most limit distinct categories plus the
// overflow bucket, limit values and minuteSlots minute counters.
type splitHalf struct {
	limit int
	idx   int64

	categories [2]map[string]int64
	values     [2][]float64
	minutes    [2]map[int64]int64
}

// overflowCategory absorbs categories seen after the per-half distinct cap
// is reached.
const overflowCategory = "__other__"

// minuteSlots folds timestamps onto the minute-of-day cycle, matching the
// intensity curve length.
const minuteSlots = 1440

func newSplitHalf(limit int) *splitHalf {
	s := &splitHalf{limit: limit}
	for i := 0; i < 2; i++ {
		s.categories[i] = make(map[string]int64)
		s.minutes[i] = make(map[int64]int64)
	}
	return s
}

// observe records one (category, value, timestamp) triple into the half
// selected by arrival order. Values are capped at limit per half; categories
// past the distinct cap fold into the overflow bucket and minutes fold onto
// the daily cycle, so arbitrary input cardinality cannot grow the maps.
func (s *splitHalf) observe(category string, value float64, timestamp int64) {
	half := int(s.idx % 2)
	s.idx++

	cats := s.categories[half]
	if _, seen := cats[category]; !seen && len(cats) >= s.limit {
		category = overflowCategory
	}
	cats[category]++
	if len(s.values[half]) < s.limit && !math.IsNaN(value) && !math.IsInf(value, 0) {
		s.values[half] = append(s.values[half], value)
	}
	if timestamp > 0 {
		s.minutes[half][(timestamp/60)%minuteSlots]++
	}
}

// scores computes the measured fitness statistics between the two halves.
func (s *splitHalf) scores() models.FitnessScores {
	return models.FitnessScores{
		CategoricalJSDivergence: jsDivergence(s.categories[0], s.categories[1]),
		NumericKSStatistic:      ksStatistic(s.values[0], s.values[1]),
		TemporalCorrelation:     minuteCorrelation(s.minutes[0], s.minutes[1]),
	}
}

// jsDivergence is the Jensen-Shannon divergence between two categorical
// count maps, base 2 so the result lives in [0,1]. Empty inputs score 0.
func jsDivergence(p, q map[string]int64) float64 {
	var pTotal, qTotal int64
	for _, c := range p {
		pTotal += c
	}
	for _, c := range q {
		qTotal += c
	}
	if pTotal == 0 || qTotal == 0 {
		return 0
	}

	keys := make(map[string]struct{}, len(p)+len(q))
	for k := range p {
		keys[k] = struct{}{}
	}
	for k := range q {
		keys[k] = struct{}{}
	}

	div := 0.0
	for k := range keys {
		pp := float64(p[k]) / float64(pTotal)
		qq := float64(q[k]) / float64(qTotal)
		m := (pp + qq) / 2
		if pp > 0 {
			div += 0.5 * pp * math.Log2(pp/m)
		}
		if qq > 0 {
			div += 0.5 * qq * math.Log2(qq/m)
		}
	}
	if div < 0 {
		div = 0
	}
	if div > 1 {
		div = 1
	}
	return div
}

// ksStatistic is the two-sample Kolmogorov-Smirnov statistic: the maximum
// distance between the empirical CDFs of a and b. Empty inputs score 0.
func ksStatistic(a, b []float64) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	as := append([]float64(nil), a...)
	bs := append([]float64(nil), b...)
	sort.Float64s(as)
	sort.Float64s(bs)

	maxDist := 0.0
	i, j := 0, 0
	for i < len(as) && j < len(bs) {
		if as[i] <= bs[j] {
			i++
		} else {
			j++
		}
		dist := math.Abs(float64(i)/float64(len(as)) - float64(j)/float64(len(bs)))
		if dist > maxDist {
			maxDist = dist
		}
	}
	return maxDist
}

// minuteCorrelation is the Pearson correlation between the two halves'
// per-minute counts over the union of observed minutes. With fewer than two
// shared minutes the correlation is not measurable and scores 1.
func minuteCorrelation(a, b map[int64]int64) float64 {
	keys := make(map[int64]struct{}, len(a)+len(b))
	for k := range a {
		keys[k] = struct{}{}
	}
	for k := range b {
		keys[k] = struct{}{}
	}
	if len(keys) < 2 {
		return 1
	}

	minutes := make([]int64, 0, len(keys))
	for k := range keys {
		minutes = append(minutes, k)
	}
	sort.Slice(minutes, func(i, j int) bool { return minutes[i] < minutes[j] })

	xs := make([]float64, len(minutes))
	ys := make([]float64, len(minutes))
	for i, m := range minutes {
		xs[i] = float64(a[m])
		ys[i] = float64(b[m])
	}

	r := stat.Correlation(xs, ys, nil)
	if math.IsNaN(r) {
		// Zero variance in one half, e.g. a perfectly constant rate.
		return 1
	}
	return r
}
