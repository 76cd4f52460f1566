package profile

import (
	"math"
	"sort"

	"github.com/loadgen/profiler/pkg/models"
	"github.com/loadgen/profiler/pkg/tdigest"
)

const (
	// MaxTopValues caps the heavy-hitter list of a categorical distribution.
	MaxTopValues = 100

	// NumBins is the number of equal-width histogram bins in a numeric
	// distribution; the bin edge list has NumBins+1 entries.
	NumBins = 32
)

// CategoricalDistribution summarizes string values as a bounded top-K
// distribution. Values are ranked by count descending with ties broken by
// first-seen order. Entropy is computed over the returned top-K only, so it
// understates true Shannon entropy whenever the distinct count exceeds the
// cap.
func CategoricalDistribution(values []string) *models.Categorical {
	if len(values) == 0 {
		return &models.Categorical{TopValues: []models.ValueFrequency{}}
	}

	counts := make(map[string]int64, len(values))
	order := make([]string, 0, len(values))
	for _, v := range values {
		if _, seen := counts[v]; !seen {
			order = append(order, v)
		}
		counts[v]++
	}

	sort.SliceStable(order, func(i, j int) bool {
		return counts[order[i]] > counts[order[j]]
	})
	if len(order) > MaxTopValues {
		order = order[:MaxTopValues]
	}

	total := float64(len(values))
	top := make([]models.ValueFrequency, len(order))
	for i, v := range order {
		top[i] = models.ValueFrequency{Value: v, Frequency: float64(counts[v]) / total}
	}

	return &models.Categorical{
		TopValues:  top,
		TotalCount: len(top),
		Entropy:    topKEntropy(top),
	}
}

// CategoricalFromCounts builds a categorical distribution from externally
// pre-aggregated counts (the substrate's top-K primitive). The input must
// already be ordered by count descending; total is the number of
// observations the counts were drawn from.
func CategoricalFromCounts(counts []models.ValueCount, total int64) *models.Categorical {
	if len(counts) > MaxTopValues {
		counts = counts[:MaxTopValues]
	}

	top := make([]models.ValueFrequency, len(counts))
	for i, vc := range counts {
		freq := 0.0
		if total > 0 {
			freq = float64(vc.Count) / float64(total)
		}
		top[i] = models.ValueFrequency{Value: vc.Value, Frequency: freq}
	}

	return &models.Categorical{
		TopValues:  top,
		TotalCount: len(top),
		Entropy:    topKEntropy(top),
	}
}

func topKEntropy(top []models.ValueFrequency) float64 {
	entropy := 0.0
	for _, vf := range top {
		if vf.Frequency > 0 {
			entropy -= vf.Frequency * math.Log2(vf.Frequency)
		}
	}
	return entropy
}

// NumericEstimator accumulates a numeric distribution in a single streaming
// pass with bounded memory: quantiles and bin counts come from a t-digest
// sketch, moments from a running Welford accumulator. Non-finite values are
// discarded.
type NumericEstimator struct {
	digest *tdigest.TDigest
	n      int64
	mean   float64
	m2     float64
}

// NewNumericEstimator creates an empty estimator.
func NewNumericEstimator() *NumericEstimator {
	return &NumericEstimator{digest: tdigest.New()}
}

// Add records one value.
func (e *NumericEstimator) Add(v float64) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return
	}
	e.digest.Add(v)
	e.n++
	delta := v - e.mean
	e.mean += delta / float64(e.n)
	e.m2 += delta * (v - e.mean)
}

// Count returns the number of values accumulated.
func (e *NumericEstimator) Count() int64 { return e.n }

// Distribution finalizes the estimator into a Numeric summary, or nil when
// no values were added. Bin counts are digest-estimated, so they are
// approximate in the same way the quantiles are.
func (e *NumericEstimator) Distribution() *models.Numeric {
	if e.n == 0 {
		return nil
	}

	q := models.Quantiles{
		P01: e.digest.Quantile(0.01),
		P05: e.digest.Quantile(0.05),
		P50: e.digest.Quantile(0.50),
		P95: e.digest.Quantile(0.95),
		P99: e.digest.Quantile(0.99),
	}

	stddev := 0.0
	if e.n > 1 {
		stddev = math.Sqrt(e.m2 / float64(e.n-1))
	}

	bins := make([]float64, NumBins+1)
	counts := make([]int64, NumBins)
	lo, hi := q.P01, q.P99
	if hi > lo {
		width := (hi - lo) / NumBins
		for i := range bins {
			bins[i] = lo + float64(i)*width
		}
		bins[NumBins] = hi
		prev := e.digest.CDF(bins[0])
		for i := 0; i < NumBins; i++ {
			cur := e.digest.CDF(bins[i+1])
			counts[i] = int64(math.Round((cur - prev) * float64(e.n)))
			prev = cur
		}
	} else {
		// Degenerate range: every profiled quantile coincides.
		for i := range bins {
			bins[i] = lo
		}
		counts[0] = e.n
	}

	return &models.Numeric{
		Quantiles: q,
		Mean:      e.mean,
		StdDev:    stddev,
		Min:       e.digest.Min(),
		Max:       e.digest.Max(),
		Bins:      bins,
		Counts:    counts,
	}
}

// NumericDistribution summarizes a slice of values. It is the non-streaming
// convenience wrapper around NumericEstimator.
func NumericDistribution(values []float64) *models.Numeric {
	e := NewNumericEstimator()
	for _, v := range values {
		e.Add(v)
	}
	return e.Distribution()
}
