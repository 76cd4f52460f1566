package recipe

import (
	"fmt"
	"math"
	"math/rand"
	"testing"
)

func TestBatchQuality(t *testing.T) {
	q := &BatchQuality{TotalLines: 100, ParseErrors: 5, MissingSource: 10}

	if got := q.Coverage(); math.Abs(got-0.85) > 1e-9 {
		t.Errorf("coverage: got %v, want 0.85", got)
	}
	if got := q.ErrorRate(); math.Abs(got-0.05) > 1e-9 {
		t.Errorf("error rate: got %v, want 0.05", got)
	}
	drops := q.DropReasons()
	if drops["parse_error"] != 5 || drops["missing_source"] != 10 {
		t.Errorf("drop reasons: got %v", drops)
	}
}

func TestBatchQualityEmpty(t *testing.T) {
	q := &BatchQuality{}
	if q.Coverage() != 1 || q.ErrorRate() != 0 {
		t.Errorf("empty batch: coverage %v, error rate %v", q.Coverage(), q.ErrorRate())
	}
}

func TestJSDivergence(t *testing.T) {
	same := map[string]int64{"a": 50, "b": 50}
	if got := jsDivergence(same, same); got != 0 {
		t.Errorf("identical distributions: got %v, want 0", got)
	}

	// Disjoint supports give the maximum divergence of 1 bit.
	p := map[string]int64{"a": 10}
	q := map[string]int64{"b": 10}
	if got := jsDivergence(p, q); math.Abs(got-1.0) > 1e-9 {
		t.Errorf("disjoint distributions: got %v, want 1.0", got)
	}

	if got := jsDivergence(nil, p); got != 0 {
		t.Errorf("empty side: got %v, want 0", got)
	}

	mild := jsDivergence(map[string]int64{"a": 60, "b": 40}, map[string]int64{"a": 40, "b": 60})
	if mild <= 0 || mild >= 1 {
		t.Errorf("shifted distributions: got %v, want in (0,1)", mild)
	}
}

func TestKSStatistic(t *testing.T) {
	a := []float64{1, 2, 3, 4, 5}
	if got := ksStatistic(a, a); got != 0 {
		t.Errorf("identical samples: got %v, want 0", got)
	}

	// Fully separated samples.
	b := []float64{101, 102, 103}
	if got := ksStatistic(a, b); math.Abs(got-1.0) > 1e-9 {
		t.Errorf("separated samples: got %v, want 1.0", got)
	}

	if got := ksStatistic(nil, a); got != 0 {
		t.Errorf("empty sample: got %v, want 0", got)
	}
}

func TestKSStatisticSameDistribution(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	a := make([]float64, 5000)
	b := make([]float64, 5000)
	for i := range a {
		a[i] = rng.NormFloat64()
		b[i] = rng.NormFloat64()
	}
	if got := ksStatistic(a, b); got > 0.05 {
		t.Errorf("same-distribution KS: got %v, want small", got)
	}
}

func TestMinuteCorrelation(t *testing.T) {
	a := map[int64]int64{1: 10, 2: 20, 3: 30}
	if got := minuteCorrelation(a, a); math.Abs(got-1.0) > 1e-9 {
		t.Errorf("self correlation: got %v, want 1.0", got)
	}

	inv := map[int64]int64{1: 30, 2: 20, 3: 10}
	if got := minuteCorrelation(a, inv); math.Abs(got+1.0) > 1e-9 {
		t.Errorf("inverse correlation: got %v, want -1.0", got)
	}

	if got := minuteCorrelation(map[int64]int64{1: 5}, map[int64]int64{1: 7}); got != 1 {
		t.Errorf("single shared minute: got %v, want 1", got)
	}
	if got := minuteCorrelation(nil, nil); got != 1 {
		t.Errorf("no minutes: got %v, want 1", got)
	}
}

func TestSplitHalfScores(t *testing.T) {
	s := newSplitHalf(1000)
	rng := rand.New(rand.NewSource(3))
	sources := []string{"web-1", "web-2", "web-3"}
	for i := 0; i < 10000; i++ {
		ts := int64(6000 + (i/100)*60)
		s.observe(sources[rng.Intn(len(sources))], rng.NormFloat64(), ts)
	}

	scores := s.scores()
	if scores.CategoricalJSDivergence < 0 || scores.CategoricalJSDivergence > 0.05 {
		t.Errorf("js divergence for homogeneous halves: got %v", scores.CategoricalJSDivergence)
	}
	if scores.NumericKSStatistic < 0 || scores.NumericKSStatistic > 0.1 {
		t.Errorf("ks statistic for homogeneous halves: got %v", scores.NumericKSStatistic)
	}
	if scores.TemporalCorrelation < 0.9 || scores.TemporalCorrelation > 1 {
		t.Errorf("temporal correlation for steady rate: got %v", scores.TemporalCorrelation)
	}
}

func TestSplitHalfValueBound(t *testing.T) {
	s := newSplitHalf(10)
	for i := 0; i < 100; i++ {
		s.observe("a", float64(i), 0)
	}
	if len(s.values[0]) != 10 || len(s.values[1]) != 10 {
		t.Errorf("value halves not bounded: %d/%d", len(s.values[0]), len(s.values[1]))
	}
}

func TestSplitHalfCategoryBound(t *testing.T) {
	const limit = 100
	s := newSplitHalf(limit)
	for i := 0; i < 50000; i++ {
		s.observe(fmt.Sprintf("src-%d", i), float64(i), int64(i)*60)
	}

	for half := 0; half < 2; half++ {
		// At most limit distinct categories plus the overflow bucket.
		if got := len(s.categories[half]); got > limit+1 {
			t.Errorf("half %d: %d distinct categories retained, want <= %d", half, got, limit+1)
		}
		if s.categories[half][overflowCategory] == 0 {
			t.Errorf("half %d: overflow bucket empty after cap exceeded", half)
		}
		if got := len(s.minutes[half]); got > minuteSlots {
			t.Errorf("half %d: %d minute slots, want <= %d", half, got, minuteSlots)
		}
	}

	// Every observation is still accounted for somewhere.
	var total int64
	for half := 0; half < 2; half++ {
		for _, c := range s.categories[half] {
			total += c
		}
	}
	if total != 50000 {
		t.Errorf("category counts sum to %d, want 50000", total)
	}
}
