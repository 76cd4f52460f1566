package profile

import (
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/loadgen/profiler/pkg/models"
)

// CurvePoints is the fixed length of every intensity curve: one point per
// minute of a day. Shorter captures are padded, longer ones truncated, so
// recipes compose uniformly regardless of capture-window length.
const CurvePoints = 1440

// MinuteBuckets counts records per 1-minute window. Only non-empty windows
// appear; counts are ordered ascending by window start. Records without a
// timestamp are skipped.
func MinuteBuckets(timestamps []int64) []int64 {
	buckets := make(map[int64]int64)
	for _, ts := range timestamps {
		if ts <= 0 {
			continue
		}
		buckets[ts/60]++
	}

	minutes := make([]int64, 0, len(buckets))
	for m := range buckets {
		minutes = append(minutes, m)
	}
	sort.Slice(minutes, func(i, j int) bool { return minutes[i] < minutes[j] })

	counts := make([]int64, len(minutes))
	for i, m := range minutes {
		counts[i] = buckets[m]
	}
	return counts
}

// TemporalProfile turns ordered per-minute counts into a daily intensity
// curve plus burstiness metrics. The curve is the counts divided by their
// mean, padded with 1.0 or truncated to exactly CurvePoints entries. A zero
// mean yields an all-1.0 curve with CV 0 and Fano factor 1.
func TemporalProfile(counts []int64) *models.Temporal {
	fs := make([]float64, len(counts))
	for i, c := range counts {
		fs[i] = float64(c)
	}

	mean := 0.0
	if len(fs) > 0 {
		mean = stat.Mean(fs, nil)
	}

	curve := make([]float64, CurvePoints)
	burst := models.Burstiness{CoefficientOfVariation: 0, FanoFactor: 1}
	if mean == 0 {
		for i := range curve {
			curve[i] = 1.0
		}
		return &models.Temporal{IntensityCurve: curve, Burstiness: burst}
	}

	for i := range curve {
		if i < len(fs) {
			curve[i] = fs[i] / mean
		} else {
			curve[i] = 1.0
		}
	}

	variance := stat.PopVariance(fs, nil)
	burst.CoefficientOfVariation = stat.PopStdDev(fs, nil) / mean
	burst.FanoFactor = variance / mean

	return &models.Temporal{IntensityCurve: curve, Burstiness: burst}
}
