// Package recipe assembles Recipe documents from a loaded substrate: one per
// metric family, one per span operation and one for the batch's histogram
// directives. A failure while building one recipe never affects the others;
// isolation is the caller's job and every builder method fails atomically.
package recipe

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/loadgen/profiler/internal/profile"
	"github.com/loadgen/profiler/internal/substrate"
	"github.com/loadgen/profiler/pkg/hyperloglog"
	"github.com/loadgen/profiler/pkg/models"
)

const maxCooccurrencePairs = 20

// Config bounds the sampling done per recipe.
type Config struct {
	// SampleLimit caps the uniform sample used for tag typing, cooccurrence
	// and pattern mining.
	SampleLimit int

	// TopK caps every categorical top-value list.
	TopK int
}

// DefaultConfig returns the default builder bounds.
func DefaultConfig() Config {
	return Config{SampleLimit: 1000, TopK: profile.MaxTopValues}
}

// Builder builds recipes from one substrate-loaded batch.
type Builder struct {
	store substrate.Substrate
	cfg   Config
}

// NewBuilder creates a builder over the given substrate.
func NewBuilder(store substrate.Substrate, cfg Config) *Builder {
	if cfg.SampleLimit <= 0 {
		cfg.SampleLimit = 1000
	}
	if cfg.TopK <= 0 {
		cfg.TopK = profile.MaxTopValues
	}
	return &Builder{store: store, cfg: cfg}
}

// familyScan is everything one streaming pass over a family accumulates.
type familyScan struct {
	count       int64
	minTS       int64
	maxTS       int64
	isDelta     bool
	valueEst    *profile.NumericEstimator
	sizeEst     *profile.NumericEstimator
	tagPresence map[string]int64
	tagCard     map[string]*hyperloglog.Sketch
	sourceCard  *hyperloglog.Sketch
	halves      *splitHalf
}

func (b *Builder) scanFamily(ctx context.Context, familyID string) (*familyScan, error) {
	fs := &familyScan{
		valueEst:    profile.NewNumericEstimator(),
		sizeEst:     profile.NewNumericEstimator(),
		tagPresence: make(map[string]int64),
		tagCard:     make(map[string]*hyperloglog.Sketch),
		sourceCard:  hyperloglog.New(hyperloglog.DefaultPrecision),
		halves:      newSplitHalf(b.cfg.SampleLimit),
	}

	err := b.store.ScanFamily(ctx, familyID, func(m *models.Metric) error {
		fs.count++
		if m.Timestamp > 0 {
			if fs.minTS == 0 || m.Timestamp < fs.minTS {
				fs.minTS = m.Timestamp
			}
			if m.Timestamp > fs.maxTS {
				fs.maxTS = m.Timestamp
			}
		}
		if m.IsDelta {
			fs.isDelta = true
		}
		fs.valueEst.Add(m.Value)
		fs.sizeEst.Add(float64(m.RawLength))
		fs.sourceCard.Add(m.Source)
		for k, v := range m.Tags {
			fs.tagPresence[k]++
			card, ok := fs.tagCard[k]
			if !ok {
				card = hyperloglog.New(hyperloglog.DefaultPrecision)
				fs.tagCard[k] = card
			}
			card.Add(v)
		}
		fs.halves.observe(m.Source, m.Value, m.Timestamp)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning family: %w", err)
	}
	return fs, nil
}

// BuildFamily builds the recipe for one metric family.
func (b *Builder) BuildFamily(ctx context.Context, fi models.FamilyInfo, quality *BatchQuality) (*models.Recipe, error) {
	fs, err := b.scanFamily(ctx, fi.ID)
	if err != nil {
		return nil, err
	}
	if fs.count == 0 {
		return nil, fmt.Errorf("family %s has no records", fi.ID)
	}

	sample, err := b.store.SampleFamily(ctx, fi.ID, b.cfg.SampleLimit)
	if err != nil {
		return nil, fmt.Errorf("sampling family: %w", err)
	}

	sources, err := b.store.SourceCounts(ctx, fi.ID, b.cfg.TopK)
	if err != nil {
		return nil, fmt.Errorf("counting sources: %w", err)
	}

	tagDists := make(map[string]*models.Categorical, len(fs.tagPresence))
	for key := range fs.tagPresence {
		gc, err := b.store.TopTagValues(ctx, fi.ID, key, b.cfg.TopK)
		if err != nil {
			return nil, fmt.Errorf("counting tag %s: %w", key, err)
		}
		tagDists[key] = profile.CategoricalFromCounts(gc.Top, gc.Total)
	}

	minutes, err := b.store.MinuteCounts(ctx, fi.ID)
	if err != nil {
		return nil, fmt.Errorf("bucketing minutes: %w", err)
	}

	window := captureWindow(fs.minTS, fs.maxTS)

	return &models.Recipe{
		Version:       models.RecipeVersion,
		FamilyID:      fi.ID,
		MetricName:    fi.Name,
		CreatedAt:     time.Now().UTC().Format(time.RFC3339),
		CaptureWindow: window,
		Schema: &models.Schema{
			Type:      "metric",
			IsDelta:   fs.isDelta,
			TagSchema: b.tagSchema(fs, sample),
		},
		Statistics: &models.Statistics{
			SampleCount:        fs.count,
			SourceDistribution: profile.CategoricalFromCounts(sources.Top, sources.Total),
			TagDistributions:   tagDists,
			TagCooccurrence:    tagCooccurrence(sample),
			ValueDistribution:  fs.valueEst.Distribution(),
		},
		Temporal: profile.TemporalProfile(minutes),
		Payload: &models.Payload{
			SizeDistribution: fs.sizeEst.Distribution(),
			ErrorRate:        quality.ErrorRate(),
		},
		Patterns:   familyPatterns(sample),
		Generation: generationHints(sources, window.DurationHours, fs.sourceCard),
		Validation: &models.Validation{
			Coverage:      quality.Coverage(),
			DropReasons:   quality.DropReasons(),
			FitnessScores: fs.halves.scores(),
		},
	}, nil
}

// BuildHistograms builds the recipe covering the batch's histogram directive
// lines, or nil when the batch has none. Histogram directives carry no
// metric name or tags on the profiled line, so they form a single family
// keyed by the empty name.
func (b *Builder) BuildHistograms(ctx context.Context, quality *BatchQuality) (*models.Recipe, error) {
	var (
		count       int64
		minTS       int64
		maxTS       int64
		granCounts  = make(map[models.Granularity]int64)
		centroidCnt = profile.NewNumericEstimator()
		centroidVal = profile.NewNumericEstimator()
		sizeEst     = profile.NewNumericEstimator()
	)

	err := b.store.ScanHistograms(ctx, func(h *models.Histogram) error {
		count++
		if h.Timestamp > 0 {
			if minTS == 0 || h.Timestamp < minTS {
				minTS = h.Timestamp
			}
			if h.Timestamp > maxTS {
				maxTS = h.Timestamp
			}
		}
		granCounts[h.Granularity]++
		centroidCnt.Add(float64(len(h.Centroids)))
		for _, c := range h.Centroids {
			centroidVal.Add(c.Value)
		}
		sizeEst.Add(float64(h.RawLength))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning histograms: %w", err)
	}
	if count == 0 {
		return nil, nil
	}

	shares := make(map[models.Granularity]float64, len(granCounts))
	for g, c := range granCounts {
		shares[g] = float64(c) / float64(count)
	}

	return &models.Recipe{
		Version:       models.RecipeVersion,
		FamilyID:      profile.FamilyID("", nil),
		MetricName:    "",
		CreatedAt:     time.Now().UTC().Format(time.RFC3339),
		CaptureWindow: captureWindow(minTS, maxTS),
		Schema: &models.Schema{
			Type:         "histogram",
			HasHistogram: true,
		},
		Statistics: &models.Statistics{
			SampleCount:     count,
			TagCooccurrence: []models.TagPair{},
			HistogramDist: &models.HistogramStats{
				Granularities:     shares,
				CentroidCountDist: centroidCnt.Distribution(),
				CentroidValueDist: centroidVal.Distribution(),
			},
		},
		Payload: &models.Payload{
			SizeDistribution: sizeEst.Distribution(),
			ErrorRate:        quality.ErrorRate(),
		},
		Validation: &models.Validation{
			Coverage:    quality.Coverage(),
			DropReasons: quality.DropReasons(),
		},
	}, nil
}

// BuildSpanOperation builds the recipe for one span operation.
func (b *Builder) BuildSpanOperation(ctx context.Context, operation string, quality *BatchQuality) (*models.Recipe, error) {
	var (
		count       int64
		minTS       int64
		maxTS       int64
		durationEst = profile.NewNumericEstimator()
		sizeEst     = profile.NewNumericEstimator()
		sources     []string
		halves      = newSplitHalf(b.cfg.SampleLimit)
	)

	err := b.store.OperationSpans(ctx, operation, func(sp *models.Span) error {
		count++
		ts := int64(sp.StartMillis / 1000)
		if ts > 0 {
			if minTS == 0 || ts < minTS {
				minTS = ts
			}
			if ts > maxTS {
				maxTS = ts
			}
		}
		durationEst.Add(float64(sp.DurationMillis))
		sizeEst.Add(float64(sp.RawLength))
		if len(sources) < b.cfg.SampleLimit {
			sources = append(sources, sp.Source)
		}
		halves.observe(sp.Source, float64(sp.DurationMillis), ts)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning spans: %w", err)
	}
	if count == 0 {
		return nil, fmt.Errorf("operation %s has no spans", operation)
	}

	return &models.Recipe{
		Version:       models.RecipeVersion,
		FamilyID:      profile.SpanFamilyID(operation),
		MetricName:    operation,
		CreatedAt:     time.Now().UTC().Format(time.RFC3339),
		CaptureWindow: captureWindow(minTS, maxTS),
		Schema:        &models.Schema{Type: "span"},
		Statistics: &models.Statistics{
			SampleCount:     count,
			TagCooccurrence: []models.TagPair{},
			SpanDist: &models.SpanStats{
				DurationDistribution: durationEst.Distribution(),
				OperationDistribution: profile.CategoricalFromCounts(
					[]models.ValueCount{{Value: operation, Count: count}}, count),
			},
		},
		Payload: &models.Payload{
			SizeDistribution: sizeEst.Distribution(),
			ErrorRate:        quality.ErrorRate(),
		},
		Patterns: &models.Patterns{
			SourcePatterns: profile.MinePatterns(sources),
		},
		Validation: &models.Validation{
			Coverage:      quality.Coverage(),
			DropReasons:   quality.DropReasons(),
			FitnessScores: halves.scores(),
		},
	}, nil
}

// captureWindow derives the observed window from the family's timestamp
// range. Families with no timestamps fall back to a 24h window ending now.
func captureWindow(minTS, maxTS int64) *models.CaptureWindow {
	if minTS == 0 || maxTS == 0 {
		now := time.Now().UTC()
		return &models.CaptureWindow{
			StartTime:     now.Format(time.RFC3339),
			EndTime:       now.Format(time.RFC3339),
			DurationHours: 24,
		}
	}
	return &models.CaptureWindow{
		StartTime:     time.Unix(minTS, 0).UTC().Format(time.RFC3339),
		EndTime:       time.Unix(maxTS, 0).UTC().Format(time.RFC3339),
		DurationHours: float64(maxTS-minTS) / 3600,
	}
}

// tagSchema types each tag key from the bounded sample and attaches presence
// and estimated cardinality from the full scan.
func (b *Builder) tagSchema(fs *familyScan, sample []*models.Metric) map[string]models.TagInfo {
	if len(fs.tagPresence) == 0 {
		return nil
	}

	samplesByKey := make(map[string][]string, len(fs.tagPresence))
	for _, m := range sample {
		for k, v := range m.Tags {
			if len(samplesByKey[k]) < profile.MaxTypeSamples {
				samplesByKey[k] = append(samplesByKey[k], v)
			}
		}
	}

	schema := make(map[string]models.TagInfo, len(fs.tagPresence))
	for key, present := range fs.tagPresence {
		schema[key] = models.TagInfo{
			Type:        string(profile.InferTagType(samplesByKey[key])),
			Presence:    float64(present) / float64(fs.count),
			Cardinality: fs.tagCard[key].Estimate(),
		}
	}
	return schema
}

type pairKey struct {
	k1, v1, k2, v2 string
}

func (a pairKey) less(b pairKey) bool {
	if a.k1 != b.k1 {
		return a.k1 < b.k1
	}
	if a.v1 != b.v1 {
		return a.v1 < b.v1
	}
	if a.k2 != b.k2 {
		return a.k2 < b.k2
	}
	return a.v2 < b.v2
}

// tagCooccurrence counts co-occurring tag value pairs within the sampled
// records and keeps the most frequent pairs.
func tagCooccurrence(sample []*models.Metric) []models.TagPair {
	if len(sample) == 0 {
		return []models.TagPair{}
	}

	counts := make(map[pairKey]int64)
	for _, m := range sample {
		keys := make([]string, 0, len(m.Tags))
		for k := range m.Tags {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for i := 0; i < len(keys); i++ {
			for j := i + 1; j < len(keys); j++ {
				counts[pairKey{keys[i], m.Tags[keys[i]], keys[j], m.Tags[keys[j]]}]++
			}
		}
	}

	pairs := make([]pairKey, 0, len(counts))
	for pk := range counts {
		pairs = append(pairs, pk)
	}
	sort.Slice(pairs, func(i, j int) bool {
		if counts[pairs[i]] != counts[pairs[j]] {
			return counts[pairs[i]] > counts[pairs[j]]
		}
		return pairs[i].less(pairs[j])
	})
	if len(pairs) > maxCooccurrencePairs {
		pairs = pairs[:maxCooccurrencePairs]
	}

	total := float64(len(sample))
	out := make([]models.TagPair, len(pairs))
	for i, pk := range pairs {
		out[i] = models.TagPair{
			Keys:      [2]string{pk.k1, pk.k2},
			Values:    [2]string{pk.v1, pk.v2},
			Frequency: float64(counts[pk]) / total,
		}
	}
	return out
}

// familyPatterns mines generalized string shapes from the sampled records.
func familyPatterns(sample []*models.Metric) *models.Patterns {
	sources := make([]string, 0, len(sample))
	tagValues := make(map[string][]string)
	for _, m := range sample {
		sources = append(sources, m.Source)
		for k, v := range m.Tags {
			if len(tagValues[k]) < profile.MaxPatternSamples {
				tagValues[k] = append(tagValues[k], v)
			}
		}
	}

	p := &models.Patterns{SourcePatterns: profile.MinePatterns(sources)}
	if len(tagValues) > 0 {
		p.TagValuePatterns = make(map[string][]models.StringPattern, len(tagValues))
		for k, vs := range tagValues {
			p.TagValuePatterns[k] = profile.MinePatterns(vs)
		}
	}
	return p
}

// generationHints derives entity modelling hints: the estimated emitting
// source count and the per-source records-per-hour distribution over the top
// sources.
func generationHints(sources *models.GroupedCounts, durationHours float64, card *hyperloglog.Sketch) *models.Generation {
	rates := make([]float64, 0, len(sources.Top))
	for _, vc := range sources.Top {
		rate := float64(vc.Count)
		if durationHours > 0 {
			rate /= durationHours
		}
		rates = append(rates, rate)
	}

	return &models.Generation{
		EntityHints: models.EntityHints{
			SourceCountEstimate: card.Estimate(),
			PerSourceRateDist:   profile.NumericDistribution(rates),
		},
	}
}
