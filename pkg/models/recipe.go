package models

import "errors"

// RecipeVersion is the schema version written into every recipe. Any
// breaking change to the document layout must bump this string.
const RecipeVersion = "v1.0"

// ErrNotFound is returned by lookups for recipes that do not exist.
var ErrNotFound = errors.New("not found")

// Recipe is the versioned statistical summary for one metric family (or one
// span operation). It is an aggregate: it never embeds raw per-event values
// beyond the bounded top-K samples inside its distributions. A recipe is
// built once from a closed batch and never mutated afterwards.
type Recipe struct {
	Version       string         `json:"version"`
	FamilyID      string         `json:"family_id"`
	MetricName    string         `json:"metric_name"`
	CreatedAt     string         `json:"created_at,omitempty"`
	CaptureWindow *CaptureWindow `json:"capture_window,omitempty"`
	Schema        *Schema        `json:"schema,omitempty"`
	Statistics    *Statistics    `json:"statistics,omitempty"`
	Temporal      *Temporal      `json:"temporal,omitempty"`
	Payload       *Payload       `json:"payload,omitempty"`
	Patterns      *Patterns      `json:"patterns,omitempty"`
	Generation    *Generation    `json:"generation,omitempty"`
	Validation    *Validation    `json:"validation,omitempty"`
}

// CaptureWindow is the observed time span of the profiled batch.
type CaptureWindow struct {
	StartTime     string  `json:"start_time"`
	EndTime       string  `json:"end_time"`
	DurationHours float64 `json:"duration_hours"`
}

// Schema describes the structural shape of a family.
type Schema struct {
	Type         string             `json:"type"`
	IsDelta      bool               `json:"is_delta"`
	HasHistogram bool               `json:"has_histogram"`
	TagSchema    map[string]TagInfo `json:"tag_schema,omitempty"`
}

// TagInfo describes one tag key within a family.
type TagInfo struct {
	// Type is one of numeric, identifier, text, categorical.
	Type string `json:"type"`
	// Presence is the fraction of records carrying the key, in [0,1].
	Presence float64 `json:"presence"`
	// Cardinality is the estimated number of distinct values.
	Cardinality int64 `json:"cardinality"`
}

// ValueCount is a raw (value, count) pair produced by grouped counting,
// before normalization into frequencies.
type ValueCount struct {
	Value string `json:"value"`
	Count int64  `json:"count"`
}

// FamilyInfo identifies one metric family discovered in a batch.
type FamilyInfo struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Count int64  `json:"count"`
}

// GroupedCounts is the result of a grouped count: the top values by count
// descending, the total number of grouped records and the exact distinct
// value count.
type GroupedCounts struct {
	Top      []ValueCount `json:"top"`
	Total    int64        `json:"total"`
	Distinct int64        `json:"distinct"`
}

// ValueFrequency is one heavy hitter in a categorical distribution.
type ValueFrequency struct {
	Value     string  `json:"value"`
	Frequency float64 `json:"frequency"`
}

// Categorical is a bounded categorical distribution: at most the top 100
// values by count. Entropy is computed over the returned top-K only, so it
// is a lower-bound approximation when the true distinct count exceeds the
// cap, not exact Shannon entropy.
type Categorical struct {
	TopValues  []ValueFrequency `json:"top_values"`
	TotalCount int              `json:"total_count"`
	Entropy    float64          `json:"entropy"`
}

// Quantiles holds the profiled quantile points of a numeric distribution.
type Quantiles struct {
	P01 float64 `json:"p01"`
	P05 float64 `json:"p05"`
	P50 float64 `json:"p50"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
}

// Numeric is a bounded numeric distribution summary. Quantiles come from a
// t-digest sketch, so they are approximate within the sketch's documented
// error bound. Bins holds 33 equal-width edges spanning [p01,p99]; Counts
// holds the 32 per-bin counts.
type Numeric struct {
	Quantiles Quantiles `json:"quantiles"`
	Mean      float64   `json:"mean"`
	StdDev    float64   `json:"stddev"`
	Min       float64   `json:"min"`
	Max       float64   `json:"max"`
	Bins      []float64 `json:"bins"`
	Counts    []int64   `json:"counts"`
}

// TagPair is a co-occurring pair of tag values within single records.
type TagPair struct {
	Keys      [2]string `json:"keys"`
	Values    [2]string `json:"values"`
	Frequency float64   `json:"frequency"`
}

// HistogramStats summarizes histogram directive lines attached to a family.
type HistogramStats struct {
	Granularities     map[Granularity]float64 `json:"granularities"`
	CentroidCountDist *Numeric                `json:"centroid_count_distribution,omitempty"`
	CentroidValueDist *Numeric                `json:"centroid_value_distribution,omitempty"`
}

// Statistics holds the per-family distributions.
type Statistics struct {
	SampleCount        int64                   `json:"sample_count"`
	SourceDistribution *Categorical            `json:"source_distribution,omitempty"`
	TagDistributions   map[string]*Categorical `json:"tag_distributions,omitempty"`
	TagCooccurrence    []TagPair               `json:"tag_cooccurrence"`
	ValueDistribution  *Numeric                `json:"value_distribution,omitempty"`
	HistogramDist      *HistogramStats         `json:"histogram_distribution,omitempty"`
	SpanDist           *SpanStats              `json:"span_distribution,omitempty"`
}

// SpanStats is the simpler statistics block used by span recipes.
type SpanStats struct {
	DurationDistribution  *Numeric     `json:"duration_distribution,omitempty"`
	OperationDistribution *Categorical `json:"operation_distribution,omitempty"`
}

// Burstiness captures variability of per-minute emission counts.
type Burstiness struct {
	CoefficientOfVariation float64 `json:"coefficient_of_variation"`
	FanoFactor             float64 `json:"fano_factor"`
}

// Temporal is the daily emission profile. IntensityCurve always has exactly
// 1440 entries (one per minute of a day) normalized to mean 1.0.
type Temporal struct {
	IntensityCurve []float64  `json:"intensity_curve"`
	Burstiness     Burstiness `json:"burstiness"`
}

// Payload describes the wire-level footprint of a family.
type Payload struct {
	SizeDistribution *Numeric `json:"size_distribution,omitempty"`
	ErrorRate        float64  `json:"error_rate"`
}

// StringPattern is one generalized string shape with its in-sample frequency.
type StringPattern struct {
	Pattern   string  `json:"pattern"`
	Frequency float64 `json:"frequency"`
}

// Patterns holds generalized string shapes for sources and tag values.
type Patterns struct {
	SourcePatterns   []StringPattern            `json:"source_patterns"`
	TagValuePatterns map[string][]StringPattern `json:"tag_value_patterns,omitempty"`
}

// EntityHints guides the generator on how many emitting entities to model.
type EntityHints struct {
	SourceCountEstimate int64    `json:"source_count_estimate"`
	PerSourceRateDist   *Numeric `json:"per_source_rate_distribution,omitempty"`
}

// Generation holds synthesis hints.
type Generation struct {
	EntityHints EntityHints `json:"entity_hints"`
}

// FitnessScores are measured goodness-of-fit statistics computed by
// splitting the family batch in half and comparing the two halves. The
// divergence and KS statistic live in [0,1]; the correlation in [-1,1].
type FitnessScores struct {
	CategoricalJSDivergence float64 `json:"categorical_js_divergence"`
	NumericKSStatistic      float64 `json:"numeric_ks_statistic"`
	TemporalCorrelation     float64 `json:"temporal_correlation"`
}

// Validation holds per-recipe quality figures.
type Validation struct {
	Coverage      float64          `json:"coverage"`
	DropReasons   map[string]int64 `json:"drop_reasons"`
	FitnessScores FitnessScores    `json:"fitness_scores"`
}
