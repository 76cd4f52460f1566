// Package models defines the record variants produced by the wire parser and
// the Recipe document emitted per family.
package models

// RecordType identifies which variant a parsed record is.
type RecordType string

const (
	RecordMetric    RecordType = "metric"
	RecordHistogram RecordType = "histogram"
	RecordSpan      RecordType = "span"
	RecordError     RecordType = "error"
)

// Record is the closed set of parse results. Every non-blank, non-comment
// input line maps to exactly one implementation (or to no record at all when
// a metric line lacks its mandatory source tag).
type Record interface {
	RecordType() RecordType
}

// Metric is a single point in Wavefront line format:
// <name> <value> [<timestamp>] source=<source> [key=value ...]
type Metric struct {
	Name   string  `json:"metric"`
	Value  float64 `json:"value"`
	// Timestamp is unix seconds; 0 means the line carried no timestamp.
	Timestamp int64             `json:"timestamp,omitempty"`
	Source    string            `json:"source"`
	Tags      map[string]string `json:"tags,omitempty"`
	IsDelta   bool              `json:"is_delta,omitempty"`
	RawLength int               `json:"raw_length"`
}

func (m *Metric) RecordType() RecordType { return RecordMetric }

// Granularity is the aggregation interval of a histogram line.
type Granularity string

const (
	GranularityMinute Granularity = "minute"
	GranularityHour   Granularity = "hour"
	GranularityDay    Granularity = "day"
)

// Centroid summarizes one histogram bucket as a (count, value) pair.
type Centroid struct {
	Count uint32  `json:"count"`
	Value float64 `json:"value"`
}

// Histogram is a distribution line (!M/!H/!D directive). The metric name,
// source and tags of a histogram arrive on a separate physical line in the
// wire format and are not reassembled here; only the directive line itself
// is profiled.
type Histogram struct {
	Granularity Granularity `json:"granularity"`
	Timestamp   int64       `json:"timestamp,omitempty"`
	Count       uint32      `json:"count"`
	Centroids   []Centroid  `json:"centroids"`
	RawLength   int         `json:"raw_length"`
}

func (h *Histogram) RecordType() RecordType { return RecordHistogram }

// Span is a trace span line:
// <operation> source=<source> <tags> <start_ms> <duration_ms>
type Span struct {
	Operation      string            `json:"operation"`
	Source         string            `json:"source"`
	Tags           map[string]string `json:"span_tags,omitempty"`
	StartMillis    uint64            `json:"start_ms"`
	DurationMillis uint64            `json:"duration_ms"`
	RawLength      int               `json:"raw_length"`
}

func (s *Span) RecordType() RecordType { return RecordSpan }

// ParseError records a line that could not be parsed. RawPrefix holds at
// most the first 100 characters of the offending line.
type ParseError struct {
	RawPrefix string `json:"line"`
	Message   string `json:"error"`
}

func (e *ParseError) RecordType() RecordType { return RecordError }
