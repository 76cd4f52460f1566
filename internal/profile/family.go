// Package profile implements the per-family statistical estimators that
// populate a Recipe: family keying, tag typing, categorical and numeric
// distributions, temporal intensity analysis and string pattern mining.
//
// Every function here is pure and stateless over explicit inputs, so callers
// may fan out across record partitions freely. Each estimator enforces a
// hard bound on sample or output size so memory stays bounded regardless of
// input cardinality.
package profile

import (
	"crypto/sha1"
	"encoding/hex"
	"sort"
	"strings"

	"github.com/loadgen/profiler/pkg/models"
)

// FamilyID derives the deterministic family identifier for a metric or
// histogram record: hex(sha1(name + "|" + sorted unique tag keys)). Two
// records share a family iff their metric name and tag key set match; tag
// values, tag order and record counts never influence the id.
func FamilyID(metricName string, tagKeys []string) string {
	uniq := make(map[string]struct{}, len(tagKeys))
	for _, k := range tagKeys {
		uniq[k] = struct{}{}
	}
	keys := make([]string, 0, len(uniq))
	for k := range uniq {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	sum := sha1.Sum([]byte(metricName + "|" + strings.Join(keys, ",")))
	return hex.EncodeToString(sum[:])
}

// MetricFamilyID returns the family id for a parsed metric record.
func MetricFamilyID(m *models.Metric) string {
	keys := make([]string, 0, len(m.Tags))
	for k := range m.Tags {
		keys = append(keys, k)
	}
	return FamilyID(m.Name, keys)
}

// SpanFamilyID derives the recipe id for a span operation. Spans group by
// operation name alone; the span_ namespace keeps the ids disjoint from
// metric family ids.
func SpanFamilyID(operation string) string {
	sum := sha1.Sum([]byte(operation))
	return "span_" + hex.EncodeToString(sum[:])
}
