// Package substrate provides the grouped-record store backing recipe
// generation. A batch is ingested once through Put, then read back through
// per-family scans, bounded uniform samples and grouped counts.
package substrate

import (
	"context"

	"github.com/loadgen/profiler/pkg/models"
)

// Substrate stores one batch of parsed records grouped by family.
// Implementations must be safe for concurrent use.
type Substrate interface {
	// Put ingests one record. ParseError records are rejected.
	Put(ctx context.Context, rec models.Record) error

	// Families lists all metric families, ordered by family id.
	Families(ctx context.Context) ([]models.FamilyInfo, error)

	// ScanFamily streams every metric of a family through fn in ingestion
	// order. A non-nil error from fn aborts the scan.
	ScanFamily(ctx context.Context, familyID string, fn func(*models.Metric) error) error

	// SampleFamily returns up to limit metrics drawn uniformly at random
	// from a family.
	SampleFamily(ctx context.Context, familyID string, limit int) ([]*models.Metric, error)

	// ScanHistograms streams every histogram record of the batch through fn.
	ScanHistograms(ctx context.Context, fn func(*models.Histogram) error) error

	// SpanOperations lists distinct span operation names, ordered by name.
	SpanOperations(ctx context.Context) ([]string, error)

	// OperationSpans streams every span of one operation through fn.
	OperationSpans(ctx context.Context, operation string, fn func(*models.Span) error) error

	// SourceCounts groups a family's records by source.
	SourceCounts(ctx context.Context, familyID string, limit int) (*models.GroupedCounts, error)

	// TopTagValues groups a family's records by the value of one tag key.
	// Records without the key are excluded from Total.
	TopTagValues(ctx context.Context, familyID, key string, limit int) (*models.GroupedCounts, error)

	// MinuteCounts returns per-minute record counts for a family, ascending
	// by minute; empty minutes are omitted. Records without a timestamp are
	// skipped.
	MinuteCounts(ctx context.Context, familyID string) ([]int64, error)

	// Close releases backend resources.
	Close() error
}
