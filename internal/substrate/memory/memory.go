// Package memory provides an in-memory substrate implementation for batches
// that fit in RAM.
package memory

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"sync"

	"github.com/loadgen/profiler/internal/profile"
	"github.com/loadgen/profiler/pkg/models"
)

// Store is an in-memory substrate. The zero value is not usable; use New.
type Store struct {
	mu sync.RWMutex

	metrics    map[string][]*models.Metric // family id -> records
	names      map[string]string           // family id -> metric name
	histograms []*models.Histogram
	spans      map[string][]*models.Span // operation -> spans
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		metrics: make(map[string][]*models.Metric),
		names:   make(map[string]string),
		spans:   make(map[string][]*models.Span),
	}
}

// Put ingests one record.
func (s *Store) Put(ctx context.Context, rec models.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch r := rec.(type) {
	case *models.Metric:
		id := profile.MetricFamilyID(r)
		s.metrics[id] = append(s.metrics[id], r)
		s.names[id] = r.Name
	case *models.Histogram:
		s.histograms = append(s.histograms, r)
	case *models.Span:
		s.spans[r.Operation] = append(s.spans[r.Operation], r)
	default:
		return fmt.Errorf("unsupported record type %q", rec.RecordType())
	}
	return nil
}

// Families lists all metric families, ordered by family id.
func (s *Store) Families(ctx context.Context) ([]models.FamilyInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	families := make([]models.FamilyInfo, 0, len(s.metrics))
	for id, recs := range s.metrics {
		families = append(families, models.FamilyInfo{
			ID:    id,
			Name:  s.names[id],
			Count: int64(len(recs)),
		})
	}
	sort.Slice(families, func(i, j int) bool { return families[i].ID < families[j].ID })
	return families, nil
}

// ScanFamily streams every metric of a family through fn in ingestion order.
func (s *Store) ScanFamily(ctx context.Context, familyID string, fn func(*models.Metric) error) error {
	s.mu.RLock()
	recs := s.metrics[familyID]
	s.mu.RUnlock()

	for _, r := range recs {
		if err := fn(r); err != nil {
			return err
		}
	}
	return nil
}

// SampleFamily returns up to limit metrics drawn uniformly at random.
func (s *Store) SampleFamily(ctx context.Context, familyID string, limit int) ([]*models.Metric, error) {
	s.mu.RLock()
	recs := s.metrics[familyID]
	s.mu.RUnlock()

	if limit <= 0 || limit >= len(recs) {
		out := make([]*models.Metric, len(recs))
		copy(out, recs)
		return out, nil
	}

	out := make([]*models.Metric, 0, limit)
	for _, i := range rand.Perm(len(recs))[:limit] {
		out = append(out, recs[i])
	}
	return out, nil
}

// ScanHistograms streams every histogram record through fn.
func (s *Store) ScanHistograms(ctx context.Context, fn func(*models.Histogram) error) error {
	s.mu.RLock()
	hists := s.histograms
	s.mu.RUnlock()

	for _, h := range hists {
		if err := fn(h); err != nil {
			return err
		}
	}
	return nil
}

// SpanOperations lists distinct span operation names, ordered by name.
func (s *Store) SpanOperations(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ops := make([]string, 0, len(s.spans))
	for op := range s.spans {
		ops = append(ops, op)
	}
	sort.Strings(ops)
	return ops, nil
}

// OperationSpans streams every span of one operation through fn.
func (s *Store) OperationSpans(ctx context.Context, operation string, fn func(*models.Span) error) error {
	s.mu.RLock()
	spans := s.spans[operation]
	s.mu.RUnlock()

	for _, sp := range spans {
		if err := fn(sp); err != nil {
			return err
		}
	}
	return nil
}

// SourceCounts groups a family's records by source.
func (s *Store) SourceCounts(ctx context.Context, familyID string, limit int) (*models.GroupedCounts, error) {
	return s.groupFamily(familyID, limit, func(m *models.Metric) (string, bool) {
		return m.Source, true
	})
}

// TopTagValues groups a family's records by the value of one tag key.
func (s *Store) TopTagValues(ctx context.Context, familyID, key string, limit int) (*models.GroupedCounts, error) {
	return s.groupFamily(familyID, limit, func(m *models.Metric) (string, bool) {
		v, ok := m.Tags[key]
		return v, ok
	})
}

func (s *Store) groupFamily(familyID string, limit int, keyOf func(*models.Metric) (string, bool)) (*models.GroupedCounts, error) {
	s.mu.RLock()
	recs := s.metrics[familyID]
	s.mu.RUnlock()

	counts := make(map[string]int64)
	order := make([]string, 0)
	var total int64
	for _, r := range recs {
		v, ok := keyOf(r)
		if !ok {
			continue
		}
		if _, seen := counts[v]; !seen {
			order = append(order, v)
		}
		counts[v]++
		total++
	}

	sort.SliceStable(order, func(i, j int) bool { return counts[order[i]] > counts[order[j]] })
	distinct := int64(len(order))
	if limit > 0 && len(order) > limit {
		order = order[:limit]
	}

	top := make([]models.ValueCount, len(order))
	for i, v := range order {
		top[i] = models.ValueCount{Value: v, Count: counts[v]}
	}
	return &models.GroupedCounts{Top: top, Total: total, Distinct: distinct}, nil
}

// MinuteCounts returns per-minute record counts for a family.
func (s *Store) MinuteCounts(ctx context.Context, familyID string) ([]int64, error) {
	s.mu.RLock()
	recs := s.metrics[familyID]
	s.mu.RUnlock()

	timestamps := make([]int64, 0, len(recs))
	for _, r := range recs {
		timestamps = append(timestamps, r.Timestamp)
	}
	return profile.MinuteBuckets(timestamps), nil
}

// Close releases resources. It is a no-op for the in-memory store.
func (s *Store) Close() error { return nil }
