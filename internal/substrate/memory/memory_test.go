package memory

import (
	"context"
	"fmt"
	"testing"

	"github.com/loadgen/profiler/internal/profile"
	"github.com/loadgen/profiler/pkg/models"
)

func putMetrics(t *testing.T, s *Store, metrics ...*models.Metric) {
	t.Helper()
	ctx := context.Background()
	for _, m := range metrics {
		if err := s.Put(ctx, m); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}
}

func TestFamiliesGroupByNameAndTagKeys(t *testing.T) {
	s := New()
	putMetrics(t, s,
		&models.Metric{Name: "cpu.load", Value: 1, Source: "a", Tags: map[string]string{"env": "prod"}},
		&models.Metric{Name: "cpu.load", Value: 2, Source: "b", Tags: map[string]string{"env": "dev"}},
		&models.Metric{Name: "cpu.load", Value: 3, Source: "c"},
		&models.Metric{Name: "mem.used", Value: 4, Source: "a", Tags: map[string]string{"env": "prod"}},
	)

	families, err := s.Families(context.Background())
	if err != nil {
		t.Fatalf("Families: %v", err)
	}
	if len(families) != 3 {
		t.Fatalf("expected 3 families, got %d: %+v", len(families), families)
	}
	for i := 1; i < len(families); i++ {
		if families[i-1].ID >= families[i].ID {
			t.Errorf("families not ordered by id: %+v", families)
		}
	}

	wantID := profile.FamilyID("cpu.load", []string{"env"})
	var found bool
	for _, fi := range families {
		if fi.ID == wantID {
			found = true
			if fi.Count != 2 {
				t.Errorf("count for cpu.load{env}: got %d, want 2", fi.Count)
			}
			if fi.Name != "cpu.load" {
				t.Errorf("name: got %q", fi.Name)
			}
		}
	}
	if !found {
		t.Errorf("family %s not listed", wantID)
	}
}

func TestScanFamilyPreservesOrder(t *testing.T) {
	s := New()
	for i := 0; i < 10; i++ {
		putMetrics(t, s, &models.Metric{Name: "m", Value: float64(i), Source: "a"})
	}

	id := profile.FamilyID("m", nil)
	var values []float64
	err := s.ScanFamily(context.Background(), id, func(m *models.Metric) error {
		values = append(values, m.Value)
		return nil
	})
	if err != nil {
		t.Fatalf("ScanFamily: %v", err)
	}
	for i, v := range values {
		if v != float64(i) {
			t.Fatalf("scan order broken at %d: %v", i, values)
		}
	}
}

func TestSampleFamilyBounds(t *testing.T) {
	s := New()
	for i := 0; i < 100; i++ {
		putMetrics(t, s, &models.Metric{Name: "m", Value: float64(i), Source: "a"})
	}
	id := profile.FamilyID("m", nil)

	sample, err := s.SampleFamily(context.Background(), id, 10)
	if err != nil {
		t.Fatalf("SampleFamily: %v", err)
	}
	if len(sample) != 10 {
		t.Errorf("sample size: got %d, want 10", len(sample))
	}

	all, err := s.SampleFamily(context.Background(), id, 1000)
	if err != nil {
		t.Fatalf("SampleFamily: %v", err)
	}
	if len(all) != 100 {
		t.Errorf("oversized limit: got %d, want all 100", len(all))
	}
}

func TestSourceCounts(t *testing.T) {
	s := New()
	putMetrics(t, s,
		&models.Metric{Name: "m", Value: 1, Source: "web-1"},
		&models.Metric{Name: "m", Value: 2, Source: "web-1"},
		&models.Metric{Name: "m", Value: 3, Source: "web-2"},
	)
	id := profile.FamilyID("m", nil)

	gc, err := s.SourceCounts(context.Background(), id, 10)
	if err != nil {
		t.Fatalf("SourceCounts: %v", err)
	}
	if gc.Total != 3 || gc.Distinct != 2 {
		t.Errorf("total/distinct: got %d/%d, want 3/2", gc.Total, gc.Distinct)
	}
	if gc.Top[0].Value != "web-1" || gc.Top[0].Count != 2 {
		t.Errorf("top source: got %+v", gc.Top[0])
	}
}

func TestSourceCountsLimit(t *testing.T) {
	s := New()
	for i := 0; i < 20; i++ {
		putMetrics(t, s, &models.Metric{Name: "m", Value: 1, Source: fmt.Sprintf("s%d", i)})
	}
	id := profile.FamilyID("m", nil)

	gc, err := s.SourceCounts(context.Background(), id, 5)
	if err != nil {
		t.Fatalf("SourceCounts: %v", err)
	}
	if len(gc.Top) != 5 {
		t.Errorf("top length: got %d, want 5", len(gc.Top))
	}
	if gc.Distinct != 20 || gc.Total != 20 {
		t.Errorf("total/distinct: got %d/%d, want 20/20", gc.Total, gc.Distinct)
	}
}

func TestTopTagValuesExcludesMissingKey(t *testing.T) {
	s := New()
	putMetrics(t, s,
		&models.Metric{Name: "m", Value: 1, Source: "a", Tags: map[string]string{"env": "prod"}},
		&models.Metric{Name: "m", Value: 2, Source: "a", Tags: map[string]string{"env": "prod"}},
		&models.Metric{Name: "m", Value: 3, Source: "a", Tags: map[string]string{"env": "dev"}},
	)
	id := profile.FamilyID("m", []string{"env"})

	gc, err := s.TopTagValues(context.Background(), id, "env", 10)
	if err != nil {
		t.Fatalf("TopTagValues: %v", err)
	}
	if gc.Total != 3 || gc.Distinct != 2 {
		t.Errorf("total/distinct: got %d/%d", gc.Total, gc.Distinct)
	}
	if gc.Top[0].Value != "prod" || gc.Top[0].Count != 2 {
		t.Errorf("top tag value: got %+v", gc.Top[0])
	}

	missing, err := s.TopTagValues(context.Background(), id, "region", 10)
	if err != nil {
		t.Fatalf("TopTagValues: %v", err)
	}
	if missing.Total != 0 || len(missing.Top) != 0 {
		t.Errorf("missing key should count nothing: %+v", missing)
	}
}

func TestMinuteCounts(t *testing.T) {
	s := New()
	putMetrics(t, s,
		&models.Metric{Name: "m", Value: 1, Source: "a", Timestamp: 6000},
		&models.Metric{Name: "m", Value: 2, Source: "a", Timestamp: 6030},
		&models.Metric{Name: "m", Value: 3, Source: "a", Timestamp: 6120},
		&models.Metric{Name: "m", Value: 4, Source: "a"},
	)
	id := profile.FamilyID("m", nil)

	counts, err := s.MinuteCounts(context.Background(), id)
	if err != nil {
		t.Fatalf("MinuteCounts: %v", err)
	}
	if len(counts) != 2 || counts[0] != 2 || counts[1] != 1 {
		t.Errorf("counts: got %v, want [2 1]", counts)
	}
}

func TestSpans(t *testing.T) {
	s := New()
	ctx := context.Background()
	spans := []*models.Span{
		{Operation: "orders.checkout", Source: "a", StartMillis: 100, DurationMillis: 5},
		{Operation: "orders.checkout", Source: "b", StartMillis: 200, DurationMillis: 7},
		{Operation: "auth.login", Source: "a", StartMillis: 300, DurationMillis: 2},
	}
	for _, sp := range spans {
		if err := s.Put(ctx, sp); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}

	ops, err := s.SpanOperations(ctx)
	if err != nil {
		t.Fatalf("SpanOperations: %v", err)
	}
	if len(ops) != 2 || ops[0] != "auth.login" || ops[1] != "orders.checkout" {
		t.Errorf("operations: got %v", ops)
	}

	var durations []uint64
	err = s.OperationSpans(ctx, "orders.checkout", func(sp *models.Span) error {
		durations = append(durations, sp.DurationMillis)
		return nil
	})
	if err != nil {
		t.Fatalf("OperationSpans: %v", err)
	}
	if len(durations) != 2 || durations[0] != 5 || durations[1] != 7 {
		t.Errorf("durations: got %v", durations)
	}
}

func TestHistograms(t *testing.T) {
	s := New()
	ctx := context.Background()
	if err := s.Put(ctx, &models.Histogram{
		Granularity: models.GranularityMinute,
		Count:       2,
		Centroids:   []models.Centroid{{Count: 1, Value: 0.5}, {Count: 1, Value: 1.5}},
	}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	var n int
	err := s.ScanHistograms(ctx, func(h *models.Histogram) error {
		n++
		if h.Granularity != models.GranularityMinute || len(h.Centroids) != 2 {
			t.Errorf("histogram: got %+v", h)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("ScanHistograms: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 histogram, got %d", n)
	}
}

func TestPutRejectsParseError(t *testing.T) {
	s := New()
	err := s.Put(context.Background(), &models.ParseError{RawPrefix: "x", Message: "bad"})
	if err == nil {
		t.Fatal("expected error for ParseError record")
	}
}
