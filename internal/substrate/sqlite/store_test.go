package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/loadgen/profiler/internal/profile"
	"github.com/loadgen/profiler/pkg/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(DefaultConfig(filepath.Join(t.TempDir(), "test.db")))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRoundTripMetric(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	in := &models.Metric{
		Name:      "cpu.load",
		Value:     0.81,
		Timestamp: 1700000000,
		Source:    "web-1",
		Tags:      map[string]string{"env": "prod", "dc": "us-east-1"},
		IsDelta:   true,
		RawLength: 60,
	}
	if err := s.Put(ctx, in); err != nil {
		t.Fatalf("Put: %v", err)
	}

	id := profile.MetricFamilyID(in)
	var got *models.Metric
	err := s.ScanFamily(ctx, id, func(m *models.Metric) error {
		got = m
		return nil
	})
	if err != nil {
		t.Fatalf("ScanFamily: %v", err)
	}
	if got == nil {
		t.Fatal("metric not found after Put")
	}
	if got.Name != in.Name || got.Value != in.Value || got.Timestamp != in.Timestamp ||
		got.Source != in.Source || !got.IsDelta || got.RawLength != in.RawLength {
		t.Errorf("round trip mismatch: got %+v", got)
	}
	if got.Tags["env"] != "prod" || got.Tags["dc"] != "us-east-1" {
		t.Errorf("tags: got %v", got.Tags)
	}
}

func TestFamiliesAndCounts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 7; i++ {
		if err := s.Put(ctx, &models.Metric{Name: "a", Value: float64(i), Source: "x"}); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}
	if err := s.Put(ctx, &models.Metric{Name: "b", Value: 1, Source: "x"}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	families, err := s.Families(ctx)
	if err != nil {
		t.Fatalf("Families: %v", err)
	}
	if len(families) != 2 {
		t.Fatalf("expected 2 families, got %d", len(families))
	}
	byName := map[string]int64{}
	for _, fi := range families {
		byName[fi.Name] = fi.Count
	}
	if byName["a"] != 7 || byName["b"] != 1 {
		t.Errorf("counts: got %v", byName)
	}
}

func TestSampleFamilyLimit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 50; i++ {
		if err := s.Put(ctx, &models.Metric{Name: "m", Value: float64(i), Source: "x"}); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}
	id := profile.FamilyID("m", nil)

	sample, err := s.SampleFamily(ctx, id, 10)
	if err != nil {
		t.Fatalf("SampleFamily: %v", err)
	}
	if len(sample) != 10 {
		t.Errorf("sample size: got %d, want 10", len(sample))
	}

	all, err := s.SampleFamily(ctx, id, 0)
	if err != nil {
		t.Fatalf("SampleFamily: %v", err)
	}
	if len(all) != 50 {
		t.Errorf("unlimited sample: got %d, want 50", len(all))
	}
}

func TestGroupedCounts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	metrics := []*models.Metric{
		{Name: "m", Value: 1, Source: "web-1", Tags: map[string]string{"env": "prod"}},
		{Name: "m", Value: 2, Source: "web-1", Tags: map[string]string{"env": "prod"}},
		{Name: "m", Value: 3, Source: "web-2", Tags: map[string]string{"env": "dev"}},
	}
	for _, m := range metrics {
		if err := s.Put(ctx, m); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}
	id := profile.FamilyID("m", []string{"env"})

	sources, err := s.SourceCounts(ctx, id, 10)
	if err != nil {
		t.Fatalf("SourceCounts: %v", err)
	}
	if sources.Total != 3 || sources.Distinct != 2 {
		t.Errorf("source total/distinct: got %d/%d", sources.Total, sources.Distinct)
	}
	if sources.Top[0].Value != "web-1" || sources.Top[0].Count != 2 {
		t.Errorf("top source: got %+v", sources.Top[0])
	}

	envs, err := s.TopTagValues(ctx, id, "env", 10)
	if err != nil {
		t.Fatalf("TopTagValues: %v", err)
	}
	if envs.Total != 3 || envs.Distinct != 2 {
		t.Errorf("env total/distinct: got %d/%d", envs.Total, envs.Distinct)
	}
	if envs.Top[0].Value != "prod" || envs.Top[0].Count != 2 {
		t.Errorf("top env: got %+v", envs.Top[0])
	}

	missing, err := s.TopTagValues(ctx, id, "region", 10)
	if err != nil {
		t.Fatalf("TopTagValues: %v", err)
	}
	if missing.Total != 0 || len(missing.Top) != 0 {
		t.Errorf("missing key should count nothing: %+v", missing)
	}
}

func TestMinuteCountsOrdering(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, ts := range []int64{6120, 6000, 6030, 0} {
		if err := s.Put(ctx, &models.Metric{Name: "m", Value: 1, Source: "x", Timestamp: ts}); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}
	id := profile.FamilyID("m", nil)

	counts, err := s.MinuteCounts(ctx, id)
	if err != nil {
		t.Fatalf("MinuteCounts: %v", err)
	}
	if len(counts) != 2 || counts[0] != 2 || counts[1] != 1 {
		t.Errorf("counts: got %v, want [2 1]", counts)
	}
}

func TestSpansAndHistograms(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.Put(ctx, &models.Span{
		Operation: "orders.checkout", Source: "a",
		Tags:        map[string]string{"cluster": "east"},
		StartMillis: 1700000000000, DurationMillis: 42,
	}); err != nil {
		t.Fatalf("Put span: %v", err)
	}
	if err := s.Put(ctx, &models.Histogram{
		Granularity: models.GranularityHour,
		Timestamp:   1700000000,
		Count:       3,
		Centroids:   []models.Centroid{{Count: 3, Value: 1.5}},
	}); err != nil {
		t.Fatalf("Put histogram: %v", err)
	}

	ops, err := s.SpanOperations(ctx)
	if err != nil {
		t.Fatalf("SpanOperations: %v", err)
	}
	if len(ops) != 1 || ops[0] != "orders.checkout" {
		t.Errorf("operations: got %v", ops)
	}

	var spanCount int
	err = s.OperationSpans(ctx, "orders.checkout", func(sp *models.Span) error {
		spanCount++
		if sp.DurationMillis != 42 || sp.Tags["cluster"] != "east" {
			t.Errorf("span: got %+v", sp)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("OperationSpans: %v", err)
	}
	if spanCount != 1 {
		t.Errorf("span count: got %d", spanCount)
	}

	var histCount int
	err = s.ScanHistograms(ctx, func(h *models.Histogram) error {
		histCount++
		if h.Granularity != models.GranularityHour || h.Count != 3 || len(h.Centroids) != 1 {
			t.Errorf("histogram: got %+v", h)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("ScanHistograms: %v", err)
	}
	if histCount != 1 {
		t.Errorf("histogram count: got %d", histCount)
	}
}

func TestBatchFlushOnRead(t *testing.T) {
	cfg := DefaultConfig(filepath.Join(t.TempDir(), "test.db"))
	cfg.BatchSize = 10000
	s, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()
	ctx := context.Background()

	// Well below the batch size; reads must still see the records.
	for i := 0; i < 5; i++ {
		if err := s.Put(ctx, &models.Metric{Name: "m", Value: float64(i), Source: "x"}); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}

	families, err := s.Families(ctx)
	if err != nil {
		t.Fatalf("Families: %v", err)
	}
	if len(families) != 1 || families[0].Count != 5 {
		t.Errorf("families: got %+v", families)
	}
}

func TestPutRejectsParseError(t *testing.T) {
	s := newTestStore(t)
	if err := s.Put(context.Background(), &models.ParseError{RawPrefix: "x", Message: "bad"}); err == nil {
		t.Fatal("expected error for ParseError record")
	}
}
