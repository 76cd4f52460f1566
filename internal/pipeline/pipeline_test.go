package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/loadgen/profiler/internal/recipe"
	"github.com/loadgen/profiler/internal/storage"
	"github.com/loadgen/profiler/internal/substrate/memory"
)

const testInput = `# comment line

cpu.load 0.5 1700000000 source=web-1 env=prod
cpu.load 0.7 1700000060 source=web-2 env=prod
cpu.load 0.6 1700000120 source=web-1 env=staging
mem.used 1024 1700000000 source=web-1
gauge abc source=web-1
no.source.metric 5
!M 1700000000 #2 1 0.5 1 1.5
orders.checkout source=svc-a env=prod 1700000000000 45
orders.checkout source=svc-b env=prod 1700000060000 52
`

func runPipeline(t *testing.T) (*storage.Library, []string) {
	t.Helper()
	inDir := t.TempDir()
	outDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(inDir, "batch.wf"), []byte(testInput), 0o644); err != nil {
		t.Fatalf("writing input: %v", err)
	}

	writer, err := storage.NewWriter(outDir)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	store := memory.New()
	defer store.Close()

	p := New(
		storage.NewReader(inDir),
		writer,
		store,
		recipe.NewBuilder(store, recipe.DefaultConfig()),
		NewMetrics(prometheus.NewRegistry()),
	)

	summary, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	// 9 non-blank, non-comment lines in the fixture.
	if summary.Processing.TotalLines != 9 {
		t.Errorf("total lines: got %d, want 9", summary.Processing.TotalLines)
	}
	if summary.Processing.ParseErrors != 1 {
		t.Errorf("parse errors: got %d, want 1", summary.Processing.ParseErrors)
	}
	if summary.Processing.MissingSource != 1 {
		t.Errorf("missing source: got %d, want 1", summary.Processing.MissingSource)
	}
	if summary.Processing.MetricRecords != 4 {
		t.Errorf("metric records: got %d, want 4", summary.Processing.MetricRecords)
	}
	if summary.Processing.HistogramRecords != 1 {
		t.Errorf("histogram records: got %d, want 1", summary.Processing.HistogramRecords)
	}
	if summary.Processing.SpanRecords != 2 {
		t.Errorf("span records: got %d, want 2", summary.Processing.SpanRecords)
	}
	if summary.Processing.Families != 2 {
		t.Errorf("families: got %d, want 2", summary.Processing.Families)
	}
	// 2 family recipes plus the histogram recipe.
	if summary.Processing.RecipesWritten != 3 {
		t.Errorf("recipes written: got %d, want 3", summary.Processing.RecipesWritten)
	}
	if summary.Processing.SpanRecipes != 1 {
		t.Errorf("span recipes: got %d, want 1", summary.Processing.SpanRecipes)
	}
	if summary.Processing.FailedFamilies != 0 {
		t.Errorf("failed families: got %d", summary.Processing.FailedFamilies)
	}

	lib, err := storage.NewLibrary(outDir)
	if err != nil {
		t.Fatalf("NewLibrary: %v", err)
	}
	ids, err := lib.ListRecipes()
	if err != nil {
		t.Fatalf("ListRecipes: %v", err)
	}
	return lib, ids
}

func TestRunEndToEnd(t *testing.T) {
	lib, ids := runPipeline(t)

	if !lib.Completed() {
		t.Error("completion marker missing after successful run")
	}
	if len(ids) != 3 {
		t.Fatalf("expected 3 recipes, got %v", ids)
	}

	var foundCPU bool
	for _, id := range ids {
		r, err := lib.GetRecipe(id)
		if err != nil {
			t.Fatalf("GetRecipe %s: %v", id, err)
		}
		if r.MetricName == "cpu.load" {
			foundCPU = true
			if r.Statistics.SampleCount != 3 {
				t.Errorf("cpu.load sample count: got %d", r.Statistics.SampleCount)
			}
			if r.Schema.TagSchema["env"].Presence != 1.0 {
				t.Errorf("env presence: got %v", r.Schema.TagSchema["env"].Presence)
			}
		}
	}
	if !foundCPU {
		t.Error("cpu.load recipe not written")
	}

	spanIDs, err := lib.ListSpanRecipes()
	if err != nil {
		t.Fatalf("ListSpanRecipes: %v", err)
	}
	if len(spanIDs) != 1 || !strings.HasPrefix(spanIDs[0], "span_") {
		t.Fatalf("span recipes: got %v", spanIDs)
	}
	span, err := lib.GetSpanRecipe(spanIDs[0])
	if err != nil {
		t.Fatalf("GetSpanRecipe: %v", err)
	}
	if span.MetricName != "orders.checkout" || span.Statistics.SampleCount != 2 {
		t.Errorf("span recipe: got %+v", span)
	}

	summary, err := lib.Summary()
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if !strings.Contains(string(summary), "run_id") {
		t.Error("summary missing run_id")
	}
	html, err := lib.Report()
	if err != nil {
		t.Fatalf("Report: %v", err)
	}
	if !strings.Contains(string(html), "Profiling QA Report") {
		t.Error("report missing title")
	}
}

func TestRunMissingInputIsFatal(t *testing.T) {
	outDir := t.TempDir()
	writer, err := storage.NewWriter(outDir)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	store := memory.New()
	defer store.Close()

	p := New(
		storage.NewReader(filepath.Join(t.TempDir(), "missing")),
		writer,
		store,
		recipe.NewBuilder(store, recipe.DefaultConfig()),
		NewMetrics(prometheus.NewRegistry()),
	)

	if _, err := p.Run(context.Background()); err == nil {
		t.Fatal("expected fatal error for missing input path")
	}

	lib, err := storage.NewLibrary(outDir)
	if err != nil {
		t.Fatalf("NewLibrary: %v", err)
	}
	if lib.Completed() {
		t.Error("completion marker written for a failed run")
	}
}
