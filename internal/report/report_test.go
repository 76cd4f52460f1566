package report

import (
	"math"
	"strings"
	"testing"

	"github.com/loadgen/profiler/pkg/models"
)

func recipeWithCoverage(c float64) *models.Recipe {
	return &models.Recipe{Validation: &models.Validation{Coverage: c}}
}

func TestBuildSummary(t *testing.T) {
	stats := Stats{
		TotalLines:     1000,
		ParseErrors:    50,
		MissingSource:  50,
		MetricRecords:  900,
		Families:       10,
		RecipesWritten: 9,
		FailedFamilies: 1,
	}
	recipes := []*models.Recipe{
		recipeWithCoverage(0.8),
		recipeWithCoverage(0.9),
		recipeWithCoverage(1.0),
	}

	s := BuildSummary(stats, recipes)

	if s.RunID == "" {
		t.Error("empty run id")
	}
	if math.Abs(s.Coverage.Average-0.9) > 1e-9 {
		t.Errorf("average coverage: got %v", s.Coverage.Average)
	}
	if s.Coverage.Min != 0.8 || s.Coverage.Max != 1.0 {
		t.Errorf("coverage bounds: got %+v", s.Coverage)
	}

	// line coverage 0.9, success rate 0.9
	if math.Abs(s.Score-0.81) > 1e-9 {
		t.Errorf("score: got %v, want 0.81", s.Score)
	}
	if len(s.Issues) != 3 {
		t.Errorf("issues: got %v", s.Issues)
	}
}

func TestBuildSummaryUniqueRunIDs(t *testing.T) {
	a := BuildSummary(Stats{}, nil)
	b := BuildSummary(Stats{}, nil)
	if a.RunID == b.RunID {
		t.Errorf("run ids not unique: %s", a.RunID)
	}
}

func TestBuildSummaryClean(t *testing.T) {
	s := BuildSummary(Stats{TotalLines: 100, Families: 2, RecipesWritten: 2}, []*models.Recipe{
		recipeWithCoverage(1.0),
	})
	if s.Score != 1.0 {
		t.Errorf("clean run score: got %v", s.Score)
	}
	if len(s.Issues) != 0 {
		t.Errorf("clean run issues: got %v", s.Issues)
	}
}

func TestBuildSummaryNoRecipes(t *testing.T) {
	s := BuildSummary(Stats{}, nil)
	if s.Coverage.Min != 0 || s.Coverage.Max != 0 || s.Coverage.Average != 0 {
		t.Errorf("empty coverage: got %+v", s.Coverage)
	}
}

func TestRenderHTML(t *testing.T) {
	s := BuildSummary(Stats{TotalLines: 10, ParseErrors: 1, Families: 1, RecipesWritten: 1}, []*models.Recipe{
		recipeWithCoverage(0.9),
	})

	html, err := RenderHTML(s)
	if err != nil {
		t.Fatalf("RenderHTML: %v", err)
	}
	out := string(html)
	for _, want := range []string{s.RunID, "Profiling QA Report", "1 lines failed to parse", "Family coverage"} {
		if !strings.Contains(out, want) {
			t.Errorf("report missing %q", want)
		}
	}
}
