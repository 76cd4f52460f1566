package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/loadgen/profiler/pkg/models"
)

const (
	recipesDir = "recipes"
	spansDir   = "spans"
	reportsDir = "reports"

	// MarkerFile is written last, only after every other step succeeded.
	MarkerFile = "_PROFILE_OK"

	// SummaryFile and ReportFile live under reportsDir.
	SummaryFile = "qa_summary.json"
	ReportFile  = "profile_qa.html"
)

// Marker is the completion document written to MarkerFile.
type Marker struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Message   string `json:"message"`
}

// Writer persists profiling outputs under one output root.
type Writer struct {
	root string
}

// NewWriter creates a writer rooted at the given output directory, creating
// the recipes, spans and reports subdirectories.
func NewWriter(root string) (*Writer, error) {
	for _, dir := range []string{recipesDir, spansDir, reportsDir} {
		if err := os.MkdirAll(filepath.Join(root, dir), 0o755); err != nil {
			return nil, fmt.Errorf("creating output directory: %w", err)
		}
	}
	return &Writer{root: root}, nil
}

// WriteRecipe writes one family recipe to recipes/<family_id>.json.zst.
func (w *Writer) WriteRecipe(r *models.Recipe) error {
	path := filepath.Join(w.root, recipesDir, r.FamilyID+".json.zst")
	return w.writeCompressedJSON(path, r)
}

// WriteSpanRecipe writes one span recipe to spans/<family_id>.json.
func (w *Writer) WriteSpanRecipe(r *models.Recipe) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding span recipe: %w", err)
	}
	path := filepath.Join(w.root, spansDir, r.FamilyID+".json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing span recipe: %w", err)
	}
	return nil
}

// WriteSummary writes the QA summary JSON to reports/qa_summary.json.
func (w *Writer) WriteSummary(summary any) error {
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding summary: %w", err)
	}
	path := filepath.Join(w.root, reportsDir, SummaryFile)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing summary: %w", err)
	}
	return nil
}

// WriteReport writes the HTML QA report to reports/profile_qa.html.
func (w *Writer) WriteReport(html []byte) error {
	path := filepath.Join(w.root, reportsDir, ReportFile)
	if err := os.WriteFile(path, html, 0o644); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}
	return nil
}

// WriteMarker writes the completion marker. Callers must only invoke this
// after all other outputs are on disk; a run without a marker is incomplete.
func (w *Writer) WriteMarker(status, message string) error {
	marker := Marker{
		Status:    status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Message:   message,
	}
	data, err := json.MarshalIndent(marker, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding marker: %w", err)
	}
	path := filepath.Join(w.root, MarkerFile)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing completion marker: %w", err)
	}
	return nil
}

func (w *Writer) writeCompressedJSON(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer f.Close()

	zw, err := zstd.NewWriter(f)
	if err != nil {
		return fmt.Errorf("opening zstd stream: %w", err)
	}

	enc := json.NewEncoder(zw)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		zw.Close()
		return fmt.Errorf("encoding %s: %w", path, err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("closing zstd stream: %w", err)
	}
	return f.Close()
}
