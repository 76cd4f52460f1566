package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/zstd"

	"github.com/loadgen/profiler/pkg/models"
)

// Library reads a completed output directory back: recipes, span recipes and
// reports. It is the read side used by the serve command.
type Library struct {
	root string
}

// NewLibrary opens an output directory for reading.
func NewLibrary(root string) (*Library, error) {
	if _, err := os.Stat(root); err != nil {
		return nil, fmt.Errorf("opening output path %s: %w", root, err)
	}
	return &Library{root: root}, nil
}

// Completed reports whether the directory carries a completion marker.
func (l *Library) Completed() bool {
	_, err := os.Stat(filepath.Join(l.root, MarkerFile))
	return err == nil
}

// ListRecipes returns the family ids of all stored recipes, sorted.
func (l *Library) ListRecipes() ([]string, error) {
	return listIDs(filepath.Join(l.root, recipesDir), ".json.zst")
}

// ListSpanRecipes returns the ids of all stored span recipes, sorted.
func (l *Library) ListSpanRecipes() ([]string, error) {
	return listIDs(filepath.Join(l.root, spansDir), ".json")
}

func listIDs(dir, suffix string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", dir, err)
	}

	var ids []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), suffix) {
			continue
		}
		ids = append(ids, strings.TrimSuffix(e.Name(), suffix))
	}
	sort.Strings(ids)
	return ids, nil
}

// GetRecipe loads one family recipe by id.
func (l *Library) GetRecipe(familyID string) (*models.Recipe, error) {
	path := filepath.Join(l.root, recipesDir, familyID+".json.zst")
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("opening recipe %s: %w", familyID, err)
	}
	defer f.Close()

	zr, err := zstd.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("opening zstd stream: %w", err)
	}
	defer zr.Close()

	var r models.Recipe
	if err := json.NewDecoder(zr).Decode(&r); err != nil {
		return nil, fmt.Errorf("decoding recipe %s: %w", familyID, err)
	}
	return &r, nil
}

// GetSpanRecipe loads one span recipe by id.
func (l *Library) GetSpanRecipe(id string) (*models.Recipe, error) {
	data, err := os.ReadFile(filepath.Join(l.root, spansDir, id+".json"))
	if os.IsNotExist(err) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading span recipe %s: %w", id, err)
	}

	var r models.Recipe
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decoding span recipe %s: %w", id, err)
	}
	return &r, nil
}

// Summary returns the raw QA summary JSON.
func (l *Library) Summary() ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(l.root, reportsDir, SummaryFile))
	if os.IsNotExist(err) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading summary: %w", err)
	}
	return data, nil
}

// Report returns the rendered HTML QA report.
func (l *Library) Report() ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(l.root, reportsDir, ReportFile))
	if os.IsNotExist(err) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading report: %w", err)
	}
	return data, nil
}
