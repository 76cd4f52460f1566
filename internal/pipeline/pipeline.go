// Package pipeline orchestrates one profiling run: ingest raw lines into the
// substrate, discover families, build and persist recipes, emit QA reports
// and finally write the completion marker.
package pipeline

import (
	"context"
	"fmt"
	"log"

	"github.com/loadgen/profiler/internal/recipe"
	"github.com/loadgen/profiler/internal/report"
	"github.com/loadgen/profiler/internal/storage"
	"github.com/loadgen/profiler/internal/substrate"
	"github.com/loadgen/profiler/internal/wire"
	"github.com/loadgen/profiler/pkg/models"
)

// Pipeline wires the profiling stages together for one batch.
type Pipeline struct {
	reader  *storage.Reader
	writer  *storage.Writer
	store   substrate.Substrate
	builder *recipe.Builder
	metrics *Metrics
}

// New assembles a pipeline over the given collaborators.
func New(reader *storage.Reader, writer *storage.Writer, store substrate.Substrate, builder *recipe.Builder, metrics *Metrics) *Pipeline {
	return &Pipeline{
		reader:  reader,
		writer:  writer,
		store:   store,
		builder: builder,
		metrics: metrics,
	}
}

// Run executes the full profiling run and returns the QA summary. A failure
// to read the input root or to write any report or the completion marker is
// fatal; per-family recipe failures are logged and skipped.
func (p *Pipeline) Run(ctx context.Context) (*report.Summary, error) {
	stats, quality, err := p.ingest(ctx)
	if err != nil {
		return nil, err
	}

	families, err := p.store.Families(ctx)
	if err != nil {
		return nil, fmt.Errorf("discovering families: %w", err)
	}
	stats.Families = len(families)
	p.metrics.FamiliesDiscovered.Set(float64(len(families)))
	log.Printf("Discovered %d metric families", len(families))

	recipes := p.buildFamilyRecipes(ctx, families, quality, stats)

	if err := p.buildSpanRecipes(ctx, quality, stats); err != nil {
		return nil, err
	}

	summary := report.BuildSummary(*stats, recipes)
	if err := p.writer.WriteSummary(summary); err != nil {
		return nil, err
	}
	html, err := report.RenderHTML(summary)
	if err != nil {
		return nil, err
	}
	if err := p.writer.WriteReport(html); err != nil {
		return nil, err
	}

	message := fmt.Sprintf("profiled %d families, %d span operations, %d failed",
		stats.Families, stats.SpanRecipes, stats.FailedFamilies)
	if err := p.writer.WriteMarker("success", message); err != nil {
		return nil, err
	}

	log.Printf("Run complete: %s", message)
	return summary, nil
}

// ingest streams every input line through the parser into the substrate.
func (p *Pipeline) ingest(ctx context.Context) (*report.Stats, *recipe.BatchQuality, error) {
	stats := &report.Stats{}
	quality := &recipe.BatchQuality{}

	err := p.reader.Walk(ctx, func(line string) error {
		if wire.Skippable(line) {
			return nil
		}
		stats.TotalLines++
		quality.TotalLines++
		p.metrics.LinesTotal.Inc()

		rec := wire.Parse(line)
		if rec == nil {
			stats.MissingSource++
			quality.MissingSource++
			p.metrics.MissingSourceTotal.Inc()
			return nil
		}

		switch rec.(type) {
		case *models.ParseError:
			stats.ParseErrors++
			quality.ParseErrors++
			p.metrics.ParseErrorsTotal.Inc()
			return nil
		case *models.Metric:
			stats.MetricRecords++
		case *models.Histogram:
			stats.HistogramRecords++
		case *models.Span:
			stats.SpanRecords++
		}
		p.metrics.RecordsTotal.WithLabelValues(string(rec.RecordType())).Inc()

		if err := p.store.Put(ctx, rec); err != nil {
			return fmt.Errorf("ingesting record: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("ingesting input: %w", err)
	}

	log.Printf("Ingested %d lines: %d metrics, %d histograms, %d spans, %d parse errors, %d missing source",
		stats.TotalLines, stats.MetricRecords, stats.HistogramRecords, stats.SpanRecords,
		stats.ParseErrors, stats.MissingSource)
	return stats, quality, nil
}

// buildFamilyRecipes builds and writes one recipe per family plus the
// histogram recipe. Per-family failures are isolated.
func (p *Pipeline) buildFamilyRecipes(ctx context.Context, families []models.FamilyInfo, quality *recipe.BatchQuality, stats *report.Stats) []*models.Recipe {
	var recipes []*models.Recipe
	for _, fi := range families {
		r, err := p.builder.BuildFamily(ctx, fi, quality)
		if err != nil {
			log.Printf("Skipping family %s (%s): %v", fi.ID, fi.Name, err)
			stats.FailedFamilies++
			p.metrics.FailedFamiliesTotal.Inc()
			continue
		}
		if err := p.writer.WriteRecipe(r); err != nil {
			log.Printf("Skipping family %s (%s): %v", fi.ID, fi.Name, err)
			stats.FailedFamilies++
			p.metrics.FailedFamiliesTotal.Inc()
			continue
		}
		recipes = append(recipes, r)
		stats.RecipesWritten++
		p.metrics.RecipesTotal.Inc()
	}

	hr, err := p.builder.BuildHistograms(ctx, quality)
	if err != nil {
		log.Printf("Skipping histogram recipe: %v", err)
		stats.FailedFamilies++
		p.metrics.FailedFamiliesTotal.Inc()
	} else if hr != nil {
		if err := p.writer.WriteRecipe(hr); err != nil {
			log.Printf("Skipping histogram recipe: %v", err)
			stats.FailedFamilies++
			p.metrics.FailedFamiliesTotal.Inc()
		} else {
			recipes = append(recipes, hr)
			stats.RecipesWritten++
			p.metrics.RecipesTotal.Inc()
		}
	}
	return recipes
}

// buildSpanRecipes builds and writes one recipe per span operation.
// Per-operation failures are isolated; listing the operations is not.
func (p *Pipeline) buildSpanRecipes(ctx context.Context, quality *recipe.BatchQuality, stats *report.Stats) error {
	ops, err := p.store.SpanOperations(ctx)
	if err != nil {
		return fmt.Errorf("listing span operations: %w", err)
	}

	for _, op := range ops {
		r, err := p.builder.BuildSpanOperation(ctx, op, quality)
		if err != nil {
			log.Printf("Skipping span operation %s: %v", op, err)
			stats.FailedFamilies++
			p.metrics.FailedFamiliesTotal.Inc()
			continue
		}
		if err := p.writer.WriteSpanRecipe(r); err != nil {
			log.Printf("Skipping span operation %s: %v", op, err)
			stats.FailedFamilies++
			p.metrics.FailedFamiliesTotal.Inc()
			continue
		}
		stats.SpanRecipes++
		p.metrics.RecipesTotal.Inc()
	}
	return nil
}
