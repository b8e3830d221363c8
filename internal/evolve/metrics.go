package evolve

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var (
	tracer = otel.Tracer("evonet.evolve")
	meter  = otel.Meter("evonet.evolve")
)

var (
	generationsTotal metric.Int64Counter
	bestFitness      metric.Float64Histogram
	mutationsTotal   metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		generationsTotal, err = meter.Int64Counter(
			"evolve_generations_total",
			metric.WithDescription("Total number of evaluated generations"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		bestFitness, err = meter.Float64Histogram(
			"evolve_best_fitness",
			metric.WithDescription("Best fitness of each generation"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		mutationsTotal, err = meter.Int64Counter(
			"evolve_mutations_total",
			metric.WithDescription("Total mutation attempts by kind"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

func startRunSpan(ctx context.Context, cfg Config) (context.Context, trace.Span) {
	return tracer.Start(ctx, "evolve.Run",
		trace.WithAttributes(
			attribute.Int("evolve.population", cfg.Population),
			attribute.Int("evolve.generations", cfg.Generations),
			attribute.Int("evolve.workers", cfg.Workers),
			attribute.Int64("evolve.seed", cfg.Seed),
		),
	)
}

func setRunSpanResult(span trace.Span, res *Result) {
	span.SetAttributes(
		attribute.Int("evolve.generations_run", res.Generations),
		attribute.Float64("evolve.best_fitness", res.Fitness),
		attribute.Bool("evolve.converged", res.Converged),
	)
}

func recordGeneration(ctx context.Context, stats GenerationStats) {
	if err := initMetrics(); err != nil {
		return
	}
	generationsTotal.Add(ctx, 1)
	bestFitness.Record(ctx, stats.Best)
}

func recordMutation(ctx context.Context, kind string, applied bool) {
	if err := initMetrics(); err != nil {
		return
	}
	mutationsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.Bool("applied", applied),
	))
}
