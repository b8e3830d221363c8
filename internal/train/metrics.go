package train

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var (
	tracer = otel.Tracer("evonet.train")
	meter  = otel.Meter("evonet.train")
)

var (
	epochsTotal   metric.Int64Counter
	epochError    metric.Float64Histogram
	trainDuration metric.Float64Histogram

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		epochsTotal, err = meter.Int64Counter(
			"train_epochs_total",
			metric.WithDescription("Total number of training epochs run"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		epochError, err = meter.Float64Histogram(
			"train_epoch_error",
			metric.WithDescription("Mean squared error at the end of each epoch"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		trainDuration, err = meter.Float64Histogram(
			"train_duration_seconds",
			metric.WithDescription("Duration of training runs"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

func startTrainSpan(ctx context.Context, samples int, opts Options) (context.Context, trace.Span) {
	return tracer.Start(ctx, "train.Train",
		trace.WithAttributes(
			attribute.Int("train.samples", samples),
			attribute.Float64("train.rate", opts.Rate),
			attribute.Bool("train.batch", opts.Batch),
		),
	)
}

func recordEpoch(ctx context.Context, mse float64, batch bool) {
	if err := initMetrics(); err != nil {
		return
	}
	attrs := metric.WithAttributes(attribute.Bool("batch", batch))
	epochsTotal.Add(ctx, 1, attrs)
	epochError.Record(ctx, mse, attrs)
}

func recordRun(ctx context.Context, res Result, converged bool) {
	if err := initMetrics(); err != nil {
		return
	}
	trainDuration.Record(ctx, res.Duration.Seconds(),
		metric.WithAttributes(attribute.Bool("converged", converged)))
}

func setTrainSpanResult(span trace.Span, res Result, elapsed time.Duration) {
	span.SetAttributes(
		attribute.Int("train.epochs", res.Epochs),
		attribute.Float64("train.error", res.Error),
		attribute.Int64("train.duration_ms", elapsed.Milliseconds()),
	)
}
