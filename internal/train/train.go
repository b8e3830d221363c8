// Package train fits a network to a sample set with back-propagation.
package train

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"gonum.org/v1/gonum/floats"

	"github.com/nvandessel/evonet/internal/config"
	"github.com/nvandessel/evonet/internal/constants"
	"github.com/nvandessel/evonet/internal/logging"
	"github.com/nvandessel/evonet/internal/network"
)

// ErrInvalidOptions is returned when training options cannot be used.
var ErrInvalidOptions = errors.New("invalid training options")

// Options controls a training run.
type Options struct {
	Rate     float64
	Momentum float64

	// Batch accumulates deltas and applies them every BatchSize samples and
	// at the end of each epoch. Otherwise every sample updates the network.
	Batch     bool
	BatchSize int

	Epochs         int
	ErrorThreshold float64

	// Shuffle reorders the samples every epoch using Rand, or the network's
	// generator when Rand is nil.
	Shuffle bool

	// Clear resets recurrent state before each epoch.
	Clear bool

	LogEvery int
	Rand     *rand.Rand
}

// DefaultOptions returns the library defaults.
func DefaultOptions() Options {
	return Options{
		Rate:           constants.DefaultRate,
		Momentum:       constants.DefaultMomentum,
		BatchSize:      constants.DefaultBatchSize,
		Epochs:         constants.DefaultEpochs,
		ErrorThreshold: constants.DefaultErrorThreshold,
		LogEvery:       constants.DefaultLogEvery,
	}
}

// OptionsFromConfig maps the training section of the configuration.
func OptionsFromConfig(cfg config.TrainingConfig) Options {
	return Options{
		Rate:           cfg.Rate,
		Momentum:       cfg.Momentum,
		Batch:          cfg.Update == constants.UpdateBatch,
		BatchSize:      cfg.BatchSize,
		Epochs:         cfg.Epochs,
		ErrorThreshold: cfg.ErrorThreshold,
		Shuffle:        cfg.Shuffle,
		LogEvery:       cfg.LogEvery,
	}
}

// Validate reports options that cannot drive a run.
func (o Options) Validate() error {
	switch {
	case o.Rate <= 0:
		return fmt.Errorf("rate must be positive, got %v: %w", o.Rate, ErrInvalidOptions)
	case o.Momentum < 0:
		return fmt.Errorf("momentum must be non-negative, got %v: %w", o.Momentum, ErrInvalidOptions)
	case o.Epochs < 1:
		return fmt.Errorf("epochs must be at least 1, got %d: %w", o.Epochs, ErrInvalidOptions)
	case o.Batch && o.BatchSize < 0:
		return fmt.Errorf("batch size must be non-negative, got %d: %w", o.BatchSize, ErrInvalidOptions)
	}
	return nil
}

// Result summarises a training run.
type Result struct {
	Epochs   int           `json:"epochs"`
	Error    float64       `json:"error"`
	Duration time.Duration `json:"duration"`
}

// Train runs epochs of Activate and Propagate over samples until the epoch
// error reaches opts.ErrorThreshold or opts.Epochs have run. Cancelling ctx
// stops between epochs and returns the progress so far with the context's
// error.
func Train(ctx context.Context, net *network.Network, samples []Sample, opts Options, logger *slog.Logger) (Result, error) {
	logger = logging.OrDiscard(logger)
	if err := opts.Validate(); err != nil {
		return Result{}, err
	}
	if len(samples) == 0 {
		return Result{}, fmt.Errorf("no samples: %w", ErrInvalidOptions)
	}

	batch := 1
	if opts.Batch {
		batch = opts.BatchSize
		if batch <= 0 || batch > len(samples) {
			batch = len(samples)
		}
	}
	rng := opts.Rand
	if rng == nil {
		rng = net.Rand()
	}

	ctx, span := startTrainSpan(ctx, len(samples), opts)
	defer span.End()

	start := time.Now()
	order := make([]int, len(samples))
	for i := range order {
		order[i] = i
	}

	var res Result
	converged := false
	for epoch := 1; epoch <= opts.Epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			res.Duration = time.Since(start)
			return res, err
		}
		if opts.Shuffle {
			rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
		}
		if opts.Clear {
			net.Clear()
		}

		mse, err := runEpoch(net, samples, order, batch, opts)
		if err != nil {
			res.Duration = time.Since(start)
			return res, fmt.Errorf("epoch %d: %w", epoch, err)
		}
		res.Epochs, res.Error = epoch, mse
		recordEpoch(ctx, mse, opts.Batch)

		if opts.LogEvery > 0 && epoch%opts.LogEvery == 0 {
			logger.Info("training progress", "epoch", epoch, "error", mse)
		}
		logger.Log(ctx, logging.LevelTrace, "epoch complete", "epoch", epoch, "error", mse)

		if mse <= opts.ErrorThreshold {
			converged = true
			break
		}
	}

	res.Duration = time.Since(start)
	recordRun(ctx, res, converged)
	setTrainSpanResult(span, res, res.Duration)
	logger.Debug("training finished",
		"epochs", res.Epochs,
		"error", res.Error,
		"converged", converged,
		"duration", res.Duration)
	return res, nil
}

// runEpoch makes one pass over samples in the given order and returns the
// mean of the per-sample errors.
func runEpoch(net *network.Network, samples []Sample, order []int, batch int, opts Options) (float64, error) {
	var sum float64
	for i, idx := range order {
		s := samples[idx]
		if _, err := net.Activate(s.Input); err != nil {
			return 0, fmt.Errorf("sample %d: %w", idx, err)
		}
		update := (i+1)%batch == 0 || i == len(order)-1
		mse, err := net.Propagate(s.Output, opts.Rate, opts.Momentum, update)
		if err != nil {
			return 0, fmt.Errorf("sample %d: %w", idx, err)
		}
		sum += mse
	}
	return sum / float64(len(order)), nil
}

// Evaluate returns the mean squared error of net over samples without
// recording traces or changing parameters. Recurrent state still advances.
func Evaluate(net *network.Network, samples []Sample) (float64, error) {
	if len(samples) == 0 {
		return 0, nil
	}
	var total float64
	for i, s := range samples {
		out, err := net.ActivateNoTrace(s.Input)
		if err != nil {
			return 0, fmt.Errorf("sample %d: %w", i, err)
		}
		if len(out) != len(s.Output) {
			return 0, fmt.Errorf("sample %d: got %d targets, network has %d outputs: %w",
				i, len(s.Output), len(out), network.ErrTargetSizeMismatch)
		}
		if len(out) == 0 {
			continue
		}
		diff := make([]float64, len(out))
		floats.SubTo(diff, s.Output, out)
		total += floats.Dot(diff, diff) / float64(len(diff))
	}
	return total / float64(len(samples)), nil
}
