package train

import (
	"bytes"
	"context"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvandessel/evonet/internal/config"
	"github.com/nvandessel/evonet/internal/logging"
	"github.com/nvandessel/evonet/internal/network"
	"github.com/nvandessel/evonet/internal/squash"
)

var xorSamples = []Sample{
	{Input: []float64{0, 0}, Output: []float64{0}},
	{Input: []float64{0, 1}, Output: []float64{1}},
	{Input: []float64{1, 0}, Output: []float64{1}},
	{Input: []float64{1, 1}, Output: []float64{0}},
}

// xorNet builds a 2-4-1 sigmoid network with fixed parameters.
func xorNet(t *testing.T) *network.Network {
	t.Helper()
	n := network.New(network.WithSeed(7))
	ins := []network.NodeID{n.AddInput(), n.AddInput()}
	biases := []float64{0.1, -0.2, 0.3, -0.1}
	hidden := make([]network.NodeID, len(biases))
	for i, b := range biases {
		hidden[i] = n.AddHidden(network.HiddenSpec{Squash: squash.Sigmoid, Bias: b})
	}
	out := n.AddOutput(squash.Sigmoid, 0.05)

	inWeights := [][]float64{{0.5, -0.8, 0.9, -0.3}, {-0.6, 0.7, 0.4, 0.9}}
	for i, in := range ins {
		for j, h := range hidden {
			_, err := n.ConnectWeighted(in, h, inWeights[i][j])
			require.NoError(t, err)
		}
	}
	for j, w := range []float64{0.7, -0.9, 0.5, -0.4} {
		_, err := n.ConnectWeighted(hidden[j], out, w)
		require.NoError(t, err)
	}
	return n
}

func onlineOptions(epochs int) Options {
	opts := DefaultOptions()
	opts.Rate = 0.5
	opts.Epochs = epochs
	opts.ErrorThreshold = 0
	return opts
}

func TestTrain_LearnsXOR(t *testing.T) {
	n := xorNet(t)

	initial, err := Evaluate(n.Clone(), xorSamples)
	require.NoError(t, err)
	assert.InDelta(t, 0.25514019228785917, initial, 1e-12)

	res, err := Train(context.Background(), n, xorSamples, onlineOptions(5000), nil)
	require.NoError(t, err)
	assert.Equal(t, 5000, res.Epochs)
	assert.Less(t, res.Error, initial)
	assert.Positive(t, res.Duration)

	final, err := Evaluate(n, xorSamples)
	require.NoError(t, err)
	assert.Less(t, final, 0.001)
}

func TestTrain_OnlineMatchesManualLoop(t *testing.T) {
	trained := xorNet(t)
	manual := trained.Clone()

	_, err := Train(context.Background(), trained, xorSamples, onlineOptions(3), nil)
	require.NoError(t, err)

	for epoch := 0; epoch < 3; epoch++ {
		for _, s := range xorSamples {
			_, err := manual.Activate(s.Input)
			require.NoError(t, err)
			_, err = manual.Propagate(s.Output, 0.5, 0, true)
			require.NoError(t, err)
		}
	}
	assert.Equal(t, manual.Snapshot(), trained.Snapshot())
}

func TestTrain_BatchUpdatesAtEpochEnd(t *testing.T) {
	trained := xorNet(t)
	manual := trained.Clone()

	opts := onlineOptions(2)
	opts.Batch = true
	opts.BatchSize = 0
	_, err := Train(context.Background(), trained, xorSamples, opts, nil)
	require.NoError(t, err)

	for epoch := 0; epoch < 2; epoch++ {
		for i, s := range xorSamples {
			_, err := manual.Activate(s.Input)
			require.NoError(t, err)
			_, err = manual.Propagate(s.Output, 0.5, 0, i == len(xorSamples)-1)
			require.NoError(t, err)
		}
	}
	assert.Equal(t, manual.Snapshot(), trained.Snapshot())

	// A batch of two updates twice per epoch.
	halves := xorNet(t)
	opts.BatchSize = 2
	_, err = Train(context.Background(), halves, xorSamples, opts, nil)
	require.NoError(t, err)
	assert.NotEqual(t, trained.Snapshot(), halves.Snapshot())
}

func TestTrain_StopsAtThreshold(t *testing.T) {
	opts := onlineOptions(100)
	opts.ErrorThreshold = 1

	res, err := Train(context.Background(), xorNet(t), xorSamples, opts, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Epochs)
	assert.LessOrEqual(t, res.Error, 1.0)
}

func TestTrain_ShuffleIsSeeded(t *testing.T) {
	a, b := xorNet(t), xorNet(t)
	opts := onlineOptions(5)
	opts.Shuffle = true

	opts.Rand = rand.New(rand.NewSource(42))
	_, err := Train(context.Background(), a, xorSamples, opts, nil)
	require.NoError(t, err)

	opts.Rand = rand.New(rand.NewSource(42))
	_, err = Train(context.Background(), b, xorSamples, opts, nil)
	require.NoError(t, err)

	assert.Equal(t, a.Snapshot(), b.Snapshot())
}

func TestTrain_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := Train(ctx, xorNet(t), xorSamples, onlineOptions(10), nil)
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, res.Epochs)
}

func TestTrain_Errors(t *testing.T) {
	ctx := context.Background()

	bad := onlineOptions(1)
	bad.Rate = 0
	_, err := Train(ctx, xorNet(t), xorSamples, bad, nil)
	assert.ErrorIs(t, err, ErrInvalidOptions)

	bad = onlineOptions(0)
	_, err = Train(ctx, xorNet(t), xorSamples, bad, nil)
	assert.ErrorIs(t, err, ErrInvalidOptions)

	_, err = Train(ctx, xorNet(t), nil, onlineOptions(1), nil)
	assert.ErrorIs(t, err, ErrInvalidOptions)

	wide := []Sample{{Input: []float64{1, 0, 1}, Output: []float64{1}}}
	_, err = Train(ctx, xorNet(t), wide, onlineOptions(1), nil)
	assert.ErrorIs(t, err, network.ErrInputSizeMismatch)

	long := []Sample{{Input: []float64{1, 0}, Output: []float64{1, 0}}}
	_, err = Train(ctx, xorNet(t), long, onlineOptions(1), nil)
	assert.ErrorIs(t, err, network.ErrTargetSizeMismatch)

	_, err = Evaluate(xorNet(t), long)
	assert.ErrorIs(t, err, network.ErrTargetSizeMismatch)
}

func TestTrain_LogsProgress(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewLogger("info", &buf)

	opts := onlineOptions(4)
	opts.LogEvery = 2
	_, err := Train(context.Background(), xorNet(t), xorSamples, opts, logger)
	require.NoError(t, err)

	assert.Equal(t, 2, strings.Count(buf.String(), "training progress"))
	assert.Contains(t, buf.String(), "epoch=4")
}

func TestTrain_ClearResetsState(t *testing.T) {
	n := network.New(network.WithSeed(1))
	in := n.AddInput()
	out := n.AddOutput(squash.Identity, 0)
	_, err := n.ConnectWeighted(in, out, 0.5)
	require.NoError(t, err)
	_, err = n.ConnectWeighted(out, out, 0.5)
	require.NoError(t, err)

	samples := []Sample{{Input: []float64{1}, Output: []float64{1}}}
	opts := onlineOptions(3)
	opts.Rate = 0.01
	opts.Clear = true

	res, err := Train(context.Background(), n, samples, opts, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Epochs)
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := config.Default().Training
	cfg.Update = "batch"
	cfg.BatchSize = 8

	opts := OptionsFromConfig(cfg)
	assert.True(t, opts.Batch)
	assert.Equal(t, 8, opts.BatchSize)
	assert.Equal(t, cfg.Rate, opts.Rate)
	assert.Equal(t, cfg.Epochs, opts.Epochs)
	require.NoError(t, opts.Validate())
}
