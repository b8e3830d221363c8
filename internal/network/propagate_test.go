package network

import (
	"testing"

	"gonum.org/v1/gonum/diff/fd"

	"github.com/nvandessel/evonet/internal/squash"
)

func TestPropagateLayeredSequence(t *testing.T) {
	n := buildLayers(t, squash.Sigmoid, 0.3, 0.2, 2, 4, 3, 1)

	steps := []struct {
		input   []float64
		wantOut float64
		wantMSE float64
	}{
		{[]float64{1, 0}, 0.7002422007360097, 0.08985473821959068},
		{[]float64{0, 0}, 0.7069196144764952, 0.0858961123786062},
		{[]float64{0, 1}, 0.7198741692072212, -1},
	}

	for i, step := range steps {
		out, err := n.Activate(step.input)
		if err != nil {
			t.Fatalf("step %d Activate: %v", i, err)
		}
		if !approxEqual(out[0], step.wantOut, 1e-12) {
			t.Errorf("step %d output = %.16f, want %.16f", i, out[0], step.wantOut)
		}
		mse, err := n.Propagate([]float64{1}, 0.3, 0, true)
		if err != nil {
			t.Fatalf("step %d Propagate: %v", i, err)
		}
		if step.wantMSE >= 0 && !approxEqual(mse, step.wantMSE, 1e-12) {
			t.Errorf("step %d mse = %.16f, want %.16f", i, mse, step.wantMSE)
		}
	}

	out, _ := n.Activate([]float64{1, 1})
	if !approxEqual(out[0], 0.7318879950131038, 1e-12) {
		t.Errorf("final output = %.16f, want 0.7318879950131038", out[0])
	}
	assertValid(t, n)
}

func TestPropagateMomentum(t *testing.T) {
	n := buildLayers(t, squash.Sigmoid, 0.3, 0.2, 2, 4, 3, 1)
	for _, in := range [][]float64{{1, 0}, {0, 0}, {0, 1}} {
		if _, err := n.Activate(in); err != nil {
			t.Fatal(err)
		}
		if _, err := n.Propagate([]float64{1}, 0.3, 0.9, true); err != nil {
			t.Fatal(err)
		}
	}
	out, _ := n.Activate([]float64{1, 1})
	if !approxEqual(out[0], 0.7557836107644421, 1e-12) {
		t.Errorf("output with momentum = %.16f, want 0.7557836107644421", out[0])
	}
}

func TestPropagateBatchedAccumulates(t *testing.T) {
	online := buildLayers(t, squash.Sigmoid, 0.3, 0.2, 2, 3, 1)
	batched := buildLayers(t, squash.Sigmoid, 0.3, 0.2, 2, 3, 1)
	before := batched.Snapshot()

	if _, err := batched.Activate([]float64{1, 0}); err != nil {
		t.Fatal(err)
	}
	if _, err := batched.Propagate([]float64{1}, 0.3, 0, false); err != nil {
		t.Fatal(err)
	}
	mid := batched.Snapshot()
	for i := range before.Weights {
		if before.Weights[i] != mid.Weights[i] {
			t.Fatalf("weight %d changed without update: %v -> %v", i, before.Weights[i], mid.Weights[i])
		}
	}
	for i := range before.Nodes {
		if before.Nodes[i].Bias != mid.Nodes[i].Bias {
			t.Fatalf("bias %d changed without update", i)
		}
	}

	// A flush on the same example applies twice the single-step delta.
	if _, err := batched.Propagate([]float64{1}, 0.3, 0, true); err != nil {
		t.Fatal(err)
	}
	if _, err := online.Activate([]float64{1, 0}); err != nil {
		t.Fatal(err)
	}
	if _, err := online.Propagate([]float64{1}, 0.6, 0, true); err != nil {
		t.Fatal(err)
	}

	a, b := batched.Snapshot(), online.Snapshot()
	for i := range a.Weights {
		if !approxEqual(a.Weights[i], b.Weights[i], 1e-12) {
			t.Errorf("weight %d: batched %v, online double rate %v", i, a.Weights[i], b.Weights[i])
		}
	}
}

// gradientCheck compares the accumulated update for each connection with
// the finite-difference gradient of ½Σ(t-a)².
func gradientCheck(t *testing.T, build func(weights []float64) (*Network, []ConnID), weights, input, target []float64) {
	t.Helper()
	const rate = 0.5

	loss := func(w []float64) float64 {
		n, _ := build(w)
		out, err := n.ActivateNoTrace(input)
		if err != nil {
			t.Fatalf("ActivateNoTrace: %v", err)
		}
		var sum float64
		for i := range out {
			d := target[i] - out[i]
			sum += 0.5 * d * d
		}
		return sum
	}
	numeric := fd.Gradient(nil, loss, weights, &fd.Settings{Formula: fd.Central, Step: 1e-6})

	n, conns := build(weights)
	if _, err := n.Activate(input); err != nil {
		t.Fatal(err)
	}
	if _, err := n.Propagate(target, rate, 0, false); err != nil {
		t.Fatal(err)
	}
	for i, cid := range conns {
		ci, err := n.Connection(cid)
		if err != nil {
			t.Fatal(err)
		}
		analytic := ci.TotalDelta / rate
		if !approxEqual(analytic, -numeric[i], 1e-6) {
			t.Errorf("connection %d (%d -> %d): update %v, -gradient %v", i, ci.From, ci.To, analytic, -numeric[i])
		}
	}
}

func TestPropagateMatchesGradient(t *testing.T) {
	weights := []float64{0.4, -0.7, 0.25, 0.9, -0.3, 0.6, 0.8, -0.5}
	input := []float64{0.6, -0.4}
	target := []float64{0.9}

	build := func(gated bool) func([]float64) (*Network, []ConnID) {
		return func(w []float64) (*Network, []ConnID) {
			n := New(WithSeed(1))
			i1, i2 := n.AddInput(), n.AddInput()
			h1 := n.AddHidden(HiddenSpec{Squash: squash.Tanh, Bias: 0.1})
			h2 := n.AddHidden(HiddenSpec{Squash: squash.Sigmoid, Bias: -0.2})
			g := n.AddHidden(HiddenSpec{Squash: squash.Sigmoid, Bias: 0.05})
			o := n.AddOutput(squash.Sigmoid, 0.3)

			pairs := [][2]NodeID{{i1, h1}, {i1, h2}, {i2, h1}, {i2, h2}, {i1, g}, {i2, g}, {h1, o}, {h2, o}}
			conns := make([]ConnID, len(pairs))
			for k, p := range pairs {
				id, err := n.ConnectWeighted(p[0], p[1], w[k])
				if err != nil {
					t.Fatalf("ConnectWeighted: %v", err)
				}
				conns[k] = id
			}
			if gated {
				if err := n.GateConnection(g, conns[7]); err != nil {
					t.Fatalf("GateConnection: %v", err)
				}
			}
			return n, conns
		}
	}

	t.Run("feed forward", func(t *testing.T) {
		gradientCheck(t, build(false), weights, input, target)
	})
	t.Run("gated", func(t *testing.T) {
		gradientCheck(t, build(true), weights, input, target)
	})
}

func TestPropagateLearnsXOR(t *testing.T) {
	n := New(WithSeed(7))
	ins := []NodeID{n.AddInput(), n.AddInput()}
	biases := []float64{0.1, -0.2, 0.3, -0.1}
	hidden := make([]NodeID, len(biases))
	for i, b := range biases {
		hidden[i] = n.AddHidden(HiddenSpec{Squash: squash.Sigmoid, Bias: b})
	}
	out := n.AddOutput(squash.Sigmoid, 0.05)

	inWeights := [][]float64{{0.5, -0.8, 0.9, -0.3}, {-0.6, 0.7, 0.4, 0.9}}
	for i, in := range ins {
		for j, h := range hidden {
			if _, err := n.ConnectWeighted(in, h, inWeights[i][j]); err != nil {
				t.Fatal(err)
			}
		}
	}
	for j, w := range []float64{0.7, -0.9, 0.5, -0.4} {
		if _, err := n.ConnectWeighted(hidden[j], out, w); err != nil {
			t.Fatal(err)
		}
	}

	data := []struct{ in, want []float64 }{
		{[]float64{0, 0}, []float64{0}},
		{[]float64{0, 1}, []float64{1}},
		{[]float64{1, 0}, []float64{1}},
		{[]float64{1, 1}, []float64{0}},
	}
	mse := func() float64 {
		var sum float64
		for _, d := range data {
			got, _ := n.ActivateNoTrace(d.in)
			sum += (d.want[0] - got[0]) * (d.want[0] - got[0])
		}
		return sum / float64(len(data))
	}

	if initial := mse(); !approxEqual(initial, 0.25514019228785917, 1e-12) {
		t.Errorf("initial mse = %v, want 0.25514019228785917", initial)
	}
	for epoch := 0; epoch < 5000; epoch++ {
		for _, d := range data {
			if _, err := n.Activate(d.in); err != nil {
				t.Fatal(err)
			}
			if _, err := n.Propagate(d.want, 0.5, 0, true); err != nil {
				t.Fatal(err)
			}
		}
	}
	if final := mse(); final > 0.001 {
		t.Errorf("mse after training = %v, want < 0.001", final)
	}
}

func TestConstantNodesKeepParameters(t *testing.T) {
	n := newTestNetwork(t)
	in := n.AddInput()
	mem := n.AddHidden(HiddenSpec{Squash: squash.Identity, Constant: true})
	out := n.AddOutput(squash.Sigmoid, 0)
	toMem, _ := n.ConnectWeighted(in, mem, 1)
	if _, err := n.ConnectWeighted(mem, out, 0.5); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 10; i++ {
		if _, err := n.Activate([]float64{1}); err != nil {
			t.Fatal(err)
		}
		if _, err := n.Propagate([]float64{0}, 0.3, 0.5, true); err != nil {
			t.Fatal(err)
		}
	}
	ci, _ := n.Connection(toMem)
	info, _ := n.Node(mem)
	if ci.Weight != 1 || info.Bias != 0 {
		t.Errorf("constant node changed: weight %v bias %v", ci.Weight, info.Bias)
	}
	if info.Responsibility == 0 {
		t.Error("constant node should still carry responsibility")
	}
}
