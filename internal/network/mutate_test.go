package network

import (
	"errors"
	"testing"

	"github.com/nvandessel/evonet/internal/squash"
)

func TestMutateWithoutTargetsIsNoOp(t *testing.T) {
	n := newTestNetwork(t)
	n.AddInput()
	n.AddInput()

	for _, kind := range AllMutations() {
		t.Run(kind.String(), func(t *testing.T) {
			changed, err := n.Mutate(kind)
			if err != nil {
				t.Fatalf("Mutate(%v) error = %v", kind, err)
			}
			if changed {
				t.Errorf("Mutate(%v) changed a network with no eligible targets", kind)
			}
			assertValid(t, n)
		})
	}
}

func TestMutateUnknownKind(t *testing.T) {
	n := newTestNetwork(t)
	if _, err := n.Mutate(MutationKind(99)); !errors.Is(err, ErrUnknownMutation) {
		t.Errorf("error = %v, want ErrUnknownMutation", err)
	}
}

func TestRandomMutationsKeepInvariants(t *testing.T) {
	n := buildLayers(t, squash.Tanh, 0.5, 0.1, 3, 4, 2)
	inputs := []float64{0.2, -0.4, 0.9}
	applied := make(map[MutationKind]int)

	for i := 0; i < 3000; i++ {
		kind, changed, err := n.MutateRandom(nil)
		if err != nil {
			t.Fatalf("step %d: MutateRandom: %v", i, err)
		}
		if changed {
			applied[kind]++
		}
		if err := n.Validate(); err != nil {
			t.Fatalf("step %d after %v: %v", i, kind, err)
		}
		if i%10 == 0 {
			if _, err := n.Activate(inputs); err != nil {
				t.Fatalf("step %d: Activate: %v", i, err)
			}
			if _, err := n.Propagate([]float64{0.5, -0.5}, 0.1, 0.1, true); err != nil {
				t.Fatalf("step %d: Propagate: %v", i, err)
			}
		}
	}

	if len(n.Inputs()) != 3 || len(n.Outputs()) != 2 {
		t.Errorf("mutations changed the interface: %d inputs, %d outputs", len(n.Inputs()), len(n.Outputs()))
	}
	for _, kind := range []MutationKind{AddNode, SubNode, AddConnection, AddGate, SubGate, ShareWeight, AddBackConnection} {
		if applied[kind] == 0 {
			t.Errorf("%v never applied", kind)
		}
	}
}

func TestSplitConnectionRoundTrip(t *testing.T) {
	n := newTestNetwork(t)
	a := n.AddInput()
	b := n.AddOutput(squash.Identity, 0)
	g := n.AddHidden(HiddenSpec{Squash: squash.Sigmoid})
	ab, _ := n.ConnectWeighted(a, b, 0.37)
	if _, err := n.Connect(a, g); err != nil {
		t.Fatal(err)
	}
	if err := n.GateConnection(g, ab); err != nil {
		t.Fatal(err)
	}

	mid, err := n.SplitConnection(ab)
	if err != nil {
		t.Fatalf("SplitConnection: %v", err)
	}
	assertValid(t, n)

	order := n.Order()
	if idx := n.orderIndex(mid); order[idx+1] != b {
		t.Errorf("new node at %d, want just before %d (order %v)", idx, b, order)
	}
	in, _ := n.FindConnection(a, mid)
	out, _ := n.FindConnection(mid, b)
	inInfo, _ := n.Connection(in)
	outInfo, _ := n.Connection(out)
	if inInfo.Weight != 0.37 || outInfo.Weight != 1 {
		t.Errorf("split weights = %v, %v, want 0.37, 1", inInfo.Weight, outInfo.Weight)
	}
	if (inInfo.Gater == g) == (outInfo.Gater == g) {
		t.Errorf("gater should move to exactly one new edge: in %d, out %d", inInfo.Gater, outInfo.Gater)
	}

	if err := n.RemoveNode(mid); err != nil {
		t.Fatalf("RemoveNode: %v", err)
	}
	assertValid(t, n)

	restored, ok := n.FindConnection(a, b)
	if !ok {
		t.Fatal("a -> b not restored")
	}
	info, _ := n.Connection(restored)
	if info.Weight != 0.37 {
		t.Errorf("restored weight = %v, want 0.37", info.Weight)
	}
	if info.Gater != g {
		t.Errorf("restored gater = %d, want %d", info.Gater, g)
	}
	if s := n.Stats(); s.Nodes != 3 || s.Connections != 2 {
		t.Errorf("Stats = %+v, want 3 nodes and 2 connections", s)
	}
}

func TestRemoveNodeProtectsInterface(t *testing.T) {
	n := buildLayers(t, squash.Sigmoid, 0.3, 0.2, 2, 1)
	for _, id := range append(n.Inputs(), n.Outputs()...) {
		if err := n.RemoveNode(id); !errors.Is(err, ErrProtectedNode) {
			t.Errorf("RemoveNode(%d) error = %v, want ErrProtectedNode", id, err)
		}
	}
}

func TestRemoveNodeUngatesAndRewires(t *testing.T) {
	n := newTestNetwork(t)
	a, b := n.AddInput(), n.AddInput()
	h := n.AddHidden(HiddenSpec{})
	x := n.AddOutput(squash.Identity, 0)
	y := n.AddOutput(squash.Identity, 0)

	if _, err := n.ConnectGroups([]NodeID{a, b}, []NodeID{h}, AllToAll); err != nil {
		t.Fatal(err)
	}
	if _, err := n.ConnectGroups([]NodeID{h}, []NodeID{x, y}, AllToAll); err != nil {
		t.Fatal(err)
	}
	ay, _ := n.Connect(a, y)
	if err := n.GateConnection(h, ay); err != nil {
		t.Fatal(err)
	}

	if err := n.RemoveNode(h); err != nil {
		t.Fatalf("RemoveNode: %v", err)
	}
	assertValid(t, n)

	for _, p := range [][2]NodeID{{a, x}, {a, y}, {b, x}, {b, y}} {
		if _, ok := n.FindConnection(p[0], p[1]); !ok {
			t.Errorf("missing %d -> %d after removal", p[0], p[1])
		}
	}
	info, _ := n.Connection(ay)
	if info.Gater != NoNode {
		t.Errorf("connection gated by removed node still has gater %d", info.Gater)
	}
	if _, err := n.Node(h); !errors.Is(err, ErrUnknownNode) {
		t.Errorf("Node(removed) error = %v, want ErrUnknownNode", err)
	}
}

func TestFeedForwardOnlyBlocksRecurrence(t *testing.T) {
	opts := DefaultMutationOptions()
	opts.FeedForwardOnly = true
	n := New(WithSeed(3), WithMutationOptions(opts))
	in := n.AddInput()
	h := n.AddHidden(HiddenSpec{})
	out := n.AddOutput(squash.Sigmoid, 0)
	if _, err := n.ConnectGroups([]NodeID{in}, []NodeID{h, out}, AllToAll); err != nil {
		t.Fatal(err)
	}

	for _, kind := range []MutationKind{AddSelfConnection, AddBackConnection} {
		for i := 0; i < 20; i++ {
			if changed, _ := n.Mutate(kind); changed {
				t.Fatalf("%v applied in feed-forward mode", kind)
			}
		}
	}
}

func TestSubConnectionKeepsChainsConnected(t *testing.T) {
	n := newTestNetwork(t)
	a := n.AddInput()
	b := n.AddHidden(HiddenSpec{})
	c := n.AddOutput(squash.Sigmoid, 0)
	if _, err := n.Connect(a, b); err != nil {
		t.Fatal(err)
	}
	if _, err := n.Connect(b, c); err != nil {
		t.Fatal(err)
	}

	changed, err := n.Mutate(SubConnection)
	if err != nil || changed {
		t.Errorf("Mutate(SubConnection) on a chain = %v, %v, want no-op", changed, err)
	}

	// a -> c gives a a second outbound and c a second inbound.
	if _, err := n.Connect(a, c); err != nil {
		t.Fatal(err)
	}
	changed, _ = n.Mutate(SubConnection)
	if !changed {
		t.Fatal("Mutate(SubConnection) should remove a -> c")
	}
	if _, ok := n.FindConnection(a, c); ok {
		t.Error("a -> c still present")
	}
}

func TestMutateActivationAndSwap(t *testing.T) {
	opts := DefaultMutationOptions()
	opts.Squashes = []squash.Kind{squash.Tanh, squash.Relu}
	n := New(WithSeed(5), WithMutationOptions(opts))
	n.AddInput()
	h1 := n.AddHidden(HiddenSpec{Squash: squash.Tanh, Bias: 1})
	h2 := n.AddHidden(HiddenSpec{Squash: squash.Sigmoid, Bias: 2})

	for i := 0; i < 10; i++ {
		if changed, err := n.Mutate(MutateActivation); err != nil || !changed {
			t.Fatalf("Mutate(MutateActivation) = %v, %v", changed, err)
		}
	}
	for _, id := range []NodeID{h1, h2} {
		info, _ := n.Node(id)
		if info.Squash != squash.Tanh && info.Squash != squash.Relu && info.Squash != squash.Sigmoid {
			t.Errorf("node %d squash %v outside allowed set", id, info.Squash)
		}
	}

	_ = n.SetBias(h1, 1)
	_ = n.SetBias(h2, 2)
	_ = n.SetSquash(h1, squash.Tanh)
	_ = n.SetSquash(h2, squash.Gaussian)
	if changed, _ := n.Mutate(SwapNodes); !changed {
		t.Fatal("Mutate(SwapNodes) did nothing")
	}
	i1, _ := n.Node(h1)
	i2, _ := n.Node(h2)
	if i1.Bias != 2 || i1.Squash != squash.Gaussian || i2.Bias != 1 || i2.Squash != squash.Tanh {
		t.Errorf("after swap: h1 %v/%v, h2 %v/%v", i1.Bias, i1.Squash, i2.Bias, i2.Squash)
	}
}

func TestShareWeightMutation(t *testing.T) {
	n := newTestNetwork(t)
	in := n.AddInput()
	a := n.AddOutput(squash.Identity, 0)
	b := n.AddOutput(squash.Identity, 0)
	ca, _ := n.Connect(in, a)
	cb, _ := n.Connect(in, b)

	if changed, _ := n.Mutate(ShareWeight); !changed {
		t.Fatal("Mutate(ShareWeight) did nothing")
	}
	ia, _ := n.Connection(ca)
	ib, _ := n.Connection(cb)
	if ia.WeightID != ib.WeightID {
		t.Errorf("weight cells differ after sharing: %d, %d", ia.WeightID, ib.WeightID)
	}
	if changed, _ := n.Mutate(ShareWeight); changed {
		t.Error("Mutate(ShareWeight) with a single cell should be a no-op")
	}
	assertValid(t, n)
}

func TestParseMutationKind(t *testing.T) {
	for _, kind := range AllMutations() {
		got, err := ParseMutationKind(kind.String())
		if err != nil || got != kind {
			t.Errorf("ParseMutationKind(%q) = %v, %v", kind.String(), got, err)
		}
	}
	if got, err := ParseMutationKind("ADD_NODE"); err != nil || got != AddNode {
		t.Errorf("ParseMutationKind(ADD_NODE) = %v, %v", got, err)
	}
	if _, err := ParseMutationKind("crossover"); !errors.Is(err, ErrUnknownMutation) {
		t.Errorf("ParseMutationKind(crossover) error = %v, want ErrUnknownMutation", err)
	}
	if len(AllMutations()) != 15 {
		t.Errorf("len(AllMutations()) = %d, want 15", len(AllMutations()))
	}
}
