package network

import (
	"errors"
	"math"
	"testing"

	"github.com/nvandessel/evonet/internal/squash"
)

// newTestNetwork returns a deterministic network for tests.
func newTestNetwork(t *testing.T) *Network {
	t.Helper()
	return New(WithSeed(42))
}

// buildLayers creates a fully connected layered network with every weight
// set to weight and every computing node's bias set to bias.
func buildLayers(t *testing.T, kind squash.Kind, weight, bias float64, sizes ...int) *Network {
	t.Helper()
	n := newTestNetwork(t)

	var prev []NodeID
	for layer, size := range sizes {
		var group []NodeID
		for i := 0; i < size; i++ {
			if layer == 0 {
				group = append(group, n.AddInput())
				continue
			}
			group = append(group, n.AddHidden(HiddenSpec{
				Squash: kind,
				Bias:   bias,
				Output: layer == len(sizes)-1,
			}))
		}
		if prev != nil {
			conns, err := n.ConnectGroups(prev, group, AllToAll)
			if err != nil {
				t.Fatalf("ConnectGroups: %v", err)
			}
			for _, c := range conns {
				if err := n.SetWeight(c, weight); err != nil {
					t.Fatalf("SetWeight: %v", err)
				}
			}
		}
		prev = group
	}
	return n
}

func assertValid(t *testing.T, n *Network) {
	t.Helper()
	if err := n.Validate(); err != nil {
		t.Fatalf("Validate() = %v", err)
	}
}

func approxEqual(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

func TestActivateIdentity(t *testing.T) {
	tests := []struct {
		name   string
		weight float64
		bias   float64
		input  float64
		want   float64
	}{
		{"unit weight", 1.0, 0, 2.0, 2.0},
		{"bias then weight", 0.5, 1.0, 2.0, 2.0},
		{"negative", -1.5, 0.25, 2.0, -2.75},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := newTestNetwork(t)
			in := n.AddInput()
			out := n.AddOutput(squash.Identity, tt.bias)
			if _, err := n.ConnectWeighted(in, out, tt.weight); err != nil {
				t.Fatalf("ConnectWeighted: %v", err)
			}

			got, err := n.Activate([]float64{tt.input})
			if err != nil {
				t.Fatalf("Activate: %v", err)
			}
			if len(got) != 1 || got[0] != tt.want {
				t.Errorf("Activate = %v, want [%v]", got, tt.want)
			}
		})
	}
}

func TestSelfConnectionCarriesState(t *testing.T) {
	n := newTestNetwork(t)
	out := n.AddOutput(squash.Identity, 1.0)
	if _, err := n.ConnectWeighted(out, out, 0.5); err != nil {
		t.Fatalf("ConnectWeighted self: %v", err)
	}

	want := []float64{1.0, 1.5, 1.75}
	for i, w := range want {
		got, err := n.Activate(nil)
		if err != nil {
			t.Fatalf("Activate: %v", err)
		}
		if got[0] != w {
			t.Errorf("call %d: activation = %v, want %v", i+1, got[0], w)
		}
	}

	n.Clear()
	got, _ := n.Activate(nil)
	if got[0] != 1.0 {
		t.Errorf("after Clear: activation = %v, want 1", got[0])
	}
}

func TestActivateSizeMismatch(t *testing.T) {
	n := buildLayers(t, squash.Sigmoid, 0.3, 0.2, 2, 3, 1)

	if _, err := n.Activate([]float64{1}); !errors.Is(err, ErrInputSizeMismatch) {
		t.Errorf("Activate short input error = %v, want ErrInputSizeMismatch", err)
	}
	if _, err := n.ActivateNoTrace([]float64{1, 2, 3}); !errors.Is(err, ErrInputSizeMismatch) {
		t.Errorf("ActivateNoTrace long input error = %v, want ErrInputSizeMismatch", err)
	}
}

func TestPropagateContract(t *testing.T) {
	n := buildLayers(t, squash.Sigmoid, 0.3, 0.2, 2, 3, 1)

	if _, err := n.Propagate([]float64{1}, 0.3, 0, true); !errors.Is(err, ErrNotActivated) {
		t.Errorf("Propagate before Activate error = %v, want ErrNotActivated", err)
	}
	if _, err := n.ActivateNoTrace([]float64{1, 0}); err != nil {
		t.Fatalf("ActivateNoTrace: %v", err)
	}
	if _, err := n.Propagate([]float64{1}, 0.3, 0, true); !errors.Is(err, ErrNotActivated) {
		t.Errorf("Propagate after untraced activation error = %v, want ErrNotActivated", err)
	}
	if _, err := n.Activate([]float64{1, 0}); err != nil {
		t.Fatalf("Activate: %v", err)
	}
	if _, err := n.Propagate([]float64{1, 0}, 0.3, 0, true); !errors.Is(err, ErrTargetSizeMismatch) {
		t.Errorf("Propagate wrong targets error = %v, want ErrTargetSizeMismatch", err)
	}
	if _, err := n.Propagate([]float64{1}, 0.3, 0, true); err != nil {
		t.Errorf("Propagate: %v", err)
	}
}

func TestConnect(t *testing.T) {
	n := newTestNetwork(t)
	in := n.AddInput()
	h := n.AddHidden(HiddenSpec{Squash: squash.Tanh})

	if _, err := n.Connect(in, h); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if _, err := n.Connect(in, h); !errors.Is(err, ErrDuplicateConnection) {
		t.Errorf("duplicate Connect error = %v, want ErrDuplicateConnection", err)
	}
	if _, err := n.ConnectParallel(in, h); err != nil {
		t.Errorf("ConnectParallel: %v", err)
	}
	if _, err := n.Connect(h, in); !errors.Is(err, ErrInvalidConnection) {
		t.Errorf("Connect into input error = %v, want ErrInvalidConnection", err)
	}
	if _, err := n.Connect(h, NodeID(99)); !errors.Is(err, ErrUnknownNode) {
		t.Errorf("Connect to unknown node error = %v, want ErrUnknownNode", err)
	}

	self, err := n.Connect(h, h)
	if err != nil {
		t.Fatalf("Connect self: %v", err)
	}
	if _, err := n.Connect(h, h); !errors.Is(err, ErrDuplicateConnection) {
		t.Errorf("second self-connection error = %v, want ErrDuplicateConnection", err)
	}
	info, _ := n.Node(h)
	if info.Self != self {
		t.Errorf("Self = %d, want %d", info.Self, self)
	}
	if len(info.Inbound) != 2 {
		t.Errorf("len(Inbound) = %d, want 2 (self-connection kept apart)", len(info.Inbound))
	}
	assertValid(t, n)
}

func TestConnectGroups(t *testing.T) {
	tests := []struct {
		name    string
		pattern ConnectionPattern
		from    int
		to      int
		overlap bool
		want    int
		wantErr error
	}{
		{"all to all", AllToAll, 2, 3, false, 6, nil},
		{"all to else overlapping", AllToElse, 3, 3, true, 6, nil},
		{"all to all overlapping makes self loops", AllToAll, 3, 3, true, 9, nil},
		{"one to one", OneToOne, 3, 3, false, 3, nil},
		{"one to one mismatch", OneToOne, 2, 3, false, 0, ErrSizeMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := newTestNetwork(t)
			from := make([]NodeID, tt.from)
			for i := range from {
				from[i] = n.AddHidden(HiddenSpec{})
			}
			to := from
			if !tt.overlap {
				to = make([]NodeID, tt.to)
				for i := range to {
					to[i] = n.AddHidden(HiddenSpec{})
				}
			}

			conns, err := n.ConnectGroups(from, to, tt.pattern)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("ConnectGroups error = %v, want %v", err, tt.wantErr)
			}
			if len(conns) != tt.want {
				t.Errorf("created %d connections, want %d", len(conns), tt.want)
			}
			if got := n.Stats().Connections; got != tt.want {
				t.Errorf("Stats().Connections = %d, want %d", got, tt.want)
			}
			assertValid(t, n)
		})
	}
}

func TestConnectGroupsIsAtomic(t *testing.T) {
	n := newTestNetwork(t)
	a, b, c := n.AddHidden(HiddenSpec{}), n.AddHidden(HiddenSpec{}), n.AddHidden(HiddenSpec{})
	if _, err := n.Connect(a, c); err != nil {
		t.Fatal(err)
	}

	_, err := n.ConnectGroups([]NodeID{a, b}, []NodeID{b, c}, AllToAll)
	if !errors.Is(err, ErrDuplicateConnection) {
		t.Fatalf("error = %v, want ErrDuplicateConnection", err)
	}
	if got := n.Stats().Connections; got != 1 {
		t.Errorf("Connections after failed group connect = %d, want 1", got)
	}
}

func TestProject(t *testing.T) {
	n := newTestNetwork(t)
	in := n.AddInput()
	outs := []NodeID{n.AddOutput(squash.Identity, 0), n.AddOutput(squash.Identity, 0)}

	conns, err := n.Project(in, outs)
	if err != nil {
		t.Fatalf("Project: %v", err)
	}
	for _, c := range conns {
		_ = n.SetWeight(c, 2)
	}
	got, _ := n.Activate([]float64{1.5})
	if len(got) != 2 || got[0] != 3 || got[1] != 3 {
		t.Errorf("Activate = %v, want [3 3]", got)
	}
}

func TestGate(t *testing.T) {
	n := newTestNetwork(t)
	in := n.AddInput()
	g := n.AddHidden(HiddenSpec{Squash: squash.Identity})
	out := n.AddOutput(squash.Identity, 0)

	inToG, _ := n.Connect(in, g)
	gToOut, _ := n.Connect(g, out)
	inToOut, _ := n.Connect(in, out)
	gSelf, _ := n.Connect(g, g)

	tests := []struct {
		name    string
		conn    ConnID
		pattern GatePattern
		wantErr bool
	}{
		{"output accepts outbound", gToOut, GateOutput, false},
		{"output rejects inbound", inToG, GateOutput, true},
		{"input accepts inbound", inToG, GateInput, false},
		{"input rejects unrelated", inToOut, GateInput, true},
		{"self rejects other edge", inToOut, GateToSelf, true},
		{"self accepts own loop", gSelf, GateToSelf, false},
		{"already gated", gToOut, GateOutput, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := n.Gate(g, []ConnID{tt.conn}, tt.pattern)
			if tt.wantErr && !errors.Is(err, ErrInvalidGateTarget) {
				t.Errorf("Gate error = %v, want ErrInvalidGateTarget", err)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("Gate: %v", err)
			}
		})
	}

	info, _ := n.Node(g)
	if len(info.Gated) != 3 {
		t.Errorf("len(Gated) = %d, want 3", len(info.Gated))
	}
	if err := n.Gate(in, []ConnID{inToOut}, GateOutput); !errors.Is(err, ErrInvalidGateTarget) {
		t.Errorf("input gater error = %v, want ErrInvalidGateTarget", err)
	}
	assertValid(t, n)

	if err := n.Ungate(gToOut); err != nil {
		t.Fatalf("Ungate: %v", err)
	}
	if err := n.Ungate(gToOut); !errors.Is(err, ErrInvalidGateTarget) {
		t.Errorf("second Ungate error = %v, want ErrInvalidGateTarget", err)
	}
	ci, _ := n.Connection(gToOut)
	if ci.Gater != NoNode || ci.Gain != 1 {
		t.Errorf("after Ungate gater=%d gain=%v, want none and 1", ci.Gater, ci.Gain)
	}
	assertValid(t, n)
}

func TestGatedActivation(t *testing.T) {
	n := newTestNetwork(t)
	a := n.AddInput()
	b := n.AddInput()
	g := n.AddHidden(HiddenSpec{Squash: squash.Identity})
	out := n.AddOutput(squash.Identity, 0)

	if _, err := n.ConnectWeighted(a, g, 1); err != nil {
		t.Fatal(err)
	}
	bToOut, _ := n.ConnectWeighted(b, out, 2)
	if err := n.GateConnection(g, bToOut); err != nil {
		t.Fatalf("GateConnection: %v", err)
	}

	got, _ := n.Activate([]float64{0.5, 3})
	if got[0] != 3 {
		t.Errorf("gated output = %v, want 0.5*2*3 = 3", got[0])
	}
	got, _ = n.Activate([]float64{0, 3})
	if got[0] != 0 {
		t.Errorf("closed gate output = %v, want 0", got[0])
	}
}

func TestGateGroups(t *testing.T) {
	n := newTestNetwork(t)
	src := []NodeID{n.AddInput(), n.AddInput()}
	gaters := []NodeID{n.AddHidden(HiddenSpec{}), n.AddHidden(HiddenSpec{})}
	dst := []NodeID{n.AddHidden(HiddenSpec{}), n.AddHidden(HiddenSpec{})}

	conns, err := n.ConnectGroups(src, dst, AllToAll)
	if err != nil {
		t.Fatal(err)
	}
	if err := n.GateGroups(gaters, conns, GateInput); err != nil {
		t.Fatalf("GateGroups: %v", err)
	}
	for _, cid := range conns {
		ci, _ := n.Connection(cid)
		want := gaters[0]
		if ci.To == dst[1] {
			want = gaters[1]
		}
		if ci.Gater != want {
			t.Errorf("connection %d -> %d gated by %d, want %d", ci.From, ci.To, ci.Gater, want)
		}
	}

	selfs, err := n.ConnectGroups(dst, dst, OneToOne)
	if err != nil {
		t.Fatal(err)
	}
	if err := n.GateGroups(gaters[:1], selfs, GateToSelf); err != nil {
		t.Fatalf("GateGroups self: %v", err)
	}
	for _, cid := range selfs {
		ci, _ := n.Connection(cid)
		if ci.Gater != gaters[0] {
			t.Errorf("self-connection of %d gated by %d, want %d", ci.From, ci.Gater, gaters[0])
		}
	}
	assertValid(t, n)
}

func TestSharedWeightIsVisibleThroughAliases(t *testing.T) {
	n := newTestNetwork(t)
	in := n.AddInput()
	a := n.AddOutput(squash.Identity, 0)
	b := n.AddOutput(squash.Identity, 0)
	ca, _ := n.ConnectWeighted(in, a, 1)
	cb, _ := n.ConnectWeighted(in, b, 2)

	if err := n.ShareWeights(cb, ca); err != nil {
		t.Fatalf("ShareWeights: %v", err)
	}
	if err := n.SetWeight(ca, 4); err != nil {
		t.Fatal(err)
	}
	got, _ := n.Activate([]float64{1})
	if got[0] != 4 || got[1] != 4 {
		t.Errorf("Activate = %v, want [4 4]", got)
	}
	if err := n.ShareWeights(cb, ca); !errors.Is(err, ErrNoEligibleMutationTarget) {
		t.Errorf("re-sharing error = %v, want ErrNoEligibleMutationTarget", err)
	}

	s := n.Stats()
	if s.Weights != 1 || s.UnusedWeights != 1 {
		t.Errorf("Stats weights = %d used / %d unused, want 1/1", s.Weights, s.UnusedWeights)
	}

	if err := n.RemoveConnection(ca); err != nil {
		t.Fatal(err)
	}
	ci, _ := n.Connection(cb)
	if ci.Weight != 4 {
		t.Errorf("surviving alias weight = %v, want 4", ci.Weight)
	}
	assertValid(t, n)
}

func TestDisconnectAndStats(t *testing.T) {
	n := buildLayers(t, squash.Sigmoid, 0.3, 0.2, 2, 2, 1)
	ins, outs := n.Inputs(), n.Outputs()
	if len(ins) != 2 || len(outs) != 1 {
		t.Fatalf("inputs=%d outputs=%d", len(ins), len(outs))
	}

	order := n.Order()
	if err := n.Disconnect(order[0], order[2]); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
	if err := n.Disconnect(order[0], order[2]); !errors.Is(err, ErrUnknownConnection) {
		t.Errorf("second Disconnect error = %v, want ErrUnknownConnection", err)
	}

	s := n.Stats()
	want := Stats{Nodes: 5, Connections: 5, UnusedConnections: 1, Weights: 5, UnusedWeights: 1}
	if s != want {
		t.Errorf("Stats() = %+v, want %+v", s, want)
	}
	assertValid(t, n)
}

func TestDanglingHandlePanics(t *testing.T) {
	n := newTestNetwork(t)
	defer func() {
		r := recover()
		err, ok := r.(error)
		if !ok || !errors.Is(err, ErrDanglingReference) {
			t.Errorf("recover() = %v, want ErrDanglingReference", r)
		}
	}()
	n.node(NodeID(7))
}

func TestValidateDetectsCorruption(t *testing.T) {
	n := buildLayers(t, squash.Sigmoid, 0.3, 0.2, 2, 2, 1)
	assertValid(t, n)

	n.nodes[n.order[2]].inbound = append(n.nodes[n.order[2]].inbound, ConnID(5))
	if err := n.Validate(); !errors.Is(err, ErrDanglingReference) {
		t.Errorf("Validate() = %v, want ErrDanglingReference", err)
	}
}

func TestActivateIsPure(t *testing.T) {
	gated := func(t *testing.T) *Network {
		n := newTestNetwork(t)
		a := n.AddInput()
		b := n.AddInput()
		g := n.AddHidden(HiddenSpec{Squash: squash.Tanh, Bias: 0.1})
		out := n.AddOutput(squash.Sigmoid, -0.2)
		if _, err := n.ConnectWeighted(a, g, 0.7); err != nil {
			t.Fatal(err)
		}
		bToOut, _ := n.ConnectWeighted(b, out, 1.3)
		if _, err := n.ConnectWeighted(a, out, -0.4); err != nil {
			t.Fatal(err)
		}
		if err := n.GateConnection(g, bToOut); err != nil {
			t.Fatal(err)
		}
		return n
	}

	tests := []struct {
		name  string
		build func(t *testing.T) *Network
		input []float64
	}{
		{"sigmoid 2-3-1", func(t *testing.T) *Network { return buildLayers(t, squash.Sigmoid, 0.3, 0.2, 2, 3, 1) }, []float64{1, 0}},
		{"tanh 3-4-2", func(t *testing.T) *Network { return buildLayers(t, squash.Tanh, -0.6, 0.1, 3, 4, 2) }, []float64{0.5, -1, 2}},
		{"gated feed-forward", gated, []float64{0.8, -1.5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := tt.build(t)
			first, err := n.Activate(tt.input)
			if err != nil {
				t.Fatalf("Activate: %v", err)
			}
			second, err := n.Activate(tt.input)
			if err != nil {
				t.Fatalf("Activate: %v", err)
			}
			if len(first) != len(second) {
				t.Fatalf("output lengths %d and %d", len(first), len(second))
			}
			for i := range first {
				if first[i] != second[i] {
					t.Errorf("output %d: first %v, second %v", i, first[i], second[i])
				}
			}
		})
	}
}

func TestUntracedActivationDisablesPropagate(t *testing.T) {
	n := buildLayers(t, squash.Sigmoid, 0.3, 0.2, 1, 2, 1)

	if _, err := n.Activate([]float64{1}); err != nil {
		t.Fatalf("Activate: %v", err)
	}
	if _, err := n.ActivateNoTrace([]float64{-5}); err != nil {
		t.Fatalf("ActivateNoTrace: %v", err)
	}
	if _, err := n.Propagate([]float64{1}, 0.3, 0, true); !errors.Is(err, ErrNotActivated) {
		t.Errorf("Propagate after ActivateNoTrace error = %v, want ErrNotActivated", err)
	}
}

func TestGateRejectsRepeatedConnection(t *testing.T) {
	n := newTestNetwork(t)
	in := n.AddInput()
	g := n.AddHidden(HiddenSpec{Squash: squash.Identity})
	out := n.AddOutput(squash.Identity, 0)
	if _, err := n.Connect(in, g); err != nil {
		t.Fatal(err)
	}
	gToOut, _ := n.Connect(g, out)
	inToOut, _ := n.Connect(in, out)

	if err := n.Gate(g, []ConnID{gToOut, gToOut}, GateOutput); !errors.Is(err, ErrInvalidGateTarget) {
		t.Errorf("Gate error = %v, want ErrInvalidGateTarget", err)
	}
	if err := n.GateGroups([]NodeID{g}, []ConnID{inToOut, gToOut, inToOut}, GateOutput); !errors.Is(err, ErrInvalidGateTarget) {
		t.Errorf("GateGroups error = %v, want ErrInvalidGateTarget", err)
	}
	info, _ := n.Node(g)
	if len(info.Gated) != 0 {
		t.Errorf("Gated = %v after rejected calls, want none", info.Gated)
	}
	assertValid(t, n)

	if err := n.Gate(g, []ConnID{gToOut}, GateOutput); err != nil {
		t.Fatalf("Gate: %v", err)
	}
	if err := n.Ungate(gToOut); err != nil {
		t.Fatalf("Ungate: %v", err)
	}
	info, _ = n.Node(g)
	if len(info.Gated) != 0 {
		t.Errorf("Gated = %v after Ungate, want none", info.Gated)
	}
	if _, err := n.Activate([]float64{3}); err != nil {
		t.Fatal(err)
	}
	if ci, _ := n.Connection(gToOut); ci.Gain != 1 {
		t.Errorf("ungated gain = %v, want 1", ci.Gain)
	}
	assertValid(t, n)
}

func TestValidateDetectsRepeatedListEntries(t *testing.T) {
	tests := []struct {
		name    string
		corrupt func(n *Network, hidden NodeID, gated ConnID)
	}{
		{"inbound", func(n *Network, h NodeID, _ ConnID) {
			n.nodes[h].inbound = append(n.nodes[h].inbound, n.nodes[h].inbound[0])
		}},
		{"outbound", func(n *Network, h NodeID, _ ConnID) {
			n.nodes[h].outbound = append(n.nodes[h].outbound, n.nodes[h].outbound[0])
		}},
		{"gated", func(n *Network, h NodeID, c ConnID) {
			n.nodes[h].gated = append(n.nodes[h].gated, c)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := buildLayers(t, squash.Sigmoid, 0.3, 0.2, 1, 1, 1)
			in, h, out := n.order[0], n.order[1], n.order[2]
			inToOut, err := n.Connect(in, out)
			if err != nil {
				t.Fatal(err)
			}
			if err := n.GateConnection(h, inToOut); err != nil {
				t.Fatal(err)
			}
			assertValid(t, n)

			tt.corrupt(n, h, inToOut)
			if err := n.Validate(); !errors.Is(err, ErrDanglingReference) {
				t.Errorf("Validate() = %v, want ErrDanglingReference", err)
			}
		})
	}
}

func TestClearRestoresInitialGains(t *testing.T) {
	n := newTestNetwork(t)
	a := n.AddInput()
	out := n.AddOutput(squash.Identity, 0)
	g := n.AddHidden(HiddenSpec{Squash: squash.Identity})
	aToOut, _ := n.ConnectWeighted(a, out, 2)
	if _, err := n.ConnectWeighted(a, g, 1); err != nil {
		t.Fatal(err)
	}
	// g runs after out, so out reads the gain g left on the previous pass.
	if err := n.GateConnection(g, aToOut); err != nil {
		t.Fatal(err)
	}

	first, _ := n.Activate([]float64{3})
	if first[0] != 6 {
		t.Fatalf("first output = %v, want 6", first[0])
	}
	if again, _ := n.Activate([]float64{3}); again[0] != 18 {
		t.Errorf("second output = %v, want 18", again[0])
	}

	clone := n.Clone()
	n.Clear()
	cleared, _ := n.Activate([]float64{3})
	cloned, _ := clone.Activate([]float64{3})
	if cleared[0] != first[0] || cloned[0] != first[0] {
		t.Errorf("cleared %v, cloned %v, want both %v", cleared[0], cloned[0], first[0])
	}
}
