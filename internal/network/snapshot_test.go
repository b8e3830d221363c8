package network

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	"github.com/nvandessel/evonet/internal/squash"
)

func mutatedNetwork(t *testing.T) *Network {
	t.Helper()
	n := buildLayers(t, squash.Sigmoid, 0.4, -0.1, 2, 3, 1)
	for i := 0; i < 200; i++ {
		if _, _, err := n.MutateRandom(nil); err != nil {
			t.Fatal(err)
		}
	}
	assertValid(t, n)
	return n
}

func TestSnapshotRoundTrip(t *testing.T) {
	n := mutatedNetwork(t)
	snap := n.Snapshot()

	data, err := json.Marshal(snap)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var decoded Snapshot
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	rebuilt, err := FromSnapshot(decoded, WithSeed(1))
	if err != nil {
		t.Fatalf("FromSnapshot: %v", err)
	}
	assertValid(t, rebuilt)
	if !reflect.DeepEqual(rebuilt.Snapshot(), snap) {
		t.Error("snapshot of rebuilt network differs from original")
	}

	inputs := []float64{0.3, -0.8}
	for i := 0; i < 3; i++ {
		want, _ := n.Activate(inputs)
		got, _ := rebuilt.Activate(inputs)
		if !reflect.DeepEqual(got, want) {
			t.Errorf("step %d: rebuilt outputs %v, want %v", i, got, want)
		}
	}
}

func TestSnapshotKeepsSharedWeights(t *testing.T) {
	n := newTestNetwork(t)
	in := n.AddInput()
	a := n.AddOutput(squash.Identity, 0)
	b := n.AddOutput(squash.Identity, 0)
	ca, _ := n.ConnectWeighted(in, a, 0.5)
	cb, _ := n.ConnectWeighted(in, b, 0.7)
	if err := n.ShareWeights(cb, ca); err != nil {
		t.Fatal(err)
	}

	snap := n.Snapshot()
	if len(snap.Weights) != 1 {
		t.Fatalf("len(Weights) = %d, want 1", len(snap.Weights))
	}
	rebuilt, err := FromSnapshot(snap)
	if err != nil {
		t.Fatal(err)
	}
	conns := rebuilt.Connections()
	_ = rebuilt.SetWeight(conns[0], 3)
	info, _ := rebuilt.Connection(conns[1])
	if info.Weight != 3 {
		t.Errorf("alias weight = %v, want 3", info.Weight)
	}
}

func TestCloneIsIndependent(t *testing.T) {
	n := buildLayers(t, squash.Tanh, 0.2, 0, 2, 2, 1)
	c := n.Clone()

	for i := 0; i < 50; i++ {
		if _, _, err := c.MutateRandom(nil); err != nil {
			t.Fatal(err)
		}
	}
	if n.Stats().Connections != 6 {
		t.Errorf("mutating the clone changed the original: %+v", n.Stats())
	}
	assertValid(t, n)
	assertValid(t, c)
}

func TestSnapshotValidate(t *testing.T) {
	valid := Snapshot{
		Nodes: []NodeRecord{
			{Kind: Input, Mask: 1},
			{Kind: Hidden, Output: true, Squash: squash.Tanh, Mask: 1},
		},
		Weights:     []float64{0.5},
		Connections: []ConnRecord{{From: 0, To: 1, Weight: 0, Gater: -1}},
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid snapshot: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(s *Snapshot)
	}{
		{"endpoint out of range", func(s *Snapshot) { s.Connections[0].To = 5 }},
		{"targets input", func(s *Snapshot) { s.Connections[0].To = 0 }},
		{"weight out of range", func(s *Snapshot) { s.Connections[0].Weight = 3 }},
		{"input gater", func(s *Snapshot) { s.Connections[0].Gater = 0 }},
		{"input after hidden", func(s *Snapshot) { s.Nodes = append(s.Nodes, NodeRecord{Kind: Input}) }},
		{"bad squash", func(s *Snapshot) { s.Nodes[1].Squash = squash.Kind(40) }},
		{"two self loops", func(s *Snapshot) {
			s.Connections = append(s.Connections,
				ConnRecord{From: 1, To: 1, Gater: -1},
				ConnRecord{From: 1, To: 1, Gater: -1})
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Snapshot{
				Nodes:       append([]NodeRecord(nil), valid.Nodes...),
				Weights:     append([]float64(nil), valid.Weights...),
				Connections: append([]ConnRecord(nil), valid.Connections...),
			}
			tt.mutate(&s)
			if err := s.Validate(); !errors.Is(err, ErrInvalidSnapshot) {
				t.Errorf("Validate() = %v, want ErrInvalidSnapshot", err)
			}
			if _, err := FromSnapshot(s); !errors.Is(err, ErrInvalidSnapshot) {
				t.Errorf("FromSnapshot() = %v, want ErrInvalidSnapshot", err)
			}
		})
	}
}
