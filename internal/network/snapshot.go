package network

import (
	"fmt"
	"math/rand"

	"github.com/nvandessel/evonet/internal/squash"
)

// Snapshot is a compact, handle-free description of a network. Nodes are
// listed in activation order and referenced by position; shared weight cells
// appear once in Weights.
type Snapshot struct {
	Nodes       []NodeRecord `json:"nodes"`
	Weights     []float64    `json:"weights"`
	Connections []ConnRecord `json:"connections"`
}

// NodeRecord describes one node of a Snapshot.
type NodeRecord struct {
	Kind     NodeKind    `json:"kind"`
	Output   bool        `json:"output,omitempty"`
	Constant bool        `json:"constant,omitempty"`
	Squash   squash.Kind `json:"squash"`
	Bias     float64     `json:"bias"`
	Mask     float64     `json:"mask"`
}

// ConnRecord describes one connection of a Snapshot. From, To and Gater are
// node positions; Gater is -1 when ungated. Weight indexes Snapshot.Weights.
type ConnRecord struct {
	From   int `json:"from"`
	To     int `json:"to"`
	Weight int `json:"weight"`
	Gater  int `json:"gater"`
}

// MarshalText implements encoding.TextMarshaler.
func (k NodeKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *NodeKind) UnmarshalText(text []byte) error {
	switch string(text) {
	case "input":
		*k = Input
	case "hidden":
		*k = Hidden
	default:
		return fmt.Errorf("node kind %q: %w", text, ErrInvalidSnapshot)
	}
	return nil
}

// Snapshot captures the network's structure and parameters. Transient state
// (activations, traces, momentum) is not included.
func (n *Network) Snapshot() Snapshot {
	pos := n.orderPositions()
	s := Snapshot{Nodes: make([]NodeRecord, 0, len(n.order))}
	for _, id := range n.order {
		nd := &n.nodes[id]
		s.Nodes = append(s.Nodes, NodeRecord{
			Kind:     nd.kind,
			Output:   nd.output,
			Constant: nd.constant,
			Squash:   nd.squash,
			Bias:     nd.bias,
			Mask:     nd.mask,
		})
	}

	cells := make(map[WeightID]int)
	for _, cid := range n.Connections() {
		c := &n.conns[cid]
		w, ok := cells[c.weight]
		if !ok {
			w = len(s.Weights)
			cells[c.weight] = w
			s.Weights = append(s.Weights, n.weight(c))
		}
		gater := -1
		if c.gater != NoNode {
			gater = pos[c.gater]
		}
		s.Connections = append(s.Connections, ConnRecord{
			From:   pos[c.from],
			To:     pos[c.to],
			Weight: w,
			Gater:  gater,
		})
	}
	return s
}

// Validate checks that every index in the snapshot is in range and that the
// described graph is well formed.
func (s Snapshot) Validate() error {
	seenHidden := false
	for i, nr := range s.Nodes {
		switch nr.Kind {
		case Input:
			if seenHidden {
				return fmt.Errorf("input node %d follows a hidden node: %w", i, ErrInvalidSnapshot)
			}
			if nr.Output || nr.Constant {
				return fmt.Errorf("input node %d marked output or constant: %w", i, ErrInvalidSnapshot)
			}
		case Hidden:
			seenHidden = true
			if !nr.Squash.Valid() {
				return fmt.Errorf("node %d squash %d: %w", i, int(nr.Squash), ErrInvalidSnapshot)
			}
		default:
			return fmt.Errorf("node %d kind %d: %w", i, int(nr.Kind), ErrInvalidSnapshot)
		}
	}

	inRange := func(i int) bool { return i >= 0 && i < len(s.Nodes) }
	selfs := make(map[int]bool)
	for i, cr := range s.Connections {
		if !inRange(cr.From) || !inRange(cr.To) {
			return fmt.Errorf("connection %d endpoints %d -> %d: %w", i, cr.From, cr.To, ErrInvalidSnapshot)
		}
		if s.Nodes[cr.To].Kind == Input {
			return fmt.Errorf("connection %d targets input %d: %w", i, cr.To, ErrInvalidSnapshot)
		}
		if cr.Weight < 0 || cr.Weight >= len(s.Weights) {
			return fmt.Errorf("connection %d weight %d: %w", i, cr.Weight, ErrInvalidSnapshot)
		}
		if cr.Gater != -1 && (!inRange(cr.Gater) || s.Nodes[cr.Gater].Kind == Input) {
			return fmt.Errorf("connection %d gater %d: %w", i, cr.Gater, ErrInvalidSnapshot)
		}
		if cr.From == cr.To {
			if selfs[cr.From] {
				return fmt.Errorf("node %d has two self-connections: %w", cr.From, ErrInvalidSnapshot)
			}
			selfs[cr.From] = true
		}
	}
	return nil
}

// FromSnapshot rebuilds a network from a snapshot.
func FromSnapshot(s Snapshot, opts ...Option) (*Network, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}

	n := New(opts...)
	ids := make([]NodeID, len(s.Nodes))
	for i, nr := range s.Nodes {
		if nr.Kind == Input {
			ids[i] = n.AddInput()
		} else {
			ids[i] = n.AddHidden(HiddenSpec{
				Squash:   nr.Squash,
				Bias:     nr.Bias,
				Output:   nr.Output,
				Constant: nr.Constant,
			})
		}
		n.nodes[ids[i]].mask = nr.Mask
	}

	cells := make([]WeightID, len(s.Weights))
	for i, v := range s.Weights {
		cells[i] = n.newWeight(v)
	}

	conns := make([]ConnID, len(s.Connections))
	for i, cr := range s.Connections {
		conns[i] = n.addConn(ids[cr.From], ids[cr.To], cells[cr.Weight])
	}
	for i, cr := range s.Connections {
		if cr.Gater != -1 {
			n.gate(ids[cr.Gater], conns[i])
		}
	}
	return n, nil
}

// Clone returns an independent deep copy of the network's structure and
// parameters. The copy gets its own random source seeded from n's unless
// opts supply one.
func (n *Network) Clone(opts ...Option) *Network {
	base := []Option{
		WithRand(rand.New(rand.NewSource(n.rng.Int63()))),
		WithWeightInit(n.weightInit),
		WithMutationOptions(n.mutation),
	}
	c, err := FromSnapshot(n.Snapshot(), append(base, opts...)...)
	if err != nil {
		panic(fmt.Errorf("clone: %w", err))
	}
	return c
}
