// Package network implements a dynamic, graph-based neural network.
//
// A Network owns its nodes, connections and weight cells in arenas addressed
// by integer handles. Connections reference nodes by handle, never by
// pointer, and weight cells may be shared by several connections. Removing a
// node or connection tombstones its slot; handles are never reused.
//
// Nodes are evaluated in activation order (inputs first). Backward passes
// walk the same order in reverse. Recurrence through self-connections and
// backward connections is carried across calls in each node's previous state,
// not resolved by iterating to convergence.
//
// A Network is not safe for concurrent use. Evaluate independent networks on
// separate goroutines, each owning its own instance (see Clone).
package network

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/nvandessel/evonet/internal/squash"
)

// NodeID is a stable handle to a node.
type NodeID int

// ConnID is a stable handle to a connection.
type ConnID int

// WeightID is a stable handle to a weight cell.
type WeightID int

const (
	// NoNode marks an absent node reference, such as an ungated connection's gater.
	NoNode NodeID = -1

	// NoConn marks an absent connection reference, such as a missing self-connection.
	NoConn ConnID = -1

	noWeight WeightID = -1
)

// NodeKind distinguishes input nodes from computing nodes.
type NodeKind int

const (
	Input NodeKind = iota
	Hidden
)

func (k NodeKind) String() string {
	if k == Input {
		return "input"
	}
	return "hidden"
}

type trace struct {
	node  NodeID
	value float64
}

type node struct {
	alive    bool
	kind     NodeKind
	output   bool
	constant bool
	squash   squash.Kind

	bias       float64
	state      float64
	previous   float64
	activation float64
	derivative float64
	mask       float64

	prevDeltaBias  float64
	totalDeltaBias float64

	responsibility float64
	projected      float64
	gatedErr       float64
	activated      bool
	pass           uint64

	inbound  []ConnID
	outbound []ConnID
	gated    []ConnID
	self     ConnID
}

type connection struct {
	alive  bool
	from   NodeID
	to     NodeID
	gater  NodeID
	weight WeightID

	gain        float64
	eligibility float64
	prevDelta   float64
	totalDelta  float64
	xtrace      []trace
}

type weightCell struct {
	value float64
	refs  int
}

// Network is a mutable graph of nodes and weighted, optionally gated, connections.
type Network struct {
	nodes   []node
	conns   []connection
	weights []weightCell
	order   []NodeID

	rng        *rand.Rand
	weightInit func(*rand.Rand) float64
	mutation   MutationOptions

	activated bool
	pass      uint64

	scratchTargets    []NodeID
	scratchInfluences []float64
}

// Option configures a Network.
type Option func(*Network)

// WithRand injects the random source used by weight initialisation and mutation.
func WithRand(rng *rand.Rand) Option {
	return func(n *Network) {
		if rng != nil {
			n.rng = rng
		}
	}
}

// WithSeed seeds a private random source for deterministic runs.
func WithSeed(seed int64) Option {
	return func(n *Network) {
		n.rng = rand.New(rand.NewSource(seed))
	}
}

// WithWeightInit sets the distribution new connections draw their weight from.
func WithWeightInit(fn func(*rand.Rand) float64) Option {
	return func(n *Network) {
		if fn != nil {
			n.weightInit = fn
		}
	}
}

// WithMutationOptions overrides the defaults used by Mutate.
func WithMutationOptions(opts MutationOptions) Option {
	return func(n *Network) {
		n.mutation = opts.normalized()
	}
}

// UniformInit draws weights from U(-limit, limit).
func UniformInit(limit float64) func(*rand.Rand) float64 {
	return func(rng *rand.Rand) float64 {
		return (rng.Float64()*2 - 1) * limit
	}
}

// NormalInit draws weights from N(0, stddev²).
func NormalInit(stddev float64) func(*rand.Rand) float64 {
	return func(rng *rand.Rand) float64 {
		return rng.NormFloat64() * stddev
	}
}

// New creates an empty network.
func New(opts ...Option) *Network {
	n := &Network{
		weightInit: UniformInit(0.1),
		mutation:   DefaultMutationOptions(),
	}
	for _, opt := range opts {
		opt(n)
	}
	if n.rng == nil {
		n.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return n
}

// Rand returns the network's random source.
func (n *Network) Rand() *rand.Rand {
	return n.rng
}

// MutationOptions returns the options used by Mutate.
func (n *Network) MutationOptions() MutationOptions {
	return n.mutation
}

// SetMutationOptions replaces the options used by Mutate.
func (n *Network) SetMutationOptions(opts MutationOptions) {
	n.mutation = opts.normalized()
}

// HiddenSpec describes a computing node.
type HiddenSpec struct {
	Squash   squash.Kind
	Bias     float64
	Output   bool
	Constant bool
}

// AddInput appends an input node after the existing inputs.
func (n *Network) AddInput() NodeID {
	id := n.newNode(node{kind: Input})
	pos := 0
	for pos < len(n.order) && n.nodes[n.order[pos]].kind == Input {
		pos++
	}
	n.insertOrder(pos, id)
	return id
}

// AddHidden appends a computing node at the end of the activation order.
func (n *Network) AddHidden(spec HiddenSpec) NodeID {
	id := n.newNode(node{
		kind:     Hidden,
		squash:   spec.Squash,
		bias:     spec.Bias,
		output:   spec.Output,
		constant: spec.Constant,
	})
	n.order = append(n.order, id)
	return id
}

// AddOutput appends an output node.
func (n *Network) AddOutput(kind squash.Kind, bias float64) NodeID {
	return n.AddHidden(HiddenSpec{Squash: kind, Bias: bias, Output: true})
}

func (n *Network) newNode(nd node) NodeID {
	nd.alive = true
	nd.mask = 1
	nd.self = NoConn
	n.nodes = append(n.nodes, nd)
	n.activated = false
	return NodeID(len(n.nodes) - 1)
}

func (n *Network) insertOrder(pos int, id NodeID) {
	n.order = append(n.order, NoNode)
	copy(n.order[pos+1:], n.order[pos:])
	n.order[pos] = id
}

// orderIndex returns the position of id in the activation order, or -1.
func (n *Network) orderIndex(id NodeID) int {
	for i, o := range n.order {
		if o == id {
			return i
		}
	}
	return -1
}

func (n *Network) orderPositions() map[NodeID]int {
	pos := make(map[NodeID]int, len(n.order))
	for i, id := range n.order {
		pos[id] = i
	}
	return pos
}

// node returns the live node for id and panics on a stale handle.
func (n *Network) node(id NodeID) *node {
	if id < 0 || int(id) >= len(n.nodes) || !n.nodes[id].alive {
		panic(fmt.Errorf("node %d: %w", id, ErrDanglingReference))
	}
	return &n.nodes[id]
}

// conn returns the live connection for id and panics on a stale handle.
func (n *Network) conn(id ConnID) *connection {
	if id < 0 || int(id) >= len(n.conns) || !n.conns[id].alive {
		panic(fmt.Errorf("connection %d: %w", id, ErrDanglingReference))
	}
	return &n.conns[id]
}

func (n *Network) weight(c *connection) float64 {
	if c.weight < 0 || int(c.weight) >= len(n.weights) || n.weights[c.weight].refs == 0 {
		panic(fmt.Errorf("weight %d: %w", c.weight, ErrDanglingReference))
	}
	return n.weights[c.weight].value
}

func (n *Network) hasNode(id NodeID) bool {
	return id >= 0 && int(id) < len(n.nodes) && n.nodes[id].alive
}

func (n *Network) hasConn(id ConnID) bool {
	return id >= 0 && int(id) < len(n.conns) && n.conns[id].alive
}

func (n *Network) checkNode(id NodeID) error {
	if !n.hasNode(id) {
		return fmt.Errorf("node %d: %w", id, ErrUnknownNode)
	}
	return nil
}

func (n *Network) checkConn(id ConnID) error {
	if !n.hasConn(id) {
		return fmt.Errorf("connection %d: %w", id, ErrUnknownConnection)
	}
	return nil
}

// Order returns the live nodes in activation order.
func (n *Network) Order() []NodeID {
	out := make([]NodeID, len(n.order))
	copy(out, n.order)
	return out
}

// Inputs returns the input nodes in activation order.
func (n *Network) Inputs() []NodeID {
	var ids []NodeID
	for _, id := range n.order {
		if n.nodes[id].kind == Input {
			ids = append(ids, id)
		}
	}
	return ids
}

// Outputs returns the output nodes in activation order.
func (n *Network) Outputs() []NodeID {
	var ids []NodeID
	for _, id := range n.order {
		if n.nodes[id].output {
			ids = append(ids, id)
		}
	}
	return ids
}

// Connections returns every live connection, self-connections included, in creation order.
func (n *Network) Connections() []ConnID {
	var ids []ConnID
	for i := range n.conns {
		if n.conns[i].alive {
			ids = append(ids, ConnID(i))
		}
	}
	return ids
}

// NodeInfo is a read-only view of a node.
type NodeInfo struct {
	ID             NodeID
	Kind           NodeKind
	Output         bool
	Constant       bool
	Squash         squash.Kind
	Bias           float64
	State          float64
	Previous       float64
	Activation     float64
	Derivative     float64
	Mask           float64
	Responsibility float64
	Self           ConnID
	Inbound        []ConnID
	Outbound       []ConnID
	Gated          []ConnID
}

// Node describes a live node.
func (n *Network) Node(id NodeID) (NodeInfo, error) {
	if err := n.checkNode(id); err != nil {
		return NodeInfo{}, err
	}
	nd := &n.nodes[id]
	return NodeInfo{
		ID:             id,
		Kind:           nd.kind,
		Output:         nd.output,
		Constant:       nd.constant,
		Squash:         nd.squash,
		Bias:           nd.bias,
		State:          nd.state,
		Previous:       nd.previous,
		Activation:     nd.activation,
		Derivative:     nd.derivative,
		Mask:           nd.mask,
		Responsibility: nd.responsibility,
		Self:           nd.self,
		Inbound:        append([]ConnID(nil), nd.inbound...),
		Outbound:       append([]ConnID(nil), nd.outbound...),
		Gated:          append([]ConnID(nil), nd.gated...),
	}, nil
}

// ConnInfo is a read-only view of a connection.
type ConnInfo struct {
	ID          ConnID
	From        NodeID
	To          NodeID
	Gater       NodeID
	WeightID    WeightID
	Weight      float64
	Gain        float64
	Eligibility float64
	PrevDelta   float64
	TotalDelta  float64
}

// Connection describes a live connection.
func (n *Network) Connection(id ConnID) (ConnInfo, error) {
	if err := n.checkConn(id); err != nil {
		return ConnInfo{}, err
	}
	c := &n.conns[id]
	return ConnInfo{
		ID:          id,
		From:        c.from,
		To:          c.to,
		Gater:       c.gater,
		WeightID:    c.weight,
		Weight:      n.weight(c),
		Gain:        c.gain,
		Eligibility: c.eligibility,
		PrevDelta:   c.prevDelta,
		TotalDelta:  c.totalDelta,
	}, nil
}

// SetBias sets a computing node's bias.
func (n *Network) SetBias(id NodeID, bias float64) error {
	if err := n.checkNode(id); err != nil {
		return err
	}
	n.nodes[id].bias = bias
	return nil
}

// SetSquash sets a computing node's activation function.
func (n *Network) SetSquash(id NodeID, kind squash.Kind) error {
	if err := n.checkNode(id); err != nil {
		return err
	}
	n.nodes[id].squash = kind
	return nil
}

// SetMask sets a node's activation mask; 0 silences the node, 1 is normal.
func (n *Network) SetMask(id NodeID, mask float64) error {
	if err := n.checkNode(id); err != nil {
		return err
	}
	n.nodes[id].mask = mask
	return nil
}

// SetOutput marks or unmarks a computing node as an output.
func (n *Network) SetOutput(id NodeID, output bool) error {
	if err := n.checkNode(id); err != nil {
		return err
	}
	if n.nodes[id].kind == Input {
		return fmt.Errorf("node %d is an input: %w", id, ErrInvalidConnection)
	}
	n.nodes[id].output = output
	n.activated = false
	return nil
}

// SetWeight writes a connection's weight cell. Every connection sharing the
// cell observes the new value.
func (n *Network) SetWeight(id ConnID, value float64) error {
	if err := n.checkConn(id); err != nil {
		return err
	}
	n.weights[n.conns[id].weight].value = value
	return nil
}

// Stats counts live and tombstoned arena slots.
type Stats struct {
	Nodes             int
	UnusedNodes       int
	Connections       int
	UnusedConnections int
	Weights           int
	UnusedWeights     int
}

// Stats reports arena usage.
func (n *Network) Stats() Stats {
	var s Stats
	for i := range n.nodes {
		if n.nodes[i].alive {
			s.Nodes++
		} else {
			s.UnusedNodes++
		}
	}
	for i := range n.conns {
		if n.conns[i].alive {
			s.Connections++
		} else {
			s.UnusedConnections++
		}
	}
	for i := range n.weights {
		if n.weights[i].refs > 0 {
			s.Weights++
		} else {
			s.UnusedWeights++
		}
	}
	return s
}

// Clear resets all transient state: activations, traces, gains and error
// terms. Weights and biases are kept. Use it between independent sequences.
func (n *Network) Clear() {
	for i := range n.nodes {
		nd := &n.nodes[i]
		if !nd.alive {
			continue
		}
		if nd.kind == Hidden {
			nd.activation = 0
		}
		nd.state, nd.previous, nd.derivative = 0, 0, 0
		nd.responsibility, nd.projected, nd.gatedErr = 0, 0, 0
		nd.activated = false
	}
	for i := range n.conns {
		c := &n.conns[i]
		if !c.alive {
			continue
		}
		c.eligibility = 0
		c.xtrace = c.xtrace[:0]
		c.gain = 1
	}
	n.activated = false
}
