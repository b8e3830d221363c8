package network

import (
	"fmt"
	"slices"
	"strings"

	"github.com/nvandessel/evonet/internal/squash"
)

// MutationKind identifies one topology or parameter edit.
type MutationKind int

const (
	MutateActivation MutationKind = iota
	MutateBias
	AddSelfConnection
	SubSelfConnection
	MutateWeight
	AddNode
	SubNode
	AddConnection
	SubConnection
	AddGate
	SubGate
	AddBackConnection
	SubBackConnection
	SwapNodes
	ShareWeight
)

var mutationNames = [...]string{
	MutateActivation:  "activation",
	MutateBias:        "bias",
	AddSelfConnection: "add-self-connection",
	SubSelfConnection: "sub-self-connection",
	MutateWeight:      "weight",
	AddNode:           "add-node",
	SubNode:           "sub-node",
	AddConnection:     "add-connection",
	SubConnection:     "sub-connection",
	AddGate:           "add-gate",
	SubGate:           "sub-gate",
	AddBackConnection: "add-back-connection",
	SubBackConnection: "sub-back-connection",
	SwapNodes:         "swap-nodes",
	ShareWeight:       "share-weight",
}

func (k MutationKind) String() string {
	if k < 0 || int(k) >= len(mutationNames) {
		return fmt.Sprintf("mutation(%d)", int(k))
	}
	return mutationNames[k]
}

// MarshalText implements encoding.TextMarshaler.
func (k MutationKind) MarshalText() ([]byte, error) {
	if k < 0 || int(k) >= len(mutationNames) {
		return nil, fmt.Errorf("mutation %d: %w", int(k), ErrUnknownMutation)
	}
	return []byte(mutationNames[k]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *MutationKind) UnmarshalText(text []byte) error {
	parsed, err := ParseMutationKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// ParseMutationKind resolves a mutation from its name.
func ParseMutationKind(name string) (MutationKind, error) {
	n := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "_", "-")
	for i, candidate := range mutationNames {
		if candidate == n {
			return MutationKind(i), nil
		}
	}
	return 0, fmt.Errorf("%q: %w", name, ErrUnknownMutation)
}

// AllMutations returns every mutation kind.
func AllMutations() []MutationKind {
	kinds := make([]MutationKind, len(mutationNames))
	for i := range mutationNames {
		kinds[i] = MutationKind(i)
	}
	return kinds
}

// FeedForwardMutations returns the kinds that never introduce recurrence or gating.
func FeedForwardMutations() []MutationKind {
	return []MutationKind{
		MutateActivation, MutateBias, MutateWeight,
		AddNode, SubNode, AddConnection, SubConnection,
		SwapNodes, ShareWeight,
	}
}

// MutationOptions bounds the random edits made by Mutate.
type MutationOptions struct {
	// BiasRange bounds the uniform bias perturbation. Default: 1.
	BiasRange float64 `json:"bias_range" yaml:"bias_range"`

	// WeightRange bounds the uniform weight perturbation. Default: 1.
	WeightRange float64 `json:"weight_range" yaml:"weight_range"`

	// Squashes is the set MutateActivation and AddNode draw from. Default: all kinds.
	Squashes []squash.Kind `json:"squashes" yaml:"squashes"`

	// FeedForwardOnly disables edits that create recurrence.
	FeedForwardOnly bool `json:"feed_forward_only" yaml:"feed_forward_only"`

	// MutateOutput allows activation and swap edits on output nodes.
	MutateOutput bool `json:"mutate_output" yaml:"mutate_output"`
}

// DefaultMutationOptions returns the default mutation bounds.
func DefaultMutationOptions() MutationOptions {
	return MutationOptions{
		BiasRange:    1,
		WeightRange:  1,
		Squashes:     squash.All(),
		MutateOutput: true,
	}
}

func (o MutationOptions) normalized() MutationOptions {
	if o.BiasRange <= 0 {
		o.BiasRange = 1
	}
	if o.WeightRange <= 0 {
		o.WeightRange = 1
	}
	if len(o.Squashes) == 0 {
		o.Squashes = squash.All()
	}
	return o
}

// Mutate applies one edit of the given kind to a randomly chosen eligible
// target. It reports whether the network changed; having nothing eligible is
// not an error.
func (n *Network) Mutate(kind MutationKind) (bool, error) {
	var changed bool
	switch kind {
	case MutateActivation:
		changed = n.mutateActivation()
	case MutateBias:
		changed = n.mutateBias()
	case AddSelfConnection:
		changed = n.addSelfConnection()
	case SubSelfConnection:
		changed = n.subSelfConnection()
	case MutateWeight:
		changed = n.mutateWeight()
	case AddNode:
		changed = n.addNode()
	case SubNode:
		changed = n.subNode()
	case AddConnection:
		changed = n.addConnection(false)
	case SubConnection:
		changed = n.subConnection(false)
	case AddGate:
		changed = n.addGate()
	case SubGate:
		changed = n.subGate()
	case AddBackConnection:
		changed = n.addConnection(true)
	case SubBackConnection:
		changed = n.subConnection(true)
	case SwapNodes:
		changed = n.swapNodes()
	case ShareWeight:
		changed = n.shareWeight()
	default:
		return false, fmt.Errorf("mutation %d: %w", int(kind), ErrUnknownMutation)
	}
	if changed {
		n.activated = false
	}
	return changed, nil
}

// MutateRandom applies one kind drawn uniformly from kinds, or from all kinds
// when kinds is empty.
func (n *Network) MutateRandom(kinds []MutationKind) (MutationKind, bool, error) {
	if len(kinds) == 0 {
		kinds = AllMutations()
	}
	kind := kinds[n.rng.Intn(len(kinds))]
	changed, err := n.Mutate(kind)
	return kind, changed, err
}

// editableNodes lists computing nodes whose parameters may be mutated.
func (n *Network) editableNodes(withOutputs bool) []NodeID {
	var ids []NodeID
	for _, id := range n.order {
		nd := &n.nodes[id]
		if nd.kind == Input || nd.constant || (nd.output && !withOutputs) {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

func (n *Network) uniform(limit float64) float64 {
	return (n.rng.Float64()*2 - 1) * limit
}

func (n *Network) mutateActivation() bool {
	ids := n.editableNodes(n.mutation.MutateOutput)
	if len(ids) == 0 {
		return false
	}
	nd := n.node(ids[n.rng.Intn(len(ids))])

	var choices []squash.Kind
	for _, k := range n.mutation.Squashes {
		if k != nd.squash {
			choices = append(choices, k)
		}
	}
	if len(choices) == 0 {
		return false
	}
	nd.squash = choices[n.rng.Intn(len(choices))]
	return true
}

func (n *Network) mutateBias() bool {
	ids := n.editableNodes(true)
	if len(ids) == 0 {
		return false
	}
	nd := n.node(ids[n.rng.Intn(len(ids))])
	nd.bias += n.uniform(n.mutation.BiasRange)
	return true
}

func (n *Network) mutateWeight() bool {
	ids := n.Connections()
	if len(ids) == 0 {
		return false
	}
	c := n.conn(ids[n.rng.Intn(len(ids))])
	n.weights[c.weight].value += n.uniform(n.mutation.WeightRange)
	return true
}

func (n *Network) addSelfConnection() bool {
	if n.mutation.FeedForwardOnly {
		return false
	}
	var ids []NodeID
	for _, id := range n.order {
		nd := &n.nodes[id]
		if nd.kind != Input && nd.self == NoConn {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return false
	}
	id := ids[n.rng.Intn(len(ids))]
	n.addConn(id, id, n.newWeight(n.weightInit(n.rng)))
	return true
}

func (n *Network) subSelfConnection() bool {
	var ids []ConnID
	for _, id := range n.order {
		if s := n.nodes[id].self; s != NoConn {
			ids = append(ids, s)
		}
	}
	if len(ids) == 0 {
		return false
	}
	n.removeConn(ids[n.rng.Intn(len(ids))])
	return true
}

func (n *Network) addNode() bool {
	var ids []ConnID
	for _, id := range n.Connections() {
		if c := &n.conns[id]; c.from != c.to {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return false
	}
	_, err := n.SplitConnection(ids[n.rng.Intn(len(ids))])
	return err == nil
}

// SplitConnection replaces A -> B with A -> N -> B for a new hidden node N
// placed just before B. A -> N keeps the original weight cell, N -> B starts
// at weight 1, and a gater of the original edge moves to one of the new edges.
func (n *Network) SplitConnection(id ConnID) (NodeID, error) {
	if err := n.checkConn(id); err != nil {
		return NoNode, err
	}
	c := n.conn(id)
	if c.from == c.to {
		return NoNode, fmt.Errorf("connection %d is a self-connection: %w", id, ErrInvalidConnection)
	}
	from, to, w, gater := c.from, c.to, c.weight, c.gater

	n.weights[w].refs++
	n.removeConn(id)

	kinds := n.mutation.Squashes
	mid := n.newNode(node{kind: Hidden, squash: kinds[n.rng.Intn(len(kinds))]})
	n.insertOrder(n.orderIndex(to), mid)

	in := n.addConn(from, mid, w)
	n.weights[w].refs--
	out := n.addConn(mid, to, n.newWeight(1))

	if gater != NoNode {
		if n.rng.Intn(2) == 0 {
			n.gate(gater, in)
		} else {
			n.gate(gater, out)
		}
	}
	return mid, nil
}

func (n *Network) subNode() bool {
	var ids []NodeID
	for _, id := range n.order {
		nd := &n.nodes[id]
		if nd.kind == Hidden && !nd.output && !nd.constant {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return false
	}
	return n.RemoveNode(ids[n.rng.Intn(len(ids))]) == nil
}

// RemoveNode deletes a hidden node. Every source feeding it is connected to
// every destination it fed, unless already connected; the new edge copies the
// weight of the source's edge into the node. Gaters of the removed edges are
// reassigned to new edges at random, and edges the node gated are ungated.
func (n *Network) RemoveNode(id NodeID) error {
	if err := n.checkNode(id); err != nil {
		return err
	}
	nd := n.node(id)
	if nd.kind == Input || nd.output {
		return fmt.Errorf("node %d: %w", id, ErrProtectedNode)
	}

	type source struct {
		node   NodeID
		weight float64
	}
	var sources []source
	var gaters []NodeID
	for _, cid := range nd.inbound {
		c := n.conn(cid)
		if c.gater != NoNode && c.gater != id {
			gaters = append(gaters, c.gater)
		}
		if !slices.ContainsFunc(sources, func(s source) bool { return s.node == c.from }) {
			sources = append(sources, source{node: c.from, weight: n.weight(c)})
		}
	}
	var dests []NodeID
	for _, cid := range nd.outbound {
		c := n.conn(cid)
		if c.gater != NoNode && c.gater != id {
			gaters = append(gaters, c.gater)
		}
		if !slices.Contains(dests, c.to) {
			dests = append(dests, c.to)
		}
	}

	var created []ConnID
	for _, src := range sources {
		for _, dst := range dests {
			if n.canConnect(src.node, dst, false) != nil {
				continue
			}
			created = append(created, n.addConn(src.node, dst, n.newWeight(src.weight)))
		}
	}

	for _, cid := range slices.Clone(nd.gated) {
		n.ungate(cid)
	}
	for _, cid := range slices.Clone(nd.inbound) {
		n.removeConn(cid)
	}
	for _, cid := range slices.Clone(nd.outbound) {
		n.removeConn(cid)
	}
	if nd.self != NoConn {
		n.removeConn(nd.self)
	}

	for _, g := range gaters {
		if len(created) == 0 {
			break
		}
		if !n.hasNode(g) {
			continue
		}
		i := n.rng.Intn(len(created))
		n.gate(g, created[i])
		created = slices.Delete(created, i, i+1)
	}

	n.order = removeID(n.order, id)
	*nd = node{self: NoConn}
	n.activated = false
	return nil
}

func (n *Network) addConnection(backward bool) bool {
	if backward && n.mutation.FeedForwardOnly {
		return false
	}
	var pairs [][2]NodeID
	for i, a := range n.order {
		for j, b := range n.order {
			if i == j || (i < j) == backward {
				continue
			}
			from, to := a, b
			if n.nodes[to].kind == Input {
				continue
			}
			if backward && n.nodes[from].kind == Input {
				continue
			}
			if n.findConn(from, to) != NoConn {
				continue
			}
			pairs = append(pairs, [2]NodeID{from, to})
		}
	}
	if len(pairs) == 0 {
		return false
	}
	p := pairs[n.rng.Intn(len(pairs))]
	n.addConn(p[0], p[1], n.newWeight(n.weightInit(n.rng)))
	return true
}

func (n *Network) subConnection(backward bool) bool {
	pos := n.orderPositions()
	var ids []ConnID
	for _, id := range n.Connections() {
		c := &n.conns[id]
		if c.from == c.to || (pos[c.from] > pos[c.to]) != backward {
			continue
		}
		if len(n.nodes[c.from].outbound) > 1 && len(n.nodes[c.to].inbound) > 1 {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return false
	}
	n.removeConn(ids[n.rng.Intn(len(ids))])
	return true
}

func (n *Network) addGate() bool {
	pos := n.orderPositions()
	var gaters []NodeID
	for _, id := range n.order {
		if n.nodes[id].kind != Input {
			gaters = append(gaters, id)
		}
	}
	if len(gaters) == 0 {
		return false
	}

	type candidate struct {
		conn  ConnID
		gater NodeID
	}
	var candidates []candidate
	for _, cid := range n.Connections() {
		c := &n.conns[cid]
		if c.gater != NoNode {
			continue
		}
		for _, g := range gaters {
			if n.mutation.FeedForwardOnly && pos[g] >= pos[c.to] {
				continue
			}
			candidates = append(candidates, candidate{conn: cid, gater: g})
		}
	}
	if len(candidates) == 0 {
		return false
	}
	pick := candidates[n.rng.Intn(len(candidates))]
	n.gate(pick.gater, pick.conn)
	return true
}

func (n *Network) subGate() bool {
	var ids []ConnID
	for _, id := range n.Connections() {
		if n.conns[id].gater != NoNode {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return false
	}
	n.ungate(ids[n.rng.Intn(len(ids))])
	return true
}

func (n *Network) swapNodes() bool {
	ids := n.editableNodes(n.mutation.MutateOutput)
	if len(ids) < 2 {
		return false
	}
	i := n.rng.Intn(len(ids))
	j := n.rng.Intn(len(ids) - 1)
	if j >= i {
		j++
	}
	a, b := n.node(ids[i]), n.node(ids[j])
	a.bias, b.bias = b.bias, a.bias
	a.squash, b.squash = b.squash, a.squash
	return true
}

func (n *Network) shareWeight() bool {
	ids := n.Connections()
	if len(ids) < 2 {
		return false
	}
	src := ids[n.rng.Intn(len(ids))]
	var dsts []ConnID
	for _, id := range ids {
		if n.conns[id].weight != n.conns[src].weight {
			dsts = append(dsts, id)
		}
	}
	if len(dsts) == 0 {
		return false
	}
	return n.ShareWeights(dsts[n.rng.Intn(len(dsts))], src) == nil
}

// ShareWeights points dst at src's weight cell. Writes through either
// connection are then visible through both.
func (n *Network) ShareWeights(dst, src ConnID) error {
	if err := n.checkConn(dst); err != nil {
		return err
	}
	if err := n.checkConn(src); err != nil {
		return err
	}
	d, s := n.conn(dst), n.conn(src)
	if d.weight == s.weight {
		return fmt.Errorf("connections %d and %d already share a weight: %w", dst, src, ErrNoEligibleMutationTarget)
	}
	n.releaseWeight(d.weight)
	d.weight = s.weight
	n.weights[s.weight].refs++
	n.activated = false
	return nil
}
