package network

import (
	"fmt"
	"slices"
)

// ConnectionPattern selects how two node groups are wired together.
type ConnectionPattern int

const (
	// AllToAll connects every pair, including a node to itself when the groups overlap.
	AllToAll ConnectionPattern = iota
	// AllToElse connects every pair except a node to itself.
	AllToElse
	// OneToOne pairs nodes by index and requires groups of equal length.
	OneToOne
)

// GatePattern selects which connections a gater may modulate.
type GatePattern int

const (
	// GateOutput gates connections leaving the gater.
	GateOutput GatePattern = iota
	// GateInput gates connections entering the gater.
	GateInput
	// GateToSelf gates the gater's own self-connection.
	GateToSelf
)

func (p GatePattern) String() string {
	switch p {
	case GateOutput:
		return "output"
	case GateInput:
		return "input"
	case GateToSelf:
		return "self"
	default:
		return fmt.Sprintf("gate-pattern(%d)", int(p))
	}
}

// Connect creates an edge from -> to with an initial weight drawn from the
// network's weight distribution. from == to creates the self-connection.
func (n *Network) Connect(from, to NodeID) (ConnID, error) {
	return n.ConnectWeighted(from, to, n.weightInit(n.rng))
}

// ConnectWeighted creates an edge from -> to with the given weight.
func (n *Network) ConnectWeighted(from, to NodeID, weight float64) (ConnID, error) {
	if err := n.canConnect(from, to, false); err != nil {
		return NoConn, err
	}
	return n.addConn(from, to, n.newWeight(weight)), nil
}

// ConnectParallel creates an edge even when one already joins the pair.
// Self-connections are never parallel.
func (n *Network) ConnectParallel(from, to NodeID) (ConnID, error) {
	if err := n.canConnect(from, to, true); err != nil {
		return NoConn, err
	}
	return n.addConn(from, to, n.newWeight(n.weightInit(n.rng))), nil
}

// Project connects from to each node in to. Either every edge is created or none.
func (n *Network) Project(from NodeID, to []NodeID) ([]ConnID, error) {
	pairs := make([][2]NodeID, 0, len(to))
	for _, t := range to {
		pairs = append(pairs, [2]NodeID{from, t})
	}
	return n.connectPairs(pairs)
}

// ConnectGroups wires two node groups according to pattern. Either every
// edge is created or none.
func (n *Network) ConnectGroups(from, to []NodeID, pattern ConnectionPattern) ([]ConnID, error) {
	var pairs [][2]NodeID
	switch pattern {
	case AllToAll, AllToElse:
		for _, f := range from {
			for _, t := range to {
				if pattern == AllToElse && f == t {
					continue
				}
				pairs = append(pairs, [2]NodeID{f, t})
			}
		}
	case OneToOne:
		if len(from) != len(to) {
			return nil, fmt.Errorf("one-to-one with %d and %d nodes: %w", len(from), len(to), ErrSizeMismatch)
		}
		for i := range from {
			pairs = append(pairs, [2]NodeID{from[i], to[i]})
		}
	default:
		return nil, fmt.Errorf("connection pattern %d: %w", pattern, ErrInvalidConnection)
	}
	return n.connectPairs(pairs)
}

func (n *Network) connectPairs(pairs [][2]NodeID) ([]ConnID, error) {
	seen := make(map[[2]NodeID]bool, len(pairs))
	for _, p := range pairs {
		if err := n.canConnect(p[0], p[1], false); err != nil {
			return nil, err
		}
		if seen[p] {
			return nil, fmt.Errorf("%d -> %d listed twice: %w", p[0], p[1], ErrDuplicateConnection)
		}
		seen[p] = true
	}

	ids := make([]ConnID, 0, len(pairs))
	for _, p := range pairs {
		ids = append(ids, n.addConn(p[0], p[1], n.newWeight(n.weightInit(n.rng))))
	}
	return ids, nil
}

func (n *Network) canConnect(from, to NodeID, parallel bool) error {
	if err := n.checkNode(from); err != nil {
		return err
	}
	if err := n.checkNode(to); err != nil {
		return err
	}
	if n.nodes[to].kind == Input {
		return fmt.Errorf("%d -> %d targets an input: %w", from, to, ErrInvalidConnection)
	}
	if from == to {
		if n.nodes[to].self != NoConn {
			return fmt.Errorf("self-connection on %d: %w", to, ErrDuplicateConnection)
		}
		return nil
	}
	if !parallel && n.findConn(from, to) != NoConn {
		return fmt.Errorf("%d -> %d: %w", from, to, ErrDuplicateConnection)
	}
	return nil
}

// FindConnection returns the first edge from -> to.
func (n *Network) FindConnection(from, to NodeID) (ConnID, bool) {
	if !n.hasNode(from) || !n.hasNode(to) {
		return NoConn, false
	}
	id := n.findConn(from, to)
	return id, id != NoConn
}

func (n *Network) findConn(from, to NodeID) ConnID {
	if from == to {
		return n.nodes[from].self
	}
	for _, id := range n.nodes[from].outbound {
		if n.conns[id].to == to {
			return id
		}
	}
	return NoConn
}

func (n *Network) newWeight(value float64) WeightID {
	n.weights = append(n.weights, weightCell{value: value})
	return WeightID(len(n.weights) - 1)
}

func (n *Network) addConn(from, to NodeID, w WeightID) ConnID {
	n.conns = append(n.conns, connection{
		alive:  true,
		from:   from,
		to:     to,
		gater:  NoNode,
		weight: w,
		gain:   1,
	})
	id := ConnID(len(n.conns) - 1)
	n.weights[w].refs++

	if from == to {
		n.node(from).self = id
	} else {
		src := n.node(from)
		src.outbound = append(src.outbound, id)
		dst := n.node(to)
		dst.inbound = append(dst.inbound, id)
	}
	n.activated = false
	return id
}

// RemoveConnection deletes an edge and unlinks it from every list that references it.
func (n *Network) RemoveConnection(id ConnID) error {
	if err := n.checkConn(id); err != nil {
		return err
	}
	n.removeConn(id)
	return nil
}

// Disconnect removes the edge from -> to.
func (n *Network) Disconnect(from, to NodeID) error {
	if err := n.checkNode(from); err != nil {
		return err
	}
	if err := n.checkNode(to); err != nil {
		return err
	}
	id := n.findConn(from, to)
	if id == NoConn {
		return fmt.Errorf("%d -> %d: %w", from, to, ErrUnknownConnection)
	}
	n.removeConn(id)
	return nil
}

func (n *Network) removeConn(id ConnID) {
	c := n.conn(id)
	if c.gater != NoNode {
		n.ungate(id)
	}
	if c.from == c.to {
		n.node(c.from).self = NoConn
	} else {
		src := n.node(c.from)
		src.outbound = removeID(src.outbound, id)
		dst := n.node(c.to)
		dst.inbound = removeID(dst.inbound, id)
	}
	n.releaseWeight(c.weight)
	*c = connection{from: NoNode, to: NoNode, gater: NoNode, weight: noWeight}
	n.activated = false
}

func (n *Network) releaseWeight(w WeightID) {
	cell := &n.weights[w]
	cell.refs--
	if cell.refs == 0 {
		cell.value = 0
	}
}

func removeID[T comparable](ids []T, id T) []T {
	if i := slices.Index(ids, id); i >= 0 {
		return slices.Delete(ids, i, i+1)
	}
	return ids
}

// Gate makes gater modulate each connection. pattern restricts which
// connections are legal: GateOutput accepts edges leaving gater, GateInput
// edges entering it, GateToSelf only gater's self-connection. Nothing is
// gated unless every connection is legal.
func (n *Network) Gate(gater NodeID, conns []ConnID, pattern GatePattern) error {
	if err := n.checkGater(gater); err != nil {
		return err
	}
	if err := checkDistinct(conns); err != nil {
		return err
	}
	for _, id := range conns {
		if err := n.checkGateable(id); err != nil {
			return err
		}
		c := &n.conns[id]
		var ok bool
		switch pattern {
		case GateOutput:
			ok = c.from == gater && c.to != gater
		case GateInput:
			ok = c.to == gater && c.from != gater
		case GateToSelf:
			ok = c.from == gater && c.to == gater
		}
		if !ok {
			return fmt.Errorf("connection %d (%d -> %d) with %s gate on %d: %w",
				id, c.from, c.to, pattern, gater, ErrInvalidGateTarget)
		}
	}
	for _, id := range conns {
		n.gate(gater, id)
	}
	return nil
}

// GateConnection makes gater modulate a single connection regardless of
// where the connection sits relative to the gater.
func (n *Network) GateConnection(gater NodeID, id ConnID) error {
	if err := n.checkGater(gater); err != nil {
		return err
	}
	if err := n.checkGateable(id); err != nil {
		return err
	}
	n.gate(gater, id)
	return nil
}

// GateGroups distributes gaters over conns. With GateInput the i-th distinct
// destination's listed connections are gated by gaters[i]; with GateOutput the
// same holds for distinct sources; with GateToSelf gaters[i] gates the listed
// self-connection of the i-th distinct source. Gaters are reused cyclically.
func (n *Network) GateGroups(gaters []NodeID, conns []ConnID, pattern GatePattern) error {
	if len(gaters) == 0 {
		return fmt.Errorf("no gaters: %w", ErrSizeMismatch)
	}
	for _, g := range gaters {
		if err := n.checkGater(g); err != nil {
			return err
		}
	}
	if err := checkDistinct(conns); err != nil {
		return err
	}
	for _, id := range conns {
		if err := n.checkGateable(id); err != nil {
			return err
		}
	}

	key := func(c *connection) NodeID {
		if pattern == GateInput {
			return c.to
		}
		return c.from
	}
	index := make(map[NodeID]int)
	assign := make([]NodeID, len(conns))
	for i, id := range conns {
		c := &n.conns[id]
		self := c.from == c.to
		if (pattern == GateToSelf) != self {
			assign[i] = NoNode
			continue
		}
		k := key(c)
		pos, ok := index[k]
		if !ok {
			pos = len(index)
			index[k] = pos
		}
		assign[i] = gaters[pos%len(gaters)]
	}
	for i, id := range conns {
		if assign[i] != NoNode {
			n.gate(assign[i], id)
		}
	}
	return nil
}

// checkDistinct rejects a connection listed more than once in one gating call.
func checkDistinct(conns []ConnID) error {
	if id, ok := firstDuplicate(conns); ok {
		return fmt.Errorf("connection %d listed twice: %w", id, ErrInvalidGateTarget)
	}
	return nil
}

func firstDuplicate[T comparable](ids []T) (T, bool) {
	seen := make(map[T]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			return id, true
		}
		seen[id] = true
	}
	var zero T
	return zero, false
}

func (n *Network) checkGater(gater NodeID) error {
	if err := n.checkNode(gater); err != nil {
		return err
	}
	if n.nodes[gater].kind == Input {
		return fmt.Errorf("input %d cannot gate: %w", gater, ErrInvalidGateTarget)
	}
	return nil
}

func (n *Network) checkGateable(id ConnID) error {
	if err := n.checkConn(id); err != nil {
		return err
	}
	if g := n.conns[id].gater; g != NoNode {
		return fmt.Errorf("connection %d already gated by %d: %w", id, g, ErrInvalidGateTarget)
	}
	return nil
}

func (n *Network) gate(gater NodeID, id ConnID) {
	c := n.conn(id)
	c.gater = gater
	g := n.node(gater)
	g.gated = append(g.gated, id)
	n.activated = false
}

// Ungate removes the gater from a connection and restores unit gain.
func (n *Network) Ungate(id ConnID) error {
	if err := n.checkConn(id); err != nil {
		return err
	}
	if n.conns[id].gater == NoNode {
		return fmt.Errorf("connection %d is not gated: %w", id, ErrInvalidGateTarget)
	}
	n.ungate(id)
	return nil
}

func (n *Network) ungate(id ConnID) {
	c := n.conn(id)
	g := n.node(c.gater)
	g.gated = removeID(g.gated, id)
	c.gater = NoNode
	c.gain = 1
	n.activated = false
}
