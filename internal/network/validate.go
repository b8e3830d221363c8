package network

import (
	"fmt"
	"slices"
)

// Validate checks every cross-reference in the graph. A non-nil result wraps
// ErrDanglingReference and always indicates a bug in an edit operation.
func (n *Network) Validate() error {
	fail := func(format string, args ...any) error {
		return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrDanglingReference)
	}

	inOrder := make(map[NodeID]bool, len(n.order))
	seenHidden := false
	for _, id := range n.order {
		if !n.hasNode(id) {
			return fail("order lists dead node %d", id)
		}
		if inOrder[id] {
			return fail("order lists node %d twice", id)
		}
		inOrder[id] = true
		if n.nodes[id].kind == Input {
			if seenHidden {
				return fail("input %d follows a hidden node", id)
			}
		} else {
			seenHidden = true
		}
	}

	for i := range n.nodes {
		id := NodeID(i)
		nd := &n.nodes[i]
		if !nd.alive {
			continue
		}
		if !inOrder[id] {
			return fail("node %d missing from order", id)
		}
		if nd.kind == Input && (len(nd.inbound) > 0 || nd.self != NoConn) {
			return fail("input %d has inbound connections", id)
		}
		for list, ids := range map[string][]ConnID{"inbound": nd.inbound, "outbound": nd.outbound, "gated": nd.gated} {
			if cid, dup := firstDuplicate(ids); dup {
				return fail("node %d %s lists connection %d twice", id, list, cid)
			}
		}
		for _, cid := range nd.inbound {
			if !n.hasConn(cid) || n.conns[cid].to != id || n.conns[cid].from == id {
				return fail("node %d inbound lists connection %d", id, cid)
			}
		}
		for _, cid := range nd.outbound {
			if !n.hasConn(cid) || n.conns[cid].from != id || n.conns[cid].to == id {
				return fail("node %d outbound lists connection %d", id, cid)
			}
		}
		for _, cid := range nd.gated {
			if !n.hasConn(cid) || n.conns[cid].gater != id {
				return fail("node %d gated lists connection %d", id, cid)
			}
		}
		if nd.self != NoConn {
			if !n.hasConn(nd.self) || n.conns[nd.self].from != id || n.conns[nd.self].to != id {
				return fail("node %d self slot holds connection %d", id, nd.self)
			}
		}
	}

	refs := make([]int, len(n.weights))
	for i := range n.conns {
		cid := ConnID(i)
		c := &n.conns[i]
		if !c.alive {
			continue
		}
		if !n.hasNode(c.from) || !n.hasNode(c.to) {
			return fail("connection %d joins dead nodes %d -> %d", cid, c.from, c.to)
		}
		if n.nodes[c.to].kind == Input {
			return fail("connection %d targets input %d", cid, c.to)
		}
		if c.from == c.to {
			if n.nodes[c.from].self != cid {
				return fail("self-connection %d not in node %d's self slot", cid, c.from)
			}
		} else if !slices.Contains(n.nodes[c.from].outbound, cid) || !slices.Contains(n.nodes[c.to].inbound, cid) {
			return fail("connection %d not linked from its endpoints", cid)
		}
		if c.gater != NoNode {
			if !n.hasNode(c.gater) || !slices.Contains(n.nodes[c.gater].gated, cid) {
				return fail("connection %d gater %d does not list it", cid, c.gater)
			}
		}
		if c.weight < 0 || int(c.weight) >= len(n.weights) {
			return fail("connection %d weight cell %d", cid, c.weight)
		}
		refs[c.weight]++
	}
	for i, cell := range n.weights {
		if cell.refs != refs[i] {
			return fail("weight %d counts %d references, found %d", i, cell.refs, refs[i])
		}
	}
	return nil
}
