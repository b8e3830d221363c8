package network

import (
	"fmt"

	"github.com/nvandessel/evonet/internal/squash"
)

// Activate evaluates the network on inputs and returns the output
// activations in activation order. It records the eligibility traces that a
// following Propagate consumes.
func (n *Network) Activate(inputs []float64) ([]float64, error) {
	return n.activate(inputs, true)
}

// ActivateNoTrace evaluates the network without updating eligibility
// traces. Use it for inference; it does not enable Propagate.
func (n *Network) ActivateNoTrace(inputs []float64) ([]float64, error) {
	return n.activate(inputs, false)
}

func (n *Network) activate(inputs []float64, traced bool) ([]float64, error) {
	ins := n.Inputs()
	if len(inputs) != len(ins) {
		return nil, fmt.Errorf("got %d inputs, network has %d: %w", len(inputs), len(ins), ErrInputSizeMismatch)
	}
	for i, id := range ins {
		n.nodes[id].activation = inputs[i]
	}

	n.pass++
	var out []float64
	for _, id := range n.order {
		nd := &n.nodes[id]
		if nd.kind == Input {
			continue
		}
		n.forward(id, traced)
		if nd.output {
			out = append(out, nd.activation)
		}
	}
	// An untraced pass overwrites the activations a traced one left behind.
	n.activated = traced
	return out, nil
}

// selfParams returns the gain and weight of a node's self-connection, or zeros.
func (n *Network) selfParams(nd *node) (gain, weight float64) {
	if nd.self == NoConn {
		return 0, 0
	}
	sc := n.conn(nd.self)
	return sc.gain, n.weight(sc)
}

func (n *Network) forward(id NodeID, traced bool) {
	nd := n.node(id)
	nd.previous = nd.state

	selfGain, selfWeight := n.selfParams(nd)
	state := nd.bias + selfGain*selfWeight*nd.previous
	for _, cid := range nd.inbound {
		c := n.conn(cid)
		state += c.gain * n.weight(c) * n.node(c.from).activation
	}

	fwd := squash.Apply(nd.squash, state)
	nd.state = state
	nd.activation = nd.mask * fwd
	nd.derivative = squash.Derivative(nd.squash, state, fwd)
	nd.activated = true
	nd.pass = n.pass

	var targets []NodeID
	var influences []float64
	if traced {
		targets, influences = n.gatedInfluence(id, true)
	}
	for _, cid := range nd.gated {
		n.conn(cid).gain = nd.activation
	}
	if !traced {
		return
	}

	for _, cid := range nd.inbound {
		c := n.conn(cid)
		c.eligibility = selfGain*selfWeight*c.eligibility + n.node(c.from).activation*c.gain
		c.xtrace = alignTraces(c.xtrace, targets)
		for k, t := range targets {
			tGain, tWeight := n.selfParams(n.node(t))
			x := &c.xtrace[k]
			x.value = tGain*tWeight*x.value + nd.derivative*c.eligibility*influences[k]
		}
	}
}

// gatedInfluence groups the connections gated by id by destination and
// returns, per destination, the derivative of its state with respect to the
// gain id controls. During a forward pass a destination that has not been
// evaluated yet still holds its prior state in state, not previous.
func (n *Network) gatedInfluence(id NodeID, forward bool) ([]NodeID, []float64) {
	nd := n.node(id)
	if len(nd.gated) == 0 {
		return nil, nil
	}

	targets := n.scratchTargets[:0]
	influences := n.scratchInfluences[:0]
	for _, cid := range nd.gated {
		c := n.conn(cid)
		dst := n.node(c.to)

		var v float64
		if c.from == c.to {
			prior := dst.previous
			if forward && dst.pass != n.pass {
				prior = dst.state
			}
			v = n.weight(c) * prior
		} else {
			v = n.weight(c) * n.node(c.from).activation
		}

		k := -1
		for i, t := range targets {
			if t == c.to {
				k = i
				break
			}
		}
		if k < 0 {
			targets = append(targets, c.to)
			influences = append(influences, v)
		} else {
			influences[k] += v
		}
	}
	n.scratchTargets, n.scratchInfluences = targets, influences
	return targets, influences
}

// alignTraces returns xs reordered to match targets, keeping the values of
// destinations that are still gated and starting new ones at zero.
func alignTraces(xs []trace, targets []NodeID) []trace {
	if len(xs) == len(targets) {
		same := true
		for i := range xs {
			if xs[i].node != targets[i] {
				same = false
				break
			}
		}
		if same {
			return xs
		}
	}
	out := make([]trace, len(targets))
	for i, t := range targets {
		out[i].node = t
		for _, x := range xs {
			if x.node == t {
				out[i].value = x.value
				break
			}
		}
	}
	return out
}
