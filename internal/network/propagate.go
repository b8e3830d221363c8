package network

import "fmt"

// Propagate runs the backward pass for the most recent Activate call and
// returns the mean squared error of the outputs against targets.
//
// Output nodes are processed first in reverse activation order, taking
// targets positionally; every other computing node follows in reverse
// activation order. With update set, accumulated deltas plus momentum are
// applied to weights and biases. Without it, deltas keep accumulating until a
// later call with update set flushes them.
func (n *Network) Propagate(targets []float64, rate, momentum float64, update bool) (float64, error) {
	outs := n.Outputs()
	if len(targets) != len(outs) {
		return 0, fmt.Errorf("got %d targets, network has %d outputs: %w", len(targets), len(outs), ErrTargetSizeMismatch)
	}
	if !n.activated {
		return 0, ErrNotActivated
	}
	if len(outs) == 0 {
		return 0, nil
	}

	var sum float64
	for i := len(outs) - 1; i >= 0; i-- {
		nd := n.node(outs[i])
		d := targets[i] - nd.activation
		sum += d * d
		n.backward(outs[i], rate, momentum, update, targets[i], true)
	}
	for i := len(n.order) - 1; i >= 0; i-- {
		id := n.order[i]
		nd := &n.nodes[id]
		if nd.kind == Input || nd.output {
			continue
		}
		n.backward(id, rate, momentum, update, 0, false)
	}
	return sum / float64(len(outs)), nil
}

func (n *Network) backward(id NodeID, rate, momentum float64, update bool, target float64, isOutput bool) {
	nd := n.node(id)
	if nd.kind == Input {
		return
	}
	if !nd.activated {
		panic(fmt.Errorf("node %d: backward without forward: %w", id, ErrNotActivated))
	}

	if isOutput {
		nd.responsibility = (target - nd.activation) * nd.derivative
		nd.projected = nd.responsibility
		nd.gatedErr = 0
	} else {
		var projected float64
		for _, cid := range nd.outbound {
			c := n.conn(cid)
			projected += n.node(c.to).responsibility * n.weight(c) * c.gain
		}
		nd.projected = nd.derivative * projected

		var gated float64
		targets, influences := n.gatedInfluence(id, false)
		for k, t := range targets {
			gated += n.node(t).responsibility * influences[k]
		}
		nd.gatedErr = nd.derivative * gated
		nd.responsibility = nd.projected + nd.gatedErr
	}

	if nd.constant {
		return
	}

	for _, cid := range nd.inbound {
		c := n.conn(cid)
		gradient := nd.projected * c.eligibility
		for _, x := range c.xtrace {
			gradient += n.node(x.node).responsibility * x.value
		}

		c.totalDelta += rate * gradient * nd.mask
		if update {
			c.totalDelta += momentum * c.prevDelta
			n.weights[c.weight].value += c.totalDelta
			c.prevDelta = c.totalDelta
			c.totalDelta = 0
		}
	}

	nd.totalDeltaBias += rate * nd.responsibility
	if update {
		nd.totalDeltaBias += momentum * nd.prevDeltaBias
		nd.bias += nd.totalDeltaBias
		nd.prevDeltaBias = nd.totalDeltaBias
		nd.totalDeltaBias = 0
	}
}
