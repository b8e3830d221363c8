// Package architect builds networks with well-known topologies on top of
// the network package's construction operators.
package architect

import (
	"errors"
	"fmt"
	"math/rand"
	"strings"

	"github.com/nvandessel/evonet/internal/constants"
	"github.com/nvandessel/evonet/internal/network"
	"github.com/nvandessel/evonet/internal/squash"
)

// ErrInvalidArchitecture is returned for impossible layer layouts.
var ErrInvalidArchitecture = errors.New("invalid architecture")

// Architecture type names accepted by Build.
const (
	TypePerceptron = "perceptron"
	TypeLSTM       = "lstm"
	TypeNARX       = "narx"
	TypeLiquid     = "liquid"
)

// Types lists the architecture names Build understands.
func Types() []string {
	return []string{TypePerceptron, TypeLSTM, TypeNARX, TypeLiquid}
}

// Spec describes a network to build.
type Spec struct {
	Type    string `json:"type" yaml:"type"`
	Inputs  int    `json:"inputs" yaml:"inputs"`
	Hidden  []int  `json:"hidden,omitempty" yaml:"hidden,omitempty"`
	Outputs int    `json:"outputs" yaml:"outputs"`

	// NARX memory depths.
	InputMemory  int `json:"input_memory,omitempty" yaml:"input_memory,omitempty"`
	OutputMemory int `json:"output_memory,omitempty" yaml:"output_memory,omitempty"`

	// Liquid bounds.
	MaxHidden    int `json:"max_hidden,omitempty" yaml:"max_hidden,omitempty"`
	MaxMutations int `json:"max_mutations,omitempty" yaml:"max_mutations,omitempty"`
}

// String renders the layout compactly, e.g. "lstm 2-[4 2]-1".
func (s Spec) String() string {
	return fmt.Sprintf("%s %d-%v-%d", s.Type, s.Inputs, s.Hidden, s.Outputs)
}

// Build dispatches on s.Type.
func Build(s Spec, opts ...network.Option) (*network.Network, error) {
	switch strings.ToLower(s.Type) {
	case TypePerceptron, "mlp":
		sizes := append([]int{s.Inputs}, s.Hidden...)
		return Perceptron(append(sizes, s.Outputs), opts...)
	case TypeLSTM:
		return LSTM(s.Inputs, s.Hidden, s.Outputs, opts...)
	case TypeNARX:
		return NARX(s.Inputs, s.Hidden, s.Outputs, s.InputMemory, s.OutputMemory, opts...)
	case TypeLiquid:
		return Liquid(s.Inputs, s.MaxHidden, s.Outputs, s.MaxMutations, opts...)
	default:
		return nil, fmt.Errorf("type %q: %w", s.Type, ErrInvalidArchitecture)
	}
}

// newNetwork prepends the builder's default weight distribution so callers
// can still override it.
func newNetwork(init func(*rand.Rand) float64, opts []network.Option) *network.Network {
	return network.New(append([]network.Option{network.WithWeightInit(init)}, opts...)...)
}

func randomBias(rng *rand.Rand) float64 {
	return (rng.Float64()*2 - 1) * constants.HiddenBiasRange
}

func addInputs(n *network.Network, count int) []network.NodeID {
	ids := make([]network.NodeID, count)
	for i := range ids {
		ids[i] = n.AddInput()
	}
	return ids
}

func addGroup(n *network.Network, count int, spec func() network.HiddenSpec) []network.NodeID {
	ids := make([]network.NodeID, count)
	for i := range ids {
		ids[i] = n.AddHidden(spec())
	}
	return ids
}

// sigmoidNode returns a spec factory for sigmoid nodes with random biases.
func sigmoidNode(n *network.Network, output bool) func() network.HiddenSpec {
	return func() network.HiddenSpec {
		return network.HiddenSpec{Squash: squash.Sigmoid, Bias: randomBias(n.Rand()), Output: output}
	}
}

func fixedBias(bias float64) func() network.HiddenSpec {
	return func() network.HiddenSpec {
		return network.HiddenSpec{Squash: squash.Sigmoid, Bias: bias}
	}
}

func positive(name string, v int) error {
	if v < 1 {
		return fmt.Errorf("%s = %d, need at least 1: %w", name, v, ErrInvalidArchitecture)
	}
	return nil
}

// Perceptron builds a layered feed-forward network. sizes lists the input
// size, any hidden layer sizes and the output size.
func Perceptron(sizes []int, opts ...network.Option) (*network.Network, error) {
	if len(sizes) < 2 {
		return nil, fmt.Errorf("perceptron needs input and output sizes, got %v: %w", sizes, ErrInvalidArchitecture)
	}
	for i, s := range sizes {
		if err := positive(fmt.Sprintf("layer %d", i), s); err != nil {
			return nil, err
		}
	}

	n := newNetwork(network.NormalInit(1), opts)
	prev := addInputs(n, sizes[0])
	for i, size := range sizes[1:] {
		layer := addGroup(n, size, sigmoidNode(n, i == len(sizes)-2))
		if _, err := n.ConnectGroups(prev, layer, network.AllToAll); err != nil {
			return nil, err
		}
		prev = layer
	}
	return n, nil
}

// LSTM builds a long short-term memory network. Each hidden layer holds
// input gates, forget gates, memory cells, output gates and an output block
// (the network outputs for the last layer). Memory cells keep a self-loop
// gated by the forget gate; their inputs are gated by the input gate and
// their outputs by the output gate. Deeper layers also read the network
// inputs, and the inputs project directly onto the outputs.
func LSTM(inputs int, hidden []int, outputs int, opts ...network.Option) (*network.Network, error) {
	if err := positive("inputs", inputs); err != nil {
		return nil, err
	}
	if err := positive("outputs", outputs); err != nil {
		return nil, err
	}
	if len(hidden) == 0 {
		return nil, fmt.Errorf("lstm needs a hidden layer: %w", ErrInvalidArchitecture)
	}
	for i, s := range hidden {
		if err := positive(fmt.Sprintf("hidden layer %d", i), s); err != nil {
			return nil, err
		}
	}

	n := newNetwork(network.NormalInit(1), opts)
	inputNodes := addInputs(n, inputs)
	prev := inputNodes
	var outputNodes []network.NodeID

	for i, size := range hidden {
		inputGate := addGroup(n, size, fixedBias(constants.GateBias))
		forgetGate := addGroup(n, size, fixedBias(constants.GateBias))
		memoryCell := addGroup(n, size, sigmoidNode(n, false))
		outputGate := addGroup(n, size, fixedBias(constants.GateBias))

		var block []network.NodeID
		if i == len(hidden)-1 {
			block = addGroup(n, outputs, sigmoidNode(n, true))
			outputNodes = block
		} else {
			block = addGroup(n, size, sigmoidNode(n, false))
		}

		inputConn, err := n.ConnectGroups(prev, memoryCell, network.AllToAll)
		if err != nil {
			return nil, err
		}
		for _, gates := range [][]network.NodeID{inputGate, outputGate, forgetGate} {
			if _, err := n.ConnectGroups(prev, gates, network.AllToAll); err != nil {
				return nil, err
			}
		}
		for _, gates := range [][]network.NodeID{inputGate, forgetGate, outputGate} {
			if _, err := n.ConnectGroups(memoryCell, gates, network.AllToAll); err != nil {
				return nil, err
			}
		}
		forgetConn, err := n.ConnectGroups(memoryCell, memoryCell, network.OneToOne)
		if err != nil {
			return nil, err
		}
		outputConn, err := n.ConnectGroups(memoryCell, block, network.AllToAll)
		if err != nil {
			return nil, err
		}

		if err := n.GateGroups(inputGate, inputConn, network.GateInput); err != nil {
			return nil, err
		}
		if err := n.GateGroups(forgetGate, forgetConn, network.GateToSelf); err != nil {
			return nil, err
		}
		if err := n.GateGroups(outputGate, outputConn, network.GateOutput); err != nil {
			return nil, err
		}

		if i > 0 {
			cellConn, err := n.ConnectGroups(inputNodes, memoryCell, network.AllToAll)
			if err != nil {
				return nil, err
			}
			if err := n.GateGroups(inputGate, cellConn, network.GateInput); err != nil {
				return nil, err
			}
		}
		prev = block
	}

	if _, err := n.ConnectGroups(inputNodes, outputNodes, network.AllToAll); err != nil {
		return nil, err
	}
	return n, nil
}

// NARX builds a nonlinear autoregressive network with exogenous inputs.
// Shift registers of constant identity nodes remember the last inputMemory
// inputs and outputMemory outputs and feed them to the first hidden layer.
// Register links have a fixed weight of 1.
func NARX(inputs int, hidden []int, outputs, inputMemory, outputMemory int, opts ...network.Option) (*network.Network, error) {
	if err := positive("inputs", inputs); err != nil {
		return nil, err
	}
	if err := positive("outputs", outputs); err != nil {
		return nil, err
	}
	if len(hidden) == 0 {
		return nil, fmt.Errorf("narx needs a hidden layer: %w", ErrInvalidArchitecture)
	}
	for i, s := range hidden {
		if err := positive(fmt.Sprintf("hidden layer %d", i), s); err != nil {
			return nil, err
		}
	}
	if inputMemory < 1 || outputMemory < 1 {
		return nil, fmt.Errorf("narx memory %d/%d, need at least 1: %w", inputMemory, outputMemory, ErrInvalidArchitecture)
	}

	n := newNetwork(network.NormalInit(1), opts)
	memory := func() network.HiddenSpec {
		return network.HiddenSpec{Squash: squash.Identity, Constant: true}
	}
	unit := func(conns []network.ConnID) error {
		for _, c := range conns {
			if err := n.SetWeight(c, 1); err != nil {
				return err
			}
		}
		return nil
	}

	inputNodes := addInputs(n, inputs)

	// Registers are laid out newest-last so each stage reads its
	// predecessor's value from the previous step.
	outputMem := make([][]network.NodeID, outputMemory)
	for i := outputMemory - 1; i >= 0; i-- {
		outputMem[i] = addGroup(n, outputs, memory)
	}
	for i := 1; i < outputMemory; i++ {
		conns, err := n.ConnectGroups(outputMem[i-1], outputMem[i], network.OneToOne)
		if err != nil {
			return nil, err
		}
		if err := unit(conns); err != nil {
			return nil, err
		}
	}

	layers := make([][]network.NodeID, len(hidden))
	prev := inputNodes
	for i, size := range hidden {
		layers[i] = addGroup(n, size, sigmoidNode(n, false))
		if _, err := n.ConnectGroups(prev, layers[i], network.AllToAll); err != nil {
			return nil, err
		}
		prev = layers[i]
	}

	inputMem := make([][]network.NodeID, inputMemory)
	for i := inputMemory - 1; i >= 0; i-- {
		inputMem[i] = addGroup(n, inputs, memory)
	}
	for i := 1; i < inputMemory; i++ {
		conns, err := n.ConnectGroups(inputMem[i-1], inputMem[i], network.OneToOne)
		if err != nil {
			return nil, err
		}
		if err := unit(conns); err != nil {
			return nil, err
		}
	}

	outputNodes := addGroup(n, outputs, sigmoidNode(n, true))
	if _, err := n.ConnectGroups(prev, outputNodes, network.AllToAll); err != nil {
		return nil, err
	}

	feed, err := n.ConnectGroups(inputNodes, inputMem[0], network.OneToOne)
	if err != nil {
		return nil, err
	}
	if err := unit(feed); err != nil {
		return nil, err
	}
	for _, group := range inputMem {
		if _, err := n.ConnectGroups(group, layers[0], network.AllToAll); err != nil {
			return nil, err
		}
	}

	feed, err = n.ConnectGroups(outputNodes, outputMem[0], network.OneToOne)
	if err != nil {
		return nil, err
	}
	if err := unit(feed); err != nil {
		return nil, err
	}
	for _, group := range outputMem {
		if _, err := n.ConnectGroups(group, layers[0], network.AllToAll); err != nil {
			return nil, err
		}
	}
	return n, nil
}

// Liquid builds a randomly grown network: inputs project onto outputs, a
// random number (below maxHidden) of unconnected hidden nodes is added, and
// a random number (below maxMutations) of random mutations is applied.
func Liquid(inputs, maxHidden, outputs, maxMutations int, opts ...network.Option) (*network.Network, error) {
	if err := positive("inputs", inputs); err != nil {
		return nil, err
	}
	if err := positive("outputs", outputs); err != nil {
		return nil, err
	}
	if maxHidden < 0 || maxMutations < 0 {
		return nil, fmt.Errorf("liquid bounds %d/%d: %w", maxHidden, maxMutations, ErrInvalidArchitecture)
	}

	n := newNetwork(network.UniformInit(0.1), opts)
	rng := n.Rand()
	inputNodes := addInputs(n, inputs)
	if maxHidden > 0 {
		addGroup(n, rng.Intn(maxHidden), sigmoidNode(n, false))
	}
	outputNodes := addGroup(n, outputs, sigmoidNode(n, true))
	if _, err := n.ConnectGroups(inputNodes, outputNodes, network.AllToAll); err != nil {
		return nil, err
	}

	if maxMutations > 0 {
		for i := rng.Intn(maxMutations); i > 0; i-- {
			if _, _, err := n.MutateRandom(nil); err != nil {
				return nil, err
			}
		}
	}
	return n, nil
}
