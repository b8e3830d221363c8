// Package squash defines the activation functions available to network nodes.
// Every kind is total: Apply and Derivative never fail, whatever the input.
package squash

import (
	"fmt"
	"math"
	"strings"
)

// Kind identifies an activation function.
type Kind int

const (
	Sigmoid Kind = iota
	Tanh
	Identity
	Relu
	LeakyRelu
	Step
	Softsign
	Sin
	Gaussian
	BentIdentity
	Bipolar
	BipolarSigmoid
	HardTanh
	Absolute
	Inverse
	Selu
)

// SELU constants (Klambauer et al., 2017).
const (
	seluAlpha = 1.6732632423543772848170429916717
	seluScale = 1.0507009873554804934193349852946
)

// leakySlope is the gradient of LeakyRelu for negative inputs.
const leakySlope = 0.01

var names = [...]string{
	Sigmoid:        "sigmoid",
	Tanh:           "tanh",
	Identity:       "identity",
	Relu:           "relu",
	LeakyRelu:      "leaky-relu",
	Step:           "step",
	Softsign:       "softsign",
	Sin:            "sin",
	Gaussian:       "gaussian",
	BentIdentity:   "bent-identity",
	Bipolar:        "bipolar",
	BipolarSigmoid: "bipolar-sigmoid",
	HardTanh:       "hard-tanh",
	Absolute:       "absolute",
	Inverse:        "inverse",
	Selu:           "selu",
}

// All returns every activation kind in declaration order.
func All() []Kind {
	kinds := make([]Kind, len(names))
	for i := range names {
		kinds[i] = Kind(i)
	}
	return kinds
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	return k >= 0 && int(k) < len(names)
}

func (k Kind) String() string {
	if !k.Valid() {
		return fmt.Sprintf("squash(%d)", int(k))
	}
	return names[k]
}

// Parse resolves a kind from its name. Matching ignores case, and
// underscores are accepted in place of hyphens.
func Parse(name string) (Kind, error) {
	n := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "_", "-")
	for i, candidate := range names {
		if candidate == n || strings.ReplaceAll(candidate, "-", "") == n {
			return Kind(i), nil
		}
	}
	return Identity, fmt.Errorf("unknown squash %q", name)
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("invalid squash kind %d", int(k))
	}
	return []byte(names[k]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Apply computes the activation of x.
func Apply(k Kind, x float64) float64 {
	switch k {
	case Sigmoid:
		return 1 / (1 + math.Exp(-x))
	case Tanh:
		return math.Tanh(x)
	case Relu:
		if x > 0 {
			return x
		}
		return 0
	case LeakyRelu:
		if x > 0 {
			return x
		}
		return leakySlope * x
	case Step:
		if x > 0 {
			return 1
		}
		return 0
	case Softsign:
		return x / (1 + math.Abs(x))
	case Sin:
		return math.Sin(x)
	case Gaussian:
		return math.Exp(-x * x)
	case BentIdentity:
		return (math.Sqrt(x*x+1)-1)/2 + x
	case Bipolar:
		if x > 0 {
			return 1
		}
		return -1
	case BipolarSigmoid:
		return 2/(1+math.Exp(-x)) - 1
	case HardTanh:
		return math.Max(-1, math.Min(1, x))
	case Absolute:
		return math.Abs(x)
	case Inverse:
		return 1 - x
	case Selu:
		if x > 0 {
			return seluScale * x
		}
		return seluScale * (seluAlpha*math.Exp(x) - seluAlpha)
	default:
		return x
	}
}

// Derivative computes the slope of k at state, given fwd = Apply(k, state).
// The logistic family is expressed in terms of fwd, the piecewise family in
// terms of state.
func Derivative(k Kind, state, fwd float64) float64 {
	switch k {
	case Sigmoid:
		return fwd * (1 - fwd)
	case Tanh:
		return 1 - fwd*fwd
	case Relu:
		if state > 0 {
			return 1
		}
		return 0
	case LeakyRelu:
		if state > 0 {
			return 1
		}
		return leakySlope
	case Step, Bipolar:
		return 0
	case Softsign:
		d := 1 + math.Abs(state)
		return 1 / (d * d)
	case Sin:
		return math.Cos(state)
	case Gaussian:
		return -2 * state * fwd
	case BentIdentity:
		return state/(2*math.Sqrt(state*state+1)) + 1
	case BipolarSigmoid:
		return (1 + fwd) * (1 - fwd) / 2
	case HardTanh:
		if state > -1 && state < 1 {
			return 1
		}
		return 0
	case Absolute:
		if state < 0 {
			return -1
		}
		return 1
	case Inverse:
		return -1
	case Selu:
		if state > 0 {
			return seluScale
		}
		return fwd + seluAlpha*seluScale
	default:
		return 1
	}
}
