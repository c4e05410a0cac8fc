package toolbox

import (
	"fmt"
	"math/rand/v2"
	"unicode/utf8"
)

// MaxDescription bounds the stored description, terminator included, so at
// most MaxDescription-1 bytes are kept.
const MaxDescription = 256

// Network is a strictly sequential stack of dense layers.  The input layer is
// implicit: it contributes NumInputs but has no Layer.
type Network struct {
	Layers *Seq[*Layer]

	NumLayers  int // Including the input layer.
	NumInputs  int
	NumOutputs int

	description string
}

// Trace holds one forward pass: the input followed by each layer's output.
type Trace = Seq[*Matrix]

// NewNetwork builds a network with randomly initialized layers.
//
// layerSizes lists the neuron count of every layer, input layer first.
// activations has one entry per non-input layer.
func NewNetwork(layerSizes []int, activations []Activation, description string, src rand.Source) (*Network, error) {
	if len(layerSizes) < 2 {
		return nil, fmt.Errorf("%w: need at least 2 layers, got %d", ErrConstruction, len(layerSizes))
	}
	if len(activations) != len(layerSizes)-1 {
		return nil, fmt.Errorf("%w: got %d activations for %d layers, want %d", ErrConstruction, len(activations), len(layerSizes), len(layerSizes)-1)
	}
	for i, s := range layerSizes {
		if s <= 0 {
			return nil, fmt.Errorf("%w: layer %d has %d neurons", ErrConstruction, i, s)
		}
	}
	for i, a := range activations {
		if !a.Valid() {
			return nil, fmt.Errorf("%w: layer %d has unknown activation %d", ErrConstruction, i+1, uint8(a))
		}
	}

	layers := make([]*Layer, 0, len(layerSizes)-1)
	for i := 1; i < len(layerSizes); i++ {
		layers = append(layers, NewLayer(activations[i-1], layerSizes[i-1], layerSizes[i], src))
	}
	return newNetwork(layers, description), nil
}

// NewNetworkFromLayers builds a network from externally supplied layers.  The
// layers are copied.
func NewNetworkFromLayers(layers []*Layer, description string) (*Network, error) {
	if len(layers) < 1 {
		return nil, fmt.Errorf("%w: need at least 2 layers, got %d", ErrConstruction, len(layers)+1)
	}
	for i, l := range layers {
		if err := l.Validate(); err != nil {
			return nil, fmt.Errorf("%w: layer %d: %v", ErrConstruction, i+1, err)
		}
		if i > 0 && layers[i-1].OutputSize() != l.InputSize() {
			return nil, fmt.Errorf("%w: layer %d outputs %d values but layer %d takes %d", ErrConstruction, i, layers[i-1].OutputSize(), i+1, l.InputSize())
		}
	}

	copied := make([]*Layer, len(layers))
	for i, l := range layers {
		copied[i] = l.Clone()
	}
	return newNetwork(copied, description), nil
}

func newNetwork(layers []*Layer, description string) *Network {
	net := &Network{
		Layers:      NewSeq[*Layer](len(layers)),
		NumLayers:   len(layers) + 1,
		NumInputs:   layers[0].InputSize(),
		NumOutputs:  layers[len(layers)-1].OutputSize(),
		description: truncateDescription(description),
	}
	for _, l := range layers {
		net.Layers.Adopt(l)
	}
	return net
}

// truncateDescription cuts desc to at most MaxDescription-1 bytes without
// splitting a UTF-8 sequence.
func truncateDescription(desc string) string {
	if len(desc) <= MaxDescription-1 {
		return desc
	}
	cut := MaxDescription - 1
	for cut > 0 && !utf8.RuneStart(desc[cut]) {
		cut--
	}
	return desc[:cut]
}

func (net *Network) Description() string {
	return net.description
}

// SetDescription replaces the description, truncating it to fit.
func (net *Network) SetDescription(desc string) {
	net.description = truncateDescription(desc)
}

// LayerSizes returns the neuron count of every layer, input layer first.
func (net *Network) LayerSizes() []int {
	sizes := make([]int, 0, net.NumLayers)
	sizes = append(sizes, net.NumInputs)
	for _, l := range net.Layers.All() {
		sizes = append(sizes, l.OutputSize())
	}
	return sizes
}

// Activations returns the activation of every non-input layer.
func (net *Network) Activations() []Activation {
	acts := make([]Activation, 0, net.Layers.Len())
	for _, l := range net.Layers.All() {
		acts = append(acts, l.Activation)
	}
	return acts
}

func (net *Network) Clone() *Network {
	layers := make([]*Layer, 0, net.Layers.Len())
	for i := 0; i < net.Layers.Len(); i++ {
		layers = append(layers, net.Layers.Get(i))
	}
	return newNetwork(layers, net.description)
}

// Forward runs x through every layer and returns the activation trace:
// trace[0] is a copy of x and trace[i] is the output of layer i.
//
// x is the input.  Shape (batchSize, NumInputs)
func (net *Network) Forward(x *Matrix) *Trace {
	trace := NewSeq[*Matrix](net.NumLayers)
	trace.Append(x)
	for i, l := range net.Layers.All() {
		trace.Adopt(l.Apply(trace.At(i)))
	}
	return trace
}

// Predict returns the network output for x.  Shape (x.Rows, NumOutputs)
func Predict(net *Network, x *Matrix) (*Matrix, error) {
	if x.Cols != net.NumInputs {
		return nil, fmt.Errorf("%w: input has %d columns, network takes %d", ErrDimensionMismatch, x.Cols, net.NumInputs)
	}
	trace := net.Forward(x)
	out := trace.Last()
	trace.Release()
	return out, nil
}
