package toolbox

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/chewxy/math32"
)

// The .aic format stores every value, header fields included, as a
// little-endian float32:
//
//	[layer count][input neurons][output neurons][description length]
//	[description length x one byte per float]
//	for each of the (layer count - 1) layers:
//	    [activation][rows][cols][rows*cols weights, row-major][cols biases]
//
// rows and cols are the weight matrix shape (InputSize, OutputSize).

// FileExtension is required by SaveFile.
const FileExtension = ".aic"

// maxDimension bounds every size read from a file, and maxElements bounds the
// weight count of a single layer.  Both are checked before allocating.
const (
	maxDimension = 1 << 16
	maxElements  = 1 << 24
)

// Save writes net to w in .aic format.
func Save(w io.Writer, net *Network) error {
	bw := bufio.NewWriter(w)

	desc := net.Description()
	header := []float32{
		float32(net.NumLayers),
		float32(net.NumInputs),
		float32(net.NumOutputs),
		float32(len(desc)),
	}
	if err := binary.Write(bw, binary.LittleEndian, header); err != nil {
		return fmt.Errorf("%w: while writing header: %w", ErrEncode, err)
	}

	descFloats := make([]float32, len(desc))
	for i := 0; i < len(desc); i++ {
		descFloats[i] = float32(desc[i])
	}
	if err := binary.Write(bw, binary.LittleEndian, descFloats); err != nil {
		return fmt.Errorf("%w: while writing description: %w", ErrEncode, err)
	}

	for i, lay := range net.Layers.All() {
		if err := writeLayer(bw, lay); err != nil {
			return fmt.Errorf("%w: while writing layer %d: %w", ErrEncode, i+1, err)
		}
	}

	if err := bw.Flush(); err != nil {
		return fmt.Errorf("%w: while flushing: %w", ErrEncode, err)
	}
	return nil
}

func writeLayer(w io.Writer, lay *Layer) error {
	shape := []float32{
		float32(lay.Activation),
		float32(lay.W.Rows),
		float32(lay.W.Cols),
	}
	if err := binary.Write(w, binary.LittleEndian, shape); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, lay.W.V); err != nil {
		return err
	}
	return binary.Write(w, binary.LittleEndian, lay.B.V)
}

// Load reads a network in .aic format.  Any malformed or truncated input
// yields an error wrapping ErrDecode and no network.
//
// Load reads exactly the bytes of one network and nothing after it.
func Load(r io.Reader) (*Network, error) {
	header := make([]float32, 4)
	if err := readFloats(r, header); err != nil {
		return nil, fmt.Errorf("%w: while reading header: %w", ErrDecode, err)
	}

	numLayers, err := headerInt("layer count", header[0])
	if err != nil {
		return nil, err
	}
	numInputs, err := headerInt("input neuron count", header[1])
	if err != nil {
		return nil, err
	}
	numOutputs, err := headerInt("output neuron count", header[2])
	if err != nil {
		return nil, err
	}
	descLen, err := headerInt("description length", header[3])
	if err != nil {
		return nil, err
	}
	if numLayers < 2 {
		return nil, fmt.Errorf("%w: layer count %d is below 2", ErrDecode, numLayers)
	}
	if descLen > MaxDescription-1 {
		return nil, fmt.Errorf("%w: description length %d exceeds %d", ErrDecode, descLen, MaxDescription-1)
	}

	descFloats := make([]float32, descLen)
	if err := readFloats(r, descFloats); err != nil {
		return nil, fmt.Errorf("%w: while reading description: %w", ErrDecode, err)
	}
	desc := make([]byte, descLen)
	for i, f := range descFloats {
		if f < 0 || f > 255 || f != math32.Trunc(f) {
			return nil, fmt.Errorf("%w: description byte %d is %v", ErrDecode, i, f)
		}
		desc[i] = byte(f)
	}

	layers := make([]*Layer, 0, numLayers-1)
	for i := 1; i < numLayers; i++ {
		lay, err := readLayer(r)
		if err != nil {
			return nil, fmt.Errorf("%w: while reading layer %d: %w", ErrDecode, i, err)
		}
		layers = append(layers, lay)
	}

	if got := layers[0].InputSize(); got != numInputs {
		return nil, fmt.Errorf("%w: first layer takes %d inputs, header says %d", ErrDecode, got, numInputs)
	}
	if got := layers[len(layers)-1].OutputSize(); got != numOutputs {
		return nil, fmt.Errorf("%w: last layer produces %d outputs, header says %d", ErrDecode, got, numOutputs)
	}

	net, err := NewNetworkFromLayers(layers, string(desc))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	return net, nil
}

func readLayer(r io.Reader) (*Layer, error) {
	shape := make([]float32, 3)
	if err := readFloats(r, shape); err != nil {
		return nil, err
	}

	act, err := headerInt("activation", shape[0])
	if err != nil {
		return nil, err
	}
	if act > 255 || !Activation(act).Valid() {
		return nil, fmt.Errorf("%w: unknown activation %d", ErrDecode, act)
	}
	rows, err := headerInt("weight rows", shape[1])
	if err != nil {
		return nil, err
	}
	cols, err := headerInt("weight columns", shape[2])
	if err != nil {
		return nil, err
	}
	if rows == 0 || cols == 0 {
		return nil, fmt.Errorf("%w: empty %dx%d weight matrix", ErrDecode, rows, cols)
	}
	if rows*cols > maxElements {
		return nil, fmt.Errorf("%w: %dx%d weight matrix exceeds %d elements", ErrDecode, rows, cols, maxElements)
	}

	lay := &Layer{
		Activation: Activation(act),
		W:          NewMatrix(rows, cols),
		B:          NewMatrix(1, cols),
	}
	if err := readFloats(r, lay.W.V); err != nil {
		return nil, fmt.Errorf("while reading weights: %w", err)
	}
	if err := readFloats(r, lay.B.V); err != nil {
		return nil, fmt.Errorf("while reading biases: %w", err)
	}
	return lay, nil
}

// readFloats fills dst completely or fails.  An empty stream is reported as
// io.ErrUnexpectedEOF like any other short read.
func readFloats(r io.Reader, dst []float32) error {
	if len(dst) == 0 {
		return nil
	}
	err := binary.Read(r, binary.LittleEndian, dst)
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}

func headerInt(name string, v float32) (int, error) {
	if v < 0 || v > maxDimension || v != math32.Trunc(v) {
		return 0, fmt.Errorf("%w: %s is %v", ErrDecode, name, v)
	}
	return int(v), nil
}

// SaveFile writes net to path, which must end in ".aic".  The network is
// written to a temporary file that replaces path only once it is complete, so
// a failed save leaves any existing file untouched.
func SaveFile(path string, net *Network) (retErr error) {
	if filepath.Ext(path) != FileExtension {
		return fmt.Errorf("%w: %q does not have the %s extension", ErrEncode, path, FileExtension)
	}

	f, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp*")
	if err != nil {
		return fmt.Errorf("%w: while creating temporary file: %w", ErrEncode, err)
	}
	defer func() {
		if retErr != nil {
			f.Close()
			os.Remove(f.Name())
		}
	}()

	if err := Save(f, net); err != nil {
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: while closing %s: %w", ErrEncode, f.Name(), err)
	}
	if err := os.Rename(f.Name(), path); err != nil {
		return fmt.Errorf("%w: while renaming into place: %w", ErrEncode, err)
	}
	return nil
}

// LoadFile reads the network stored at path.
func LoadFile(path string) (*Network, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("while opening network file: %w", err)
	}
	defer f.Close()

	net, err := Load(bufio.NewReader(f))
	if err != nil {
		return nil, fmt.Errorf("while loading %s: %w", path, err)
	}
	return net, nil
}
