package toolbox

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"slices"
)

// SafeTensors export lets other tooling read trained weights.  Layer l's
// tensors are "layers.l.weights", shape (InputSize, OutputSize), and
// "layers.l.biases", shape (OutputSize).  Activations and the description
// travel in the header's __metadata__ section.

const safeTensorsMetadataKey = "__metadata__"

type SafeTensorInfo struct {
	DType       string `json:"dtype"`
	Shape       []int  `json:"shape"`
	DataOffsets []int  `json:"data_offsets"`
}

func weightKey(l int) string     { return fmt.Sprintf("layers.%d.weights", l) }
func biasKey(l int) string       { return fmt.Sprintf("layers.%d.biases", l) }
func activationKey(l int) string { return fmt.Sprintf("layers.%d.activation", l) }

// WriteSafeTensors writes the weights and biases of net in safetensors format.
func WriteSafeTensors(w io.Writer, net *Network) error {
	header := map[string]any{}
	metadata := map[string]string{
		"description": net.Description(),
	}

	type entry struct {
		key    string
		values []float32
	}
	entries := []entry{}
	dataOffset := 0
	add := func(key string, values []float32, shape []int) {
		begin := dataOffset
		dataOffset += len(values) * 4
		header[key] = SafeTensorInfo{
			DType:       "F32",
			Shape:       shape,
			DataOffsets: []int{begin, dataOffset},
		}
		entries = append(entries, entry{key, values})
	}

	for l, lay := range net.Layers.All() {
		add(weightKey(l), lay.W.V, []int{lay.W.Rows, lay.W.Cols})
		add(biasKey(l), lay.B.V, []int{lay.B.Cols})
		metadata[activationKey(l)] = lay.Activation.String()
	}
	header[safeTensorsMetadataKey] = metadata

	headerBytes, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("while marshaling header: %w", err)
	}

	if err := binary.Write(w, binary.LittleEndian, uint64(len(headerBytes))); err != nil {
		return fmt.Errorf("while writing header length: %w", err)
	}

	if _, err := w.Write(headerBytes); err != nil {
		return fmt.Errorf("while writing header: %w", err)
	}

	for _, e := range entries {
		if err := binary.Write(w, binary.LittleEndian, e.values); err != nil {
			return fmt.Errorf("while writing %s values: %w", e.key, err)
		}
	}

	return nil
}

// Bounds on what ReadSafeTensors will allocate: the JSON header in bytes, a
// single tensor in elements, and the whole data section in elements.
const (
	maxSafeTensorsHeader   = 1 << 24
	maxSafeTensorsElements = 1 << 24
	maxSafeTensorsData     = 1 << 26
)

// ReadSafeTensors rebuilds a network from a file written by WriteSafeTensors.
func ReadSafeTensors(r io.Reader) (*Network, error) {
	var headerLen uint64
	if err := binary.Read(r, binary.LittleEndian, &headerLen); err != nil {
		return nil, fmt.Errorf("while reading header length: %w", err)
	}
	if headerLen > maxSafeTensorsHeader {
		return nil, fmt.Errorf("header length %d is too large", headerLen)
	}

	headerBytes := make([]byte, int(headerLen))
	if _, err := io.ReadFull(r, headerBytes); err != nil {
		return nil, fmt.Errorf("while reading header: %w", err)
	}

	raw := map[string]json.RawMessage{}
	if err := json.Unmarshal(headerBytes, &raw); err != nil {
		return nil, fmt.Errorf("while parsing header: %w", err)
	}

	metadata := map[string]string{}
	if m, ok := raw[safeTensorsMetadataKey]; ok {
		if err := json.Unmarshal(m, &metadata); err != nil {
			return nil, fmt.Errorf("while parsing metadata: %w", err)
		}
		delete(raw, safeTensorsMetadataKey)
	}

	infos := map[string]SafeTensorInfo{}
	dataLen := 0
	for k, v := range raw {
		var info SafeTensorInfo
		if err := json.Unmarshal(v, &info); err != nil {
			return nil, fmt.Errorf("while parsing entry %s: %w", k, err)
		}
		if info.DType != "F32" {
			return nil, fmt.Errorf("unsupported dtype %s", info.DType)
		}
		if len(info.DataOffsets) != 2 || info.DataOffsets[0] < 0 || info.DataOffsets[0]%4 != 0 || info.DataOffsets[1] < info.DataOffsets[0] {
			return nil, fmt.Errorf("bad data offsets %v for %s", info.DataOffsets, k)
		}
		size := 1
		for _, s := range info.Shape {
			if s < 1 {
				return nil, fmt.Errorf("bad shape %v", info.Shape)
			}
			if s > maxSafeTensorsElements/size {
				return nil, fmt.Errorf("shape %v of %s exceeds %d elements", info.Shape, k, maxSafeTensorsElements)
			}
			size *= s
		}
		if info.DataOffsets[1]-info.DataOffsets[0] != size*4 {
			return nil, fmt.Errorf("offsets %v do not match shape %v for %s", info.DataOffsets, info.Shape, k)
		}
		infos[k] = info
		dataLen = max(dataLen, info.DataOffsets[1])
	}

	if dataLen/4 > maxSafeTensorsData {
		return nil, fmt.Errorf("tensor data of %d bytes exceeds %d elements", dataLen, maxSafeTensorsData)
	}
	data := make([]float32, dataLen/4)
	if err := binary.Read(r, binary.LittleEndian, data); err != nil {
		return nil, fmt.Errorf("while reading tensor data: %w", err)
	}
	tensor := func(key string) (*Matrix, error) {
		info, ok := infos[key]
		if !ok {
			return nil, fmt.Errorf("no entry for %s", key)
		}
		if len(info.Shape) != 2 {
			return nil, fmt.Errorf("wrong rank for %s; got %v", key, info.Shape)
		}
		m := NewMatrix(info.Shape[0], info.Shape[1])
		copy(m.V, data[info.DataOffsets[0]/4:info.DataOffsets[1]/4])
		return m, nil
	}

	layers := []*Layer{}
	for l := 0; ; l++ {
		if _, ok := infos[weightKey(l)]; !ok {
			break
		}
		w, err := tensor(weightKey(l))
		if err != nil {
			return nil, err
		}
		bInfo, ok := infos[biasKey(l)]
		if !ok {
			return nil, fmt.Errorf("no entry for %s", biasKey(l))
		}
		if !slices.Equal(bInfo.Shape, []int{w.Cols}) {
			return nil, fmt.Errorf("wrong shape for %s; got %v want %v", biasKey(l), bInfo.Shape, []int{w.Cols})
		}
		b := NewMatrix(1, w.Cols)
		copy(b.V, data[bInfo.DataOffsets[0]/4:bInfo.DataOffsets[1]/4])

		act, err := ParseActivation(metadata[activationKey(l)])
		if err != nil {
			return nil, fmt.Errorf("while parsing activation of layer %d: %w", l, err)
		}
		layers = append(layers, &Layer{Activation: act, W: w, B: b})
	}

	return NewNetworkFromLayers(layers, metadata["description"])
}
