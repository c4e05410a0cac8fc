package toolbox

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"math/rand/v2"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func checkSameNetwork(t *testing.T, got, want *Network) {
	t.Helper()
	gotShape := []int{got.NumLayers, got.NumInputs, got.NumOutputs}
	wantShape := []int{want.NumLayers, want.NumInputs, want.NumOutputs}
	if diff := cmp.Diff(gotShape, wantShape); diff != "" {
		t.Fatalf("Wrong layer count, inputs or outputs; diff (-got +want)\n%s", diff)
	}
	if got.Description() != want.Description() {
		t.Errorf("Description = %q, want %q", got.Description(), want.Description())
	}
	if diff := cmp.Diff(got.Activations(), want.Activations()); diff != "" {
		t.Errorf("Wrong activations; diff (-got +want)\n%s", diff)
	}
	checkSameWeights(t, got, want)
}

func testNetwork(t *testing.T) *Network {
	t.Helper()
	net, err := NewNetwork([]int{3, 5, 4, 2}, []Activation{ReLU, Tanh, Sigmoid}, "a test network", rand.NewPCG(21, 21))
	if err != nil {
		t.Fatalf("Unexpected error while building network: %v", err)
	}
	return net
}

func saveToBuffer(t *testing.T, net *Network) *bytes.Buffer {
	t.Helper()
	buf := &bytes.Buffer{}
	if err := Save(buf, net); err != nil {
		t.Fatalf("Unexpected error while saving network: %v", err)
	}
	return buf
}

func TestAICRoundTrip(t *testing.T) {
	net := testNetwork(t)

	got, err := Load(saveToBuffer(t, net))
	if err != nil {
		t.Fatalf("Unexpected error while loading network: %v", err)
	}
	checkSameNetwork(t, got, net)

	x := randomMatrix(newTestRand(), 7, 3)
	want, err := Predict(net, x)
	if err != nil {
		t.Fatalf("Unexpected error while predicting: %v", err)
	}
	gotOut, err := Predict(got, x)
	if err != nil {
		t.Fatalf("Unexpected error while predicting with loaded network: %v", err)
	}
	if diff := cmp.Diff(gotOut, want); diff != "" {
		t.Errorf("Loaded network predicts differently; diff (-got +want)\n%s", diff)
	}
}

func TestAICLayout(t *testing.T) {
	net, err := NewNetworkFromLayers([]*Layer{
		{Activation: Sigmoid, W: MatrixFromRows([][]float32{{0.5, -1}}), B: MatrixFromRows([][]float32{{0.25, 2}})},
	}, "hi")
	if err != nil {
		t.Fatalf("Unexpected error while building network: %v", err)
	}

	buf := saveToBuffer(t, net)
	got := make([]float32, buf.Len()/4)
	if err := binary.Read(buf, binary.LittleEndian, got); err != nil {
		t.Fatalf("Unexpected error while decoding floats: %v", err)
	}
	want := []float32{
		2, 1, 2, 2, // layers, inputs, outputs, description length
		'h', 'i',
		1, 1, 2, // sigmoid, 1x2
		0.5, -1,
		0.25, 2,
	}
	if diff := cmp.Diff(got, want); diff != "" {
		t.Errorf("Wrong encoding; diff (-got +want)\n%s", diff)
	}
}

func TestAICEmptyDescription(t *testing.T) {
	net, err := NewNetwork([]int{2, 1}, []Activation{None}, "", rand.NewPCG(1, 1))
	if err != nil {
		t.Fatalf("Unexpected error while building network: %v", err)
	}

	got, err := Load(saveToBuffer(t, net))
	if err != nil {
		t.Fatalf("Unexpected error while loading network: %v", err)
	}
	checkSameNetwork(t, got, net)
}

func TestAICTruncated(t *testing.T) {
	full := saveToBuffer(t, testNetwork(t)).Bytes()

	for _, n := range []int{0, 3, 8, 16, 20, len(full) / 2, len(full) - 4, len(full) - 1} {
		_, err := Load(bytes.NewReader(full[:n]))
		if !errors.Is(err, ErrDecode) || !errors.Is(err, io.ErrUnexpectedEOF) {
			t.Errorf("Load of %d bytes: got error %v, want one wrapping ErrDecode and io.ErrUnexpectedEOF", n, err)
		}
	}
}

func encodeFloats(v ...float32) io.Reader {
	buf := &bytes.Buffer{}
	if err := binary.Write(buf, binary.LittleEndian, v); err != nil {
		panic(err)
	}
	return buf
}

func TestAICMalformed(t *testing.T) {
	testCases := []struct {
		desc string
		data io.Reader
	}{
		{"single layer", encodeFloats(1, 1, 1, 0)},
		{"fractional count", encodeFloats(2.5, 1, 1, 0)},
		{"negative width", encodeFloats(2, -1, 1, 0)},
		{"description too long", encodeFloats(2, 1, 1, MaxDescription)},
		{"description byte out of range", encodeFloats(2, 1, 1, 1, 300)},
		{"unknown activation", encodeFloats(2, 1, 1, 0, 9, 1, 1, 0, 0)},
		{"empty weights", encodeFloats(2, 1, 1, 0, 1, 0, 1, 0)},
		{"header input mismatch", encodeFloats(2, 2, 1, 0, 1, 1, 1, 0, 0)},
		{"header output mismatch", encodeFloats(2, 1, 3, 0, 1, 1, 1, 0, 0)},
		{"layers do not chain", encodeFloats(3, 1, 1, 0, 1, 1, 2, 0, 0, 0, 0, 1, 1, 1, 0, 0)},
		{"huge dimension", encodeFloats(2, 1e9, 1, 0)},
		// Each side is within the dimension bound but the product is not;
		// the reader must reject it before allocating the weights.
		{"huge layer", encodeFloats(2, 65536, 65536, 0, 1, 65536, 65536)},
		{"layer above element bound", encodeFloats(2, 8192, 4096, 0, 1, 8192, 4096)},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			net, err := Load(tc.data)
			if !errors.Is(err, ErrDecode) {
				t.Errorf("Load error = %v, want one wrapping ErrDecode", err)
			}
			if net != nil {
				t.Errorf("Load returned a network alongside error %v", err)
			}
		})
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) {
	return 0, errors.New("disk full")
}

func TestAICSaveFailure(t *testing.T) {
	if err := Save(failingWriter{}, testNetwork(t)); !errors.Is(err, ErrEncode) {
		t.Errorf("Save error = %v, want one wrapping ErrEncode", err)
	}
}

func TestAICFiles(t *testing.T) {
	dir := t.TempDir()
	net := testNetwork(t)

	path := filepath.Join(dir, "model.aic")
	if err := SaveFile(path, net); err != nil {
		t.Fatalf("Unexpected error while saving %s: %v", path, err)
	}
	got, err := LoadFile(path)
	if err != nil {
		t.Fatalf("Unexpected error while loading %s: %v", path, err)
	}
	checkSameNetwork(t, got, net)

	// Overwriting replaces the previous network.
	other, err := NewNetwork([]int{1, 1}, []Activation{None}, "other", rand.NewPCG(2, 2))
	if err != nil {
		t.Fatalf("Unexpected error while building network: %v", err)
	}
	if err := SaveFile(path, other); err != nil {
		t.Fatalf("Unexpected error while overwriting %s: %v", path, err)
	}
	got, err = LoadFile(path)
	if err != nil {
		t.Fatalf("Unexpected error while reloading %s: %v", path, err)
	}
	checkSameNetwork(t, got, other)

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("Unexpected error while listing %s: %v", dir, err)
	}
	if len(entries) != 1 {
		t.Errorf("Got %d entries in %s, want 1; temporary files left behind", len(entries), dir)
	}

	bad := filepath.Join(dir, "model.bin")
	if err := SaveFile(bad, net); !errors.Is(err, ErrEncode) {
		t.Errorf("SaveFile(%s) error = %v, want one wrapping ErrEncode", bad, err)
	}
	if _, err := os.Stat(bad); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Stat(%s) error = %v, want os.ErrNotExist", bad, err)
	}

	if _, err := LoadFile(filepath.Join(dir, "missing.aic")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("LoadFile of a missing file: error = %v, want os.ErrNotExist", err)
	}
}
