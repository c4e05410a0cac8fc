package main

import (
	"fmt"
	"slices"

	"github.com/sbinet/npyio/npz"
	"gonum.org/v1/gonum/mat"

	"github.com/ahmedtd/densenet/toolbox"
)

const (
	inputArray  = "x.npy"
	outputArray = "y.npy"
)

// loadDataset reads x and, when present, y from an npz archive.  y is nil if
// the archive has no y array.
func loadDataset(path string) (x, y *toolbox.Matrix, err error) {
	r, err := npz.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("while opening data file: %w", err)
	}
	defer r.Close()

	// numpy writes C-style (row-major) layouts, which is what Matrix uses.

	x, err = loadArray(r, inputArray)
	if err != nil {
		return nil, nil, fmt.Errorf("while reading %s: %w", inputArray, err)
	}

	if !slices.Contains(r.Keys(), outputArray) {
		return x, nil, nil
	}
	y, err = loadArray(r, outputArray)
	if err != nil {
		return nil, nil, fmt.Errorf("while reading %s: %w", outputArray, err)
	}
	if y.Rows != x.Rows {
		return nil, nil, fmt.Errorf("%s has %d rows but %s has %d", inputArray, x.Rows, outputArray, y.Rows)
	}
	return x, y, nil
}

// loadArray reads a float64 array of rank 1 or 2.  Rank 1 arrays become a
// single column.
func loadArray(r *npz.Reader, name string) (*toolbox.Matrix, error) {
	if !slices.Contains(r.Keys(), name) {
		return nil, fmt.Errorf("no array named %s", name)
	}
	header := r.Header(name)
	if header.Descr.Fortran {
		return nil, fmt.Errorf("fortran-ordered arrays are not supported")
	}

	var rows, cols int
	switch shape := header.Descr.Shape; len(shape) {
	case 1:
		rows, cols = shape[0], 1
	case 2:
		rows, cols = shape[0], shape[1]
	default:
		return nil, fmt.Errorf("want a rank 1 or 2 array, got shape %v", shape)
	}
	if rows == 0 || cols == 0 {
		return nil, fmt.Errorf("empty array of shape %v", header.Descr.Shape)
	}

	var raw []float64
	if err := r.Read(name, &raw); err != nil {
		return nil, fmt.Errorf("while reading float64 array: %w", err)
	}
	if len(raw) != rows*cols {
		return nil, fmt.Errorf("got %d values for shape %v", len(raw), header.Descr.Shape)
	}

	return toolbox.MatrixFromDense(mat.NewDense(rows, cols, raw)), nil
}

// writeDataset stores x and y in an npz archive that loadDataset can read.
func writeDataset(path string, x, y *toolbox.Matrix) error {
	w, err := npz.Create(path)
	if err != nil {
		return fmt.Errorf("while creating data file: %w", err)
	}

	if err := w.Write(inputArray, x.ToDense()); err != nil {
		w.Close()
		return fmt.Errorf("while writing %s: %w", inputArray, err)
	}
	if y != nil {
		if err := w.Write(outputArray, y.ToDense()); err != nil {
			w.Close()
			return fmt.Errorf("while writing %s: %w", outputArray, err)
		}
	}
	return w.Close()
}
