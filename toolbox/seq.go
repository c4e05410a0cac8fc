package toolbox

import (
	"fmt"
	"iter"
)

// Cloner is implemented by element types that can be stored in a Seq.
type Cloner[T any] interface {
	Clone() T
}

// Seq is an ordered, index-addressable, growable collection.  Elements cross
// the container boundary by copy: Append, Get and Set clone, so no element is
// shared between two containers.  Adopt and At are the exceptions, for owners
// that want to hand over or mutate an element without paying for a copy.
type Seq[T Cloner[T]] struct {
	elems []T
}

// NewSeq returns an empty Seq with room for capacity elements.
func NewSeq[T Cloner[T]](capacity int) *Seq[T] {
	return &Seq[T]{elems: make([]T, 0, capacity)}
}

// Len returns the number of elements.
func (s *Seq[T]) Len() int {
	return len(s.elems)
}

// Append stores a copy of v at the end of the sequence.
func (s *Seq[T]) Append(v T) {
	s.elems = append(s.elems, v.Clone())
}

// Adopt stores v itself at the end of the sequence.  The caller gives up
// ownership of v.
func (s *Seq[T]) Adopt(v T) {
	s.elems = append(s.elems, v)
}

// Get returns a copy of element i.
func (s *Seq[T]) Get(i int) T {
	s.checkIndex(i)
	return s.elems[i].Clone()
}

// At returns element i without copying it.  The result stays owned by the
// sequence and is only valid until the next Set or Release.
func (s *Seq[T]) At(i int) T {
	s.checkIndex(i)
	return s.elems[i]
}

// Set replaces element i with a copy of v.
func (s *Seq[T]) Set(i int, v T) {
	s.checkIndex(i)
	s.elems[i] = v.Clone()
}

// Last returns the final element without copying it.
func (s *Seq[T]) Last() T {
	return s.At(len(s.elems) - 1)
}

// All iterates over (index, element) pairs without copying.
func (s *Seq[T]) All() iter.Seq2[int, T] {
	return func(yield func(int, T) bool) {
		for i, v := range s.elems {
			if !yield(i, v) {
				return
			}
		}
	}
}

// Release drops every element.  Indices obtained before the release are no
// longer valid.
func (s *Seq[T]) Release() {
	clear(s.elems)
	s.elems = s.elems[:0]
}

func (s *Seq[T]) checkIndex(i int) {
	if i < 0 || i >= len(s.elems) {
		panic(fmt.Sprintf("index %d out of range [0, %d)", i, len(s.elems)))
	}
}
