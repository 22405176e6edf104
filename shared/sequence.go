package shared

import "fmt"

// Direction represents the traversal order of a sequence view.
type Direction int

const (
	Forward Direction = iota
	Reverse
)

// String stringifies the provided direction.
func (d Direction) String() string {
	switch d {
	case Forward:
		return "forward"
	case Reverse:
		return "reverse"
	default:
		return "unknown"
	}
}

// ParseDirection parses a direction from its string form.
func ParseDirection(s string) (Direction, error) {
	switch s {
	case "", "forward":
		return Forward, nil
	case "reverse":
		return Reverse, nil
	default:
		return Forward, fmt.Errorf("unknown direction provided: %s", s)
	}
}

// Sequence defines the requirements for an ordered, finite, randomly indexable
// collection of elements.
type Sequence[T any] interface {
	// Len returns the number of elements in the sequence.
	Len() int
	// At returns the element at the provided index, 0 <= i < Len().
	At(i int) T
}

// Slice is a sequence backed by a slice.
type Slice[T any] []T

// Len returns the number of elements in the slice.
func (s Slice[T]) Len() int {
	return len(s)
}

// At returns the element at the provided index.
func (s Slice[T]) At(i int) T {
	return s[i]
}

// View is a read-only window over the underlying storage of another sequence,
// traversed in a chosen direction.
type View[T any] struct {
	seq       Sequence[T]
	start     int
	end       int
	direction Direction
}

// Ensure views are sequences.
var _ Sequence[float64] = (*View[float64])(nil)

// NewView initializes a view over the entire provided sequence.
func NewView[T any](seq Sequence[T], direction Direction) *View[T] {
	return &View[T]{
		seq:       seq,
		start:     0,
		end:       seq.Len(),
		direction: direction,
	}
}

// NewWindowView initializes a view over the half-open range [start, end) of the
// provided sequence.
func NewWindowView[T any](seq Sequence[T], start int, end int, direction Direction) (*View[T], error) {
	if start < 0 {
		return nil, fmt.Errorf("window start cannot be negative: %d", start)
	}
	if end > seq.Len() {
		return nil, fmt.Errorf("window end %d exceeds sequence length %d", end, seq.Len())
	}
	if start > end {
		return nil, fmt.Errorf("window start %d is after window end %d", start, end)
	}

	return &View[T]{
		seq:       seq,
		start:     start,
		end:       end,
		direction: direction,
	}, nil
}

// Len returns the number of elements in the view.
func (v *View[T]) Len() int {
	return v.end - v.start
}

// At returns the element at the provided index in traversal order.
func (v *View[T]) At(i int) T {
	if v.direction == Reverse {
		return v.seq.At(v.end - 1 - i)
	}

	return v.seq.At(v.start + i)
}

// Direction returns the traversal direction of the view.
func (v *View[T]) Direction() Direction {
	return v.direction
}

// Reverse returns a view over the same window traversed in the opposite direction.
func (v *View[T]) Reverse() *View[T] {
	direction := Reverse
	if v.direction == Reverse {
		direction = Forward
	}

	return &View[T]{
		seq:       v.seq,
		start:     v.start,
		end:       v.end,
		direction: direction,
	}
}
