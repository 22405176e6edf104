package shared

import "cmp"

// Monotonic describes the monotonic property of a sequence. Strict is only
// ever set for rising and falling trends.
type Monotonic struct {
	Trend  Trend
	Strict bool
}

// NotMonotonicResult is the classification of sequences without a monotonic trend.
var NotMonotonicResult = Monotonic{Trend: NotMonotonic}

// NewRising initializes a rising classification.
func NewRising(strict bool) Monotonic {
	return Monotonic{Trend: Rising, Strict: strict}
}

// NewFalling initializes a falling classification.
func NewFalling(strict bool) Monotonic {
	return Monotonic{Trend: Falling, Strict: strict}
}

// IsMonotonic returns whether the classification describes a rising or falling trend.
func (m Monotonic) IsMonotonic() bool {
	return m.Trend == Rising || m.Trend == Falling
}

// Reversed returns the classification of the same sequence traversed in the
// opposite direction.
func (m Monotonic) Reversed() Monotonic {
	switch m.Trend {
	case Rising:
		return NewFalling(m.Strict)
	case Falling:
		return NewRising(m.Strict)
	default:
		return NotMonotonicResult
	}
}

// String stringifies the provided classification.
func (m Monotonic) String() string {
	switch m.Trend {
	case Rising, Falling:
		if m.Strict {
			return m.Trend.String() + " (strict)"
		}
		return m.Trend.String()
	default:
		return NotMonotonic.String()
	}
}

// classifierState is the running state of a classification pass.
type classifierState int

const (
	undetermined classifierState = iota
	flatSoFar
	knownRising
	knownFalling
)

// ordering is the outcome of comparing an adjacent pair.
type ordering int

const (
	less ordering = iota
	equal
	greater
	unordered
)

// orderOf compares the provided pair using only the <, == and > operators.
// Pairs that are neither (NaN) are unordered.
func orderOf[T cmp.Ordered](a, b T) ordering {
	switch {
	case a < b:
		return less
	case a == b:
		return equal
	case a > b:
		return greater
	default:
		return unordered
	}
}

// Classify returns the monotonic property of the provided sequence.
//
// An unordered pair (NaN) is taken as falling while the direction is
// undetermined and contradicts any known direction.
func Classify[T cmp.Ordered](seq Sequence[T]) Monotonic {
	return classify(seq, orderOf[T])
}

// ClassifySlice returns the monotonic property of the provided slice.
func ClassifySlice[T cmp.Ordered](s []T) Monotonic {
	return Classify[T](Slice[T](s))
}

// ClassifyFunc returns the monotonic property of the provided sequence using
// the provided three-way comparison, which returns a negative value when a < b,
// zero when a == b and a positive value otherwise.
//
// Direction is locked in by the first unequal adjacent pair. An adjacent pair
// that disagrees with it ends the pass early. Any equal adjacent pair downgrades
// the result to non-strict. Sequences with fewer than two elements and fully
// flat sequences are not monotonic.
func ClassifyFunc[T any](seq Sequence[T], compare func(a, b T) int) Monotonic {
	return classify(seq, func(a, b T) ordering {
		order := compare(a, b)
		switch {
		case order < 0:
			return less
		case order == 0:
			return equal
		default:
			return greater
		}
	})
}

// classify runs a single pass over the adjacent pairs of the provided sequence.
func classify[T any](seq Sequence[T], order func(a, b T) ordering) Monotonic {
	n := seq.Len()
	if n <= 1 {
		return NotMonotonicResult
	}

	state := undetermined
	strict := true

	prev := seq.At(0)
	for i := 1; i < n; i++ {
		next := seq.At(i)
		o := order(prev, next)
		prev = next

		switch state {
		case undetermined, flatSoFar:
			switch o {
			case less:
				state = knownRising
			case equal:
				state = flatSoFar
				strict = false
			default:
				state = knownFalling
			}
		case knownRising:
			switch o {
			case less:
			case equal:
				strict = false
			default:
				return NotMonotonicResult
			}
		case knownFalling:
			switch o {
			case greater:
			case equal:
				strict = false
			default:
				return NotMonotonicResult
			}
		}
	}

	switch state {
	case knownRising:
		return NewRising(strict)
	case knownFalling:
		return NewFalling(strict)
	default:
		// Every adjacent pair was equal.
		return NotMonotonicResult
	}
}
