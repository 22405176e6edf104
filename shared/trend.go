package shared

// Trend represents the monotonic trend of a sequence.
type Trend int

const (
	NotMonotonic Trend = iota
	Rising
	Falling
)

// String stringifies the provided trend.
func (t Trend) String() string {
	switch t {
	case NotMonotonic:
		return "not monotonic"
	case Rising:
		return "rising"
	case Falling:
		return "falling"
	default:
		return "unknown"
	}
}
