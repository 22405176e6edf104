package shared

import (
	"fmt"
	"strings"
)

// PriceField represents a numeric field of a candlestick that can be tracked as a series.
type PriceField int

const (
	OpenPrice PriceField = iota
	HighPrice
	LowPrice
	ClosePrice
	Volume
	VWAPValue
)

// String stringifies the provided price field.
func (f PriceField) String() string {
	switch f {
	case OpenPrice:
		return "open"
	case HighPrice:
		return "high"
	case LowPrice:
		return "low"
	case ClosePrice:
		return "close"
	case Volume:
		return "volume"
	case VWAPValue:
		return "vwap"
	default:
		return "unknown"
	}
}

// Value returns the value of the field for the provided candlestick.
func (f PriceField) Value(candle *Candlestick) float64 {
	switch f {
	case OpenPrice:
		return candle.Open
	case HighPrice:
		return candle.High
	case LowPrice:
		return candle.Low
	case ClosePrice:
		return candle.Close
	case Volume:
		return candle.Volume
	case VWAPValue:
		return candle.VWAP
	default:
		return 0
	}
}

// ParsePriceField parses a price field from its string form.
func ParsePriceField(s string) (PriceField, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "open":
		return OpenPrice, nil
	case "high":
		return HighPrice, nil
	case "low":
		return LowPrice, nil
	case "close":
		return ClosePrice, nil
	case "volume":
		return Volume, nil
	case "vwap":
		return VWAPValue, nil
	default:
		return ClosePrice, fmt.Errorf("unknown price field provided: %s", s)
	}
}

// ParsePriceFields parses the provided collection of price fields.
func ParsePriceFields(set []string) ([]PriceField, error) {
	fields := make([]PriceField, 0, len(set))
	for idx := range set {
		field, err := ParsePriceField(set[idx])
		if err != nil {
			return nil, err
		}

		fields = append(fields, field)
	}

	return fields, nil
}
