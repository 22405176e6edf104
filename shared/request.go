package shared

import (
	"time"
)

const (
	// TimeoutDuration is the maximum time to wait before timing out.
	TimeoutDuration = time.Second * 4
)

// ClassificationResponse represents the response to a classification request.
type ClassificationResponse struct {
	Result Monotonic
	Size   int32
	Err    error
}

// ClassificationRequest represents a request to classify the monotonic trend of the
// last N values of a market's price field.
type ClassificationRequest struct {
	Market    string
	Timeframe Timeframe
	Field     PriceField
	N         int32
	Direction Direction
	Response  chan ClassificationResponse
}

// NewClassificationRequest initializes a new classification request.
func NewClassificationRequest(market string, timeframe Timeframe, field PriceField, n int32, direction Direction) *ClassificationRequest {
	return &ClassificationRequest{
		Market:    market,
		Timeframe: timeframe,
		Field:     field,
		N:         n,
		Direction: direction,
		Response:  make(chan ClassificationResponse, 1),
	}
}
