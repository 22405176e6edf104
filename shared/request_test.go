package shared

import (
	"testing"

	"github.com/peterldowns/testy/assert"
)

func TestRequestResponse(t *testing.T) {
	// Ensure requests can be created and can receive their responses on their corresponding channels.
	market := "^GSPC"
	timeframe := FiveMinute
	req := NewClassificationRequest(market, timeframe, ClosePrice, 6, Reverse)
	assert.NotNil(t, req)
	assert.Equal(t, req.Market, market)
	assert.Equal(t, req.Direction, Reverse)

	go func() {
		req.Response <- ClassificationResponse{Result: NewFalling(false), Size: 6}
	}()
	resp := <-req.Response
	assert.NoError(t, resp.Err)
	assert.Equal(t, resp.Result, NewFalling(false))
	assert.Equal(t, resp.Size, int32(6))
}
