package shared

import (
	"testing"
	"time"

	"github.com/peterldowns/testy/assert"
	"github.com/tidwall/gjson"
)

func TestParseCandlesticks(t *testing.T) {
	market := "^GSPC"
	timeframe := FiveMinute
	data := `[{"open":10,"close":12,"high":15,"low":8, "volume":5,"date":"2025-02-04 15:05:00"}]`
	gjd := gjson.Parse(data).Array()

	// Ensure candlesticks data can be parsed.
	loc, err := time.LoadLocation(NewYorkLocation)
	assert.NoError(t, err)
	candles, err := ParseCandlesticks(gjd, market, timeframe, loc)
	assert.NoError(t, err)
	assert.Equal(t, len(candles), 1)
	assert.Equal(t, candles[0].Open, float64(10))
	assert.Equal(t, candles[0].Close, float64(12))
	assert.Equal(t, candles[0].High, float64(15))
	assert.Equal(t, candles[0].Low, float64(8))
	assert.Equal(t, candles[0].Volume, float64(5))
	assert.Equal(t, candles[0].Market, market)
	assert.Equal(t, candles[0].Timeframe, timeframe)
	assert.Equal(t, candles[0].Date.Year(), 2025)
	assert.Equal(t, candles[0].Date.Month(), time.February)
	assert.Equal(t, candles[0].Date.Day(), 4)
	assert.Equal(t, candles[0].Date.Location().String(), NewYorkLocation)
	assert.NotNil(t, candles[0].Status)

	// Ensure malformed dates fail parsing.
	data = `[{"open":10,"close":12,"high":15,"low":8, "volume":5,"date":"04/02/2025"}]`
	_, err = ParseCandlesticks(gjson.Parse(data).Array(), market, timeframe, loc)
	assert.Error(t, err)
}
