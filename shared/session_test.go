package shared

import (
	"testing"
	"time"

	"github.com/peterldowns/testy/assert"
)

func TestSession(t *testing.T) {
	loc, err := time.LoadLocation(NewYorkLocation)
	assert.NoError(t, err)
	now := time.Date(2025, time.February, 4, 10, 0, 0, 0, loc)

	// Ensure asia, london and new york sessions can be created.
	asia, err := NewSession(Asia, AsiaOpen, AsiaClose, now)
	assert.NoError(t, err)
	assert.GreaterThan(t, asia.Close.Unix(), asia.Open.Unix())

	london, err := NewSession(London, LondonOpen, LondonClose, now)
	assert.NoError(t, err)
	assert.GreaterThan(t, london.Close.Unix(), london.Open.Unix())

	newYork, err := NewSession(NewYork, NewYorkOpen, NewYorkClose, now)
	assert.NoError(t, err)
	assert.GreaterThan(t, newYork.Close.Unix(), newYork.Open.Unix())

	// Ensure sessions cannot be created for times outside new york.
	_, err = NewSession(Asia, AsiaOpen, AsiaClose, now.UTC())
	assert.Error(t, err)

	// Ensure sessions cannot be created with malformed times.
	_, err = NewSession(Asia, "6pm", AsiaClose, now)
	assert.Error(t, err)

	// Ensure sessions can be checked if they are the current session.
	assert.True(t, london.IsCurrentSession(now))
	assert.False(t, asia.IsCurrentSession(now))
}

func TestIsMarketOpen(t *testing.T) {
	loc, err := time.LoadLocation(NewYorkLocation)
	assert.NoError(t, err)

	tests := []struct {
		name        string
		now         time.Time
		wantOpen    bool
		wantSession string
	}{
		{"tuesday london", time.Date(2025, time.February, 4, 10, 0, 0, 0, loc), true, London},
		{"tuesday new york", time.Date(2025, time.February, 4, 14, 0, 0, 0, loc), true, NewYork},
		{"tuesday break", time.Date(2025, time.February, 4, 17, 30, 0, 0, loc), false, ""},
		{"tuesday asia", time.Date(2025, time.February, 4, 20, 0, 0, 0, loc), true, Asia},
		{"wednesday early asia", time.Date(2025, time.February, 5, 1, 0, 0, 0, loc), true, Asia},
		{"friday after close", time.Date(2025, time.February, 7, 19, 0, 0, 0, loc), false, ""},
		{"saturday", time.Date(2025, time.February, 8, 12, 0, 0, 0, loc), false, ""},
		{"sunday before open", time.Date(2025, time.February, 9, 12, 0, 0, 0, loc), false, ""},
		{"sunday asia", time.Date(2025, time.February, 9, 19, 0, 0, 0, loc), true, Asia},
	}

	for _, test := range tests {
		open, session, err := IsMarketOpen(test.now)
		assert.NoError(t, err)
		if open != test.wantOpen {
			t.Errorf("%s: expected open %v, got %v", test.name, test.wantOpen, open)
		}
		if session != test.wantSession {
			t.Errorf("%s: expected session %q, got %q", test.name, test.wantSession, session)
		}
	}
}
