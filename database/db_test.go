package database

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dnldd/trend/shared"
	"github.com/peterldowns/testy/assert"
	"github.com/rs/zerolog/log"
)

// fakeRqlite serves rqlite execute responses and records the executed request bodies.
type fakeRqlite struct {
	bodies    []string
	bodiesMtx sync.Mutex
	failWith  string
}

func (f *fakeRqlite) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	f.bodiesMtx.Lock()
	f.bodies = append(f.bodies, string(body))
	failWith := f.failWith
	f.bodiesMtx.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if failWith != "" {
		w.Write([]byte(`{"results":[{"error":"` + failWith + `"}],"time":0.001}`))
		return
	}

	w.Write([]byte(`{"results":[{"last_insert_id":1,"rows_affected":1,"time":0.001}],"time":0.001}`))
}

func (f *fakeRqlite) lastBody() string {
	f.bodiesMtx.Lock()
	defer f.bodiesMtx.Unlock()

	return f.bodies[len(f.bodies)-1]
}

func TestGenerateStatsID(t *testing.T) {
	tests := []struct {
		name   string
		date   time.Time
		market string
		want   string
	}{
		{"mid year", time.Date(2025, time.February, 4, 10, 0, 0, 0, time.UTC), "^GSPC", "2025-Week-06-^GSPC"},
		{"year boundary", time.Date(2024, time.December, 30, 10, 0, 0, 0, time.UTC), "^GSPC", "2025-Week-01-^GSPC"},
		{"same week", time.Date(2025, time.February, 7, 23, 0, 0, 0, time.UTC), "^GSPC", "2025-Week-06-^GSPC"},
	}

	for _, test := range tests {
		got := generateStatsID(test.date, test.market)
		if got != test.want {
			t.Errorf("%s: expected %s, got %s", test.name, test.want, got)
		}
	}
}

func TestTrendCounts(t *testing.T) {
	rising, falling, notMonotonic, ok := trendCounts(shared.NewRising(false))
	assert.True(t, ok)
	assert.Equal(t, []int{rising, falling, notMonotonic}, []int{1, 0, 0})

	rising, falling, notMonotonic, ok = trendCounts(shared.NewFalling(true))
	assert.True(t, ok)
	assert.Equal(t, []int{rising, falling, notMonotonic}, []int{0, 1, 0})

	rising, falling, notMonotonic, ok = trendCounts(shared.NotMonotonicResult)
	assert.True(t, ok)
	assert.Equal(t, []int{rising, falling, notMonotonic}, []int{0, 0, 1})

	_, _, _, ok = trendCounts(shared.Monotonic{Trend: shared.Trend(9)})
	assert.False(t, ok)
}

func TestDatabase(t *testing.T) {
	ctx := context.Background()

	// Ensure a database cannot be created with an invalid config.
	_, err := NewDatabase(ctx, &DatabaseConfig{})
	assert.Error(t, err)

	fake := &fakeRqlite{}
	server := httptest.NewServer(fake)
	defer server.Close()

	// Ensure the database bootstraps its tables on creation.
	db, err := NewDatabase(ctx, &DatabaseConfig{
		Endpoint: server.URL,
		User:     "user",
		Pass:     "pass",
		Logger:   &log.Logger,
	})
	assert.NoError(t, err)
	assert.True(t, strings.Contains(fake.lastBody(), "CREATE TABLE IF NOT EXISTS trendsignal"))
	assert.True(t, strings.Contains(fake.lastBody(), "CREATE TABLE IF NOT EXISTS trendstats"))

	// Ensure trend signals and their stats can be persisted.
	loc, err := time.LoadLocation(shared.NewYorkLocation)
	assert.NoError(t, err)
	created := time.Date(2025, time.February, 4, 10, 0, 0, 0, loc)
	signal := shared.NewTrendSignal("^GSPC", shared.FiveMinute, shared.ClosePrice, 4,
		shared.NotMonotonicResult, shared.NewRising(true), 11, created)

	err = db.PersistTrendSignal(ctx, &signal)
	assert.NoError(t, err)
	assert.True(t, strings.Contains(fake.lastBody(), signal.ID))
	assert.True(t, strings.Contains(fake.lastBody(), "2025-Week-06-^GSPC"))

	// Ensure signals with unknown trends are rejected before reaching the database.
	requests := len(fake.bodies)
	invalid := signal
	invalid.Current = shared.Monotonic{Trend: shared.Trend(9)}
	err = db.PersistTrendSignal(ctx, &invalid)
	assert.Error(t, err)
	assert.Equal(t, len(fake.bodies), requests)

	// Ensure statement errors are surfaced.
	fake.bodiesMtx.Lock()
	fake.failWith = "no such table: trendsignal"
	fake.bodiesMtx.Unlock()

	err = db.PersistTrendSignal(ctx, &signal)
	assert.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "no such table"))
}
