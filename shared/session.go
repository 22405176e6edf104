package shared

import (
	"fmt"
	"time"
)

const (
	// SessionTimeLayout is the format layout for parsing session times in a day.
	SessionTimeLayout = "15:04"

	// Session names.
	Asia    = "asia"
	London  = "london"
	NewYork = "newyork"

	// Market session time (futures) in new york time (ET).
	AsiaOpen     = "18:00"
	AsiaClose    = "03:00"
	LondonOpen   = "03:00"
	LondonClose  = "11:00"
	NewYorkOpen  = "08:00"
	NewYorkClose = "17:00"
)

// Session represents a market session.
type Session struct {
	Name  string
	Open  time.Time
	Close time.Time
}

// NewSession initializes a market session on the day of the provided new york time.
func NewSession(name string, open string, close string, now time.Time) (*Session, error) {
	sessionOpen, err := time.Parse(SessionTimeLayout, open)
	if err != nil {
		return nil, fmt.Errorf("parsing session open: %w", err)
	}

	sessionClose, err := time.Parse(SessionTimeLayout, close)
	if err != nil {
		return nil, fmt.Errorf("parsing session close: %w", err)
	}

	loc := now.Location()
	if loc.String() != NewYorkLocation {
		return nil, fmt.Errorf("expected new york location for provided time, got %v", loc.String())
	}

	sOpen := time.Date(now.Year(), now.Month(), now.Day(), sessionOpen.Hour(), sessionOpen.Minute(), 0, 0, loc)
	sClose := time.Date(now.Year(), now.Month(), now.Day(), sessionClose.Hour(), sessionClose.Minute(), 0, 0, loc)
	if sClose.Before(sOpen) {
		sClose = sClose.Add(time.Hour * 24)
	}

	session := &Session{
		Name:  name,
		Open:  sOpen,
		Close: sClose,
	}

	return session, nil
}

// IsCurrentSession checks whether the provided time is within the session.
func (s *Session) IsCurrentSession(current time.Time) bool {
	return (current.Equal(s.Open) || current.After(s.Open)) && current.Before(s.Close)
}

// CurrentSession returns the name of the session active at the provided new york time,
// or an empty string when no session is active.
func CurrentSession(now time.Time) (string, error) {
	yesterday := now.AddDate(0, 0, -1)

	sessions := []struct {
		name  string
		open  string
		close string
		time  time.Time
	}{
		{Asia, AsiaOpen, AsiaClose, yesterday},
		{London, LondonOpen, LondonClose, now},
		{NewYork, NewYorkOpen, NewYorkClose, now},
		{Asia, AsiaOpen, AsiaClose, now},
	}

	for _, sess := range sessions {
		session, err := NewSession(sess.name, sess.open, sess.close, sess.time)
		if err != nil {
			return "", fmt.Errorf("creating %s session: %w", sess.name, err)
		}

		if session.IsCurrentSession(now) {
			return session.Name, nil
		}
	}

	return "", nil
}

// IsMarketOpen checks whether the markets (futures) are open at the provided new york time.
// Markets close over the weekend, from the friday new york close to the sunday asia open.
func IsMarketOpen(now time.Time) (bool, string, error) {
	switch now.Weekday() {
	case time.Saturday:
		return false, "", nil
	case time.Sunday:
		if now.Hour() < 18 {
			return false, "", nil
		}
	case time.Friday:
		if now.Hour() >= 17 {
			return false, "", nil
		}
	}

	name, err := CurrentSession(now)
	if err != nil {
		return false, name, fmt.Errorf("fetching current market session: %w", err)
	}

	return name != "", name, nil
}
