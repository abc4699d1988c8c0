package store

import (
	"errors"
	"testing"
	"time"

	"github.com/i474232898/weather-collector/internal/weather"
)

var testLocation = weather.Coordinates{Latitude: -9.4072, Longitude: -36.6275}

func observationAt(ts time.Time) weather.Observation {
	temp := 25.0
	return weather.Observation{Temperature: &temp, Timestamp: ts.Format(weather.TimestampLayout)}
}

func TestMemoryStoreLatest(t *testing.T) {
	s := NewMemoryStore(0, 0)

	if _, err := s.GetLatest(testLocation); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.Local)
	s.Save(testLocation, observationAt(base))
	s.Save(testLocation, observationAt(base.Add(12*time.Minute)))

	got, err := s.GetLatest(testLocation)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Timestamp != base.Add(12*time.Minute).Format(weather.TimestampLayout) {
		t.Fatalf("unexpected latest %q", got.Timestamp)
	}

	other := weather.Coordinates{Latitude: 1, Longitude: 2}
	if _, err := s.GetLatest(other); !errors.Is(err, ErrNotFound) {
		t.Fatalf("locations must not share history, got %v", err)
	}
}

func TestMemoryStoreRetentionByCount(t *testing.T) {
	s := NewMemoryStore(2, 0)
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.Local)

	for i := 0; i < 5; i++ {
		s.Save(testLocation, observationAt(base.Add(time.Duration(i)*time.Minute)))
	}

	got, err := s.GetRange(testLocation, base, base.Add(time.Hour))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 observations, got %d", len(got))
	}
	if got[0].Timestamp != base.Add(3*time.Minute).Format(weather.TimestampLayout) {
		t.Fatalf("expected oldest entries to be evicted, first is %q", got[0].Timestamp)
	}
}

func TestMemoryStoreRetentionByAge(t *testing.T) {
	now := time.Date(2024, 5, 2, 10, 0, 0, 0, time.Local)
	s := NewMemoryStore(0, time.Hour)
	s.now = func() time.Time { return now }

	s.Save(testLocation, observationAt(now.Add(-2*time.Hour)))
	s.Save(testLocation, observationAt(now.Add(-30*time.Minute)))

	got, err := s.GetRange(testLocation, now.Add(-24*time.Hour), now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected stale observation to be dropped, got %d", len(got))
	}
}

func TestMemoryStoreRangeIsInclusive(t *testing.T) {
	s := NewMemoryStore(0, 0)
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.Local)
	for i := 0; i < 3; i++ {
		s.Save(testLocation, observationAt(base.Add(time.Duration(i)*12*time.Minute)))
	}

	got, err := s.GetRange(testLocation, base, base.Add(12*time.Minute))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 observations, got %d", len(got))
	}

	if _, err := s.GetRange(testLocation, base.Add(time.Hour), base.Add(2*time.Hour)); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for empty range, got %v", err)
	}
}
