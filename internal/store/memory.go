package store

import (
	"errors"
	"sync"
	"time"

	"github.com/i474232898/weather-collector/internal/weather"
)

var (
	// ErrNotFound is returned when no observation is available for a given location.
	ErrNotFound = errors.New("no observations for location")
)

type entry struct {
	capturedAt  time.Time
	observation weather.Observation
}

// MemoryStore is a concurrency-safe in-memory history of published observations.
type MemoryStore struct {
	mu sync.RWMutex

	// key: location key, value: observations ordered by capture time
	data map[string][]entry

	// retention configuration
	maxHistory int           // max number of observations per location
	maxAge     time.Duration // optional max age for observations

	now func() time.Time
}

// NewMemoryStore creates a new MemoryStore with optional limits.
// If maxHistory is <= 0, it is treated as unlimited.
func NewMemoryStore(maxHistory int, maxAge time.Duration) *MemoryStore {
	return &MemoryStore{
		data:       make(map[string][]entry),
		maxHistory: maxHistory,
		maxAge:     maxAge,
		now:        time.Now,
	}
}

// Save appends an observation for a location and enforces retention.
// Observations whose timestamp cannot be parsed are stamped with the current time.
func (s *MemoryStore) Save(at weather.Coordinates, obs weather.Observation) {
	capturedAt, err := obs.CapturedAt()
	if err != nil {
		capturedAt = s.now()
	}
	key := at.Key()

	s.mu.Lock()
	defer s.mu.Unlock()

	history := append(s.data[key], entry{capturedAt: capturedAt, observation: obs})

	// Enforce retention by count.
	if s.maxHistory > 0 && len(history) > s.maxHistory {
		history = history[len(history)-s.maxHistory:]
	}

	// Enforce retention by age.
	if s.maxAge > 0 {
		cutoff := s.now().Add(-s.maxAge)
		i := 0
		for i < len(history) && history[i].capturedAt.Before(cutoff) {
			i++
		}
		history = history[i:]
	}

	s.data[key] = history
}

// GetLatest returns the most recent observation for a location.
func (s *MemoryStore) GetLatest(at weather.Coordinates) (weather.Observation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history := s.data[at.Key()]
	if len(history) == 0 {
		return weather.Observation{}, ErrNotFound
	}
	return history[len(history)-1].observation, nil
}

// GetRange returns all observations for a location captured between from and to (inclusive).
func (s *MemoryStore) GetRange(at weather.Coordinates, from, to time.Time) ([]weather.Observation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []weather.Observation
	for _, e := range s.data[at.Key()] {
		if !e.capturedAt.Before(from) && !e.capturedAt.After(to) {
			result = append(result, e.observation)
		}
	}

	if len(result) == 0 {
		return nil, ErrNotFound
	}
	return result, nil
}
