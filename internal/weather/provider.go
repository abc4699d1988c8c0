package weather

import (
	"context"
	"errors"
	"time"
)

// ErrNoCurrentData is returned by providers when the upstream response carries
// no current conditions. It is a skip, not a failure.
var ErrNoCurrentData = errors.New("no current weather data found")

// Reading is a provider's reshaped view of the current conditions.
// The collector stamps it into an Observation.
type Reading struct {
	Latitude      *float64
	Longitude     *float64
	Temperature   *float64
	Humidity      *float64
	IsDay         *DayFlag
	Precipitation *float64
}

// Provider abstracts a weather data source (e.g. Open-Meteo).
type Provider interface {
	Name() string
	Current(ctx context.Context, at Coordinates) (Reading, error)
}

// Publisher hands an observation to the downstream transport.
type Publisher interface {
	Publish(ctx context.Context, obs Observation) error
}

// Recorder keeps published observations around for the read API.
type Recorder interface {
	Save(at Coordinates, obs Observation)
}

// Store is the contract the in-memory store must satisfy for the read API.
type Store interface {
	Recorder
	GetLatest(at Coordinates) (Observation, error)
	GetRange(at Coordinates, from, to time.Time) ([]Observation, error)
}
