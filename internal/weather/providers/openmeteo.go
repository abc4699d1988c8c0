package providers

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/segmentio/encoding/json"
	"github.com/sony/gobreaker"

	"github.com/i474232898/weather-collector/internal/weather"
)

// DefaultOpenMeteoURL is the public forecast endpoint.
const DefaultOpenMeteoURL = "https://api.open-meteo.com/v1/forecast"

// openMeteoCurrentFields are the current variables requested on every call.
const openMeteoCurrentFields = "temperature_2m,relative_humidity_2m,is_day,precipitation"

// OpenMeteoProvider implements the weather.Provider interface for Open-Meteo.
type OpenMeteoProvider struct {
	name    string
	baseURL string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
}

// NewOpenMeteoProvider builds a provider against baseURL (DefaultOpenMeteoURL when empty).
// fetchInterval is the schedule the provider is polled on; it sizes the circuit breaker.
func NewOpenMeteoProvider(client *http.Client, baseURL string, backoff BackoffConfig, fetchInterval time.Duration) *OpenMeteoProvider {
	if baseURL == "" {
		baseURL = DefaultOpenMeteoURL
	}
	return &OpenMeteoProvider{
		name:    "openmeteo",
		baseURL: baseURL,
		httpCfg: HTTPClientConfig{
			Client:  client,
			Backoff: backoff,
		},
		circuit: newCircuitBreaker("openmeteo", fetchInterval),
	}
}

func (p *OpenMeteoProvider) Name() string {
	return p.name
}

// Current fetches the current conditions at the given coordinates.
// It returns weather.ErrNoCurrentData when "current" is missing, null or empty.
func (p *OpenMeteoProvider) Current(ctx context.Context, at weather.Coordinates) (weather.Reading, error) {
	buildRequest := func(ctx context.Context) (*http.Request, error) {
		values := url.Values{}
		values.Set("latitude", strconv.FormatFloat(at.Latitude, 'f', -1, 64))
		values.Set("longitude", strconv.FormatFloat(at.Longitude, 'f', -1, 64))
		values.Set("current", openMeteoCurrentFields)
		values.Set("timezone", "auto")

		u := fmt.Sprintf("%s?%s", p.baseURL, values.Encode())
		return http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	}

	body, err := getBody(ctx, p.httpCfg, p.circuit, buildRequest)
	if err != nil {
		return weather.Reading{}, err
	}

	return decodeOpenMeteo(body)
}

func decodeOpenMeteo(body []byte) (weather.Reading, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(body, &top); err != nil {
		return weather.Reading{}, fmt.Errorf("decode openmeteo response: %w", err)
	}

	current, err := currentFields(top["current"])
	if err != nil {
		return weather.Reading{}, err
	}

	return weather.Reading{
		Latitude:      field[float64](top, "latitude"),
		Longitude:     field[float64](top, "longitude"),
		Temperature:   field[float64](current, "temperature_2m"),
		Humidity:      field[float64](current, "relative_humidity_2m"),
		IsDay:         field[weather.DayFlag](current, "is_day"),
		Precipitation: field[float64](current, "precipitation"),
	}, nil
}

// currentFields splits the "current" object into its fields. Missing, null and
// other empty values ({}, [], "", 0, false) carry no data. Any other
// non-object value is malformed.
func currentFields(raw json.RawMessage) (map[string]json.RawMessage, error) {
	var v interface{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("decode openmeteo current: %w", err)
		}
	}
	if isEmptyJSON(v) {
		return nil, weather.ErrNoCurrentData
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("decode openmeteo current: %w", err)
	}
	return fields, nil
}

func isEmptyJSON(v interface{}) bool {
	switch x := v.(type) {
	case nil:
		return true
	case bool:
		return !x
	case float64:
		return x == 0
	case string:
		return x == ""
	case []interface{}:
		return len(x) == 0
	case map[string]interface{}:
		return len(x) == 0
	}
	return false
}

// field decodes one value. Absent, null and mistyped values come back nil,
// so one bad field does not cost the rest of the observation.
func field[T any](fields map[string]json.RawMessage, key string) *T {
	raw, ok := fields[key]
	if !ok {
		return nil
	}
	var v *T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil
	}
	return v
}
