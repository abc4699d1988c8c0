package queue

import (
	"fmt"

	"github.com/segmentio/encoding/json"

	"github.com/i474232898/weather-collector/internal/weather"
)

// Encode serializes an observation into the message body shared by every transport.
func Encode(obs weather.Observation) ([]byte, error) {
	body, err := json.Marshal(obs)
	if err != nil {
		return nil, fmt.Errorf("encode observation: %w", err)
	}
	return body, nil
}
