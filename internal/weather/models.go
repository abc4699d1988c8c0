package weather

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/segmentio/encoding/json"
)

// TimestampLayout is the ISO-8601 local time layout stamped on every observation.
const TimestampLayout = "2006-01-02T15:04:05.000000"

// Coordinates is the fixed point we collect weather for.
type Coordinates struct {
	Latitude  float64 `json:"latitude" yaml:"latitude" validate:"gte=-90,lte=90"`
	Longitude float64 `json:"longitude" yaml:"longitude" validate:"gte=-180,lte=180"`
}

// Key returns a canonical string key for indexing these coordinates in stores.
func (c Coordinates) Key() string {
	return strconv.FormatFloat(c.Latitude, 'f', -1, 64) + ":" + strconv.FormatFloat(c.Longitude, 'f', -1, 64)
}

// Observation is the message published for every tick.
// Nil fields mean the upstream omitted them, or sent a value of the wrong type, and are serialized as null.
type Observation struct {
	Latitude      *float64 `json:"latitude"`
	Longitude     *float64 `json:"longitude"`
	Temperature   *float64 `json:"temperature"`   // celsius
	Humidity      *float64 `json:"humidity"`      // relative, percent
	IsDay         *DayFlag `json:"is_day"`        // 1 day, 0 night
	Precipitation *float64 `json:"precipitation"` // mm
	Timestamp     string   `json:"timestamp"`
}

// CapturedAt parses the observation timestamp back into local time.
func (o Observation) CapturedAt() (time.Time, error) {
	return time.ParseInLocation(TimestampLayout, o.Timestamp, time.Local)
}

// DayFlag is the upstream is_day indicator. It remembers whether upstream sent
// 0/1 or a JSON boolean so it is republished in the same form.
type DayFlag struct {
	Value   int
	Boolean bool
}

// Day reports whether the flag marks daytime.
func (d DayFlag) Day() bool {
	return d.Value != 0
}

func (d DayFlag) MarshalJSON() ([]byte, error) {
	if d.Boolean {
		return []byte(strconv.FormatBool(d.Day())), nil
	}
	return []byte(strconv.Itoa(d.Value)), nil
}

// UnmarshalJSON accepts a JSON boolean or an integral number.
func (d *DayFlag) UnmarshalJSON(b []byte) error {
	switch string(bytes.TrimSpace(b)) {
	case "true":
		*d = DayFlag{Value: 1, Boolean: true}
		return nil
	case "false":
		*d = DayFlag{Boolean: true}
		return nil
	}

	var n float64
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("is_day: %w", err)
	}
	if n != math.Trunc(n) || math.Abs(n) > math.MaxInt32 {
		return fmt.Errorf("is_day: %s is not an integer", b)
	}
	*d = DayFlag{Value: int(n)}
	return nil
}
