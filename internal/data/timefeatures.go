package data

import (
	"fmt"
	"strings"
	"time"

	"github.com/inferloop/tsforecast/pkg/errors"
)

type timeFeature func(t time.Time) float64

// Each feature maps a calendar component onto [-0.5, 0.5]
var (
	minuteOfHour = func(t time.Time) float64 { return float64(t.Minute())/59.0 - 0.5 }
	hourOfDay    = func(t time.Time) float64 { return float64(t.Hour())/23.0 - 0.5 }
	dayOfWeek    = func(t time.Time) float64 { return float64((int(t.Weekday())+6)%7)/6.0 - 0.5 }
	dayOfMonth   = func(t time.Time) float64 { return float64(t.Day()-1)/30.0 - 0.5 }
	dayOfYear    = func(t time.Time) float64 { return float64(t.YearDay()-1)/365.0 - 0.5 }
)

var featuresByFreq = map[string][]timeFeature{
	"t": {minuteOfHour, hourOfDay, dayOfWeek, dayOfMonth, dayOfYear},
	"h": {hourOfDay, dayOfWeek, dayOfMonth, dayOfYear},
	"d": {dayOfWeek, dayOfMonth, dayOfYear},
}

var stepByFreq = map[string]time.Duration{
	"t": time.Minute,
	"h": time.Hour,
	"d": 24 * time.Hour,
}

// FreqStep returns the sampling interval of freq
func FreqStep(freq string) (time.Duration, error) {
	step, ok := stepByFreq[strings.ToLower(freq)]
	if !ok {
		return 0, unknownFreq(freq)
	}
	return step, nil
}

// TimeFeatureCount returns how many features TimeFeatures emits for freq
func TimeFeatureCount(freq string) (int, error) {
	fs, ok := featuresByFreq[strings.ToLower(freq)]
	if !ok {
		return 0, unknownFreq(freq)
	}
	return len(fs), nil
}

// TimeFeatures encodes each timestamp as a row of calendar features
func TimeFeatures(stamps []time.Time, freq string) ([][]float64, error) {
	fs, ok := featuresByFreq[strings.ToLower(freq)]
	if !ok {
		return nil, unknownFreq(freq)
	}
	out := make([][]float64, len(stamps))
	for i, ts := range stamps {
		row := make([]float64, len(fs))
		for j, f := range fs {
			row[j] = f(ts)
		}
		out[i] = row
	}
	return out, nil
}

func unknownFreq(freq string) error {
	return errors.NewConfigurationError(errors.ErrUnknownFrequency, fmt.Sprintf("unsupported freq %q, want t, h or d", freq))
}
