package timeseries

import (
	"encoding/json"
	"math"
)

// DataPoint is one observation. Series is an open-ended label ("cpu_0", "network", ...)
// and is passed through untouched.
type DataPoint struct {
	Timestamp float64 `json:"date"`
	Value     float64 `json:"value"`
	Series    string  `json:"type"`

	// original encoding, re-emitted verbatim by MarshalJSON
	raw json.RawMessage
}

type pointFields struct {
	Timestamp float64 `json:"date"`
	Value     float64 `json:"value"`
	Series    string  `json:"type"`
}

// UnmarshalJSON decodes the point and remembers its source bytes.
func (p *DataPoint) UnmarshalJSON(data []byte) error {
	var f pointFields
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	p.Timestamp = f.Timestamp
	p.Value = f.Value
	p.Series = f.Series
	p.raw = append(p.raw[:0], data...)
	return nil
}

// MarshalJSON re-emits the decoded bytes when present so field values and any
// extra fields survive a fetch unchanged.
func (p DataPoint) MarshalJSON() ([]byte, error) {
	if len(p.raw) > 0 {
		return p.raw, nil
	}
	return json.Marshal(pointFields{Timestamp: p.Timestamp, Value: p.Value, Series: p.Series})
}

// TimeRange is an inclusive [Min, Max] timestamp predicate.
type TimeRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Unbounded returns the range covering every representable timestamp.
func Unbounded() TimeRange {
	return TimeRange{Min: -math.MaxFloat64, Max: math.MaxFloat64}
}

// Contains reports whether Min <= ts <= Max.
func (r TimeRange) Contains(ts float64) bool {
	return r.Min <= ts && ts <= r.Max
}

// Empty reports whether no timestamp can satisfy the range.
func (r TimeRange) Empty() bool {
	return r.Min > r.Max
}
