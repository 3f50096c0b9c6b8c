package timeseries

// Filter returns the points whose timestamp lies in r, keeping input order.
// It never fails: empty input or an inverted range yield an empty result.
func Filter(points []DataPoint, r TimeRange) []DataPoint {
	out := make([]DataPoint, 0, len(points))
	if r.Empty() {
		return out
	}
	for _, p := range points {
		if r.Contains(p.Timestamp) {
			out = append(out, p)
		}
	}
	return out
}
