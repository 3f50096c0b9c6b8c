package api

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strconv"

	"github.com/harun/smprofiler/internal/tracing"
	"github.com/harun/smprofiler/pkg/timeseries"
)

// parseRange reads min_date and max_date. Absent bounds are unbounded.
func parseRange(q url.Values) (timeseries.TimeRange, error) {
	r := timeseries.Unbounded()
	for _, bound := range []struct {
		name string
		dst  *float64
	}{
		{"min_date", &r.Min},
		{"max_date", &r.Max},
	} {
		raw := q.Get(bound.name)
		if raw == "" {
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || math.IsNaN(v) {
			return r, fmt.Errorf("%s must be a number, got %q", bound.name, raw)
		}
		*bound.dst = v
	}
	return r, nil
}

func (s *Server) handleFetchData(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	rng, err := parseRange(q)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}

	ctx := r.Context()
	if s.options.FetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.options.FetchTimeout)
		defer cancel()
	}

	bucket, object := q.Get("bucket"), q.Get("object")
	points, err := s.fetcher.Fetch(ctx, bucket, object, rng)
	if err != nil {
		status := writeDomainError(w, err)
		logger := tracing.LoggerFromContext(ctx, s.logger)
		logger.Info().
			Err(err).
			Str("bucket", bucket).
			Str("object", object).
			Int("status", status).
			Msg("Dataset fetch failed")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := timeseries.Encode(w, points); err != nil {
		logger := tracing.LoggerFromContext(ctx, s.logger)
		logger.Warn().Err(err).Msg("Failed to write dataset")
	}
}

// handleDummyData returns two random points at date x, one per demo series.
func (s *Server) handleDummyData(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("x")
	if raw == "" {
		writeError(w, http.StatusBadRequest, CodeMissingParameter, `missing parameter "x"`)
		return
	}
	x, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, fmt.Sprintf("x must be an integer, got %q", raw))
		return
	}

	points := []timeseries.DataPoint{
		{Timestamp: float64(x), Value: rand.Float64(), Series: "0"},
		{Timestamp: float64(x), Value: rand.Float64(), Series: "1"},
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = timeseries.Encode(w, points)
}
