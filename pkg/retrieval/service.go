// Package retrieval fetches a stored time-series dataset and trims it to a time range.
//
// Every call reads the object again; there is no cache and no retry. Deadlines come
// from the caller's context.
package retrieval

import (
	"context"
	"errors"
	"time"

	"github.com/harun/smprofiler/internal/observability"
	"github.com/harun/smprofiler/internal/tracing"
	"github.com/harun/smprofiler/pkg/blobstore"
	"github.com/harun/smprofiler/pkg/timeseries"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const opFetch = "fetch"

// Service reads datasets through a blobstore.Client. It holds no mutable state.
type Service struct {
	store    blobstore.Client
	codecFor func(object string) timeseries.Codec
}

// NewService returns a Service reading from store.
func NewService(store blobstore.Client) *Service {
	observability.EnsureRegistered()
	return &Service{store: store, codecFor: timeseries.CodecFor}
}

// Fetch loads bucket/object, decodes it and returns the points inside r.
func (s *Service) Fetch(ctx context.Context, bucket, object string, r timeseries.TimeRange) (points []timeseries.DataPoint, err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, span := tracing.StartSpan(
		ctx,
		"smprofiler.retrieval",
		"retrieval.fetch",
		attribute.String("bucket", bucket),
		attribute.String("object", object),
		attribute.Float64("range.min", r.Min),
		attribute.Float64("range.max", r.Max),
	)
	defer span.End()

	start := time.Now()
	defer func() {
		observability.RecordFetch(fetchStatus(err), time.Since(start), len(points))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return
		}
		span.SetAttributes(attribute.Int("points", len(points)))
	}()

	switch {
	case bucket == "":
		return nil, &Error{Op: opFetch, Param: "bucket", Kind: ErrMissingParameter}
	case object == "":
		return nil, &Error{Op: opFetch, Param: "object", Kind: ErrMissingParameter}
	}

	raw, err := s.store.Get(ctx, bucket, object)
	if err != nil {
		kind := ErrStorage
		if errors.Is(err, blobstore.ErrNotFound) {
			kind = ErrNotFound
		}
		return nil, &Error{Op: opFetch, Bucket: bucket, Object: object, Kind: kind, Err: err}
	}

	codec := s.codecFor(object)
	decoded, err := codec.Decode(raw)
	if err != nil {
		return nil, &Error{Op: opFetch, Bucket: bucket, Object: object, Kind: ErrInvalidData, Err: err}
	}
	span.SetAttributes(attribute.String("codec", codec.Name()), attribute.Int("points.decoded", len(decoded)))

	return timeseries.Filter(decoded, r), nil
}

func fetchStatus(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrMissingParameter):
		return "missing_parameter"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidData):
		return "invalid_data"
	default:
		return "storage_error"
	}
}
