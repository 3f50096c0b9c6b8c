// Package timeseries holds the data point model, the inclusive time-range filter
// and the codecs that turn stored objects into points.
//
// Datasets are order-independent: any permutation of the points describes the same
// series, so callers must not rely on ordering even though Filter is stable.
package timeseries
