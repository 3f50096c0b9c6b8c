package timeseries

import (
	"bytes"
	"fmt"
	"io"

	"github.com/parquet-go/parquet-go"
)

// parquetRow is the column layout of parquet datasets.
type parquetRow struct {
	Date  float64 `parquet:"date"`
	Value float64 `parquet:"value"`
	Type  string  `parquet:"type"`
}

// ParquetCodec reads datasets exported as parquet files with date/value/type columns.
type ParquetCodec struct{}

func (ParquetCodec) Name() string { return "parquet" }

func (ParquetCodec) Decode(data []byte) ([]DataPoint, error) {
	rows, err := parquet.Read[parquetRow](bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	points := make([]DataPoint, 0, len(rows))
	for _, row := range rows {
		points = append(points, DataPoint{
			Timestamp: row.Date,
			Value:     row.Value,
			Series:    row.Type,
		})
	}
	return points, nil
}

// WriteParquet writes points in the layout ParquetCodec reads.
func WriteParquet(w io.Writer, points []DataPoint) error {
	rows := make([]parquetRow, 0, len(points))
	for _, p := range points {
		rows = append(rows, parquetRow{Date: p.Timestamp, Value: p.Value, Type: p.Series})
	}
	return parquet.Write(w, rows)
}
