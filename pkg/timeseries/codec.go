package timeseries

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

// ErrMalformed is wrapped by every decode failure.
var ErrMalformed = errors.New("malformed dataset")

// maxReportedViolations caps how many schema violations end up in an error message.
const maxReportedViolations = 5

// datasetSchema accepts an array of {date:number, value:number, type:string}.
// Extra per-point fields are allowed and passed through.
const datasetSchema = `{
	"type": "array",
	"items": {
		"type": "object",
		"required": ["date", "value", "type"],
		"properties": {
			"date":  {"type": "number"},
			"value": {"type": "number"},
			"type":  {"type": "string"}
		}
	}
}`

var compiledSchema = sync.OnceValues(func() (*gojsonschema.Schema, error) {
	return gojsonschema.NewSchema(gojsonschema.NewStringLoader(datasetSchema))
})

// Codec decodes a stored dataset into points.
type Codec interface {
	Name() string
	Decode(data []byte) ([]DataPoint, error)
}

// CodecFor picks a codec from the object key's extension. JSON is the default.
func CodecFor(object string) Codec {
	switch strings.ToLower(path.Ext(object)) {
	case ".parquet":
		return ParquetCodec{}
	default:
		return JSONCodec{}
	}
}

// JSONCodec reads the array-of-objects layout.
type JSONCodec struct{}

func (JSONCodec) Name() string { return "json" }

// Decode validates data against the dataset schema and decodes it.
func (JSONCodec) Decode(data []byte) ([]DataPoint, error) {
	if !json.Valid(data) {
		return nil, fmt.Errorf("%w: not valid JSON", ErrMalformed)
	}

	schema, err := compiledSchema()
	if err != nil {
		return nil, fmt.Errorf("compile dataset schema: %w", err)
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if !result.Valid() {
		violations := []string{}
		for i, verr := range result.Errors() {
			if i == maxReportedViolations {
				violations = append(violations, fmt.Sprintf("and %d more", len(result.Errors())-i))
				break
			}
			violations = append(violations, verr.String())
		}
		return nil, fmt.Errorf("%w: %s", ErrMalformed, strings.Join(violations, "; "))
	}

	var points []DataPoint
	if err := json.Unmarshal(data, &points); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if points == nil {
		points = []DataPoint{}
	}
	return points, nil
}

// Encode writes points as a JSON array. A nil slice is written as [].
func Encode(w io.Writer, points []DataPoint) error {
	if points == nil {
		points = []DataPoint{}
	}
	return json.NewEncoder(w).Encode(points)
}
