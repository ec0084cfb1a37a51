package dataset

import (
	"errors"
	"fmt"
	"io"

	"github.com/tidwall/gjson"

	"github.com/rngrant/520-DAVAR-Project/pkg/data"
)

// LoadJSON reads a JSON array of flat objects and builds a Dataset following
// schema. Values are compared in their JSON text form, so a favorable label
// of "0" matches both 0 and "0". Nulls count as missing.
func LoadJSON(r io.Reader, schema Schema, opts ...LoadOption) (*Dataset, error) {
	cfg := newLoadConfig(opts)
	schema = cfg.apply(schema)
	if err := schema.Validate(); err != nil {
		return nil, err
	}
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("dataset: read json: %w", err)
	}
	if !gjson.ValidBytes(raw) {
		return nil, errors.New("dataset: invalid json")
	}
	doc := gjson.ParseBytes(raw)
	if !doc.IsArray() {
		return nil, errors.New("dataset: json root must be an array of records")
	}

	b := newBuilder(schema)
	filtered := 0
	var recErr error
	index := -1
	doc.ForEach(func(_, item gjson.Result) bool {
		index++
		if !item.IsObject() {
			recErr = fmt.Errorf("dataset: json record %d is not an object", index)
			return false
		}
		rec := data.Record{}
		item.ForEach(func(k, v gjson.Result) bool {
			if v.Type != gjson.Null {
				rec[k.String()] = v.String()
			}
			return true
		})
		if cfg.filter != nil && !cfg.filter(rec) {
			filtered++
			return true
		}
		b.add(rec)
		return true
	})
	if recErr != nil {
		return nil, recErr
	}
	cfg.log.Info("dataset loaded", "rows", b.rows, "filtered", filtered, "missing", b.dropped)
	return b.build()
}
