// Package mockcloud is a cloud reader that generates synthetic records,
// for exercising the engine and config without a real cloud account.
package mockcloud

import (
	"context"

	"github.com/cloudwarden/cloudwarden/internal/plugin"
	"github.com/cloudwarden/cloudwarden/internal/pluginloader"
	"github.com/cloudwarden/cloudwarden/internal/record"
)

func init() {
	pluginloader.Register("plugins/mockcloud.MockCloud", New)
}

// MockCloud yields record_count records, cycling record_type through
// record_types.
type MockCloud struct {
	recordCount int
	recordTypes []string
}

// New constructs a MockCloud from its descriptor params: record_count
// (default 10) and record_types (default ["foo", "bar"]).
func New(params map[string]interface{}) (interface{}, error) {
	m := &MockCloud{recordCount: 10, recordTypes: []string{"foo", "bar"}}
	if v, ok := params["record_count"].(int); ok {
		m.recordCount = v
	}
	if v, ok := params["record_types"].([]interface{}); ok && len(v) > 0 {
		types := make([]string, 0, len(v))
		for _, t := range v {
			if s, ok := t.(string); ok {
				types = append(types, s)
			}
		}
		if len(types) > 0 {
			m.recordTypes = types
		}
	}
	return m, nil
}

// Read implements plugin.CloudReader.
func (m *MockCloud) Read(ctx context.Context) (plugin.RecordCursor, error) {
	recs := make([]record.Record, 0, m.recordCount)
	n := len(m.recordTypes)
	for i := 0; i < m.recordCount; i++ {
		rec := record.New()
		rec.Raw["record_num"] = i
		rec.Ext["record_type"] = m.recordTypes[i%n]
		recs = append(recs, rec)
	}
	return plugin.NewSliceCursor(recs), nil
}

// Done implements plugin.CloudReader.
func (m *MockCloud) Done() {}
