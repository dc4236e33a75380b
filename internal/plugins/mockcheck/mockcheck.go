// Package mockcheck is an event evaluator that flags mock cloud records
// whose record_num is a multiple of a configured n.
package mockcheck

import (
	"context"

	"github.com/cloudwarden/cloudwarden/internal/plugin"
	"github.com/cloudwarden/cloudwarden/internal/pluginloader"
	"github.com/cloudwarden/cloudwarden/internal/record"
)

func init() {
	pluginloader.Register("plugins/mockcheck.MockCheck", New)
}

// MockCheck emits one derived event record for every input whose
// record_num is a multiple of n.
type MockCheck struct {
	n int
}

// New constructs a MockCheck from its descriptor params: n (default 3).
func New(params map[string]interface{}) (interface{}, error) {
	c := &MockCheck{n: 3}
	if v, ok := params["n"].(int); ok {
		c.n = v
	}
	return c, nil
}

// Eval implements plugin.EventEvaluator.
func (c *MockCheck) Eval(ctx context.Context, rec record.Record) (plugin.RecordCursor, error) {
	num, _ := rec.Raw["record_num"].(int)
	if c.n == 0 || num%c.n != 0 {
		return plugin.EmptyCursor, nil
	}

	derived := record.New()
	derived.Ext["record_type"] = "mock_event"
	derived.Ext["n"] = c.n
	derived.Ext["cloud_record_num"] = num
	return plugin.NewSliceCursor([]record.Record{derived}), nil
}

// Done implements plugin.EventEvaluator.
func (c *MockCheck) Done() {}
