package audit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cloudwarden/cloudwarden/internal/plugin"
	"github.com/cloudwarden/cloudwarden/internal/record"
	"github.com/rs/zerolog"
)

// fakeCloud emits a fixed slice of records then is done.
type fakeCloud struct {
	recs []record.Record
	done bool
}

func (f *fakeCloud) Read(ctx context.Context) (plugin.RecordCursor, error) {
	return plugin.NewSliceCursor(f.recs), nil
}
func (f *fakeCloud) Done() { f.done = true }

// fakeEvent evaluates every input through a user-supplied function.
type fakeEvent struct {
	evalFn func(record.Record) []record.Record
	done   bool
}

func (f *fakeEvent) Eval(ctx context.Context, rec record.Record) (plugin.RecordCursor, error) {
	return plugin.NewSliceCursor(f.evalFn(rec)), nil
}
func (f *fakeEvent) Done() { f.done = true }

// fakeSink records every write it observes, optionally failing on a
// specific 1-based call index.
type fakeSink struct {
	mu        sync.Mutex
	seen      []record.Record
	failOn    int
	calls     int
	doneCalls int
}

func (f *fakeSink) Write(ctx context.Context, rec record.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failOn != 0 && f.calls == f.failOn {
		return errors.New("write failed")
	}
	f.seen = append(f.seen, rec)
	return nil
}
func (f *fakeSink) Done() { f.doneCalls++ }

func (f *fakeSink) snapshot() []record.Record {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]record.Record, len(f.seen))
	copy(out, f.seen)
	return out
}

// runAudit drives a Graph through the graph steps (2-9) of the runner's
// sequence (spec.md §4.5), without the start/end notifications, standing
// in for internal/auditrunner so this package's
// tests can exercise the graph end-to-end without that dependency.
func runAudit(ctx context.Context, g *Graph) {
	g.StartSinks(ctx)
	g.InjectBeginAudit(ctx)
	g.StartSources(ctx)
	g.WaitClouds()
	g.CloseStoresAndEvents(ctx)
	g.WaitStoresAndEvents()
	g.CloseAlerts(ctx)
	g.WaitAlerts()
}

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func withTimeout(t *testing.T, fn func(ctx context.Context)) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	done := make(chan struct{})
	go func() {
		fn(ctx)
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		t.Fatal("audit run timed out")
	}
}

// TestScenarioS1: one cloud, one store, no events/alerts.
func TestScenarioS1(t *testing.T) {
	cloud := &fakeCloud{recs: []record.Record{
		{Raw: map[string]interface{}{"i": 0}, Ext: map[string]interface{}{}, Com: record.Com{Extra: map[string]interface{}{}}},
		{Raw: map[string]interface{}{"i": 1}, Ext: map[string]interface{}{}, Com: record.Com{Extra: map[string]interface{}{}}},
	}}
	store := &fakeSink{}

	spec := Spec{
		AuditKey:     "s1",
		AuditVersion: "v1",
		Clouds:       []PluginRef{{Key: "c1", Class: "plugins/mockcloud.MockCloud", Instance: cloud}},
		Stores:       []PluginRef{{Key: "s1store", Class: "plugins/filestore.FileStore", Instance: store}},
	}
	g := New(spec, testLogger())

	withTimeout(t, func(ctx context.Context) { runAudit(ctx, g) })

	seen := store.snapshot()
	if len(seen) != 4 {
		t.Fatalf("store saw %d records, want 4 (begin, 2 data, end)", len(seen))
	}
	if seen[0].Com.RecordType != record.RecordTypeBeginAudit {
		t.Fatalf("first record = %+v, want begin_audit", seen[0].Com)
	}
	if seen[3].Com.RecordType != record.RecordTypeEndAudit {
		t.Fatalf("last record = %+v, want end_audit", seen[3].Com)
	}
	for _, rec := range seen[1:3] {
		if rec.Com.OriginType != record.OriginCloud {
			t.Fatalf("data record origin_type = %q, want cloud", rec.Com.OriginType)
		}
		if rec.Com.OriginWorker != "s1_c1" {
			t.Fatalf("data record origin_worker = %q, want s1_c1", rec.Com.OriginWorker)
		}
	}
	if store.doneCalls != 1 {
		t.Fatalf("store.Done called %d times, want 1", store.doneCalls)
	}
	if !cloud.done {
		t.Fatal("cloud.Done was not called")
	}
}

// TestScenarioS2: one cloud, one event evaluator, one alert.
func TestScenarioS2(t *testing.T) {
	cloud := &fakeCloud{recs: []record.Record{
		{Raw: map[string]interface{}{"data": "x"}, Ext: map[string]interface{}{}, Com: record.Com{Extra: map[string]interface{}{}}},
	}}
	event2 := &fakeEvent{evalFn: func(in record.Record) []record.Record {
		return []record.Record{
			{Ext: map[string]interface{}{"len": 1}, Raw: map[string]interface{}{}, Com: record.Com{Extra: map[string]interface{}{}}},
			{Ext: map[string]interface{}{"upper": "X"}, Raw: map[string]interface{}{}, Com: record.Com{Extra: map[string]interface{}{}}},
		}
	}}
	alert := &fakeSink{}

	spec := Spec{
		AuditKey:     "s2",
		AuditVersion: "v1",
		Clouds:       []PluginRef{{Key: "c1", Class: "plugins/mockcloud.MockCloud", Instance: cloud}},
		Events:       []PluginRef{{Key: "e1", Class: "plugins/mockcheck.MockCheck", Instance: event2}},
		Alerts:       []PluginRef{{Key: "a1", Class: "plugins/emailalert.EmailAlert", Instance: alert}},
	}
	g := New(spec, testLogger())

	withTimeout(t, func(ctx context.Context) { runAudit(ctx, g) })

	seen := alert.snapshot()
	if len(seen) != 4 {
		t.Fatalf("alert saw %d records, want 4 (begin, 2 derived, end)", len(seen))
	}
	if seen[0].Com.RecordType != record.RecordTypeBeginAudit || seen[3].Com.RecordType != record.RecordTypeEndAudit {
		t.Fatalf("alert framing wrong: %+v", seen)
	}
	for _, rec := range seen[1:3] {
		if rec.Com.OriginType != record.OriginEvent {
			t.Fatalf("derived record origin_type = %q, want event", rec.Com.OriginType)
		}
	}
	if seen[1].Ext["len"] != 1 || seen[2].Ext["upper"] != "X" {
		t.Fatalf("derived records out of order: %+v", seen[1:3])
	}
}

// TestScenarioS3: fan-out completeness across two stores and two alerts.
func TestScenarioS3(t *testing.T) {
	cloud := &fakeCloud{recs: []record.Record{
		{Raw: map[string]interface{}{"i": 0}, Ext: map[string]interface{}{}, Com: record.Com{Extra: map[string]interface{}{}}},
	}}
	event := &fakeEvent{evalFn: func(record.Record) []record.Record {
		return []record.Record{{Ext: map[string]interface{}{"derived": true}, Raw: map[string]interface{}{}, Com: record.Com{Extra: map[string]interface{}{}}}}
	}}
	store1, store2 := &fakeSink{}, &fakeSink{}
	alert1, alert2 := &fakeSink{}, &fakeSink{}

	spec := Spec{
		AuditKey:     "s3",
		AuditVersion: "v1",
		Clouds:       []PluginRef{{Key: "c1", Instance: cloud}},
		Events:       []PluginRef{{Key: "e1", Instance: event}},
		Stores:       []PluginRef{{Key: "st1", Instance: store1}, {Key: "st2", Instance: store2}},
		Alerts:       []PluginRef{{Key: "al1", Instance: alert1}, {Key: "al2", Instance: alert2}},
	}
	g := New(spec, testLogger())

	withTimeout(t, func(ctx context.Context) { runAudit(ctx, g) })

	for _, s := range []*fakeSink{store1, store2} {
		seen := s.snapshot()
		if len(seen) != 3 {
			t.Fatalf("store saw %d records, want 3 (begin, 1 data, end)", len(seen))
		}
	}
	a1, a2 := alert1.snapshot(), alert2.snapshot()
	if len(a1) != 3 || len(a2) != 3 {
		t.Fatalf("alerts saw %d/%d records, want 3/3", len(a1), len(a2))
	}
	if a1[1].Ext["derived"] != a2[1].Ext["derived"] {
		t.Fatalf("alerts saw divergent derived records: %+v vs %+v", a1[1], a2[1])
	}
}

// TestScenarioS4: a store whose write fails on the second record still
// persists the first and third, and still reaches end_audit/Done.
func TestScenarioS4(t *testing.T) {
	cloud := &fakeCloud{recs: []record.Record{
		{Raw: map[string]interface{}{"i": 0}, Ext: map[string]interface{}{}, Com: record.Com{Extra: map[string]interface{}{}}},
		{Raw: map[string]interface{}{"i": 1}, Ext: map[string]interface{}{}, Com: record.Com{Extra: map[string]interface{}{}}},
		{Raw: map[string]interface{}{"i": 2}, Ext: map[string]interface{}{}, Com: record.Com{Extra: map[string]interface{}{}}},
	}}
	// failOn counts calls including begin_audit (call 1), so the second
	// *data* record is call 3.
	store := &fakeSink{failOn: 3}

	spec := Spec{
		AuditKey: "s4",
		Clouds:   []PluginRef{{Key: "c1", Instance: cloud}},
		Stores:   []PluginRef{{Key: "st1", Instance: store}},
	}
	g := New(spec, testLogger())

	withTimeout(t, func(ctx context.Context) { runAudit(ctx, g) })

	seen := store.snapshot()
	// begin_audit, record 0, (record 1 dropped), record 2, end_audit
	if len(seen) != 4 {
		t.Fatalf("store saw %d records, want 4 (the failed write dropped)", len(seen))
	}
	if seen[len(seen)-1].Com.RecordType != record.RecordTypeEndAudit {
		t.Fatalf("last record = %+v, want end_audit", seen[len(seen)-1].Com)
	}
	if store.doneCalls != 1 {
		t.Fatalf("store.Done called %d times, want 1", store.doneCalls)
	}
}

// TestMismatchedRoleDrainsWithoutDeadlock: a plugin instance not
// implementing the expected role must not hang the run.
func TestMismatchedRoleDrainsWithoutDeadlock(t *testing.T) {
	cloud := &fakeCloud{recs: []record.Record{
		{Raw: map[string]interface{}{}, Ext: map[string]interface{}{}, Com: record.Com{Extra: map[string]interface{}{}}},
	}}
	spec := Spec{
		AuditKey: "s5",
		Clouds:   []PluginRef{{Key: "c1", Instance: cloud}},
		Stores:   []PluginRef{{Key: "bad", Class: "broken.NotASink", Instance: struct{}{}}},
	}
	g := New(spec, testLogger())
	withTimeout(t, func(ctx context.Context) { runAudit(ctx, g) })
}
