package auditrunner

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cloudwarden/cloudwarden/internal/audit"
	"github.com/cloudwarden/cloudwarden/internal/plugin"
	"github.com/cloudwarden/cloudwarden/internal/record"
	"github.com/rs/zerolog"
)

type fakeCloud struct {
	recs []record.Record
	done bool
}

func (f *fakeCloud) Read(ctx context.Context) (plugin.RecordCursor, error) {
	return plugin.NewSliceCursor(f.recs), nil
}
func (f *fakeCloud) Done() { f.done = true }

type fakeSink struct {
	mu        sync.Mutex
	seen      []record.Record
	doneCalls int
}

func (f *fakeSink) Write(ctx context.Context, rec record.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen = append(f.seen, rec)
	return nil
}
func (f *fakeSink) Done() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.doneCalls++
}
func (f *fakeSink) snapshot() []record.Record {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]record.Record, len(f.seen))
	copy(out, f.seen)
	return out
}

type recordingNotifier struct {
	mu         sync.Mutex
	startCalls []string
	endCalls   []string
}

func (n *recordingNotifier) Start(subject string, at time.Time) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.startCalls = append(n.startCalls, subject)
	return nil
}
func (n *recordingNotifier) End(subject string, startedAt, endedAt time.Time) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.endCalls = append(n.endCalls, subject)
	return nil
}

func TestRunEmitsNotificationsAndFramesStore(t *testing.T) {
	cloud := &fakeCloud{recs: []record.Record{
		{Raw: map[string]interface{}{"i": 0}, Ext: map[string]interface{}{}, Com: record.Com{Extra: map[string]interface{}{}}},
	}}
	store := &fakeSink{}
	n := &recordingNotifier{}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := Run(ctx, Spec{
		AuditKey: "audit1",
		Clouds:   []audit.PluginRef{{Key: "c1", Instance: cloud}},
		Stores:   []audit.PluginRef{{Key: "s1", Instance: store}},
	}, n, zerolog.Nop())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(n.startCalls) != 1 || n.startCalls[0] != "audit1" {
		t.Fatalf("start notifications = %v, want [audit1]", n.startCalls)
	}
	if len(n.endCalls) != 1 || n.endCalls[0] != "audit1" {
		t.Fatalf("end notifications = %v, want [audit1]", n.endCalls)
	}

	seen := store.snapshot()
	if len(seen) != 3 {
		t.Fatalf("store saw %d records, want 3 (begin, data, end)", len(seen))
	}
	if seen[0].Com.RecordType != record.RecordTypeBeginAudit {
		t.Fatalf("first = %+v, want begin_audit", seen[0].Com)
	}
	if seen[2].Com.RecordType != record.RecordTypeEndAudit {
		t.Fatalf("last = %+v, want end_audit", seen[2].Com)
	}
	if seen[0].Com.AuditVersion == "" {
		t.Fatal("audit_version was not stamped")
	}
	if store.doneCalls != 1 {
		t.Fatalf("store.Done called %d times, want 1", store.doneCalls)
	}
}
