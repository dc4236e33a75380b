package supervisor

import (
	"context"
	"testing"
	"time"

	"github.com/cloudwarden/cloudwarden/internal/config"
	"github.com/cloudwarden/cloudwarden/internal/plugin"
	"github.com/cloudwarden/cloudwarden/internal/pluginloader"
	"github.com/cloudwarden/cloudwarden/internal/record"
	"github.com/rs/zerolog"
)

type stubCloud struct{}

func (stubCloud) Read(ctx context.Context) (plugin.RecordCursor, error) {
	return plugin.NewSliceCursor([]record.Record{record.New()}), nil
}
func (stubCloud) Done() {}

type stubSink struct{}

func (stubSink) Write(ctx context.Context, rec record.Record) error { return nil }
func (stubSink) Done()                                              {}

func init() {
	pluginloader.Register("supervisor_test.StubCloud", func(map[string]interface{}) (interface{}, error) {
		return stubCloud{}, nil
	})
	pluginloader.Register("supervisor_test.StubSink", func(map[string]interface{}) (interface{}, error) {
		return stubSink{}, nil
	})
}

func TestRunOnceResolvesAndRunsConfiguredAudits(t *testing.T) {
	cfg := &config.Config{
		Plugins: map[string]pluginloader.Descriptor{
			"c1": {Class: "supervisor_test.StubCloud"},
			"s1": {Class: "supervisor_test.StubSink"},
		},
		Audits: map[string]config.AuditConfig{
			"demo": {Clouds: []string{"c1"}, Stores: []string{"s1"}},
		},
		Run: []string{"demo"},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := RunOnce(ctx, cfg, zerolog.Nop()); err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}
}

func TestRunOnceRejectsUndefinedAudit(t *testing.T) {
	cfg := &config.Config{Run: []string{"missing"}}
	if err := RunOnce(context.Background(), cfg, zerolog.Nop()); err == nil {
		t.Fatal("expected error for undefined audit key")
	}
}

func TestRunOnceRejectsUnresolvablePluginKey(t *testing.T) {
	cfg := &config.Config{
		Audits: map[string]config.AuditConfig{
			"demo": {Clouds: []string{"missing"}},
		},
		Run: []string{"demo"},
	}
	if err := RunOnce(context.Background(), cfg, zerolog.Nop()); err == nil {
		t.Fatal("expected error for unresolvable plugin key")
	}
}
