// Package auditrunner orchestrates a single audit from start to
// completion: start/end notifications bracketing the exact 10-step
// worker-graph sequence spec.md §4.5 specifies.
package auditrunner

import (
	"context"
	"crypto/rand"
	"time"

	"github.com/cloudwarden/cloudwarden/internal/audit"
	"github.com/cloudwarden/cloudwarden/internal/notify"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
)

// Spec describes one audit to run: its key, the plugin refs wired into
// each role, and the queue buffer size to use.
type Spec struct {
	AuditKey   string
	Clouds     []audit.PluginRef
	Events     []audit.PluginRef
	Stores     []audit.PluginRef
	Alerts     []audit.PluginRef
	BufferSize int
}

// Run executes one audit end-to-end: mints an audit_version, assembles
// the graph, and drives it through the runner's 10 steps, sending start/
// end notifications via notifier. It blocks until the run completes.
func Run(ctx context.Context, spec Spec, notifier notify.Notifier, log zerolog.Logger) error {
	startedAt := time.Now()
	if err := notifier.Start(spec.AuditKey, startedAt); err != nil {
		log.Error().Err(err).Str("audit_key", spec.AuditKey).Msg("start notification failed")
	}

	g := audit.New(audit.Spec{
		AuditKey:     spec.AuditKey,
		AuditVersion: newAuditVersion(startedAt),
		Clouds:       spec.Clouds,
		Events:       spec.Events,
		Stores:       spec.Stores,
		Alerts:       spec.Alerts,
		BufferSize:   spec.BufferSize,
	}, log.With().Str("audit_key", spec.AuditKey).Logger())

	// Steps 2-3: start sinks, then frame them with begin_audit, before any
	// source is started (spec.md §4.5: "Step 3 must happen before step 4
	// so that no data record can overtake the begin_audit marker").
	g.StartSinks(ctx)
	g.InjectBeginAudit(ctx)

	// Step 4-5: start sources, wait for clouds only.
	g.StartSources(ctx)
	g.WaitClouds()

	// Step 6-7: close stores+events, then join them. Kept as two distinct
	// joins (not one WaitGroup) because step 8 must not fire until event
	// workers - who can still be producing alert records after clouds
	// finished - have actually stopped.
	g.CloseStoresAndEvents(ctx)
	g.WaitStoresAndEvents()

	// Step 8-9.
	g.CloseAlerts(ctx)
	g.WaitAlerts()

	endedAt := time.Now()
	if err := notifier.End(spec.AuditKey, startedAt, endedAt); err != nil {
		log.Error().Err(err).Str("audit_key", spec.AuditKey).Msg("end notification failed")
	}
	return nil
}

func newAuditVersion(at time.Time) string {
	entropy := ulid.Monotonic(rand.Reader, 0)
	return ulid.MustNew(ulid.Timestamp(at), entropy).String()
}
