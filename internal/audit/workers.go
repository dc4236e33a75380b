package audit

import (
	"context"

	"github.com/cloudwarden/cloudwarden/internal/metrics"
	"github.com/cloudwarden/cloudwarden/internal/plugin"
	"github.com/cloudwarden/cloudwarden/internal/record"
)

// runCloudWorker drives one cloud reader to exhaustion, fanning every
// record it yields out to every store queue and every event queue
// (spec.md §4.4 step 4), then calls Done exactly once.
func (g *Graph) runCloudWorker(ctx context.Context, ref PluginRef) {
	defer g.cloudWG.Done()

	reader, ok := ref.Instance.(plugin.CloudReader)
	if !ok {
		g.log.Error().Str("plugin", ref.Class).Msg("instance does not implement CloudReader")
		return
	}

	id := g.identity(ref)
	workerName := id.WorkerName()
	defer reader.Done()

	var cursor plugin.RecordCursor
	err := plugin.Guard(func() error {
		var readErr error
		cursor, readErr = reader.Read(ctx)
		return readErr
	})
	if err != nil {
		plugin.LogFailure(g.log, workerName, "read", err)
		return
	}

	for {
		rec, more, err := cursor.Next(ctx)
		if err != nil {
			plugin.LogFailure(g.log, workerName, "read", err)
			return
		}
		if !more {
			return
		}
		rec = record.EnrichOrigin(rec, id, record.OriginCloud)
		metrics.RecordsEmitted.WithLabelValues(g.spec.AuditKey, workerName).Inc()
		g.fanOut(ctx, g.storeQ, "store", rec)
		g.fanOut(ctx, g.eventQ, "event", rec)
	}
}

// runEventWorker reads from its queue until a sentinel, evaluating every
// data record and fanning the derived records out to every alert queue.
// Control records are not forwarded to Eval (spec.md §3: "event
// evaluators do not receive them") and are not relayed to the alert
// queues either: alert framing is injected directly by InjectBeginAudit
// and CloseAlerts, so a relayed marker would be a duplicate.
func (g *Graph) runEventWorker(ctx context.Context, ref PluginRef, in <-chan Envelope) {
	defer g.eventWG.Done()

	evaluator, ok := ref.Instance.(plugin.EventEvaluator)
	if !ok {
		g.log.Error().Str("plugin", ref.Class).Msg("instance does not implement EventEvaluator")
		drainUntilSentinel(in)
		return
	}

	id := g.identity(ref)
	workerName := id.WorkerName()
	defer evaluator.Done()

	for env := range in {
		if env.Sentinel {
			return
		}
		if env.Record.IsControl() {
			continue
		}

		var cursor plugin.RecordCursor
		err := plugin.Guard(func() error {
			var evalErr error
			cursor, evalErr = evaluator.Eval(ctx, env.Record)
			return evalErr
		})
		if err != nil {
			plugin.LogFailure(g.log, workerName, "eval", err)
			continue
		}

		for {
			derived, more, err := cursor.Next(ctx)
			if err != nil {
				plugin.LogFailure(g.log, workerName, "eval", err)
				break
			}
			if !more {
				break
			}
			derived = record.EnrichOrigin(derived, id, record.OriginEvent)
			metrics.RecordsEmitted.WithLabelValues(g.spec.AuditKey, workerName).Inc()
			g.fanOut(ctx, g.alertQ, "alert", derived)
		}
	}
}

// runStoreWorker writes every record from its queue until a sentinel.
func (g *Graph) runStoreWorker(ctx context.Context, ref PluginRef, in <-chan Envelope) {
	defer g.storeWG.Done()
	g.runSink(ctx, ref, in, record.TargetStore)
}

// runAlertWorker writes every record from its queue until a sentinel.
func (g *Graph) runAlertWorker(ctx context.Context, ref PluginRef, in <-chan Envelope) {
	defer g.alertWG.Done()
	g.runSink(ctx, ref, in, record.TargetAlert)
}

// runSink implements the shared store/alert worker body: write every
// record from in until a sentinel, call Done exactly once, and never
// forward anything downstream (spec.md §3 invariant 3).
func (g *Graph) runSink(ctx context.Context, ref PluginRef, in <-chan Envelope, target record.TargetType) {
	sink, ok := ref.Instance.(plugin.Sink)
	if !ok {
		g.log.Error().Str("plugin", ref.Class).Msg("instance does not implement Sink")
		drainUntilSentinel(in)
		return
	}

	id := g.identity(ref)
	workerName := id.WorkerName()
	defer sink.Done()

	method := "write"
	for env := range in {
		if env.Sentinel {
			return
		}
		rec := record.EnrichTarget(env.Record, id, target)
		err := plugin.Guard(func() error {
			return sink.Write(ctx, rec)
		})
		if err != nil {
			metrics.PluginErrors.WithLabelValues(g.spec.AuditKey, workerName, method).Inc()
			plugin.LogFailure(g.log, workerName, method, err)
		}
	}
}

// drainUntilSentinel discards records until the sentinel, so a
// misconfigured worker (wrong plugin role) does not block upstream
// senders forever.
func drainUntilSentinel(in <-chan Envelope) {
	for env := range in {
		if env.Sentinel {
			return
		}
	}
}
