// Package audit assembles and runs the per-audit worker graph: cloud
// readers fan out to store and event workers, event workers fan out to
// alert workers, and store/alert workers terminate the pipeline.
package audit

import (
	"context"
	"sync"

	"github.com/cloudwarden/cloudwarden/internal/metrics"
	"github.com/cloudwarden/cloudwarden/internal/record"
	"github.com/rs/zerolog"
)

// Envelope is a queue item: either a data record or a sentinel closing
// that queue's consumer down. It is the Go analogue of the Python
// reference's "put None on the queue" shutdown convention.
type Envelope struct {
	Record   record.Record
	Sentinel bool
}

// defaultBufferSize is used when Spec.BufferSize is not positive.
const defaultBufferSize = 256

// Spec is the declarative wiring of one audit, keyed by plugin key against
// the Config.Plugins table the caller resolves before calling New.
type Spec struct {
	AuditKey     string
	AuditVersion string
	Clouds       []PluginRef
	Events       []PluginRef
	Stores       []PluginRef
	Alerts       []PluginRef
	BufferSize   int
}

// PluginRef pairs a configured plugin key/class with its constructed
// instance, already resolved by the caller via pluginloader.
type PluginRef struct {
	Key      string
	Class    string
	Instance interface{}
}

// Graph is the assembled, running (or about-to-run) worker topology for
// one audit. Its methods correspond 1:1 to the runner's graph steps (2-9;
// steps 1 and 10 are the runner's own notifications) so the runner can
// sequence them without reaching into graph internals.
type Graph struct {
	spec   Spec
	log    zerolog.Logger
	alertQ []chan Envelope
	storeQ []chan Envelope
	eventQ []chan Envelope

	alertWG sync.WaitGroup
	storeWG sync.WaitGroup
	eventWG sync.WaitGroup
	cloudWG sync.WaitGroup
}

// New assembles the graph's queues per spec.md §4.4 steps 1-4. It does not
// start any worker goroutines; call StartSinks/StartSources to do that.
func New(spec Spec, log zerolog.Logger) *Graph {
	bufSize := spec.BufferSize
	if bufSize <= 0 {
		bufSize = defaultBufferSize
	}

	g := &Graph{spec: spec, log: log}
	for range spec.Alerts {
		g.alertQ = append(g.alertQ, make(chan Envelope, bufSize))
	}
	for range spec.Events {
		g.eventQ = append(g.eventQ, make(chan Envelope, bufSize))
	}
	for range spec.Stores {
		g.storeQ = append(g.storeQ, make(chan Envelope, bufSize))
	}
	return g
}

func (g *Graph) identity(ref PluginRef) record.Identity {
	return record.Identity{
		AuditKey:     g.spec.AuditKey,
		AuditVersion: g.spec.AuditVersion,
		PluginKey:    ref.Key,
		PluginClass:  ref.Class,
	}
}

// StartSinks starts every store and alert worker (runner step 2).
func (g *Graph) StartSinks(ctx context.Context) {
	for i, ref := range g.spec.Stores {
		g.storeWG.Add(1)
		go g.runStoreWorker(ctx, ref, g.storeQ[i])
	}
	for i, ref := range g.spec.Alerts {
		g.alertWG.Add(1)
		go g.runAlertWorker(ctx, ref, g.alertQ[i])
	}
}

// InjectBeginAudit puts a begin_audit control record on every store and
// alert queue (runner step 3). It must be called before StartSources
// (step 4), so that each queue's FIFO order puts the marker ahead of every
// data record.
func (g *Graph) InjectBeginAudit(ctx context.Context) {
	rec := record.BeginAudit()
	for _, q := range g.storeQ {
		g.send(ctx, q, "store", Envelope{Record: rec})
	}
	for _, q := range g.alertQ {
		g.send(ctx, q, "alert", Envelope{Record: rec})
	}
}

// StartSources starts every cloud and event worker (runner step 4).
func (g *Graph) StartSources(ctx context.Context) {
	for i, ref := range g.spec.Events {
		g.eventWG.Add(1)
		go g.runEventWorker(ctx, ref, g.eventQ[i])
	}
	for _, ref := range g.spec.Clouds {
		g.cloudWG.Add(1)
		go g.runCloudWorker(ctx, ref)
	}
}

// WaitClouds blocks until every cloud worker has exited (runner step 5).
func (g *Graph) WaitClouds() {
	g.cloudWG.Wait()
}

// CloseStoresAndEvents puts end_audit then a sentinel on every store
// queue, and a sentinel on every event queue (runner step 6).
func (g *Graph) CloseStoresAndEvents(ctx context.Context) {
	end := record.EndAudit()
	for _, q := range g.storeQ {
		g.send(ctx, q, "store", Envelope{Record: end})
		g.send(ctx, q, "store", Envelope{Sentinel: true})
	}
	for _, q := range g.eventQ {
		g.send(ctx, q, "event", Envelope{Sentinel: true})
	}
}

// WaitStoresAndEvents blocks until every store and event worker has
// exited (runner step 7).
func (g *Graph) WaitStoresAndEvents() {
	g.storeWG.Wait()
	g.eventWG.Wait()
}

// CloseAlerts puts end_audit then a sentinel on every alert queue (runner
// step 8).
func (g *Graph) CloseAlerts(ctx context.Context) {
	end := record.EndAudit()
	for _, q := range g.alertQ {
		g.send(ctx, q, "alert", Envelope{Record: end})
		g.send(ctx, q, "alert", Envelope{Sentinel: true})
	}
}

// WaitAlerts blocks until every alert worker has exited (runner step 9).
func (g *Graph) WaitAlerts() {
	g.alertWG.Wait()
}

func (g *Graph) send(ctx context.Context, q chan Envelope, queue string, env Envelope) {
	select {
	case q <- env:
		metrics.QueueDepth.WithLabelValues(g.spec.AuditKey, queue).Set(float64(len(q)))
	case <-ctx.Done():
	}
}

func (g *Graph) fanOut(ctx context.Context, qs []chan Envelope, queue string, rec record.Record) {
	for _, q := range qs {
		g.send(ctx, q, queue, Envelope{Record: rec})
	}
}
