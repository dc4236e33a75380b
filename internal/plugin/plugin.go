// Package plugin defines the four role contracts every plugin instance
// implements, and the uniform failure policy the engine applies around
// every call into plugin code.
package plugin

import (
	"context"

	"github.com/cloudwarden/cloudwarden/internal/record"
)

// RecordCursor is a lazy, finite, non-restartable sequence of records.
// Next returns ok=false with a nil error once the sequence is exhausted,
// or a non-nil error if producing the next record failed; either ends the
// sequence.
type RecordCursor interface {
	Next(ctx context.Context) (rec record.Record, ok bool, err error)
}

// CloudReader produces records from a cloud provider (or any other
// external system treated as a provider for audit purposes).
type CloudReader interface {
	// Read returns a lazy cursor over the records this run should audit.
	Read(ctx context.Context) (RecordCursor, error)
	// Done releases reader resources. Called exactly once per run.
	Done()
}

// EventEvaluator derives zero or more records from each input record.
type EventEvaluator interface {
	// Eval returns a lazy cursor over the records derived from rec.
	Eval(ctx context.Context, rec record.Record) (RecordCursor, error)
	Done()
}

// Sink consumes records terminally. StoreSink and AlertSink are both this
// same contract; the only distinction between a store and an alert is
// which queue it is attached to in the audit graph (spec.md §4.1).
type Sink interface {
	Write(ctx context.Context, rec record.Record) error
	Done()
}

// StoreSink persists records.
type StoreSink = Sink

// AlertSink delivers records to humans or external systems.
type AlertSink = Sink
