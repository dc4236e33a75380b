// Package iopool provides the bounded producer/worker fan-out cloud
// readers use to execute many remote calls concurrently. The reference
// design (see DESIGN.md) splits this into OS processes times OS threads;
// in Go, goroutines are cheap enough that a single tier of P*T goroutines
// gives the same fan-out with less machinery, so that is what this
// package implements. The two-parameter knob surface (P, T) is kept for
// configuration compatibility with callers that still think in those
// terms.
package iopool

import (
	"context"
	"runtime"

	"github.com/cloudwarden/cloudwarden/internal/record"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Task is an opaque tuple describing one remote call to execute.
type Task []interface{}

// ProduceFunc lazily yields tasks by calling emit for each one. It is
// invoked exactly once, in a single producer goroutine owned by Run.
type ProduceFunc func(ctx context.Context, emit func(Task))

// ConsumeFunc executes one task, calling emit for each record the task
// produces. It is called concurrently from up to P*T worker goroutines,
// never twice for the same task at once.
type ConsumeFunc func(ctx context.Context, task Task, emit func(record.Record))

type taskEnvelope struct {
	task     Task
	sentinel bool
}

type outItem struct {
	rec      record.Record
	sentinel bool
}

// Run executes produce once to obtain tasks, fans each task out to a pool
// of P*T worker goroutines via consume, and returns a channel carrying
// every record any task produced. The returned channel is closed once
// every worker has drained its sentinel and every produced record has
// been forwarded; ordering is preserved only within a single task's own
// output, never across tasks or across the whole pool.
//
// p <= 0 defaults to the host CPU count; t <= 0 defaults to 5x the host
// CPU count. tag labels every log line this pool emits, to tell concurrent
// pools apart.
func Run(ctx context.Context, produce ProduceFunc, consume ConsumeFunc, p, t int, tag string) <-chan record.Record {
	if p <= 0 {
		p = runtime.NumCPU()
	}
	if t <= 0 {
		t = runtime.NumCPU() * 5
	}
	workers := p * t

	taskCh := make(chan taskEnvelope)
	outCh := make(chan outItem)
	results := make(chan record.Record)

	logger := log.With().Str("pool", tag).Logger()

	go runProducer(ctx, produce, taskCh, workers, logger)

	for i := 0; i < workers; i++ {
		go runWorker(ctx, taskCh, outCh, consume, logger)
	}

	go collect(outCh, results, workers, logger)

	return results
}

func runProducer(ctx context.Context, produce ProduceFunc, taskCh chan<- taskEnvelope, workers int, logger zerolog.Logger) {
	func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Error().Interface("panic", r).Msg("task producer panicked")
			}
		}()
		produce(ctx, func(t Task) {
			select {
			case taskCh <- taskEnvelope{task: t}:
			case <-ctx.Done():
			}
		})
	}()

	for i := 0; i < workers; i++ {
		select {
		case taskCh <- taskEnvelope{sentinel: true}:
		case <-ctx.Done():
			return
		}
	}
}

func runWorker(ctx context.Context, taskCh <-chan taskEnvelope, outCh chan<- outItem, consume ConsumeFunc, logger zerolog.Logger) {
	for {
		select {
		case env, ok := <-taskCh:
			if !ok || env.sentinel {
				select {
				case outCh <- outItem{sentinel: true}:
				case <-ctx.Done():
				}
				return
			}
			runTask(ctx, env.task, consume, outCh, logger)
		case <-ctx.Done():
			select {
			case outCh <- outItem{sentinel: true}:
			default:
			}
			return
		}
	}
}

func runTask(ctx context.Context, task Task, consume ConsumeFunc, outCh chan<- outItem, logger zerolog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Interface("task", []interface{}(task)).Msg("task callback panicked")
		}
	}()
	consume(ctx, task, func(rec record.Record) {
		select {
		case outCh <- outItem{rec: rec}:
		case <-ctx.Done():
		}
	})
}

func collect(outCh <-chan outItem, results chan<- record.Record, workers int, logger zerolog.Logger) {
	defer close(results)
	stopped := 0
	for stopped < workers {
		item := <-outCh
		if item.sentinel {
			stopped++
			continue
		}
		results <- item.rec
	}
	logger.Debug().Msg("pool drained")
}
