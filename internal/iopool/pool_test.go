package iopool

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/cloudwarden/cloudwarden/internal/record"
)

func drain(t *testing.T, ch <-chan record.Record) []int {
	t.Helper()
	var got []int
	timeout := time.After(5 * time.Second)
	for {
		select {
		case rec, ok := <-ch:
			if !ok {
				sort.Ints(got)
				return got
			}
			got = append(got, rec.Raw["n"].(int))
		case <-timeout:
			t.Fatalf("timed out draining pool output")
		}
	}
}

// TestRunCompletenessNxK is testable property #8.7: for P,T >= 1 and a
// producer yielding N tasks each emitting k records, the output contains
// exactly N*k records.
func TestRunCompletenessNxK(t *testing.T) {
	const n, k = 7, 3

	produce := func(ctx context.Context, emit func(Task)) {
		for i := 0; i < n; i++ {
			emit(Task{i})
		}
	}
	consume := func(ctx context.Context, task Task, emit func(record.Record)) {
		base := task[0].(int)
		for j := 0; j < k; j++ {
			rec := record.New()
			rec.Raw["n"] = base*k + j
			emit(rec)
		}
	}

	out := Run(context.Background(), produce, consume, 2, 2, "test")
	got := drain(t, out)
	if len(got) != n*k {
		t.Fatalf("got %d records, want %d", len(got), n*k)
	}
}

// TestRunMultisetS6 mirrors scenario S6: P=2, T=3, tasks (1),(2),(3),(4),
// consume(n) -> [n, n*n].
func TestRunMultisetS6(t *testing.T) {
	tasks := []int{1, 2, 3, 4}
	produce := func(ctx context.Context, emit func(Task)) {
		for _, n := range tasks {
			emit(Task{n})
		}
	}
	consume := func(ctx context.Context, task Task, emit func(record.Record)) {
		n := task[0].(int)
		for _, v := range []int{n, n * n} {
			rec := record.New()
			rec.Raw["n"] = v
			emit(rec)
		}
	}

	out := Run(context.Background(), produce, consume, 2, 3, "s6")
	got := drain(t, out)

	want := []int{1, 1, 2, 4, 3, 9, 4, 16}
	sort.Ints(want)
	if len(got) != len(want) {
		t.Fatalf("got %v, want multiset %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want multiset %v", got, want)
		}
	}
}

func TestRunTaskPanicIsolated(t *testing.T) {
	produce := func(ctx context.Context, emit func(Task)) {
		emit(Task{1})
		emit(Task{2})
	}
	consume := func(ctx context.Context, task Task, emit func(record.Record)) {
		if task[0].(int) == 1 {
			panic("boom")
		}
		rec := record.New()
		rec.Raw["n"] = task[0]
		emit(rec)
	}

	out := Run(context.Background(), produce, consume, 1, 2, "panic")
	got := drain(t, out)
	if len(got) != 1 || got[0] != 2 {
		t.Fatalf("got %v, want only task 2's record to survive", got)
	}
}

func TestRunDefaultsProcessesAndThreads(t *testing.T) {
	produce := func(ctx context.Context, emit func(Task)) { emit(Task{1}) }
	consume := func(ctx context.Context, task Task, emit func(record.Record)) {
		rec := record.New()
		rec.Raw["n"] = 1
		emit(rec)
	}

	out := Run(context.Background(), produce, consume, 0, 0, "defaults")
	got := drain(t, out)
	if len(got) != 1 {
		t.Fatalf("got %d records, want 1", len(got))
	}
}
