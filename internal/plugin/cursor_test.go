package plugin

import (
	"context"
	"testing"

	"github.com/cloudwarden/cloudwarden/internal/record"
)

func TestChannelCursorDrainsUntilClose(t *testing.T) {
	ch := make(chan record.Record, 2)
	ch <- record.New()
	ch <- record.New()
	close(ch)

	cursor := NewChannelCursor(ch)
	count := 0
	for {
		_, ok, err := cursor.Next(context.Background())
		if err != nil {
			t.Fatalf("Next() error = %v", err)
		}
		if !ok {
			break
		}
		count++
	}
	if count != 2 {
		t.Fatalf("count = %d, want 2", count)
	}
}

func TestChannelCursorRespectsContextCancellation(t *testing.T) {
	ch := make(chan record.Record)
	cursor := NewChannelCursor(ch)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, ok, err := cursor.Next(ctx)
	if ok || err == nil {
		t.Fatalf("expected cancellation error, got ok=%v err=%v", ok, err)
	}
}

func TestSliceCursorYieldsInOrderThenEmpty(t *testing.T) {
	a, b := record.New(), record.New()
	a.Ext["i"] = 1
	b.Ext["i"] = 2
	cursor := NewSliceCursor([]record.Record{a, b})

	first, ok, _ := cursor.Next(context.Background())
	if !ok || first.Ext["i"] != 1 {
		t.Fatalf("first = %+v, ok = %v", first, ok)
	}
	second, ok, _ := cursor.Next(context.Background())
	if !ok || second.Ext["i"] != 2 {
		t.Fatalf("second = %+v, ok = %v", second, ok)
	}
	_, ok, _ = cursor.Next(context.Background())
	if ok {
		t.Fatal("expected exhausted cursor")
	}
}
