package plugin

import (
	"context"

	"github.com/cloudwarden/cloudwarden/internal/record"
)

// SliceCursor adapts a pre-computed slice of records to RecordCursor, for
// plugins whose output is naturally eager (most illustrative plugins).
type SliceCursor struct {
	records []record.Record
	pos     int
}

// NewSliceCursor wraps recs as a RecordCursor.
func NewSliceCursor(recs []record.Record) *SliceCursor {
	return &SliceCursor{records: recs}
}

// Next implements RecordCursor.
func (c *SliceCursor) Next(ctx context.Context) (record.Record, bool, error) {
	if c.pos >= len(c.records) {
		return record.Record{}, false, nil
	}
	rec := c.records[c.pos]
	c.pos++
	return rec, true, nil
}

// EmptyCursor is a RecordCursor that yields nothing.
var EmptyCursor RecordCursor = emptyCursor{}

type emptyCursor struct{}

func (emptyCursor) Next(ctx context.Context) (record.Record, bool, error) {
	return record.Record{}, false, nil
}

// FuncCursor adapts a pull function to RecordCursor.
type FuncCursor func(ctx context.Context) (record.Record, bool, error)

// Next implements RecordCursor.
func (f FuncCursor) Next(ctx context.Context) (record.Record, bool, error) {
	return f(ctx)
}

// ChannelCursor adapts a receive-only record channel, such as the one
// returned by iopool.Run, to RecordCursor.
type ChannelCursor struct {
	ch <-chan record.Record
}

// NewChannelCursor wraps ch as a RecordCursor.
func NewChannelCursor(ch <-chan record.Record) *ChannelCursor {
	return &ChannelCursor{ch: ch}
}

// Next implements RecordCursor. It returns ok=false once ch is closed, or
// if ctx is done first, in which case it returns ctx.Err().
func (c *ChannelCursor) Next(ctx context.Context) (record.Record, bool, error) {
	select {
	case rec, ok := <-c.ch:
		if !ok {
			return record.Record{}, false, nil
		}
		return rec, true, nil
	case <-ctx.Done():
		return record.Record{}, false, ctx.Err()
	}
}
