package merge

import (
	"container/heap"
	"context"
	"fmt"

	"github.com/freeeve/linesort/internal/chunk"
	"github.com/freeeve/linesort/internal/record"
)

// ctxCheckEvery is how many emitted records pass between cancellation checks.
const ctxCheckEvery = 1 << 16

// batchStats summarizes one batch merge.
type batchStats struct {
	Records       int64
	Bytes         int64
	PeakBuffered  int // most records held in cursor queues, sampled after each refill
	Refills       int
	OutputFlushes int
}

// mergeBatch k-way merges the sorted inputs into outPath. The output is
// buffered in blocks of outputLines lines and moved into place only after the
// last block is written and the file is closed.
func (e *Engine) mergeBatch(ctx context.Context, inputs []string, outPath string) (batchStats, error) {
	var stats batchStats

	cursors := make([]*Cursor, 0, len(inputs))
	defer func() {
		for _, c := range cursors {
			c.Close()
		}
	}()
	h := make(cursorHeap, 0, len(inputs))
	for i, p := range inputs {
		c, err := OpenCursor(p, i, e.cfg.ReadAheadLines, e.cfg.Separator, e.cfg.Compression)
		if err != nil {
			return stats, fmt.Errorf("open cursor: %w", err)
		}
		cursors = append(cursors, c)
		if _, ok := c.Head(); ok {
			h = append(h, c)
		}
	}
	heap.Init(&h)
	stats.PeakBuffered = bufferedRecords(cursors)

	w, err := chunk.CreateLineWriter(outPath, e.cfg.Compression)
	if err != nil {
		return stats, fmt.Errorf("create merge output: %w", err)
	}

	buf := make([]byte, 0, 64*e.cfg.OutputBufferLines)
	buffered := 0
	flush := func() error {
		if buffered == 0 {
			return nil
		}
		if err := w.WriteBlock(buf, buffered); err != nil {
			return fmt.Errorf("write %s: %w", outPath, err)
		}
		stats.OutputFlushes++
		buf = buf[:0]
		buffered = 0
		return nil
	}

	for len(h) > 0 {
		if stats.Records%ctxCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				w.Abort()
				return stats, err
			}
		}

		top := h[0]
		rec, _ := top.Head()
		buf = record.AppendFormat(buf, rec, e.cfg.Separator)
		buf = append(buf, '\n')
		buffered++
		stats.Records++

		if err := top.Advance(); err != nil {
			w.Abort()
			return stats, err
		}
		if top.pos == 0 {
			stats.Refills++
			stats.PeakBuffered = max(stats.PeakBuffered, bufferedRecords(cursors))
		}
		if _, ok := top.Head(); ok {
			heap.Fix(&h, 0)
		} else {
			heap.Pop(&h)
		}

		if buffered >= e.cfg.OutputBufferLines {
			if err := flush(); err != nil {
				w.Abort()
				return stats, err
			}
		}
	}
	if err := flush(); err != nil {
		w.Abort()
		return stats, err
	}
	stats.Bytes = w.Bytes()
	if err := w.Commit(); err != nil {
		return stats, err
	}
	return stats, nil
}

func bufferedRecords(cursors []*Cursor) int {
	n := 0
	for _, c := range cursors {
		n += c.Buffered()
	}
	return n
}
