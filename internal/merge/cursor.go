package merge

import (
	"errors"
	"fmt"
	"io"

	"github.com/freeeve/linesort/internal/chunk"
	"github.com/freeeve/linesort/internal/record"
)

// Cursor reads one sorted file through a bounded read-ahead queue.
// Head is always the smallest record of the file not yet emitted.
type Cursor struct {
	index int
	path  string
	sep   string
	r     *chunk.LineReader

	queue []record.Record
	pos   int
	limit int
	eof   bool

	prev    record.Record
	hasPrev bool
}

// OpenCursor opens path and preloads up to readAhead records.
func OpenCursor(path string, index, readAhead int, sep string, c chunk.Compression) (*Cursor, error) {
	if readAhead <= 0 {
		readAhead = 1
	}
	r, err := chunk.OpenLineReader(path, c)
	if err != nil {
		return nil, err
	}
	cur := &Cursor{
		index: index,
		path:  path,
		sep:   sep,
		r:     r,
		queue: make([]record.Record, 0, readAhead),
		limit: readAhead,
	}
	if err := cur.fill(); err != nil {
		r.Close()
		return nil, err
	}
	return cur, nil
}

// Head returns the current record, or false once the file is exhausted.
func (c *Cursor) Head() (record.Record, bool) {
	if c.pos >= len(c.queue) {
		return record.Record{}, false
	}
	return c.queue[c.pos], true
}

// Advance drops the head, refilling the queue from disk when it runs dry.
func (c *Cursor) Advance() error {
	if c.pos < len(c.queue) {
		c.prev = c.queue[c.pos]
		c.hasPrev = true
		c.pos++
	}
	if c.pos >= len(c.queue) && !c.eof {
		return c.fill()
	}
	return nil
}

// Buffered returns the number of records held in memory.
func (c *Cursor) Buffered() int {
	return len(c.queue) - c.pos
}

// Path returns the file the cursor reads.
func (c *Cursor) Path() string { return c.path }

// Close releases the underlying reader.
func (c *Cursor) Close() error {
	return c.r.Close()
}

// fill replaces the queue with up to limit records. Inputs must already be
// sorted; an out-of-order record is reported instead of silently producing
// unordered output.
func (c *Cursor) fill() error {
	c.queue = c.queue[:0]
	c.pos = 0
	for len(c.queue) < c.limit {
		line, err := c.r.ReadLine()
		if errors.Is(err, io.EOF) {
			c.eof = true
			break
		}
		if err != nil {
			return fmt.Errorf("read %s: %w", c.path, err)
		}
		if line == "" {
			continue
		}
		rec, err := record.Parse(line, c.sep)
		if err != nil {
			return fmt.Errorf("read %s: %w", c.path, err)
		}
		last, ok := c.prev, c.hasPrev
		if n := len(c.queue); n > 0 {
			last, ok = c.queue[n-1], true
		}
		if ok && record.Compare(last, rec) > 0 {
			return fmt.Errorf("%s is not sorted at %q", c.path, line)
		}
		c.queue = append(c.queue, rec)
	}
	return nil
}
