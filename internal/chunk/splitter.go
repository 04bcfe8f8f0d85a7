package chunk

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"

	"github.com/freeeve/linesort/internal/logx"
)

// DefaultMaxChunkBytes is used when SplitterConfig.MaxChunkBytes is zero.
const DefaultMaxChunkBytes = 64 * 1024 * 1024

// SplitterConfig configures a Splitter.
type SplitterConfig struct {
	Naming        Naming
	MaxChunkBytes int64       // summed line length (newlines excluded) per chunk
	Compression   Compression // encoding of the written chunk files
	Logger        zerolog.Logger
}

// SplitStats summarizes one split.
type SplitStats struct {
	Lines      int64
	Bytes      int64
	BlankLines int64
	Chunks     int
}

// Splitter cuts an input file into unsorted chunk files.
type Splitter struct {
	cfg SplitterConfig
	log zerolog.Logger
}

// NewSplitter creates a Splitter.
func NewSplitter(cfg SplitterConfig) (*Splitter, error) {
	if cfg.MaxChunkBytes == 0 {
		cfg.MaxChunkBytes = DefaultMaxChunkBytes
	}
	if cfg.MaxChunkBytes < 0 {
		return nil, fmt.Errorf("max chunk bytes must be positive, got %d", cfg.MaxChunkBytes)
	}
	if cfg.Naming.NotSortedExt == "" {
		return nil, fmt.Errorf("not-sorted extension required")
	}
	if cfg.Compression == "" {
		cfg.Compression = CompressionNone
	}
	return &Splitter{
		cfg: cfg,
		log: logx.Component(cfg.Logger, "splitter"),
	}, nil
}

// Split streams inputPath and writes unsorted chunks in input order. Each
// chunk holds lines until their summed length reaches MaxChunkBytes, so a
// chunk exceeds the limit by at most its last line. Blank lines are dropped.
// Empty input produces no chunks.
func (s *Splitter) Split(ctx context.Context, inputPath string) ([]string, SplitStats, error) {
	var stats SplitStats
	start := time.Now()

	r, err := OpenLineReader(inputPath, CompressionForPath(inputPath))
	if err != nil {
		return nil, stats, fmt.Errorf("open input: %w", err)
	}
	defer r.Close()

	var (
		chunks []string
		w      *LineWriter
		size   int64
	)

	flush := func() error {
		if w == nil {
			return nil
		}
		lines := w.Lines()
		if err := w.Commit(); err != nil {
			w = nil
			return err
		}
		chunks = append(chunks, w.Path())
		s.log.Debug().
			Str("chunk", w.Path()).
			Int64("lines", lines).
			Str("size", humanize.Bytes(uint64(size))).
			Msg("chunk written")
		w = nil
		size = 0
		return nil
	}

	for {
		line, err := r.ReadLine()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if w != nil {
				w.Abort()
			}
			return chunks, stats, fmt.Errorf("read input: %w", err)
		}
		stats.Lines++
		if line == "" {
			stats.BlankLines++
			continue
		}

		if w == nil {
			if err := ctx.Err(); err != nil {
				return chunks, stats, err
			}
			w, err = CreateLineWriter(s.cfg.Naming.UnsortedPath(len(chunks)), s.cfg.Compression)
			if err != nil {
				return chunks, stats, fmt.Errorf("create chunk: %w", err)
			}
		}
		if err := w.WriteLine(line); err != nil {
			w.Abort()
			return chunks, stats, fmt.Errorf("write chunk %s: %w", w.Path(), err)
		}
		size += int64(len(line))
		stats.Bytes += int64(len(line))

		if size >= s.cfg.MaxChunkBytes {
			if err := flush(); err != nil {
				return chunks, stats, err
			}
		}
	}

	if err := flush(); err != nil {
		return chunks, stats, err
	}
	stats.Chunks = len(chunks)

	s.log.Info().
		Int("chunks", stats.Chunks).
		Int64("lines", stats.Lines).
		Str("size", humanize.Bytes(uint64(stats.Bytes))).
		Dur("elapsed", time.Since(start)).
		Msg("split complete")
	return chunks, stats, nil
}
