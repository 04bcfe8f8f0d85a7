// Package merge implements the leveled, bounded-memory k-way merge of sorted
// chunk files into a single sorted file.
//
// Each level groups the current files into batches of at most FanIn files and
// merges every batch into one new file named file_<n>_<timestamp>.<ext>. A
// level's inputs are retired only after all of its batches are written, so
// the set of sorted files on disk always partitions the records.
//
// Memory per batch is bounded by FanIn × ReadAheadLines decoded records plus
// OutputBufferLines rendered lines, independent of file sizes.
package merge

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/freeeve/linesort/internal/chunk"
	"github.com/freeeve/linesort/internal/logx"
	"github.com/freeeve/linesort/internal/record"
)

// Defaults applied to zero config values.
const (
	DefaultFanIn             = 16
	DefaultReadAheadLines    = 10000
	DefaultOutputBufferLines = 10000
)

// Config configures an Engine.
type Config struct {
	Dir               string // where merge results are written
	SortedExt         string
	DisposableExt     string
	Separator         string
	FanIn             int  // max files per batch (F), at least 2
	ReadAheadLines    int  // read-ahead per cursor (B)
	OutputBufferLines int  // output lines per write (M)
	IterationsAllowed int  // max levels, 0 = until one file remains
	Workers           int  // concurrent batches within a level, default 1
	DeleteInputs      bool // delete retired inputs instead of leaving them renamed
	Compression       chunk.Compression
	Logger            zerolog.Logger
}

// Result describes a finished Merge.
type Result struct {
	Files   []string // remaining sorted files: 0 or 1 unless Capped
	Levels  int
	Batches int
	Records int64 // records written by the last level
	Capped  bool  // stopped by IterationsAllowed with more than one file left
}

// Engine merges sorted files level by level.
type Engine struct {
	cfg    Config
	log    zerolog.Logger
	naming chunk.Naming
	seq    atomic.Int64
}

// NewEngine creates a merge engine.
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("merge dir required")
	}
	if cfg.SortedExt == "" {
		return nil, fmt.Errorf("sorted extension required")
	}
	if cfg.DisposableExt == "" {
		cfg.DisposableExt = "old"
	}
	if cfg.Separator == "" {
		cfg.Separator = record.DefaultSeparator
	}
	if cfg.FanIn == 0 {
		cfg.FanIn = DefaultFanIn
	}
	if cfg.FanIn < 2 {
		return nil, fmt.Errorf("fan-in must be at least 2, got %d", cfg.FanIn)
	}
	if cfg.ReadAheadLines <= 0 {
		cfg.ReadAheadLines = DefaultReadAheadLines
	}
	if cfg.OutputBufferLines <= 0 {
		cfg.OutputBufferLines = DefaultOutputBufferLines
	}
	if cfg.IterationsAllowed < 0 {
		cfg.IterationsAllowed = 0
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Compression == "" {
		cfg.Compression = chunk.CompressionNone
	}
	cfg.SortedExt = strings.TrimPrefix(cfg.SortedExt, ".")
	cfg.DisposableExt = strings.TrimPrefix(cfg.DisposableExt, ".")

	return &Engine{
		cfg: cfg,
		log: logx.Component(cfg.Logger, "merge"),
		naming: chunk.Naming{
			Dir:           cfg.Dir,
			SortedExt:     cfg.SortedExt,
			DisposableExt: cfg.DisposableExt,
		},
	}, nil
}

// Levels returns the number of levels needed to merge n files with fan-in f,
// ceil(log_f(n)) for n > 1.
func Levels(n, f int) int {
	levels := 0
	for n > 1 {
		n = (n + f - 1) / f
		levels++
	}
	return levels
}

// Batches partitions paths into consecutive groups of at most size.
func Batches(paths []string, size int) [][]string {
	var out [][]string
	for lo := 0; lo < len(paths); lo += size {
		out = append(out, paths[lo:min(lo+size, len(paths))])
	}
	return out
}

// Merge runs levels until at most one file remains or IterationsAllowed
// levels have run. Input files are consumed and retired.
func (e *Engine) Merge(ctx context.Context, paths []string) (Result, error) {
	res := Result{Files: paths}
	start := time.Now()

	e.log.Info().
		Int("files", len(paths)).
		Int("fan_in", e.cfg.FanIn).
		Int("expected_levels", Levels(len(paths), e.cfg.FanIn)).
		Msg("merge starting")

	for len(res.Files) > 1 {
		if e.cfg.IterationsAllowed > 0 && res.Levels >= e.cfg.IterationsAllowed {
			res.Capped = true
			e.log.Warn().
				Int("levels", res.Levels).
				Int("files", len(res.Files)).
				Msg("merge stopped by iteration limit")
			break
		}
		if err := ctx.Err(); err != nil {
			return res, err
		}

		outputs, records, err := e.mergeLevel(ctx, res.Levels, res.Files)
		if err != nil {
			return res, fmt.Errorf("merge level %d: %w", res.Levels, err)
		}
		res.Batches += len(outputs)
		res.Levels++
		res.Records = records
		res.Files = outputs
	}

	e.log.Info().
		Int("levels", res.Levels).
		Int("batches", res.Batches).
		Int("files", len(res.Files)).
		Dur("elapsed", time.Since(start)).
		Msg("merge complete")
	return res, nil
}

// mergeLevel merges one level and retires its inputs. On failure no input is
// retired and the outputs already written for the level are removed.
func (e *Engine) mergeLevel(ctx context.Context, level int, paths []string) ([]string, int64, error) {
	start := time.Now()
	batches := Batches(paths, e.cfg.FanIn)
	outputs := make([]string, len(batches))
	for i := range batches {
		outputs[i] = e.nextFileName()
	}

	var (
		mu      sync.Mutex
		records int64
		bytes   int64
		peak    int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Workers)
	for i, batch := range batches {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			stats, err := e.mergeBatch(gctx, batch, outputs[i])
			if err != nil {
				return fmt.Errorf("batch %d: %w", i, err)
			}
			mu.Lock()
			records += stats.Records
			bytes += stats.Bytes
			peak = max(peak, stats.PeakBuffered)
			mu.Unlock()
			e.log.Debug().
				Int("level", level).
				Int("batch", i).
				Int("inputs", len(batch)).
				Int64("records", stats.Records).
				Str("output", filepath.Base(outputs[i])).
				Msg("batch merged")
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		for _, out := range outputs {
			if rmErr := os.Remove(out); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
				e.log.Warn().Err(rmErr).Str("file", out).Msg("remove partial level output")
			}
		}
		return nil, 0, err
	}

	if err := chunk.RetireAll(paths, e.naming, e.cfg.DeleteInputs); err != nil {
		return nil, 0, fmt.Errorf("retire level inputs: %w", err)
	}

	e.log.Info().
		Int("level", level).
		Int("inputs", len(paths)).
		Int("outputs", len(outputs)).
		Int64("records", records).
		Str("size", humanize.Bytes(uint64(bytes))).
		Int("peak_buffered", peak).
		Dur("elapsed", time.Since(start)).
		Msg("merge level complete")
	return outputs, records, nil
}

// nextFileName returns a unique merge result path.
func (e *Engine) nextFileName() string {
	n := e.seq.Add(1)
	name := fmt.Sprintf("file_%d_%d.%s", n, time.Now().UnixNano(), e.cfg.SortedExt)
	return filepath.Join(e.cfg.Dir, name)
}
