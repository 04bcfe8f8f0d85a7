// Package extsort runs the split, sort and merge phases of an external sort
// of a two-column text file.
package extsort

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/freeeve/linesort/internal/chunk"
	"github.com/freeeve/linesort/internal/merge"
)

// Run sorts cfg.InputPath into cfg.OutputPath.
//
// Phases are checkpoints: a failed split or sort is logged and the merge
// still runs over the chunks that exist, unless FailFast is set. The
// returned error joins the failures of every phase, so a run that produced an
// incomplete output still reports an error.
func Run(ctx context.Context, cfg Config, logger zerolog.Logger) (*Stats, error) {
	if err := cfg.Validate(); err != nil {
		logger.Error().Err(err).Msg("invalid configuration")
		return nil, err
	}
	if cfg.ChunkCompression == "" {
		cfg.ChunkCompression = chunk.CompressionNone
	}

	stats := &Stats{RunID: uuid.NewString()}
	log := logger.With().Str("run", stats.RunID).Logger()
	start := time.Now()
	naming := cfg.naming()

	if err := os.MkdirAll(naming.Dir, 0755); err != nil {
		return stats, fmt.Errorf("create chunk dir: %w", err)
	}

	if existing, err := naming.Existing(); err != nil {
		log.Warn().Err(err).Msg("list existing chunks failed")
	} else if len(existing) > 0 {
		stats.ExistingChunks = len(existing)
		log.Warn().
			Int("files", len(existing)).
			Strs("chunks", existing).
			Msg("chunks from an earlier run found, they are not merged")
	}

	log.Info().
		Str("input", cfg.InputPath).
		Str("output", cfg.OutputPath).
		Str("chunk_dir", naming.Dir).
		Str("chunk_size", humanize.IBytes(uint64(cfg.MaxChunkBytes))).
		Int("tasks_per_group", cfg.TasksPerGroup).
		Int("fan_in", cfg.MergeMaxFilesCount).
		Str("malformed", cfg.MalformedPolicy.String()).
		Msg("starting sort")

	var phaseErrs []error
	finish := func(err error) (*Stats, error) {
		if err != nil {
			phaseErrs = append(phaseErrs, err)
		}
		stats.TotalDuration = time.Since(start)
		if cfg.StatsPath != "" {
			if err := stats.Save(cfg.StatsPath); err != nil {
				log.Warn().Err(err).Msg("save stats failed")
			}
		}
		err = errors.Join(phaseErrs...)
		var ev *zerolog.Event
		if err != nil {
			ev = log.Error().Err(err)
		} else {
			ev = log.Info()
		}
		ev.Int64("input_lines", stats.InputLines).
			Int64("output_records", stats.OutputRecords).
			Int64("malformed", stats.MalformedLines).
			Int("failed_chunks", stats.FailedChunks).
			Int("merge_levels", stats.MergeLevels).
			Dur("elapsed", stats.TotalDuration).
			Msg("sort finished")
		return stats, err
	}

	// Split
	phaseStart := time.Now()
	splitter, err := chunk.NewSplitter(chunk.SplitterConfig{
		Naming:        naming,
		MaxChunkBytes: cfg.MaxChunkBytes,
		Compression:   cfg.ChunkCompression,
		Logger:        log,
	})
	if err != nil {
		return finish(fmt.Errorf("split: %w", err))
	}
	chunks, splitStats, err := splitter.Split(ctx, cfg.InputPath)
	stats.SplitDuration = time.Since(phaseStart)
	stats.InputLines = splitStats.Lines
	stats.InputBytes = splitStats.Bytes
	stats.BlankLines = splitStats.BlankLines
	stats.Chunks = len(chunks)
	if err != nil {
		log.Error().Err(err).Int("chunks_written", len(chunks)).Msg("split failed")
		phaseErrs = append(phaseErrs, fmt.Errorf("split: %w", err))
		if cfg.FailFast || ctx.Err() != nil || len(chunks) == 0 {
			return finish(nil)
		}
	}

	// Sort
	phaseStart = time.Now()
	sorter, err := chunk.NewSorter(chunk.SorterConfig{
		Naming:         naming,
		Separator:      cfg.ColumnSeparator,
		TasksPerGroup:  cfg.TasksPerGroup,
		Compression:    cfg.ChunkCompression,
		Policy:         cfg.MalformedPolicy,
		DeleteUnsorted: cfg.DeleteNotSortedChunks,
		Logger:         log,
	})
	if err != nil {
		return finish(fmt.Errorf("sort: %w", err))
	}
	sorted, totals, err := sorter.SortAll(ctx, chunks)
	stats.SortDuration = time.Since(phaseStart)
	stats.SortedChunks = totals.Chunks
	stats.FailedChunks = totals.Failed
	stats.RecordsSorted = totals.Records
	stats.MalformedLines = totals.Skipped
	if err != nil {
		phaseErrs = append(phaseErrs, fmt.Errorf("sort: %w", err))
		if cfg.FailFast || ctx.Err() != nil {
			return finish(nil)
		}
		log.Warn().Int("failed", totals.Failed).Msg("merging the chunks that were sorted")
	}

	// Merge
	phaseStart = time.Now()
	engine, err := merge.NewEngine(merge.Config{
		Dir:               naming.Dir,
		SortedExt:         naming.SortedExt,
		DisposableExt:     naming.DisposableExt,
		Separator:         cfg.ColumnSeparator,
		FanIn:             cfg.MergeMaxFilesCount,
		ReadAheadLines:    cfg.MergeBufferMaxLines,
		OutputBufferLines: cfg.OutputBufferMaxLines,
		IterationsAllowed: cfg.IterationsAllowed,
		Workers:           cfg.MergeWorkers,
		DeleteInputs:      cfg.DeleteSortedChunks,
		Compression:       cfg.ChunkCompression,
		Logger:            log,
	})
	if err != nil {
		return finish(fmt.Errorf("merge: %w", err))
	}
	res, err := engine.Merge(ctx, sorted)
	stats.MergeDuration = time.Since(phaseStart)
	stats.MergeLevels = res.Levels
	stats.MergeBatches = res.Batches
	if err != nil {
		return finish(fmt.Errorf("merge: %w", err))
	}

	// Finalize
	switch {
	case res.Capped:
		stats.MergeCapped = true
		stats.RemainingSorted = res.Files
		log.Warn().
			Int("files", len(res.Files)).
			Strs("remaining", res.Files).
			Msg("merge level cap reached, output not written")
	case len(res.Files) == 0:
		if err := writeEmpty(cfg.OutputPath); err != nil {
			return finish(fmt.Errorf("write output: %w", err))
		}
	default:
		n, err := moveToOutput(res.Files[0], cfg.ChunkCompression, cfg.OutputPath, naming)
		if err != nil {
			return finish(fmt.Errorf("write output: %w", err))
		}
		if n < 0 {
			n = res.Records
			if res.Levels == 0 {
				n = totals.Records
			}
		}
		stats.OutputRecords = n
	}
	return finish(nil)
}

// writeEmpty creates an empty output file.
func writeEmpty(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	w, err := chunk.CreateLineWriter(path, chunk.CompressionForPath(path))
	if err != nil {
		return err
	}
	return w.Commit()
}

// moveToOutput makes src the output file. When src already has the output's
// encoding it is renamed; otherwise (or when the rename crosses devices) it
// is re-encoded line by line and then removed. It returns the number of lines
// copied, or -1 after a rename.
func moveToOutput(src string, srcComp chunk.Compression, dst string, naming chunk.Naming) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return 0, err
	}
	dstComp := chunk.CompressionForPath(dst)
	if srcComp == dstComp {
		if err := os.Rename(src, dst); err == nil {
			return -1, nil
		}
	}

	r, err := chunk.OpenLineReader(src, srcComp)
	if err != nil {
		return 0, err
	}
	w, err := chunk.CreateLineWriter(dst, dstComp)
	if err != nil {
		r.Close()
		return 0, err
	}
	for {
		line, err := r.ReadLine()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			r.Close()
			w.Abort()
			return 0, err
		}
		if err := w.WriteLine(line); err != nil {
			r.Close()
			w.Abort()
			return 0, err
		}
	}
	r.Close()
	if err := w.Commit(); err != nil {
		return 0, err
	}
	if err := chunk.Retire(src, naming, true); err != nil {
		return w.Lines(), err
	}
	return w.Lines(), nil
}
