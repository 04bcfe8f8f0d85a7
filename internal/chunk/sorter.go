package chunk

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/freeeve/linesort/internal/logx"
	"github.com/freeeve/linesort/internal/record"
)

// MalformedPolicy decides what the sorter does with unparseable lines.
type MalformedPolicy int

const (
	// MalformedSkip drops and counts malformed lines.
	MalformedSkip MalformedPolicy = iota
	// MalformedAbort fails the chunk on the first malformed line.
	MalformedAbort
)

func (p MalformedPolicy) String() string {
	if p == MalformedAbort {
		return "abort"
	}
	return "skip"
}

// ParseMalformedPolicy maps "skip" or "abort" to a policy.
func ParseMalformedPolicy(s string) (MalformedPolicy, error) {
	switch strings.ToLower(s) {
	case "", "skip":
		return MalformedSkip, nil
	case "abort":
		return MalformedAbort, nil
	}
	return 0, fmt.Errorf("unknown malformed policy %q", s)
}

// maxMalformedLogs bounds per-chunk warnings for skipped lines.
const maxMalformedLogs = 5

// SorterConfig configures a Sorter.
type SorterConfig struct {
	Naming         Naming
	Separator      string
	TasksPerGroup  int // chunks sorted concurrently per group, default 4
	Compression    Compression
	Policy         MalformedPolicy
	DeleteUnsorted bool // retire the unsorted chunk once its sorted file exists
	Logger         zerolog.Logger
}

// SortResult describes one sorted chunk.
type SortResult struct {
	Path       string
	SortedPath string
	Records    int
	Skipped    int
}

// TaskFailure is one chunk that could not be sorted.
type TaskFailure struct {
	Path string
	Err  error
}

// GroupFailure collects every failed chunk of a SortAll call. Chunks listed
// here have no sorted counterpart.
type GroupFailure struct {
	Failures []TaskFailure
}

func (e *GroupFailure) Error() string {
	if len(e.Failures) == 1 {
		return fmt.Sprintf("sort chunk %s: %v", e.Failures[0].Path, e.Failures[0].Err)
	}
	return fmt.Sprintf("%d chunks failed to sort, first %s: %v",
		len(e.Failures), e.Failures[0].Path, e.Failures[0].Err)
}

func (e *GroupFailure) Unwrap() []error {
	errs := make([]error, len(e.Failures))
	for i, f := range e.Failures {
		errs[i] = f.Err
	}
	return errs
}

// SortTotals aggregates a SortAll call.
type SortTotals struct {
	Chunks  int
	Records int64
	Skipped int64
	Failed  int
}

// Sorter sorts chunk files in memory.
type Sorter struct {
	cfg SorterConfig
	log zerolog.Logger
}

// NewSorter creates a Sorter.
func NewSorter(cfg SorterConfig) (*Sorter, error) {
	if cfg.Separator == "" {
		return nil, fmt.Errorf("separator required")
	}
	if cfg.Naming.SortedExt == "" {
		return nil, fmt.Errorf("sorted extension required")
	}
	if cfg.TasksPerGroup == 0 {
		cfg.TasksPerGroup = 4
	}
	if cfg.TasksPerGroup < 0 {
		return nil, fmt.Errorf("tasks per group must be positive, got %d", cfg.TasksPerGroup)
	}
	if cfg.Compression == "" {
		cfg.Compression = CompressionNone
	}
	return &Sorter{
		cfg: cfg,
		log: logx.Component(cfg.Logger, "sorter"),
	}, nil
}

// SortFile loads the chunk at path, sorts it and writes the sorted chunk.
func (s *Sorter) SortFile(ctx context.Context, path string) (SortResult, error) {
	res := SortResult{Path: path, SortedPath: s.cfg.Naming.SortedPathFor(path)}

	records, skipped, err := s.load(path)
	if err != nil {
		return res, err
	}
	res.Skipped = skipped

	record.SortRecords(records)

	if err := ctx.Err(); err != nil {
		return res, err
	}

	w, err := CreateLineWriter(res.SortedPath, s.cfg.Compression)
	if err != nil {
		return res, fmt.Errorf("create sorted chunk: %w", err)
	}
	var buf []byte
	for _, rec := range records {
		buf = record.AppendFormat(buf[:0], rec, s.cfg.Separator)
		buf = append(buf, '\n')
		if err := w.WriteBlock(buf, 1); err != nil {
			w.Abort()
			return res, fmt.Errorf("write sorted chunk %s: %w", res.SortedPath, err)
		}
	}
	if err := w.Commit(); err != nil {
		return res, err
	}
	res.Records = len(records)

	if s.cfg.DeleteUnsorted {
		if err := Retire(path, s.cfg.Naming, true); err != nil {
			s.log.Warn().Err(err).Str("chunk", path).Msg("retire unsorted chunk failed")
		}
	}
	return res, nil
}

// load reads and parses a whole chunk.
func (s *Sorter) load(path string) ([]record.Record, int, error) {
	r, err := OpenLineReader(path, s.cfg.Compression)
	if err != nil {
		return nil, 0, fmt.Errorf("open chunk: %w", err)
	}
	defer r.Close()

	var (
		records []record.Record
		skipped int
	)
	for {
		line, err := r.ReadLine()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, skipped, fmt.Errorf("read chunk %s: %w", path, err)
		}
		if line == "" {
			continue
		}
		rec, err := record.Parse(line, s.cfg.Separator)
		if err != nil {
			if s.cfg.Policy == MalformedAbort {
				return nil, skipped, err
			}
			if skipped < maxMalformedLogs {
				s.log.Warn().Err(err).Str("chunk", path).Msg("skipping malformed line")
			}
			skipped++
			continue
		}
		records = append(records, rec)
	}
	if skipped > maxMalformedLogs {
		s.log.Warn().Str("chunk", path).Int("skipped", skipped).Msg("malformed lines skipped")
	}
	return records, skipped, nil
}

// SortAll sorts paths in groups of TasksPerGroup. The tasks of a group run
// concurrently and the next group starts only after the whole group is done.
// A failed task does not stop its siblings; failures are returned as a
// *GroupFailure alongside the sorted paths that were produced, in input order.
func (s *Sorter) SortAll(ctx context.Context, paths []string) ([]string, SortTotals, error) {
	var totals SortTotals
	start := time.Now()

	results := make([]SortResult, len(paths))
	errs := make([]error, len(paths))
	var done atomic.Int64

	size := s.cfg.TasksPerGroup
	for lo := 0; lo < len(paths); lo += size {
		if err := ctx.Err(); err != nil {
			for i := lo; i < len(paths); i++ {
				errs[i] = err
			}
			break
		}
		hi := min(lo+size, len(paths))

		var g errgroup.Group
		for i := lo; i < hi; i++ {
			g.Go(func() error {
				taskStart := time.Now()
				res, err := s.SortFile(ctx, paths[i])
				results[i] = res
				errs[i] = err
				if err != nil {
					s.log.Error().Err(err).Str("chunk", paths[i]).Msg("sort chunk failed")
					return err
				}
				s.log.Debug().
					Str("chunk", res.SortedPath).
					Int("records", res.Records).
					Dur("elapsed", time.Since(taskStart)).
					Msg("chunk sorted")
				done.Add(1)
				return nil
			})
		}
		// A plain Group does not cancel siblings; Wait only reports whether
		// the group had a failure, each task's error is kept in errs.
		groupErr := g.Wait()

		s.log.Info().
			Int("group", lo/size).
			Bool("failures", groupErr != nil).
			Int64("done", done.Load()).
			Int("total", len(paths)).
			Msg("sort group finished")
	}

	var sorted []string
	var failure GroupFailure
	for i, p := range paths {
		if errs[i] != nil {
			failure.Failures = append(failure.Failures, TaskFailure{Path: p, Err: errs[i]})
			continue
		}
		sorted = append(sorted, results[i].SortedPath)
		totals.Records += int64(results[i].Records)
		totals.Skipped += int64(results[i].Skipped)
	}
	totals.Chunks = len(sorted)
	totals.Failed = len(failure.Failures)

	s.log.Info().
		Int("chunks", totals.Chunks).
		Int("failed", totals.Failed).
		Int64("records", totals.Records).
		Int64("skipped", totals.Skipped).
		Dur("elapsed", time.Since(start)).
		Msg("sort complete")

	if len(failure.Failures) > 0 {
		return sorted, totals, &failure
	}
	return sorted, totals, nil
}
