package extsort

import (
	"errors"
	"fmt"
	"strings"

	"github.com/freeeve/linesort/internal/chunk"
	"github.com/freeeve/linesort/internal/merge"
	"github.com/freeeve/linesort/internal/record"
)

// ErrConfigurationMissing is returned when a required setting is absent.
var ErrConfigurationMissing = errors.New("configuration missing")

// Config configures a sort run. It is read-only once Run starts.
type Config struct {
	InputPath           string
	OutputPath          string
	ChunkDir            string // defaults to the input file's directory
	ColumnSeparator     string
	NotSortedExtension  string
	SortedExtension     string
	DisposableExtension string // default "old"

	MaxChunkBytes        int64 // summed line length per unsorted chunk
	TasksPerGroup        int   // chunks sorted concurrently (G)
	MergeMaxFilesCount   int   // fan-in (F)
	MergeBufferMaxLines  int   // read-ahead per merge input (B)
	OutputBufferMaxLines int   // merge output buffer (M)
	IterationsAllowed    int   // merge level cap, 0 = unlimited
	MergeWorkers         int   // concurrent batches per merge level

	DeleteNotSortedChunks bool
	DeleteSortedChunks    bool

	MalformedPolicy  chunk.MalformedPolicy
	FailFast         bool              // stop after a failed sort phase instead of merging what exists
	ChunkCompression chunk.Compression // encoding of intermediate files
	StatsPath        string            // optional JSON stats file
}

// DefaultConfig returns the default settings for an input and output path.
func DefaultConfig(input, output string) Config {
	return Config{
		InputPath:             input,
		OutputPath:            output,
		ColumnSeparator:       record.DefaultSeparator,
		NotSortedExtension:    "notsorted",
		SortedExtension:       "sorted",
		DisposableExtension:   "old",
		MaxChunkBytes:         chunk.DefaultMaxChunkBytes,
		TasksPerGroup:         4,
		MergeMaxFilesCount:    merge.DefaultFanIn,
		MergeBufferMaxLines:   merge.DefaultReadAheadLines,
		OutputBufferMaxLines:  merge.DefaultOutputBufferLines,
		DeleteNotSortedChunks: true,
		DeleteSortedChunks:    true,
		ChunkCompression:      chunk.CompressionNone,
	}
}

// Validate reports missing or inconsistent settings. Missing settings wrap
// ErrConfigurationMissing.
func (c Config) Validate() error {
	var missing []string
	if c.InputPath == "" {
		missing = append(missing, "InputPath")
	}
	if c.OutputPath == "" {
		missing = append(missing, "OutputPath")
	}
	if c.ColumnSeparator == "" {
		missing = append(missing, "ColumnSeparator")
	}
	if c.NotSortedExtension == "" {
		missing = append(missing, "NotSortedExtension")
	}
	if c.SortedExtension == "" {
		missing = append(missing, "SortedExtension")
	}
	if c.MaxChunkBytes == 0 {
		missing = append(missing, "MaxChunkFileSizeInMB")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrConfigurationMissing, strings.Join(missing, ", "))
	}

	ns := strings.TrimPrefix(c.NotSortedExtension, ".")
	s := strings.TrimPrefix(c.SortedExtension, ".")
	d := strings.TrimPrefix(c.disposableExt(), ".")
	switch {
	case ns == s:
		return fmt.Errorf("not-sorted and sorted extensions must differ (%q)", ns)
	case d == s || d == ns:
		return fmt.Errorf("disposable extension %q collides with a chunk extension", d)
	case c.MaxChunkBytes < 0:
		return fmt.Errorf("MaxChunkBytes must be positive, got %d", c.MaxChunkBytes)
	case c.TasksPerGroup < 0:
		return fmt.Errorf("TasksPerGroup must be positive, got %d", c.TasksPerGroup)
	case c.MergeMaxFilesCount == 1 || c.MergeMaxFilesCount < 0:
		return fmt.Errorf("MergeMaxFilesCount must be at least 2, got %d", c.MergeMaxFilesCount)
	case c.IterationsAllowed < 0:
		return fmt.Errorf("IterationsAllowed must not be negative, got %d", c.IterationsAllowed)
	}
	return nil
}

func (c Config) disposableExt() string {
	if c.DisposableExtension == "" {
		return "old"
	}
	return c.DisposableExtension
}

func (c Config) naming() chunk.Naming {
	return chunk.NewNaming(c.InputPath, c.ChunkDir, c.NotSortedExtension, c.SortedExtension, c.disposableExt())
}
