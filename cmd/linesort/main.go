package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/freeeve/linesort/internal/chunk"
	"github.com/freeeve/linesort/internal/extsort"
	"github.com/freeeve/linesort/internal/logx"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("linesort", flag.ContinueOnError)
	var (
		configPath = fs.String("config", "", "JSON settings file (appsettings.json layout)")
		logLevel   = fs.String("log-level", os.Getenv("LINESORT_LOG_LEVEL"), "log level (debug, info, warn, error)")

		// Files
		input     = fs.String("input", "", "input file (supports .zst)")
		output    = fs.String("output", "", "output file (.zst output is compressed)")
		chunkDir  = fs.String("chunk-dir", "", "directory for chunk files (default: input directory)")
		separator = fs.String("separator", "", "column separator (default \". \")")

		// Chunks
		chunkSize      = fs.String("chunk-size", "", "max chunk size, e.g. 64m (default 64m)")
		compression    = fs.String("chunk-compression", "", "chunk encoding: none or zstd")
		keepNotSorted  = fs.Bool("keep-notsorted", false, "keep unsorted chunks after sorting")
		keepSorted     = fs.Bool("keep-sorted", false, "keep consumed sorted chunks under the disposable extension")
		tasksPerGroup  = fs.Int("tasks-per-group", 0, "chunks sorted concurrently per group (default 4)")
		malformedLines = fs.String("malformed", "", "malformed line policy: skip or abort (default skip)")

		// Merge
		fanIn        = fs.Int("fan-in", 0, "max files merged per batch (default 16)")
		mergeBuffer  = fs.Int("merge-buffer-lines", 0, "read-ahead lines per merge input (default 10000)")
		outputBuffer = fs.Int("output-buffer-lines", 0, "buffered output lines per merge write (default 10000)")
		iterations   = fs.Int("iterations", 0, "max merge levels, 0 = unlimited")
		mergeWorkers = fs.Int("merge-workers", 0, "concurrent batch merges per level (default 1)")
		failFast     = fs.Bool("fail-fast", false, "stop when a phase fails instead of merging what exists")
		statsPath    = fs.String("stats", "", "write run statistics as JSON to this file")
	)
	if err := fs.Parse(args); err != nil {
		return 2
	}

	logger := logx.NewLoggerTo(os.Stdout, logx.ParseLevel(*logLevel))

	cfg := extsort.DefaultConfig("", "")
	if *configPath != "" {
		if err := loadSettings(*configPath, &cfg); err != nil {
			logger.Error().Err(err).Msg("load settings")
			return 2
		}
	}
	if err := applyEnv(&cfg, os.Getenv); err != nil {
		logger.Error().Err(err).Msg("read environment")
		return 2
	}

	var flagErr error
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "input":
			cfg.InputPath = *input
		case "output":
			cfg.OutputPath = *output
		case "chunk-dir":
			cfg.ChunkDir = *chunkDir
		case "separator":
			cfg.ColumnSeparator = *separator
		case "chunk-size":
			n, err := parseSize(*chunkSize)
			if err != nil {
				flagErr = errors.Join(flagErr, fmt.Errorf("-chunk-size: %w", err))
			}
			cfg.MaxChunkBytes = n
		case "chunk-compression":
			c, err := chunk.ParseCompression(*compression)
			if err != nil {
				flagErr = errors.Join(flagErr, err)
			}
			cfg.ChunkCompression = c
		case "keep-notsorted":
			cfg.DeleteNotSortedChunks = !*keepNotSorted
		case "keep-sorted":
			cfg.DeleteSortedChunks = !*keepSorted
		case "tasks-per-group":
			cfg.TasksPerGroup = *tasksPerGroup
		case "malformed":
			p, err := chunk.ParseMalformedPolicy(*malformedLines)
			if err != nil {
				flagErr = errors.Join(flagErr, err)
			}
			cfg.MalformedPolicy = p
		case "fan-in":
			cfg.MergeMaxFilesCount = *fanIn
		case "merge-buffer-lines":
			cfg.MergeBufferMaxLines = *mergeBuffer
		case "output-buffer-lines":
			cfg.OutputBufferMaxLines = *outputBuffer
		case "iterations":
			cfg.IterationsAllowed = *iterations
		case "merge-workers":
			cfg.MergeWorkers = *mergeWorkers
		case "fail-fast":
			cfg.FailFast = *failFast
		case "stats":
			cfg.StatsPath = *statsPath
		}
	})
	if flagErr != nil {
		logger.Error().Err(flagErr).Msg("invalid flags")
		return 2
	}

	if cfg.InputPath == "" || cfg.OutputPath == "" {
		fmt.Fprintln(os.Stderr, "Usage: linesort --input <file> --output <file> [options]")
		fs.PrintDefaults()
		return 2
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	stats, err := extsort.Run(ctx, cfg, logger)
	if err != nil {
		if errors.Is(err, extsort.ErrConfigurationMissing) {
			return 2
		}
		return 1
	}
	if stats.MergeCapped {
		logger.Warn().
			Strs("remaining", stats.RemainingSorted).
			Msg("merge stopped at the level cap, sorted files left in place")
	}
	return 0
}
