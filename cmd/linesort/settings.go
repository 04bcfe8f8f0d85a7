package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/freeeve/linesort/internal/chunk"
	"github.com/freeeve/linesort/internal/extsort"
)

// settingsFile mirrors the sections of an appsettings.json file. Absent
// values leave the current configuration untouched.
type settingsFile struct {
	InputFileOptions struct {
		Path            *string `json:"Path"`
		ColumnSeparator *string `json:"ColumnSeparator"`
	} `json:"InputFileOptions"`
	OutputFileOptions struct {
		Path *string `json:"Path"`
	} `json:"OutputFileOptions"`
	ChunkFileOptions struct {
		Directory             *string `json:"Directory"`
		NotSortedExtension    *string `json:"NotSortedExtension"`
		SortedExtension       *string `json:"SortedExtension"`
		DisposableExtension   *string `json:"DisposableExtension"`
		MaxChunkFileSizeInMB  *int64  `json:"MaxChunkFileSizeInMB"`
		DeleteNotSortedChunks *bool   `json:"DeleteNotSortedChunks"`
		DeleteSortedChunks    *bool   `json:"DeleteSortedChunks"`
		Compression           *string `json:"Compression"`
	} `json:"ChunkFileOptions"`
	SortOptions struct {
		TasksPerGroup        *int    `json:"TasksPerGroup"`
		MergeMaxFilesCount   *int    `json:"MergeMaxFilesCount"`
		MergeBufferMaxLines  *int    `json:"MergeBufferMaxLines"`
		OutputBufferMaxLines *int    `json:"OutputBufferMaxLines"`
		IterationsAllowed    *int    `json:"IterationsAllowed"`
		MergeWorkers         *int    `json:"MergeWorkers"`
		MalformedLines       *string `json:"MalformedLines"`
		FailFast             *bool   `json:"FailFast"`
		StatsPath            *string `json:"StatsPath"`
	} `json:"SortOptions"`
}

// loadSettings applies a JSON settings file to cfg.
func loadSettings(path string, cfg *extsort.Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var s settingsFile
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("parse settings %s: %w", path, err)
	}

	setString(&cfg.InputPath, s.InputFileOptions.Path)
	setString(&cfg.ColumnSeparator, s.InputFileOptions.ColumnSeparator)
	setString(&cfg.OutputPath, s.OutputFileOptions.Path)

	co := s.ChunkFileOptions
	setString(&cfg.ChunkDir, co.Directory)
	setString(&cfg.NotSortedExtension, co.NotSortedExtension)
	setString(&cfg.SortedExtension, co.SortedExtension)
	setString(&cfg.DisposableExtension, co.DisposableExtension)
	if co.MaxChunkFileSizeInMB != nil {
		cfg.MaxChunkBytes = *co.MaxChunkFileSizeInMB * 1024 * 1024
	}
	setBool(&cfg.DeleteNotSortedChunks, co.DeleteNotSortedChunks)
	setBool(&cfg.DeleteSortedChunks, co.DeleteSortedChunks)
	if co.Compression != nil {
		c, err := chunk.ParseCompression(*co.Compression)
		if err != nil {
			return err
		}
		cfg.ChunkCompression = c
	}

	so := s.SortOptions
	setInt(&cfg.TasksPerGroup, so.TasksPerGroup)
	setInt(&cfg.MergeMaxFilesCount, so.MergeMaxFilesCount)
	setInt(&cfg.MergeBufferMaxLines, so.MergeBufferMaxLines)
	setInt(&cfg.OutputBufferMaxLines, so.OutputBufferMaxLines)
	setInt(&cfg.IterationsAllowed, so.IterationsAllowed)
	setInt(&cfg.MergeWorkers, so.MergeWorkers)
	setBool(&cfg.FailFast, so.FailFast)
	setString(&cfg.StatsPath, so.StatsPath)
	if so.MalformedLines != nil {
		p, err := chunk.ParseMalformedPolicy(*so.MalformedLines)
		if err != nil {
			return err
		}
		cfg.MalformedPolicy = p
	}
	return nil
}

// applyEnv applies LINESORT_* environment variables to cfg.
func applyEnv(cfg *extsort.Config, getenv func(string) string) error {
	if v := getenv("LINESORT_INPUT"); v != "" {
		cfg.InputPath = v
	}
	if v := getenv("LINESORT_OUTPUT"); v != "" {
		cfg.OutputPath = v
	}
	if v := getenv("LINESORT_CHUNK_DIR"); v != "" {
		cfg.ChunkDir = v
	}
	if v := getenv("LINESORT_SEPARATOR"); v != "" {
		cfg.ColumnSeparator = v
	}
	if v := getenv("LINESORT_CHUNK_SIZE"); v != "" {
		n, err := parseSize(v)
		if err != nil {
			return fmt.Errorf("LINESORT_CHUNK_SIZE: %w", err)
		}
		cfg.MaxChunkBytes = n
	}
	ints := []struct {
		name string
		dst  *int
	}{
		{"LINESORT_TASKS_PER_GROUP", &cfg.TasksPerGroup},
		{"LINESORT_FAN_IN", &cfg.MergeMaxFilesCount},
		{"LINESORT_MERGE_BUFFER_LINES", &cfg.MergeBufferMaxLines},
		{"LINESORT_OUTPUT_BUFFER_LINES", &cfg.OutputBufferMaxLines},
		{"LINESORT_ITERATIONS", &cfg.IterationsAllowed},
		{"LINESORT_MERGE_WORKERS", &cfg.MergeWorkers},
	}
	for _, e := range ints {
		v := getenv(e.name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", e.name, err)
		}
		*e.dst = n
	}
	return nil
}

// parseSize parses a size string like "512m", "4g", "1024" into bytes
func parseSize(s string) (int64, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	multiplier := int64(1)
	switch {
	case strings.HasSuffix(s, "k"):
		multiplier = 1024
		s = s[:len(s)-1]
	case strings.HasSuffix(s, "m"):
		multiplier = 1024 * 1024
		s = s[:len(s)-1]
	case strings.HasSuffix(s, "g"):
		multiplier = 1024 * 1024 * 1024
		s = s[:len(s)-1]
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q", s)
	}
	return n * multiplier, nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}
