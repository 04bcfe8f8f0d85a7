package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/freeeve/linesort/internal/chunk"
	"github.com/freeeve/linesort/internal/extsort"
)

const sampleSettings = `{
  "InputFileOptions": { "Path": "/data/input.txt", "ColumnSeparator": "; " },
  "OutputFileOptions": { "Path": "/data/output.txt" },
  "ChunkFileOptions": {
    "NotSortedExtension": "raw",
    "SortedExtension": "srt",
    "MaxChunkFileSizeInMB": 8,
    "DeleteSortedChunks": false,
    "Compression": "zstd"
  },
  "SortOptions": {
    "TasksPerGroup": 6,
    "MergeMaxFilesCount": 5,
    "IterationsAllowed": 2,
    "MalformedLines": "abort"
  }
}`

func TestLoadSettings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "appsettings.json")
	os.WriteFile(path, []byte(sampleSettings), 0644)

	cfg := extsort.DefaultConfig("", "")
	if err := loadSettings(path, &cfg); err != nil {
		t.Fatalf("loadSettings: %v", err)
	}
	if cfg.InputPath != "/data/input.txt" || cfg.OutputPath != "/data/output.txt" || cfg.ColumnSeparator != "; " {
		t.Errorf("paths = %+v", cfg)
	}
	if cfg.NotSortedExtension != "raw" || cfg.SortedExtension != "srt" {
		t.Errorf("extensions = %q %q", cfg.NotSortedExtension, cfg.SortedExtension)
	}
	if cfg.MaxChunkBytes != 8*1024*1024 {
		t.Errorf("MaxChunkBytes = %d", cfg.MaxChunkBytes)
	}
	if cfg.DeleteSortedChunks || !cfg.DeleteNotSortedChunks {
		t.Errorf("delete toggles = %v %v", cfg.DeleteNotSortedChunks, cfg.DeleteSortedChunks)
	}
	if cfg.ChunkCompression != chunk.CompressionZstd || cfg.MalformedPolicy != chunk.MalformedAbort {
		t.Errorf("compression = %s policy = %s", cfg.ChunkCompression, cfg.MalformedPolicy)
	}
	if cfg.TasksPerGroup != 6 || cfg.MergeMaxFilesCount != 5 || cfg.IterationsAllowed != 2 {
		t.Errorf("sort options = %+v", cfg)
	}
	// Untouched values keep their defaults
	if cfg.MergeBufferMaxLines != extsort.DefaultConfig("", "").MergeBufferMaxLines {
		t.Errorf("MergeBufferMaxLines = %d", cfg.MergeBufferMaxLines)
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"LINESORT_INPUT":      "in.txt",
		"LINESORT_CHUNK_SIZE": "2m",
		"LINESORT_FAN_IN":     "7",
	}
	cfg := extsort.DefaultConfig("", "")
	if err := applyEnv(&cfg, func(k string) string { return env[k] }); err != nil {
		t.Fatalf("applyEnv: %v", err)
	}
	if cfg.InputPath != "in.txt" || cfg.MaxChunkBytes != 2*1024*1024 || cfg.MergeMaxFilesCount != 7 {
		t.Errorf("cfg = %+v", cfg)
	}

	env["LINESORT_FAN_IN"] = "many"
	if err := applyEnv(&cfg, func(k string) string { return env[k] }); err == nil {
		t.Error("applyEnv accepted a non-numeric fan-in")
	}
}

func TestParseSize(t *testing.T) {
	cases := map[string]int64{
		"1024": 1024,
		"4k":   4096,
		"64M":  64 << 20,
		"1g":   1 << 30,
	}
	for in, want := range cases {
		got, err := parseSize(in)
		if err != nil || got != want {
			t.Errorf("parseSize(%q) = %d, %v, want %d", in, got, err, want)
		}
	}
	if _, err := parseSize("lots"); err == nil {
		t.Error("parseSize(lots) succeeded")
	}
}

func TestRunCommand(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "input.txt")
	output := filepath.Join(dir, "output.txt")
	os.WriteFile(input, []byte("3. banana\n1. apple\n2. cherry\n"), 0644)

	code := run([]string{"-input", input, "-output", output, "-chunk-size", "10", "-fan-in", "2", "-log-level", "error"})
	if code != 0 {
		t.Fatalf("run exit code = %d", code)
	}
	data, err := os.ReadFile(output)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if string(data) != "1. apple\n3. banana\n2. cherry\n" {
		t.Errorf("output = %q", data)
	}

	if code := run([]string{"-log-level", "error"}); code != 2 {
		t.Errorf("run without paths exit code = %d, want 2", code)
	}
	if code := run([]string{"-input", filepath.Join(dir, "missing.txt"), "-output", output, "-log-level", "error"}); code != 1 {
		t.Errorf("run with missing input exit code = %d, want 1", code)
	}
}
