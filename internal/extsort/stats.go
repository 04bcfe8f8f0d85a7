package extsort

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Stats summarizes one run.
type Stats struct {
	RunID string `json:"run_id"`

	InputLines      int64    `json:"input_lines"`
	InputBytes      int64    `json:"input_bytes"`
	BlankLines      int64    `json:"blank_lines"`
	ExistingChunks  int      `json:"existing_chunks"`
	Chunks          int      `json:"chunks"`
	SortedChunks    int      `json:"sorted_chunks"`
	FailedChunks    int      `json:"failed_chunks"`
	RecordsSorted   int64    `json:"records_sorted"`
	MalformedLines  int64    `json:"malformed_lines"`
	MergeLevels     int      `json:"merge_levels"`
	MergeBatches    int      `json:"merge_batches"`
	MergeCapped     bool     `json:"merge_capped"`
	OutputRecords   int64    `json:"output_records"`
	RemainingSorted []string `json:"remaining_sorted,omitempty"`

	SplitDuration time.Duration `json:"split_ns"`
	SortDuration  time.Duration `json:"sort_ns"`
	MergeDuration time.Duration `json:"merge_ns"`
	TotalDuration time.Duration `json:"total_ns"`
}

// Save writes the stats as indented JSON to path through a temporary file.
func (s *Stats) Save(path string) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("write stats: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename stats: %w", err)
	}
	return nil
}

// LoadStats reads stats saved by Save.
func LoadStats(path string) (*Stats, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var s Stats
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse stats %s: %w", path, err)
	}
	return &s, nil
}
