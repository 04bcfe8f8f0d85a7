// Package record defines the two-column line record and the total order
// used by every phase of the sort.
package record

import (
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
)

// DefaultSeparator is the column separator used when none is configured.
const DefaultSeparator = ". "

// maxKeyDigits is the longest digit run that can never overflow int64.
const maxKeyDigits = 18

// Record is one parsed input line: a numeric key column and a text column.
type Record struct {
	Key  int64
	Text string
}

// MalformedRecordError reports a line that cannot be parsed into a Record.
type MalformedRecordError struct {
	Line   string
	Reason string
}

func (e *MalformedRecordError) Error() string {
	line := e.Line
	if len(line) > 64 {
		line = line[:64] + "..."
	}
	return fmt.Sprintf("malformed record %q: %s", line, e.Reason)
}

// Parse splits line at the first occurrence of sep. The part before it is the
// key, the remainder is the text.
func Parse(line, sep string) (Record, error) {
	line = strings.TrimSuffix(line, "\r")
	if sep == "" {
		return Record{}, &MalformedRecordError{Line: line, Reason: "empty separator"}
	}
	idx := strings.Index(line, sep)
	if idx < 0 {
		return Record{}, &MalformedRecordError{Line: line, Reason: "separator not found"}
	}
	key, err := ParseKey(line[:idx])
	if err != nil {
		return Record{}, &MalformedRecordError{Line: line, Reason: err.Error()}
	}
	return Record{Key: key, Text: line[idx+len(sep):]}, nil
}

// ParseKey decodes a non-negative decimal key by digit accumulation.
// No sign, whitespace or locale handling is performed.
func ParseKey(s string) (int64, error) {
	if s == "" {
		return 0, fmt.Errorf("empty key")
	}
	var v int64
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("non-digit %q in key", c)
		}
		d := int64(c - '0')
		if i >= maxKeyDigits && v > (math.MaxInt64-d)/10 {
			return 0, fmt.Errorf("key overflows int64")
		}
		v = v*10 + d
	}
	return v, nil
}

// Format renders r as "<Key><sep><Text>".
func Format(r Record, sep string) string {
	return string(AppendFormat(nil, r, sep))
}

// AppendFormat appends the line form of r to dst, without a newline.
func AppendFormat(dst []byte, r Record, sep string) []byte {
	dst = strconv.AppendInt(dst, r.Key, 10)
	dst = append(dst, sep...)
	dst = append(dst, r.Text...)
	return dst
}

// Compare orders by Text (ordinal bytes), then by Key ascending.
func Compare(a, b Record) int {
	if c := strings.Compare(a.Text, b.Text); c != 0 {
		return c
	}
	switch {
	case a.Key < b.Key:
		return -1
	case a.Key > b.Key:
		return 1
	}
	return 0
}

// Less reports whether a sorts strictly before b.
func Less(a, b Record) bool {
	return Compare(a, b) < 0
}

// SortRecords sorts records in place by Compare.
func SortRecords(records []Record) {
	slices.SortFunc(records, Compare)
}
