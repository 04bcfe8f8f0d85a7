package record

import (
	"errors"
	"math/rand/v2"
	"testing"
)

func TestParse(t *testing.T) {
	rec, err := Parse("7. apple", DefaultSeparator)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if rec.Key != 7 || rec.Text != "apple" {
		t.Errorf("Parse = %+v, want {7 apple}", rec)
	}

	// Only the first separator splits; the rest belongs to the text
	rec, err = Parse("415. Apple. Banana is yellow\r", DefaultSeparator)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if rec.Key != 415 || rec.Text != "Apple. Banana is yellow" {
		t.Errorf("Parse = %+v", rec)
	}

	rec, err = Parse("0012;x", ";")
	if err != nil {
		t.Fatalf("Parse custom separator: %v", err)
	}
	if rec.Key != 12 || rec.Text != "x" {
		t.Errorf("Parse = %+v, want {12 x}", rec)
	}

	rec, err = Parse("3. ", DefaultSeparator)
	if err != nil {
		t.Fatalf("Parse empty text: %v", err)
	}
	if rec.Key != 3 || rec.Text != "" {
		t.Errorf("Parse = %+v, want {3 }", rec)
	}
}

func TestParseMalformed(t *testing.T) {
	bad := []string{
		"no separator here",
		". missing key",
		"12a. bad digit",
		"-1. negative",
		" 5. leading space",
		"99999999999999999999. overflow",
	}
	for _, line := range bad {
		_, err := Parse(line, DefaultSeparator)
		var mre *MalformedRecordError
		if !errors.As(err, &mre) {
			t.Errorf("Parse(%q) err = %v, want MalformedRecordError", line, err)
			continue
		}
		if mre.Reason == "" {
			t.Errorf("Parse(%q): empty reason", line)
		}
	}
}

func TestParseKeyLimits(t *testing.T) {
	v, err := ParseKey("9223372036854775807")
	if err != nil {
		t.Fatalf("ParseKey(max): %v", err)
	}
	if v != 9223372036854775807 {
		t.Errorf("ParseKey(max) = %d", v)
	}
	if _, err := ParseKey("9223372036854775808"); err == nil {
		t.Error("ParseKey(max+1) succeeded, want overflow error")
	}
}

func TestFormatParseRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	for i := 0; i < 1000; i++ {
		r := Record{Key: rng.Int64(), Text: randomText(rng)}
		got, err := Parse(Format(r, DefaultSeparator), DefaultSeparator)
		if err != nil {
			t.Fatalf("Parse(Format(%+v)): %v", r, err)
		}
		if got != r {
			t.Fatalf("round trip = %+v, want %+v", got, r)
		}
	}
}

func TestCompare(t *testing.T) {
	cases := []struct {
		a, b Record
		want int
	}{
		{Record{1, "apple"}, Record{2, "banana"}, -1},
		{Record{9, "apple"}, Record{1, "banana"}, -1},
		{Record{2, "kiwi"}, Record{5, "kiwi"}, -1},
		{Record{5, "kiwi"}, Record{2, "kiwi"}, 1},
		{Record{5, "kiwi"}, Record{5, "kiwi"}, 0},
		// Ordinal: uppercase sorts before lowercase
		{Record{1, "b"}, Record{1, "B"}, 1},
		{Record{1, "ab"}, Record{1, "abc"}, -1},
	}
	for _, c := range cases {
		if got := Compare(c.a, c.b); got != c.want {
			t.Errorf("Compare(%+v, %+v) = %d, want %d", c.a, c.b, got, c.want)
		}
		if got := Compare(c.b, c.a); got != -c.want {
			t.Errorf("Compare(%+v, %+v) = %d, want %d", c.b, c.a, got, -c.want)
		}
	}
}

func TestSortRecords(t *testing.T) {
	records := []Record{
		{3, "banana"},
		{5, "kiwi"},
		{1, "apple"},
		{2, "kiwi"},
		{2, "cherry"},
	}
	SortRecords(records)
	want := []Record{
		{1, "apple"},
		{3, "banana"},
		{2, "cherry"},
		{2, "kiwi"},
		{5, "kiwi"},
	}
	for i := range want {
		if records[i] != want[i] {
			t.Errorf("records[%d] = %+v, want %+v", i, records[i], want[i])
		}
	}
}

func randomText(rng *rand.Rand) string {
	const alphabet = "abcdefghijklmnopqrstuvwxyzABC .,"
	n := rng.IntN(20)
	b := make([]byte, n)
	for i := range b {
		b[i] = alphabet[rng.IntN(len(alphabet))]
	}
	return string(b)
}
