package chunk

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// Compression selects how chunk, input and output files are encoded.
type Compression string

const (
	CompressionNone Compression = "none"
	CompressionZstd Compression = "zstd"
)

// ZstdSuffix marks zstd-compressed input and output files.
const ZstdSuffix = ".zst"

const ioBufferSize = 1 << 20

// ParseCompression maps a config value to a Compression.
func ParseCompression(s string) (Compression, error) {
	switch strings.ToLower(s) {
	case "", "none", "off":
		return CompressionNone, nil
	case "zstd", "zst":
		return CompressionZstd, nil
	}
	return "", fmt.Errorf("unknown compression %q", s)
}

// CompressionForPath returns zstd for paths ending in .zst.
func CompressionForPath(path string) Compression {
	if strings.HasSuffix(path, ZstdSuffix) {
		return CompressionZstd
	}
	return CompressionNone
}

// LineReader streams newline-delimited lines from a plain or zstd file.
type LineReader struct {
	f  *os.File
	zr *zstd.Decoder
	br *bufio.Reader
}

// OpenLineReader opens path for line reading.
func OpenLineReader(path string, c Compression) (*LineReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	r := &LineReader{f: f}
	var src io.Reader = f
	if c == CompressionZstd {
		zr, err := zstd.NewReader(f, zstd.WithDecoderConcurrency(1))
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("zstd reader %s: %w", path, err)
		}
		r.zr = zr
		src = zr
	}
	r.br = bufio.NewReaderSize(src, ioBufferSize)
	return r, nil
}

// ReadLine returns the next line without its line terminator.
// It returns io.EOF once the stream is exhausted.
func (r *LineReader) ReadLine() (string, error) {
	line, err := r.br.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && len(line) > 0 {
			return strings.TrimSuffix(line, "\r"), nil
		}
		return "", err
	}
	line = line[:len(line)-1]
	return strings.TrimSuffix(line, "\r"), nil
}

// Close releases the file and decoder.
func (r *LineReader) Close() error {
	if r.zr != nil {
		r.zr.Close()
	}
	return r.f.Close()
}

// LineWriter writes lines to path+".tmp" and moves the file into place on Commit,
// so a file under its final name is always complete.
type LineWriter struct {
	path    string
	tmpPath string
	f       *os.File
	zw      *zstd.Encoder
	bw      *bufio.Writer
	lines   int64
	bytes   int64
}

// CreateLineWriter creates the temporary file backing path.
func CreateLineWriter(path string, c Compression) (*LineWriter, error) {
	tmpPath := path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return nil, err
	}
	w := &LineWriter{path: path, tmpPath: tmpPath, f: f}
	var dst io.Writer = f
	if c == CompressionZstd {
		zw, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
		if err != nil {
			f.Close()
			os.Remove(tmpPath)
			return nil, fmt.Errorf("zstd writer %s: %w", path, err)
		}
		w.zw = zw
		dst = zw
	}
	w.bw = bufio.NewWriterSize(dst, ioBufferSize)
	return w, nil
}

// Path returns the final path of the file.
func (w *LineWriter) Path() string { return w.path }

// Lines returns the number of lines written so far.
func (w *LineWriter) Lines() int64 { return w.lines }

// Bytes returns the number of uncompressed bytes written so far.
func (w *LineWriter) Bytes() int64 { return w.bytes }

// WriteLine writes line followed by a newline.
func (w *LineWriter) WriteLine(line string) error {
	if _, err := w.bw.WriteString(line); err != nil {
		return err
	}
	if err := w.bw.WriteByte('\n'); err != nil {
		return err
	}
	w.lines++
	w.bytes += int64(len(line)) + 1
	return nil
}

// WriteBlock writes a pre-rendered block holding n newline-terminated lines.
func (w *LineWriter) WriteBlock(block []byte, n int) error {
	if _, err := w.bw.Write(block); err != nil {
		return err
	}
	w.lines += int64(n)
	w.bytes += int64(len(block))
	return nil
}

// Commit flushes, closes and renames the temporary file to its final path.
func (w *LineWriter) Commit() error {
	if err := w.bw.Flush(); err != nil {
		w.Abort()
		return fmt.Errorf("flush %s: %w", w.path, err)
	}
	if w.zw != nil {
		if err := w.zw.Close(); err != nil {
			w.zw = nil
			w.Abort()
			return fmt.Errorf("close zstd %s: %w", w.path, err)
		}
		w.zw = nil
	}
	if err := w.f.Close(); err != nil {
		os.Remove(w.tmpPath)
		return fmt.Errorf("close %s: %w", w.path, err)
	}
	if err := os.Rename(w.tmpPath, w.path); err != nil {
		os.Remove(w.tmpPath)
		return fmt.Errorf("rename %s: %w", w.path, err)
	}
	return nil
}

// Abort discards the temporary file.
func (w *LineWriter) Abort() {
	if w.zw != nil {
		w.zw.Close()
		w.zw = nil
	}
	w.f.Close()
	os.Remove(w.tmpPath)
}
