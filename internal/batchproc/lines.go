// Copyright 2025 James Ross
package batchproc

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/gzip"
)

const scannerBufSize = 1024 * 1024 // generous line-length ceiling for noisy user agents/referers

// lineSource streams a log file's lines without buffering the whole file
// in memory, per spec.md §5's memory model. Compression is detected by
// magic bytes rather than trusting the file extension, so a misnamed
// `.log` that is actually gzipped still opens correctly.
type lineSource struct {
	file    *os.File
	gzr     *gzip.Reader
	scanner *bufio.Scanner
	lineNo  int
}

func openLineSource(path string) (*lineSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	magic := make([]byte, 2)
	n, _ := io.ReadFull(f, magic)
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		f.Close()
		return nil, fmt.Errorf("seek %s: %w", path, err)
	}

	ls := &lineSource{file: f}
	var reader io.Reader = f
	if n == 2 && magic[0] == 0x1f && magic[1] == 0x8b {
		gzr, err := gzip.NewReader(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("gzip open %s: %w", path, err)
		}
		ls.gzr = gzr
		reader = gzr
	}

	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 64*1024), scannerBufSize)
	ls.scanner = scanner
	return ls, nil
}

// Next returns the next line and its 1-based line number, or ok=false at
// EOF.
func (ls *lineSource) Next() (line string, lineNo int, ok bool) {
	if !ls.scanner.Scan() {
		return "", 0, false
	}
	ls.lineNo++
	return ls.scanner.Text(), ls.lineNo, true
}

func (ls *lineSource) Err() error {
	return ls.scanner.Err()
}

func (ls *lineSource) Close() error {
	if ls.gzr != nil {
		ls.gzr.Close()
	}
	return ls.file.Close()
}
