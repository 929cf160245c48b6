// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package capture

import (
	"bufio"
	"bytes"
	"io"
	"log/slog"
)

// MaxLineLength bounds one input line. Longer lines are dropped and
// reading continues with the next line.
const MaxLineLength = 4096

// newLineScanner returns a scanner over input that yields lines of at
// most MaxLineLength bytes, skipping any longer line instead of
// failing.
func newLineScanner(input io.Reader, logger *slog.Logger) *bufio.Scanner {
	splitter := &lineSplitter{logger: logger}
	reader := bufio.NewScanner(input)
	reader.Buffer(make([]byte, 0, 512), 2*MaxLineLength)
	reader.Split(splitter.split)
	return reader
}

type lineSplitter struct {
	logger *slog.Logger
	// discarding is set while skipping the rest of an overlong line.
	discarding bool
}

func (s *lineSplitter) split(data []byte, atEOF bool) (int, []byte, error) {
	newline := bytes.IndexByte(data, '\n')
	if s.discarding {
		if newline < 0 {
			return len(data), nil, nil
		}
		s.discarding = false
		return newline + 1, nil, nil
	}
	switch {
	case newline > MaxLineLength:
		s.logger.Warn("dropping overlong input line", "length", newline)
		return newline + 1, nil, nil
	case newline < 0 && len(data) > MaxLineLength:
		s.logger.Warn("dropping overlong input line", "length_at_least", len(data))
		s.discarding = true
		return len(data), nil, nil
	}
	return bufio.ScanLines(data, atEOF)
}
