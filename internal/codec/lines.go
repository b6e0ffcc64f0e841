package codec

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"

	"netconform/internal/evidence"
)

const maxLine = 1 << 20

// LinesReader reads one JSON event per line. Blank lines and lines starting
// with '#' are skipped.
type LinesReader struct {
	codec   *JSONCodec
	scanner *bufio.Scanner
	source  *evidence.Source
	line    int
}

// NewLinesReader reads events from r. Events that do not name their source
// are attributed to source.
func NewLinesReader(c *JSONCodec, r io.Reader, source *evidence.Source) *LinesReader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLine)
	return &LinesReader{codec: c, scanner: sc, source: source}
}

// Next implements EventReader
func (r *LinesReader) Next(ctx context.Context) (evidence.Event, error) {
	for r.scanner.Scan() {
		r.line++
		text := bytes.TrimSpace(r.scanner.Bytes())
		if len(text) == 0 || text[0] == '#' {
			continue
		}
		ev, err := r.codec.Decode(ctx, text, r.source)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", r.line, err)
		}
		return ev, nil
	}
	if err := r.scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read events: %w", err)
	}
	return nil, io.EOF
}

// Line returns the number of lines consumed so far
func (r *LinesReader) Line() int {
	return r.line
}

// LinesWriter writes one JSON event per line
type LinesWriter struct {
	codec *JSONCodec
	w     io.Writer
}

// NewLinesWriter creates a writer
func NewLinesWriter(c *JSONCodec, w io.Writer) *LinesWriter {
	return &LinesWriter{codec: c, w: w}
}

// Write encodes and writes one event
func (w *LinesWriter) Write(ctx context.Context, ev evidence.Event) error {
	data, err := w.codec.Encode(ctx, ev)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	if _, err := w.w.Write(data); err != nil {
		return fmt.Errorf("failed to write event: %w", err)
	}
	return nil
}

// ReadAll drains an EventReader
func ReadAll(ctx context.Context, r EventReader) ([]evidence.Event, error) {
	var out []evidence.Event
	for {
		ev, err := r.Next(ctx)
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, ev)
	}
}
