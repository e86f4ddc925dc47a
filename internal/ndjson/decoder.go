package ndjson

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

const MaxLineSize = 5 * 1024 * 1024 // 5MB

// LineError reports a line that could not be parsed as JSON.
type LineError struct {
	// Line is the 1-based line number in the stream, blank lines included.
	Line int
	Text string
	Err  error
}

func (e *LineError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e *LineError) Unwrap() error {
	return e.Err
}

// Decoder reads newline-delimited JSON records from an io.Reader.
// Lines split across reads are reassembled before parsing, blank lines are
// skipped and a final line without a trailing newline is still emitted.
type Decoder struct {
	src     *sourceReader
	scanner *bufio.Scanner
	line    int
	curr    json.RawMessage
	err     error
	done    bool
}

// NewDecoder creates a new NDJSON decoder from an io.Reader
func NewDecoder(reader io.Reader) *Decoder {
	src := &sourceReader{r: reader}
	scanner := bufio.NewScanner(src)
	scanner.Buffer(make([]byte, 0, 64*1024), MaxLineSize)
	scanner.Split(func(data []byte, atEOF bool) (int, []byte, error) {
		// A trailing line cut short by a transport failure is not a record.
		if atEOF && src.err != nil && bytes.IndexByte(data, '\n') < 0 {
			return 0, nil, src.err
		}
		return bufio.ScanLines(data, atEOF)
	})
	return &Decoder{
		src:     src,
		scanner: scanner,
	}
}

// Next advances to the next record. It returns false at the end of the
// stream or on the first error; the decoder cannot be restarted.
func (d *Decoder) Next() bool {
	if d.done {
		return false
	}

	for d.scanner.Scan() {
		d.line++
		text := bytes.TrimSpace(d.scanner.Bytes())
		if len(text) == 0 {
			continue
		}

		var record json.RawMessage
		if err := json.Unmarshal(text, &record); err != nil {
			d.fail(&LineError{Line: d.line, Text: string(text), Err: err})
			return false
		}
		d.curr = record
		return true
	}

	if err := d.scanner.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			d.fail(&LineError{Line: d.line + 1, Err: err})
			return false
		}
		d.fail(fmt.Errorf("line %d: %w", d.line+1, err))
		return false
	}
	d.done = true
	d.curr = nil
	return false
}

// Current returns the record read by the last successful call to Next.
func (d *Decoder) Current() json.RawMessage {
	return d.curr
}

// Line returns the line number of the current record.
func (d *Decoder) Line() int {
	return d.line
}

// Err returns the error that stopped the decoder, if any.
func (d *Decoder) Err() error {
	return d.err
}

func (d *Decoder) fail(err error) {
	d.err = err
	d.done = true
	d.curr = nil
}

// sourceReader remembers the first non-EOF read error of the transport.
type sourceReader struct {
	r   io.Reader
	err error
}

func (s *sourceReader) Read(p []byte) (int, error) {
	n, err := s.r.Read(p)
	if err != nil && err != io.EOF && s.err == nil {
		s.err = err
	}
	return n, err
}
