// Package chatstreamtest provides helpers for testing code built on
// chatstream: readers that deliver a body in controlled chunks, NDJSON
// builders and a fake answer-serving backend.
package chatstreamtest

import (
	"encoding/json"
	"io"
	"strings"
)

// ChunkReader returns a reader that yields s in reads of at most size bytes.
func ChunkReader(s string, size int) io.Reader {
	if size <= 0 {
		size = 1
	}
	var chunks []string
	for len(s) > size {
		chunks = append(chunks, s[:size])
		s = s[size:]
	}
	if s != "" {
		chunks = append(chunks, s)
	}
	return &chunkReader{chunks: chunks}
}

// SplitReader returns a reader that yields s split at the given byte offsets,
// one read per piece. Offsets outside of s or out of order are ignored.
func SplitReader(s string, offsets ...int) io.Reader {
	var chunks []string
	prev := 0
	for _, off := range offsets {
		if off <= prev || off >= len(s) {
			continue
		}
		chunks = append(chunks, s[prev:off])
		prev = off
	}
	chunks = append(chunks, s[prev:])
	return &chunkReader{chunks: chunks}
}

type chunkReader struct {
	chunks []string
	curr   string
}

func (r *chunkReader) Read(p []byte) (int, error) {
	if r.curr == "" {
		if len(r.chunks) == 0 {
			return 0, io.EOF
		}
		r.curr, r.chunks = r.chunks[0], r.chunks[1:]
	}
	n := copy(p, r.curr)
	r.curr = r.curr[n:]
	return n, nil
}

// NDJSON marshals each record onto its own line. Records that are already
// strings are written verbatim, which allows malformed lines in tests.
func NDJSON(records ...any) string {
	var sb strings.Builder
	for _, record := range records {
		if s, ok := record.(string); ok {
			sb.WriteString(s)
			sb.WriteByte('\n')
			continue
		}
		b, err := json.Marshal(record)
		if err != nil {
			panic(err)
		}
		sb.Write(b)
		sb.WriteByte('\n')
	}
	return sb.String()
}
