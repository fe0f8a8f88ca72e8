// Package frame splits the device's notification stream into complete
// JSON objects.
//
// The stream is an open-ended byte sequence: objects arrive in arbitrary
// chunks and may be separated by multipart boundaries, headers or other
// noise. The Extractor keeps a rolling buffer and emits each brace-balanced
// span exactly once, regardless of where chunk boundaries fall.
package frame

import "bytes"

// DefaultMaxBytes bounds the rolling buffer when no frame can complete.
const DefaultMaxBytes = 1 << 20

// Mode selects how braces are counted.
type Mode int

const (
	// Naive counts every '{' and '}' byte, including those inside JSON
	// string literals. A subject name containing an unbalanced brace will
	// stall framing until the overflow cap resynchronises the stream.
	Naive Mode = iota

	// StringAware ignores braces inside string literals and honours
	// backslash escapes.
	StringAware
)

func (m Mode) String() string {
	if m == StringAware {
		return "string_aware"
	}
	return "naive"
}

// Config tunes an Extractor.
type Config struct {
	Mode Mode

	// MaxBytes caps the buffer while no frame can complete. Zero means
	// DefaultMaxBytes.
	MaxBytes int
}

// Extractor accumulates chunks and yields complete frames. It is not safe
// for concurrent use; the supervisor owns one per stream connection.
type Extractor struct {
	mode Mode
	max  int

	buf []byte

	// Scan state for the frame in progress, so a partial frame is not
	// rescanned on every chunk.
	start    int // offset of the opening brace, -1 when not yet found
	pos      int // next offset to examine
	depth    int
	inString bool
	escaped  bool

	overflows int
}

// NewExtractor returns an empty Extractor.
func NewExtractor(cfg Config) *Extractor {
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = DefaultMaxBytes
	}
	return &Extractor{mode: cfg.Mode, max: cfg.MaxBytes, start: -1}
}

// Write appends a chunk to the buffer. It never fails.
func (e *Extractor) Write(p []byte) (int, error) {
	e.buf = append(e.buf, p...)
	return len(p), nil
}

// Next returns the next complete frame, or false when the buffer holds no
// complete frame yet. The returned slice is owned by the caller.
func (e *Extractor) Next() ([]byte, bool) {
	if e.start < 0 {
		idx := bytes.IndexByte(e.buf, '{')
		if idx < 0 {
			// Nothing to frame yet; keep the bytes and wait.
			e.checkOverflow()
			return nil, false
		}
		e.start = idx
		e.pos = idx
		e.depth = 0
		e.inString = false
		e.escaped = false
	}

	for ; e.pos < len(e.buf); e.pos++ {
		c := e.buf[e.pos]

		if e.mode == StringAware && e.inString {
			switch {
			case e.escaped:
				e.escaped = false
			case c == '\\':
				e.escaped = true
			case c == '"':
				e.inString = false
			}
			continue
		}

		switch c {
		case '"':
			if e.mode == StringAware {
				e.inString = true
			}
		case '{':
			e.depth++
		case '}':
			e.depth--
			if e.depth == 0 {
				return e.emit(e.pos + 1), true
			}
		}
	}

	e.checkOverflow()
	return nil, false
}

// Feed writes chunk and drains every frame it completes.
func (e *Extractor) Feed(chunk []byte) [][]byte {
	_, _ = e.Write(chunk)

	var out [][]byte
	for {
		f, ok := e.Next()
		if !ok {
			return out
		}
		out = append(out, f)
	}
}

// Buffered reports how many bytes are held awaiting a complete frame.
func (e *Extractor) Buffered() int { return len(e.buf) }

// Overflows reports how many times the buffer was discarded to resync.
func (e *Extractor) Overflows() int { return e.overflows }

// Reset discards all buffered bytes. The supervisor calls it before
// reading a new connection so a partial frame never straddles two streams.
func (e *Extractor) Reset() {
	e.buf = e.buf[:0]
	e.resetScan()
}

// emit copies buf[start:end] out and drops everything before end,
// including any leading noise.
func (e *Extractor) emit(end int) []byte {
	f := make([]byte, end-e.start)
	copy(f, e.buf[e.start:end])

	n := copy(e.buf, e.buf[end:])
	e.buf = e.buf[:n]
	e.resetScan()
	return f
}

func (e *Extractor) checkOverflow() {
	if len(e.buf) <= e.max {
		return
	}
	e.overflows++
	e.buf = e.buf[:0]
	e.resetScan()
}

func (e *Extractor) resetScan() {
	e.start = -1
	e.pos = 0
	e.depth = 0
	e.inString = false
	e.escaped = false
}
