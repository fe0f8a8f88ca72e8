package frame_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/BrandonDHaskell/Portunus/attendance/internal/portunus/frame"
)

const authorized = `{"AccessControllerEvent":{"subEventType":38,"employeeNoString":"42","cardReaderNo":1,"currentVerifyMode":"fp"},"dateTime":"2025-01-01T09:00:00"}`

func feedAll(e *frame.Extractor, chunks ...string) []string {
	var out []string
	for _, c := range chunks {
		for _, f := range e.Feed([]byte(c)) {
			out = append(out, string(f))
		}
	}
	return out
}

// ── Basic framing ────────────────────────────────────────────────────────────

func TestExtractor_SingleFrame(t *testing.T) {
	e := frame.NewExtractor(frame.Config{})
	got := feedAll(e, authorized)

	if len(got) != 1 {
		t.Fatalf("expected 1 frame, got %d", len(got))
	}
	if got[0] != authorized {
		t.Errorf("expected frame %q, got %q", authorized, got[0])
	}
	if e.Buffered() != 0 {
		t.Errorf("expected empty buffer, got %d bytes", e.Buffered())
	}
}

func TestExtractor_DropsLeadingNoise(t *testing.T) {
	e := frame.NewExtractor(frame.Config{})
	stream := "--boundary\r\nContent-Type: application/json\r\nContent-Length: 12\r\n\r\n" + authorized + "\r\n--boundary\r\n"

	got := feedAll(e, stream)
	if len(got) != 1 || got[0] != authorized {
		t.Fatalf("expected the JSON object only, got %q", got)
	}
	if e.Buffered() == 0 {
		t.Error("expected trailing noise to be held until the next frame")
	}
}

func TestExtractor_MultipleFramesInOneChunk(t *testing.T) {
	e := frame.NewExtractor(frame.Config{})
	got := feedAll(e, `{"a":1}noise{"b":{"c":2}}--{"d":3}`)

	want := []string{`{"a":1}`, `{"b":{"c":2}}`, `{"d":3}`}
	if len(got) != len(want) {
		t.Fatalf("expected %d frames, got %d: %q", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("frame %d: expected %q, got %q", i, want[i], got[i])
		}
	}
}

func TestExtractor_HoldsBufferWithoutOpeningBrace(t *testing.T) {
	e := frame.NewExtractor(frame.Config{})
	got := feedAll(e, "HTTP noise without objects")

	if len(got) != 0 {
		t.Fatalf("expected no frames, got %q", got)
	}
	if e.Buffered() != len("HTTP noise without objects") {
		t.Errorf("expected buffer to be held, got %d bytes", e.Buffered())
	}
}

func TestExtractor_PartialFrameRetained(t *testing.T) {
	e := frame.NewExtractor(frame.Config{})
	if got := feedAll(e, `{"AccessControllerEvent":{"subEventType":38`); len(got) != 0 {
		t.Fatalf("expected no frames from partial input, got %q", got)
	}
	got := feedAll(e, `}}`)
	if len(got) != 1 || got[0] != `{"AccessControllerEvent":{"subEventType":38}}` {
		t.Fatalf("expected completed frame, got %q", got)
	}
}

// ── Chunk boundaries ─────────────────────────────────────────────────────────

func TestExtractor_SplitAtEveryPosition(t *testing.T) {
	stream := "--b\r\n" + authorized + "\r\n--b\r\n" + `{"x":{"y":{}}}` + "\r\n"

	for i := 0; i <= len(stream); i++ {
		e := frame.NewExtractor(frame.Config{})
		got := feedAll(e, stream[:i], stream[i:])
		if len(got) != 2 {
			t.Fatalf("split %d: expected 2 frames, got %d: %q", i, len(got), got)
		}
		if got[0] != authorized || got[1] != `{"x":{"y":{}}}` {
			t.Fatalf("split %d: unexpected frames %q", i, got)
		}
	}
}

func TestExtractor_ByteAtATime(t *testing.T) {
	e := frame.NewExtractor(frame.Config{})
	var got []string
	for i := 0; i < len(authorized); i++ {
		got = append(got, feedAll(e, authorized[i:i+1])...)
	}
	if len(got) != 1 || got[0] != authorized {
		t.Fatalf("expected exactly one frame, got %q", got)
	}
}

func TestExtractor_ThreeChunkReconstruction(t *testing.T) {
	e := frame.NewExtractor(frame.Config{})
	got := feedAll(e,
		`{"Access`,
		`ControllerEvent":{"subEventType"`,
		`:38,"employeeNoString":"42"}}`,
	)
	want := `{"AccessControllerEvent":{"subEventType":38,"employeeNoString":"42"}}`
	if len(got) != 1 || got[0] != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestExtractor_FrameIsCopied(t *testing.T) {
	e := frame.NewExtractor(frame.Config{})
	got := e.Feed([]byte(`{"a":1}{"b":2`))
	if len(got) != 1 {
		t.Fatalf("expected 1 frame, got %d", len(got))
	}
	before := append([]byte(nil), got[0]...)

	_ = e.Feed([]byte(`}{"c":3}`))
	if !bytes.Equal(got[0], before) {
		t.Errorf("emitted frame mutated by later writes: %q", got[0])
	}
}

// ── Braces inside strings ────────────────────────────────────────────────────

func TestExtractor_NaiveCountsBracesInStrings(t *testing.T) {
	e := frame.NewExtractor(frame.Config{Mode: frame.Naive})
	got := feedAll(e, `{"name":"a{b"}`)

	if len(got) != 0 {
		t.Fatalf("naive mode should not close a frame with an unbalanced brace in a string, got %q", got)
	}
}

func TestExtractor_StringAwareIgnoresBracesInStrings(t *testing.T) {
	e := frame.NewExtractor(frame.Config{Mode: frame.StringAware})
	in := `{"name":"a{b\"}"}{"n":"}"}`
	got := feedAll(e, in[:9], in[9:])

	want := []string{`{"name":"a{b\"}"}`, `{"n":"}"}`}
	if len(got) != len(want) {
		t.Fatalf("expected %d frames, got %d: %q", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("frame %d: expected %q, got %q", i, want[i], got[i])
		}
	}
}

func TestExtractor_StringAwareMatchesNaiveOnPlainInput(t *testing.T) {
	stream := strings.Repeat("--b\r\n"+authorized, 4)
	naive := feedAll(frame.NewExtractor(frame.Config{Mode: frame.Naive}), stream)
	aware := feedAll(frame.NewExtractor(frame.Config{Mode: frame.StringAware}), stream)

	if len(naive) != 4 || len(aware) != 4 {
		t.Fatalf("expected 4 frames in both modes, got naive=%d aware=%d", len(naive), len(aware))
	}
}

// ── Overflow ─────────────────────────────────────────────────────────────────

func TestExtractor_OverflowResyncs(t *testing.T) {
	e := frame.NewExtractor(frame.Config{MaxBytes: 64})

	if got := feedAll(e, strings.Repeat("{", 100)); len(got) != 0 {
		t.Fatalf("expected no frames from brace noise, got %q", got)
	}
	if e.Overflows() != 1 {
		t.Fatalf("expected 1 overflow, got %d", e.Overflows())
	}
	if e.Buffered() != 0 {
		t.Fatalf("expected buffer discarded, got %d bytes", e.Buffered())
	}

	got := feedAll(e, `{"ok":true}`)
	if len(got) != 1 || got[0] != `{"ok":true}` {
		t.Fatalf("expected framing to recover after overflow, got %q", got)
	}
}

func TestExtractor_OverflowOnNoiseWithoutBraces(t *testing.T) {
	e := frame.NewExtractor(frame.Config{MaxBytes: 16})
	_ = feedAll(e, strings.Repeat("x", 17))

	if e.Overflows() != 1 {
		t.Errorf("expected 1 overflow, got %d", e.Overflows())
	}
}

func TestExtractor_LargeChunkOfCompleteFramesDoesNotOverflow(t *testing.T) {
	e := frame.NewExtractor(frame.Config{MaxBytes: 32})
	got := feedAll(e, strings.Repeat(`{"a":1}`, 20))

	if len(got) != 20 {
		t.Fatalf("expected 20 frames, got %d", len(got))
	}
	if e.Overflows() != 0 {
		t.Errorf("expected no overflow while frames complete, got %d", e.Overflows())
	}
}

func TestExtractor_Reset(t *testing.T) {
	e := frame.NewExtractor(frame.Config{})
	_ = feedAll(e, `{"partial":`)
	e.Reset()

	got := feedAll(e, `{"a":1}`)
	if len(got) != 1 || got[0] != `{"a":1}` {
		t.Fatalf("expected clean frame after reset, got %q", got)
	}
}
