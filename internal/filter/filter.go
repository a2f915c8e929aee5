package filter

import (
	"strings"
)

// Default reasoning delimiters emitted by the backend's reasoning models.
const (
	DefaultOpenTag  = "<think>"
	DefaultCloseTag = "</think>"
)

// ReasoningFilter strips delimiter-marked reasoning segments from an
// incrementally delivered response stream.
//
// The backend interleaves <think>…</think> spans into the token stream and a
// delimiter can be split across any number of chunks, so chunk-local matching
// cannot work (a chunk ending in "<thi" looks like plain text). The filter
// instead keeps the full raw stream and recomputes the visible projection
// from scratch on every call. Chunks are processed in delivery order and the
// raw buffer is append-only, so each projection is a pure function of a
// prefix of the final stream.
type ReasoningFilter struct {
	raw      strings.Builder
	openTag  string
	closeTag string
}

// New returns a filter for the default <think> delimiters.
func New() *ReasoningFilter {
	return NewWithTags(DefaultOpenTag, DefaultCloseTag)
}

// NewWithTags returns a filter for custom delimiter tokens.
func NewWithTags(openTag, closeTag string) *ReasoningFilter {
	return &ReasoningFilter{openTag: openTag, closeTag: closeTag}
}

// Ingest appends a chunk to the raw stream and returns the visible text so
// far. A suffix that could still grow into an opening delimiter is held back
// until a later chunk decides it either way.
func (f *ReasoningFilter) Ingest(chunk string) string {
	f.raw.WriteString(chunk)
	return f.project(false)
}

// Finalize returns the final visible text. An opening delimiter with no
// matching close suppresses everything after it: the unterminated reasoning
// tail is discarded by policy, not reported as an error. A trailing partial
// tag that never completed is plain text and is emitted.
func (f *ReasoningFilter) Finalize() string {
	return f.project(true)
}

// Raw returns the full accumulated stream, reasoning segments included.
func (f *ReasoningFilter) Raw() string {
	return f.raw.String()
}

// InsideReasoning reports whether the stream currently ends inside an
// unterminated reasoning segment.
func (f *ReasoningFilter) InsideReasoning() bool {
	src := f.raw.String()
	cursor := 0
	for {
		start := strings.Index(src[cursor:], f.openTag)
		if start < 0 {
			return false
		}
		inner := cursor + start + len(f.openTag)
		end := strings.Index(src[inner:], f.closeTag)
		if end < 0 {
			return true
		}
		cursor = inner + end + len(f.closeTag)
	}
}

// project scans the whole raw buffer, excising every complete open…close
// pair. Text inside an unterminated trailing segment is never exposed.
func (f *ReasoningFilter) project(final bool) string {
	src := f.raw.String()
	var b strings.Builder
	cursor := 0
	for {
		start := strings.Index(src[cursor:], f.openTag)
		if start < 0 {
			break
		}
		start += cursor
		b.WriteString(src[cursor:start])
		inner := start + len(f.openTag)
		end := strings.Index(src[inner:], f.closeTag)
		if end < 0 {
			// Open with no close yet: suppress the tail. On Finalize this
			// drops the segment for good.
			return b.String()
		}
		cursor = inner + end + len(f.closeTag)
	}

	tail := src[cursor:]
	if !final {
		tail = trimPartialTag(tail, f.openTag)
	}
	b.WriteString(tail)
	return b.String()
}

// trimPartialTag drops a trailing proper prefix of tag from s, so that a
// half-arrived delimiter is never shown as text.
func trimPartialTag(s, tag string) string {
	max := len(tag) - 1
	if max > len(s) {
		max = len(s)
	}
	for n := max; n > 0; n-- {
		if strings.HasSuffix(s, tag[:n]) {
			return s[:len(s)-n]
		}
	}
	return s
}
