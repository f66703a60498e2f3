package argstruct

import (
	"fmt"
	"strings"
)

// WrappingWriter accumulates text and wraps it at word boundaries to a fixed width. A line prefix
// may be set at any point; it is applied to every line started from then on (both explicit
// newlines and wrap-induced ones), which is how help output keeps its hanging indents.
type WrappingWriter struct {
	sb         strings.Builder
	width      int
	linePrefix string
	lineLen    int    // committed runes on the current line
	word       []rune // pending word, not yet committed to the current line
}

func NewWrappingWriter(width int) (*WrappingWriter, error) {
	if width <= 0 {
		return nil, fmt.Errorf("illegal width: %d", width)
	}
	return &WrappingWriter{width: width}, nil
}

func (w *WrappingWriter) SetLinePrefix(prefix string) error {
	if len(prefix) >= w.width {
		return fmt.Errorf("invalid prefix '%s': too large for width %d", prefix, w.width)
	} else if strings.Contains(prefix, "\n") {
		return fmt.Errorf("invalid prefix '%s': cannot contain new lines", prefix)
	}
	w.commitWord()
	w.linePrefix = prefix
	return nil
}

// startLineIfNeeded writes the line prefix when the current line is still empty.
func (w *WrappingWriter) startLineIfNeeded() {
	if w.lineLen == 0 && w.linePrefix != "" {
		w.sb.WriteString(w.linePrefix)
		w.lineLen = len(w.linePrefix)
	}
}

func (w *WrappingWriter) breakLine() {
	w.sb.WriteByte('\n')
	w.lineLen = 0
}

// commitWord flushes the pending word onto the current line, wrapping first when it would not
// fit. Words longer than a whole line are written unbroken.
func (w *WrappingWriter) commitWord() {
	if len(w.word) == 0 {
		return
	}
	if w.lineLen > len(w.linePrefix) && w.lineLen+len(w.word) > w.width {
		w.breakLine()
	}
	w.startLineIfNeeded()
	w.sb.WriteString(string(w.word))
	w.lineLen += len(w.word)
	w.word = w.word[:0]
}

func (w *WrappingWriter) Write(p []byte) (n int, err error) {
	for _, r := range string(p) {
		switch r {
		case '\n':
			w.commitWord()
			w.breakLine()
		case ' ':
			w.commitWord()
			if w.lineLen < w.width {
				w.startLineIfNeeded()
				w.sb.WriteByte(' ')
				w.lineLen++
			} else {
				w.breakLine()
			}
		default:
			w.word = append(w.word, r)
		}
	}
	return len(p), nil
}

func (w *WrappingWriter) String() string {
	w.commitWord()
	return w.sb.String()
}
