package geminilive

import (
	"strings"

	"google.golang.org/genai"
)

// TextChunk is a fragment of the model's text output.
type TextChunk struct {
	Text         string `json:"text"`
	TurnFinished bool   `json:"turn_finished"`
}

// textTurn tracks the text chunking of one model turn. It is guarded by the
// session mutex.
type textTurn struct {
	seen     bool
	finished bool
}

// feed records the text parts of one server content frame and returns the
// chunk to deliver, or nil if the frame carries no text and does not end a
// turn that produced text.
func (t *textTurn) feed(parts []*genai.Part, final bool) *TextChunk {
	if t.finished {
		t.reset()
	}
	text := partsText(parts)
	if text != "" {
		t.seen = true
	}
	if final {
		if !t.seen {
			return nil
		}
		t.finished = true
		return &TextChunk{Text: text, TurnFinished: true}
	}
	if text == "" {
		return nil
	}
	return &TextChunk{Text: text}
}

// flush ends the turn early, as on interruption. It returns the terminal
// chunk if any text was seen.
func (t *textTurn) flush() *TextChunk {
	if t.finished || !t.seen {
		return nil
	}
	t.finished = true
	return &TextChunk{TurnFinished: true}
}

func (t *textTurn) reset() {
	t.seen = false
	t.finished = false
}

// partsText concatenates the non-thought text parts.
func partsText(parts []*genai.Part) string {
	var sb strings.Builder
	for _, p := range parts {
		if p == nil || p.Thought || p.Text == "" {
			continue
		}
		sb.WriteString(p.Text)
	}
	return sb.String()
}
