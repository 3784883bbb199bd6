package geminilive

import (
	"testing"

	"google.golang.org/genai"
)

func textParts(s ...string) []*genai.Part {
	parts := make([]*genai.Part, len(s))
	for i, t := range s {
		parts[i] = &genai.Part{Text: t}
	}
	return parts
}

func TestTextTurnFinishedOnce(t *testing.T) {
	frames := []struct {
		parts []*genai.Part
		final bool
	}{
		{textParts("a"), false},
		{nil, false},
		{textParts("b", "c"), false},
		{[]*genai.Part{{Text: "thinking", Thought: true}}, false},
		{textParts("d"), true},
	}

	var tt textTurn
	var got []TextChunk
	for _, f := range frames {
		if c := tt.feed(f.parts, f.final); c != nil {
			got = append(got, *c)
		}
	}

	want := []TextChunk{{Text: "a"}, {Text: "bc"}, {Text: "d", TurnFinished: true}}
	if len(got) != len(want) {
		t.Fatalf("chunks = %+v, want %+v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("chunk[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}
	if c := tt.flush(); c != nil {
		t.Errorf("flush() after finish = %+v, want nil", c)
	}
}

func TestTextTurnNoText(t *testing.T) {
	var tt textTurn
	if c := tt.feed(nil, true); c != nil {
		t.Errorf("feed(nil, true) = %+v, want nil for a turn without text", c)
	}
	if c := tt.flush(); c != nil {
		t.Errorf("flush() = %+v, want nil", c)
	}
}

func TestTextTurnFlushAndNextTurn(t *testing.T) {
	var tt textTurn
	tt.feed(textParts("partial"), false)
	c := tt.flush()
	if c == nil || !c.TurnFinished || c.Text != "" {
		t.Fatalf("flush() = %+v, want empty terminal chunk", c)
	}
	if c := tt.flush(); c != nil {
		t.Errorf("second flush() = %+v, want nil", c)
	}

	c = tt.feed(textParts("new"), true)
	if c == nil || c.Text != "new" || !c.TurnFinished {
		t.Errorf("next turn chunk = %+v", c)
	}
}

func TestHistoryRolesAndUndo(t *testing.T) {
	var h history
	h.appendUser(textParts("hi"))
	h.appendModel(textParts("hello"))
	h.appendModel(nil)
	undo := h.appendUser([]*genai.Part{nil, {Text: "again"}})
	h.appendUser(textParts("and more"))

	if len(h.entries) != 3 {
		t.Fatalf("len(entries) = %d, want 3", len(h.entries))
	}
	snap := h.snapshot()
	roles := []string{RoleUser, RoleModel, RoleUser}
	for i, c := range snap {
		if c.Role != roles[i] {
			t.Errorf("entry[%d].Role = %q, want %q", i, c.Role, roles[i])
		}
	}
	if len(snap[2].Parts) != 2 {
		t.Errorf("merged user entry has %d parts, want 2", len(snap[2].Parts))
	}

	// The snapshot is independent of later appends.
	h.appendModel(textParts("ok"))
	if len(snap) != 3 {
		t.Errorf("snapshot changed: len = %d", len(snap))
	}

	// undo only removes what it added, and never after later entries.
	undo()
	if len(h.entries) != 4 {
		t.Errorf("stale undo changed history: len = %d, want 4", len(h.entries))
	}

	var h2 history
	h2.appendModel(textParts("x"))
	undo = h2.appendUser(textParts("y"))
	undo()
	if len(h2.entries) != 1 || h2.snapshot()[0].Role != RoleModel {
		t.Errorf("undo left %+v", h2.snapshot())
	}
}
