package geminilive

import (
	"slices"

	"google.golang.org/genai"
)

// history is the ordered conversation record. It is guarded by the session
// mutex and holds only content that was sent or completed.
type history struct {
	entries []*genai.Content
}

// appendUser records user parts, merging with a trailing user entry. The
// returned function removes exactly what was added.
func (h *history) appendUser(parts []*genai.Part) (undo func()) {
	return h.append(RoleUser, parts)
}

// appendModel records a model turn. Empty turns are not recorded.
func (h *history) appendModel(parts []*genai.Part) {
	h.append(RoleModel, parts)
}

func (h *history) append(role string, parts []*genai.Part) func() {
	parts = slices.DeleteFunc(slices.Clone(parts), func(p *genai.Part) bool { return p == nil })
	if len(parts) == 0 {
		return func() {}
	}
	if n := len(h.entries); n > 0 && h.entries[n-1].Role == role {
		last := h.entries[n-1]
		before := len(last.Parts)
		last.Parts = append(last.Parts, parts...)
		return func() {
			if len(h.entries) == n && h.entries[n-1] == last && len(last.Parts) >= before {
				last.Parts = last.Parts[:before]
			}
		}
	}
	entry := &genai.Content{Role: role, Parts: parts}
	h.entries = append(h.entries, entry)
	return func() {
		if n := len(h.entries); n > 0 && h.entries[n-1] == entry {
			h.entries = h.entries[:n-1]
		}
	}
}

// snapshot returns a copy that callers may keep.
func (h *history) snapshot() []*genai.Content {
	out := make([]*genai.Content, len(h.entries))
	for i, e := range h.entries {
		out[i] = &genai.Content{Role: e.Role, Parts: slices.Clone(e.Parts)}
	}
	return out
}
