package genai

// MaxToolCalls bounds the provider index accepted by ToolCalls.Apply.
const MaxToolCalls = 128

// ToolCall is one reconstructed tool invocation.
type ToolCall struct {
	ID        string
	Type      string
	Name      string
	Arguments string
}

// ToolCallDelta is one streamed fragment of a tool call.
type ToolCallDelta struct {
	Index     int
	ID        string
	Type      string
	Name      string
	Arguments string
}

// ToolCalls accumulates tool calls by provider index. Slots are created by
// extending the slice, never by insertion.
type ToolCalls struct {
	calls []toolCallSlot
}

type toolCallSlot struct {
	id   string
	typ  string
	name string
	args []byte
}

// Apply merges one delta. A delta with an ID starts a new call at its index;
// a delta without one appends argument text to the call already there.
// Indexes outside [0, MaxToolCalls) are ignored.
func (tc *ToolCalls) Apply(d ToolCallDelta) {
	if d.Index < 0 || d.Index >= MaxToolCalls {
		return
	}
	for len(tc.calls) <= d.Index {
		tc.calls = append(tc.calls, toolCallSlot{})
	}

	slot := &tc.calls[d.Index]
	if d.ID != "" {
		slot.id = d.ID
		slot.typ = d.Type
		if slot.typ == "" {
			slot.typ = "function"
		}
		slot.name = d.Name
		slot.args = append(slot.args[:0], d.Arguments...)
		return
	}
	if d.Name != "" && slot.name == "" {
		slot.name = d.Name
	}
	slot.args = append(slot.args, d.Arguments...)
}

// Set replaces the call at index with a complete call, as reported by a
// non-streaming response.
func (tc *ToolCalls) Set(index int, call ToolCall) {
	if index < 0 || index >= MaxToolCalls {
		return
	}
	for len(tc.calls) <= index {
		tc.calls = append(tc.calls, toolCallSlot{})
	}
	tc.calls[index] = toolCallSlot{id: call.ID, typ: call.Type, name: call.Name, args: []byte(call.Arguments)}
}

// Len returns the number of slots, placeholders included.
func (tc *ToolCalls) Len() int { return len(tc.calls) }

// List returns the accumulated calls in index order, placeholders included.
func (tc *ToolCalls) List() []ToolCall {
	out := make([]ToolCall, len(tc.calls))
	for i := range tc.calls {
		s := &tc.calls[i]
		out[i] = ToolCall{ID: s.id, Type: s.typ, Name: s.name, Arguments: string(s.args)}
	}
	return out
}
