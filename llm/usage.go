package llm

import (
	"maps"
	"slices"
)

// ModelUsage counts tokens spent on one model.
type ModelUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Usage maps a model name to its token counts. Values are treated as
// immutable: Add and Merge return new maps, so a Usage can be shared between
// a finished sub-run and its parent without aliasing.
type Usage map[string]ModelUsage

// Add returns a copy of u with the given counts added to model.
func (u Usage) Add(model string, input, output int) Usage {
	out := u.Clone()
	m := out[model]
	m.InputTokens += input
	m.OutputTokens += output
	out[model] = m
	return out
}

// Merge returns the per-model sum of u and other. Merge is commutative and
// associative, and the empty Usage is its identity.
func (u Usage) Merge(other Usage) Usage {
	out := u.Clone()
	for model, m := range other {
		cur := out[model]
		cur.InputTokens += m.InputTokens
		cur.OutputTokens += m.OutputTokens
		out[model] = cur
	}
	return out
}

// Clone returns an independent copy. A nil Usage clones to an empty map.
func (u Usage) Clone() Usage {
	out := make(Usage, len(u))
	maps.Copy(out, u)
	return out
}

// Models lists the models with recorded usage in sorted order.
func (u Usage) Models() []string {
	return slices.Sorted(maps.Keys(u))
}

// Total sums every model.
func (u Usage) Total() ModelUsage {
	var t ModelUsage
	for _, m := range u {
		t.InputTokens += m.InputTokens
		t.OutputTokens += m.OutputTokens
	}
	return t
}
