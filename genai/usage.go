package genai

// Usage is provider-reported token usage. A nil field means the provider did
// not report it, which is distinct from a reported zero.
type Usage struct {
	PromptTokens     *int64
	CompletionTokens *int64
	TotalTokens      *int64
	ReasoningTokens  *int64
	CacheReadTokens  *int64
	CacheWriteTokens *int64
}

// Int64 returns a pointer to v.
func Int64(v int64) *int64 { return &v }

// Float64 returns a pointer to v.
func Float64(v float64) *float64 { return &v }

// Merge overlays every field that newer reports onto u.
func (u *Usage) Merge(newer Usage) {
	merge := func(dst **int64, src *int64) {
		if src != nil {
			v := *src
			*dst = &v
		}
	}
	merge(&u.PromptTokens, newer.PromptTokens)
	merge(&u.CompletionTokens, newer.CompletionTokens)
	merge(&u.TotalTokens, newer.TotalTokens)
	merge(&u.ReasoningTokens, newer.ReasoningTokens)
	merge(&u.CacheReadTokens, newer.CacheReadTokens)
	merge(&u.CacheWriteTokens, newer.CacheWriteTokens)
}

// Reported reports whether any field is present.
func (u Usage) Reported() bool {
	return u.PromptTokens != nil || u.CompletionTokens != nil || u.TotalTokens != nil ||
		u.ReasoningTokens != nil || u.CacheReadTokens != nil || u.CacheWriteTokens != nil
}

// Total returns the reported total, or prompt+completion when the provider
// reported only the parts.
func (u Usage) Total() (int64, bool) {
	if u.TotalTokens != nil {
		return *u.TotalTokens, true
	}
	if u.PromptTokens == nil && u.CompletionTokens == nil {
		return 0, false
	}
	var total int64
	if u.PromptTokens != nil {
		total += *u.PromptTokens
	}
	if u.CompletionTokens != nil {
		total += *u.CompletionTokens
	}
	return total, true
}

// Prompt returns the prompt token count, zero when absent.
func (u Usage) Prompt() int64 { return deref(u.PromptTokens) }

// Completion returns the completion token count, zero when absent.
func (u Usage) Completion() int64 { return deref(u.CompletionTokens) }

func deref(p *int64) int64 {
	if p == nil {
		return 0
	}
	return *p
}
