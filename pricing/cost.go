package pricing

import (
	"fmt"
	"strings"
)

// Cost is a computed cost in USD. Known is false when the model is not
// priced, which is distinct from a known cost of zero.
type Cost struct {
	Value float64
	Known bool
}

// Unknown is the cost of a call whose model has no price.
var Unknown = Cost{}

// known returns a known cost of v.
func known(v float64) Cost { return Cost{Value: v, Known: true} }

func (c Cost) String() string {
	if !c.Known {
		return "unknown"
	}
	return fmt.Sprintf("%.6f", c.Value)
}

// Default image request parameters used when the caller did not set them.
const (
	DefaultImageQuality = "standard"
	DefaultImageSize    = "1024x1024"
)

// ChatCost prices a chat or completion call from per-1K token prices.
func ChatCost(model string, t *Table, promptTokens, completionTokens int64) Cost {
	if t == nil || promptTokens < 0 || completionTokens < 0 {
		return Unknown
	}
	p, ok := lookup(t.Chat, model)
	if !ok {
		return Unknown
	}
	return known(float64(promptTokens)/1000*p.PromptPrice + float64(completionTokens)/1000*p.CompletionPrice)
}

// EmbeddingCost prices an embeddings call from a per-1K token price.
func EmbeddingCost(model string, t *Table, promptTokens int64) Cost {
	if t == nil || promptTokens < 0 {
		return Unknown
	}
	p, ok := lookup(t.Embeddings, model)
	if !ok {
		return Unknown
	}
	return known(float64(promptTokens) / 1000 * p)
}

// ImageCost prices n generated images. Empty quality and size fall back to
// DefaultImageQuality and DefaultImageSize.
func ImageCost(model string, t *Table, quality, size string, n int) Cost {
	if t == nil || n < 0 {
		return Unknown
	}
	qualities, ok := lookup(t.Images, model)
	if !ok {
		return Unknown
	}
	if quality == "" {
		quality = DefaultImageQuality
	}
	if size == "" {
		size = DefaultImageSize
	}
	sizes, ok := qualities[quality]
	if !ok {
		return Unknown
	}
	p, ok := sizes[size]
	if !ok {
		return Unknown
	}
	return known(float64(n) * p)
}

// AudioCost prices speech synthesis per input character.
func AudioCost(model string, t *Table, characters int) Cost {
	if t == nil || characters < 0 {
		return Unknown
	}
	p, ok := lookup(t.Audio, model)
	if !ok {
		return Unknown
	}
	return known(float64(characters) * p)
}

func lookup[V any](m map[string]V, model string) (V, bool) {
	if v, ok := m[model]; ok {
		return v, true
	}
	normalized := NormalizeModelName(model)
	v, ok := m[normalized]
	return v, ok
}

// NormalizeModelName strips provider prefixes and release date suffixes.
// e.g., "openai/gpt-4o-2024-08-06" -> "gpt-4o",
// "claude-3-5-sonnet@20241022" -> "claude-3-5-sonnet"
func NormalizeModelName(raw string) string {
	name := strings.ToLower(strings.TrimSpace(raw))
	if i := strings.LastIndexByte(name, '/'); i >= 0 {
		name = name[i+1:]
	}
	if i := strings.IndexByte(name, '@'); i > 0 {
		name = name[:i]
	}

	parts := strings.Split(name, "-")
	switch {
	case len(parts) >= 2 && isAllDigits(parts[len(parts)-1]) && len(parts[len(parts)-1]) >= 8:
		// -20251101
		parts = parts[:len(parts)-1]
	case len(parts) >= 4 && isDate(parts[len(parts)-3:]):
		// -2024-08-06
		parts = parts[:len(parts)-3]
	}
	return strings.Join(parts, "-")
}

func isDate(parts []string) bool {
	return len(parts[0]) == 4 && len(parts[1]) == 2 && len(parts[2]) == 2 &&
		isAllDigits(parts[0]) && isAllDigits(parts[1]) && isAllDigits(parts[2])
}

func isAllDigits(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return len(s) > 0
}
