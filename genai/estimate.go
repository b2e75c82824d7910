package genai

import (
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

// Estimator approximates token counts when a provider reports no usage.
type Estimator interface {
	CountTokens(model, text string) int
}

// ApproxEstimator counts roughly four characters per token.
type ApproxEstimator struct{}

// CountTokens implements Estimator.
func (ApproxEstimator) CountTokens(_ string, text string) int {
	n := utf8.RuneCountInString(text)
	if n == 0 {
		return 0
	}
	return (n + 3) / 4
}

// TiktokenEstimator counts tokens with the BPE encoding that matches the
// model family.
//
// Encodings may download data on first use, so they are loaded in the
// background and CountTokens never waits for one: until an encoding is ready
// the fallback estimator answers. A failed load is retried after
// DefaultEncodingRetry. Load blocks and can be used to warm encodings at
// startup.
type TiktokenEstimator struct {
	fallback Estimator
	retry    time.Duration
	now      func() time.Time
	get      func(name string) (*tiktoken.Tiktoken, error)

	mu   sync.Mutex
	encs map[string]*encodingEntry
}

// DefaultEncodingRetry is the delay before a failed encoding load is retried.
const DefaultEncodingRetry = time.Minute

type encodingEntry struct {
	enc      *tiktoken.Tiktoken
	loading  bool
	failedAt time.Time
}

// NewTiktokenEstimator creates a TiktokenEstimator. A nil fallback defaults to
// ApproxEstimator.
func NewTiktokenEstimator(fallback Estimator) *TiktokenEstimator {
	if fallback == nil {
		fallback = ApproxEstimator{}
	}
	return &TiktokenEstimator{
		fallback: fallback,
		retry:    DefaultEncodingRetry,
		now:      time.Now,
		get:      tiktoken.GetEncoding,
		encs:     make(map[string]*encodingEntry),
	}
}

// o200kPrefixes lists model families encoded with o200k_base.
var o200kPrefixes = []string{"gpt-4o", "gpt-4.1", "gpt-5", "o1", "o3", "o4"}

// EncodingForModel returns the tiktoken encoding name for model.
func EncodingForModel(model string) string {
	m := strings.ToLower(model)
	if i := strings.LastIndexByte(m, '/'); i >= 0 {
		m = m[i+1:]
	}
	for _, p := range o200kPrefixes {
		if strings.HasPrefix(m, p) {
			return tiktoken.MODEL_O200K_BASE
		}
	}
	return tiktoken.MODEL_CL100K_BASE
}

// CountTokens implements Estimator.
func (e *TiktokenEstimator) CountTokens(model, text string) int {
	if text == "" {
		return 0
	}
	enc := e.ready(EncodingForModel(model))
	if enc == nil {
		return e.fallback.CountTokens(model, text)
	}
	return len(enc.Encode(text, nil, nil))
}

// Load loads the named encoding and waits for it. It returns at once if the
// encoding is already loaded.
func (e *TiktokenEstimator) Load(name string) error {
	e.mu.Lock()
	entry := e.entry(name)
	if entry.enc != nil {
		e.mu.Unlock()
		return nil
	}
	e.mu.Unlock()
	return e.load(name)
}

// ready returns the encoding if it is loaded. Otherwise it starts a
// background load unless one is running or a recent one failed.
func (e *TiktokenEstimator) ready(name string) *tiktoken.Tiktoken {
	e.mu.Lock()
	defer e.mu.Unlock()

	entry := e.entry(name)
	if entry.enc != nil {
		return entry.enc
	}
	if entry.loading || (!entry.failedAt.IsZero() && e.now().Sub(entry.failedAt) < e.retry) {
		return nil
	}
	entry.loading = true
	go func() { _ = e.load(name) }()
	return nil
}

// entry must be called with e.mu held.
func (e *TiktokenEstimator) entry(name string) *encodingEntry {
	entry, ok := e.encs[name]
	if !ok {
		entry = &encodingEntry{}
		e.encs[name] = entry
	}
	return entry
}

func (e *TiktokenEstimator) load(name string) error {
	enc, err := e.get(name)

	e.mu.Lock()
	defer e.mu.Unlock()
	entry := e.entry(name)
	entry.loading = false
	if err != nil {
		entry.failedAt = e.now()
		return err
	}
	entry.enc, entry.failedAt = enc, time.Time{}
	return nil
}

// Estimate fills res.Usage from prompt and completion text when the provider
// reported no usage. It reports whether an estimate was made.
func Estimate(e Estimator, req Request, res *Result) bool {
	if e == nil || res == nil || res.Usage.Reported() {
		return false
	}
	prompt := req.PromptText()
	completion := res.Content()
	if prompt == "" && completion == "" {
		return false
	}

	model := res.Model
	if model == "" {
		model = req.Model
	}
	p := int64(e.CountTokens(model, prompt))
	c := int64(e.CountTokens(model, completion))
	res.Usage = Usage{
		PromptTokens:     Int64(p),
		CompletionTokens: Int64(c),
		TotalTokens:      Int64(p + c),
	}
	res.Estimated = true
	return true
}
