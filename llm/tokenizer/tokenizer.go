package tokenizer

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Tokenizer counts tokens and cuts text to a token budget.
type Tokenizer interface {
	// CountTokens returns the number of tokens in text.
	CountTokens(text string) (int, error)

	// Truncate returns the longest prefix of text that fits in maxTokens.
	Truncate(text string, maxTokens int) (string, error)

	// Name identifies the encoding.
	Name() string
}

var (
	registry   = make(map[string]Tokenizer)
	registryMu sync.RWMutex
)

// Register binds a tokenizer to a model name.
func Register(model string, t Tokenizer) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[model] = t
}

// Get returns the tokenizer registered for model.
func Get(model string) (Tokenizer, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	if t, ok := registry[model]; ok {
		return t, nil
	}
	return nil, fmt.Errorf("no tokenizer registered for model: %s", model)
}

// GetOrDefault returns the tokenizer registered for model, or Default().
func GetOrDefault(model string) Tokenizer {
	if t, err := Get(model); err == nil {
		return t
	}
	return Default()
}

var (
	defaultOnce sync.Once
	defaultTok  Tokenizer
)

// Default returns a cl100k_base tiktoken tokenizer that falls back to the
// estimator when the encoding cannot be loaded.
func Default() Tokenizer {
	defaultOnce.Do(func() {
		defaultTok = WithFallback(NewTiktoken("cl100k_base"), NewEstimator(), zap.L())
	})
	return defaultTok
}

// Fallback uses primary until it fails once, then switches to secondary for
// good.
type Fallback struct {
	primary   Tokenizer
	secondary Tokenizer
	logger    *zap.Logger

	mu     sync.RWMutex
	failed bool
}

// WithFallback wraps primary with secondary.
func WithFallback(primary, secondary Tokenizer, logger *zap.Logger) *Fallback {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fallback{primary: primary, secondary: secondary, logger: logger}
}

func (f *Fallback) current() Tokenizer {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.failed {
		return f.secondary
	}
	return f.primary
}

func (f *Fallback) fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.failed {
		f.failed = true
		f.logger.Warn("tokenizer unavailable, using fallback",
			zap.String("primary", f.primary.Name()),
			zap.String("fallback", f.secondary.Name()),
			zap.Error(err),
		)
	}
}

func (f *Fallback) CountTokens(text string) (int, error) {
	n, err := f.current().CountTokens(text)
	if err != nil && f.current() == f.primary {
		f.fail(err)
		return f.secondary.CountTokens(text)
	}
	return n, err
}

func (f *Fallback) Truncate(text string, maxTokens int) (string, error) {
	out, err := f.current().Truncate(text, maxTokens)
	if err != nil && f.current() == f.primary {
		f.fail(err)
		return f.secondary.Truncate(text, maxTokens)
	}
	return out, err
}

func (f *Fallback) Name() string { return f.current().Name() }
