package search

import (
	"fmt"
	"strings"

	"github.com/bgunyel/ragnar/llm/tokenizer"
)

// Dedupe flattens responses into results, keeping the first result seen for
// each URL.
func Dedupe(responses []Response) []Result {
	seen := make(map[string]struct{})
	var out []Result
	for _, r := range responses {
		for _, res := range r.Results {
			if _, ok := seen[res.URL]; ok {
				continue
			}
			seen[res.URL] = struct{}{}
			out = append(out, res)
		}
	}
	return out
}

// FormatSources renders deduplicated results as a prompt context block.
// With includeRaw each source's raw content is cut to maxTokensPerSource
// tokens by tok (tokenizer.Default() when nil).
func FormatSources(responses []Response, maxTokensPerSource int, includeRaw bool, tok tokenizer.Tokenizer) (string, error) {
	if tok == nil {
		tok = tokenizer.Default()
	}

	var b strings.Builder
	b.WriteString("Sources:\n\n")
	for _, src := range Dedupe(responses) {
		fmt.Fprintf(&b, "Source %s:\n===\n", src.Title)
		fmt.Fprintf(&b, "URL: %s\n===\n", src.URL)
		fmt.Fprintf(&b, "Most relevant content from source: %s\n===\n", src.Content)
		if includeRaw {
			raw, err := tok.Truncate(src.RawContent, maxTokensPerSource)
			if err != nil {
				return "", fmt.Errorf("truncate source %s: %w", src.URL, err)
			}
			if len(raw) < len(src.RawContent) {
				raw += "... [truncated]"
			}
			fmt.Fprintf(&b, "Full source content limited to %d tokens: %s\n\n", maxTokensPerSource, raw)
		}
	}
	return strings.TrimSpace(b.String()), nil
}
