// Package tokenizer counts and truncates text in model tokens, using tiktoken
// encodings with a character based estimator as fallback.
package tokenizer
