// Package openaicompat implements llm.Provider for servers that speak the
// OpenAI Chat Completions API.
//
// Usage:
//
//	p := openaicompat.New(openaicompat.Config{
//	    ProviderName: "groq",
//	    APIKey:       cfg.APIKey,
//	    BaseURL:      "https://api.groq.com/openai",
//	    DefaultModel: "llama-3.3-70b-versatile",
//	}, logger)
package openaicompat
