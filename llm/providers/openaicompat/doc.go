// Package openaicompat provides the shared Chat Completions implementation for
// OpenAI-compatible endpoints.
//
// A provider embeds openaicompat.Provider and only overrides what differs:
//
//   - Provider name and default model
//   - Base URL
//   - Custom headers (if any)
//
// Usage:
//
//	p := openaicompat.New(openaicompat.Config{
//	    ProviderName:  "local",
//	    APIKey:        cfg.APIKey,
//	    BaseURL:       "http://localhost:8000",
//	    DefaultModel:  "llama-3-8b",
//	}, logger)
package openaicompat
