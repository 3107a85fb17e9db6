package llm

import (
	"log"
	"time"
)

const (
	// ModeMock indicates the in-process mock client should be used.
	ModeMock = "MOCK"
)

// NewLLMClient creates a chat client for the configured mode. MOCK mode
// returns the deterministic in-process client; anything else talks to
// the real provider endpoint.
func NewLLMClient(mode, baseURL, apiKey string, timeout time.Duration) LLMClient {
	if mode == ModeMock {
		log.Println("INFO: SKYOPS_MODE=MOCK, using mock chat client")
		return NewMockClient()
	}
	return NewClient(baseURL, apiKey, timeout)
}
