// Package gateway types - request shapes for the proxy.
//
// DESIGN: The inbound chat request is parsed once to validate it and to
// build the minimal upstream body. Only model, messages, stream, and
// max_tokens are ever forwarded; every other client field is dropped.
package gateway

import "encoding/json"

// ChatRequest is the inbound chat-completion request body.
// Messages stays opaque; the gateway never inspects individual messages.
type ChatRequest struct {
	Model     string          `json:"model"`
	Messages  json.RawMessage `json:"messages,omitempty"`
	Stream    *bool           `json:"stream,omitempty"`
	MaxTokens *int            `json:"max_tokens,omitempty"`
}

// IsStreaming reports whether the client asked for a streaming response.
func (r *ChatRequest) IsStreaming() bool {
	return r.Stream != nil && *r.Stream
}

// forwardBody builds the minimal upstream request body.
func (r *ChatRequest) forwardBody() ([]byte, error) {
	return json.Marshal(r)
}
