package domain

import "time"

// ExternalRequest is the rendered description of an apiCall side effect.
type ExternalRequest struct {
	Name    string            `json:"name"`
	URL     string            `json:"url"`
	Method  string            `json:"method"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    string            `json:"body,omitempty"`
}

// ExternalResponse is what an invoker returns for a successful call.
type ExternalResponse struct {
	StatusCode int           `json:"status_code"`
	Body       []byte        `json:"body,omitempty"`
	Duration   time.Duration `json:"duration"`
}
