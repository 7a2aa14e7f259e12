package extraction

import "fmt"

// CompletionError is returned when the LLM request itself fails
type CompletionError struct {
	StatusCode int // 0 when no HTTP response was received
	Err        error
}

func (e *CompletionError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("completion request failed with status %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("completion request failed: %v", e.Err)
}

func (e *CompletionError) Unwrap() error {
	return e.Err
}

// ParseError is returned when the LLM answered with something that is not the expected JSON
type ParseError struct {
	Content string
	Err     error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse completion response: %v", e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
