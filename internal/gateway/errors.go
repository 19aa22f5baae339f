package gateway

import (
	"errors"
	"fmt"
)

// ErrDisabled is returned when the LLM path is switched off by config.
var ErrDisabled = errors.New("llm path disabled")

// InvalidJSONError marks model output that failed strict validation.
// Repaired indicates the lenient repair was attempted first (the
// RepairFailed case); recovery policy is identical either way. Raw
// carries the offending text for diagnostics; it is never logged
// verbatim.
type InvalidJSONError struct {
	TraceID  string
	Raw      string
	Reason   string
	Repaired bool
}

func (e *InvalidJSONError) Error() string {
	if e.Repaired {
		return fmt.Sprintf("invalid llm json after repair (trace %s): %s", e.TraceID, e.Reason)
	}
	return fmt.Sprintf("invalid llm json (trace %s): %s", e.TraceID, e.Reason)
}

// EndpointError marks a network failure, timeout or non-success status
// from the LLM endpoint. Always recoverable via degradation; the gateway
// performs no retries itself.
type EndpointError struct {
	TraceID string
	Status  int
	Err     error
}

func (e *EndpointError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("llm endpoint returned %d (trace %s)", e.Status, e.TraceID)
	}
	return fmt.Sprintf("llm endpoint failure (trace %s): %v", e.TraceID, e.Err)
}

func (e *EndpointError) Unwrap() error { return e.Err }
