package gateway

import (
	"encoding/json"
	"strings"

	"github.com/fyrsmithlabs/digestd/internal/digest"
)

// ParseLLMJSON validates raw model output against the LLMResponse
// contract.
//
// strict: the text must already be syntactically valid JSON conforming
// to the contract; any violation fails with InvalidJSONError carrying
// the offending text, and no repair is attempted.
//
// lenient: MinimalJSONRepair is applied first, then validation proceeds
// identically to strict mode. Post-repair failure still fails the call.
func ParseLLMJSON(raw, traceID string, strict bool) (*digest.LLMResponse, error) {
	text := raw
	repaired := false
	if !strict {
		text = MinimalJSONRepair(raw)
		repaired = true
	}

	dec := json.NewDecoder(strings.NewReader(text))
	var resp digest.LLMResponse
	if err := dec.Decode(&resp); err != nil {
		return nil, &InvalidJSONError{TraceID: traceID, Raw: raw, Reason: err.Error(), Repaired: repaired}
	}
	// Reject trailing content after the JSON document.
	if dec.More() {
		return nil, &InvalidJSONError{TraceID: traceID, Raw: raw, Reason: "trailing content after JSON document", Repaired: repaired}
	}

	if err := digest.ValidateLLMResponse(&resp); err != nil {
		return nil, &InvalidJSONError{TraceID: traceID, Raw: raw, Reason: err.Error(), Repaired: repaired}
	}
	return &resp, nil
}

// MinimalJSONRepair applies the two bounded textual repairs models most
// often need: stripping a leading/trailing fenced code-block marker and
// truncating trailing content after the last top-level closing brace.
// Anything beyond that is out of scope; validation decides the rest.
func MinimalJSONRepair(raw string) string {
	text := strings.TrimSpace(raw)

	if strings.HasPrefix(text, "```") {
		if nl := strings.IndexByte(text, '\n'); nl >= 0 {
			text = text[nl+1:]
		} else {
			text = strings.TrimPrefix(text, "```")
		}
	}
	if strings.HasSuffix(strings.TrimSpace(text), "```") {
		trimmed := strings.TrimSpace(text)
		text = trimmed[:len(trimmed)-3]
	}
	text = strings.TrimSpace(text)

	if end := lastTopLevelBrace(text); end >= 0 {
		text = text[:end+1]
	}
	return text
}

// lastTopLevelBrace returns the byte index of the closing brace that
// returns nesting depth to zero, ignoring braces inside JSON strings.
// Returns -1 if the text never closes a top-level object.
func lastTopLevelBrace(text string) int {
	depth := 0
	inString := false
	escaped := false
	last := -1

	for i := 0; i < len(text); i++ {
		ch := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				last = i
			}
		}
	}
	return last
}
