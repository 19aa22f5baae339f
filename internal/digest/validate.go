package digest

import (
	"fmt"
)

// SchemaViolationError marks a digest that failed post-assembly
// validation. Fatal: the run aborts rather than emit a non-conforming
// digest.
type SchemaViolationError struct {
	TraceID string
	Reason  string
}

func (e *SchemaViolationError) Error() string {
	return fmt.Sprintf("schema violation (trace %s): %s", e.TraceID, e.Reason)
}

func violation(traceID, format string, args ...any) error {
	return &SchemaViolationError{TraceID: traceID, Reason: fmt.Sprintf(format, args...)}
}

// ValidateLLMResponse checks the raw model contract: every evidence
// entry carries at least one message_id and the summary is present.
func ValidateLLMResponse(r *LLMResponse) error {
	if r == nil {
		return fmt.Errorf("response is nil")
	}
	if len(r.Summary) == 0 {
		return fmt.Errorf("summary is empty")
	}
	for i, ev := range r.Evidence {
		if len(ev.MessageIDs) == 0 {
			return fmt.Errorf("evidence[%d] has no message_ids", i)
		}
		for j, id := range ev.MessageIDs {
			if id == "" {
				return fmt.Errorf("evidence[%d].message_ids[%d] is empty", i, j)
			}
		}
	}
	for i, item := range r.Summary {
		if item.Title == "" {
			return fmt.Errorf("summary[%d] has no title", i)
		}
	}
	return nil
}

// ValidateV3 checks a full digest against the run's consumed chunk set.
func ValidateV3(d *V3, consumed map[string]bool) error {
	if d == nil {
		return violation("", "v3 digest is nil")
	}
	if d.SchemaVersion != SchemaV3 {
		return violation(d.TraceID, "schema_version must be %q, got %q", SchemaV3, d.SchemaVersion)
	}
	if d.DigestDate == "" {
		return violation(d.TraceID, "digest_date is required")
	}
	if d.TraceID == "" {
		return violation("", "trace_id is required")
	}
	for si, section := range d.Sections {
		if section.Title == "" {
			return violation(d.TraceID, "sections[%d] has no title", si)
		}
		for ii, item := range section.Items {
			if item.Title == "" {
				return violation(d.TraceID, "sections[%d].items[%d] has no title", si, ii)
			}
			if item.Confidence < 0 || item.Confidence > 1 {
				return violation(d.TraceID, "sections[%d].items[%d] confidence %v out of [0,1]", si, ii, item.Confidence)
			}
			if err := checkEvidenceRef(d.TraceID, item.EvidenceID, consumed); err != nil {
				return err
			}
		}
	}
	return nil
}

// ValidateV2 checks a fallback digest against the run's consumed chunk set.
func ValidateV2(d *V2, consumed map[string]bool) error {
	if d == nil {
		return violation("", "v2 digest is nil")
	}
	if d.SchemaVersion != SchemaV2 {
		return violation(d.TraceID, "schema_version must be %q, got %q", SchemaV2, d.SchemaVersion)
	}
	if d.PromptVersion != FallbackPromptVersion {
		return violation(d.TraceID, "prompt_version must be %q, got %q", FallbackPromptVersion, d.PromptVersion)
	}
	if d.DigestDate == "" {
		return violation(d.TraceID, "digest_date is required")
	}
	if d.TraceID == "" {
		return violation("", "trace_id is required")
	}
	if d.Reason == "" {
		return violation(d.TraceID, "degradation reason is required")
	}
	for name, list := range map[string][]V2Item{
		"my_actions":         d.MyActions,
		"others_actions":     d.OthersActions,
		"deadlines_meetings": d.DeadlinesMeetings,
	} {
		for i, item := range list {
			if item.Text == "" {
				return violation(d.TraceID, "%s[%d] has no text", name, i)
			}
			if err := checkEvidenceRef(d.TraceID, item.EvidenceID, consumed); err != nil {
				return err
			}
		}
	}
	return nil
}

// Validate dispatches on the digest's schema tag.
func Validate(d Digest, consumed map[string]bool) error {
	switch v := d.(type) {
	case *V3:
		return ValidateV3(v, consumed)
	case *V2:
		return ValidateV2(v, consumed)
	default:
		return violation(d.Trace(), "unknown digest type %T", d)
	}
}

func checkEvidenceRef(traceID, evidenceID string, consumed map[string]bool) error {
	if evidenceID == "" {
		return violation(traceID, "item has no evidence_id")
	}
	if !consumed[evidenceID] {
		return violation(traceID, "evidence_id %q does not reference a chunk consumed this run", evidenceID)
	}
	return nil
}
