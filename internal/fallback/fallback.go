// Package fallback builds the extractive v2 digest directly from
// evidence chunks when the LLM path is disabled, unavailable or returned
// output that failed validation. Deterministic: identical chunks and
// scores yield an identical digest.
package fallback

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/fyrsmithlabs/digestd/internal/digest"
	"github.com/fyrsmithlabs/digestd/internal/evidence"
)

// Degradation reason codes.
const (
	ReasonDisabled      = "disabled"
	ReasonTimeout       = "llm_timeout"
	ReasonInvalidJSON   = "invalid_json"
	ReasonEndpointError = "endpoint_error"
	ReasonCancelled     = "cancelled"
)

// maxItemsPerList caps each ranked list. Fixed policy constant.
const maxItemsPerList = 5

// maxItemChars bounds item text; the chunk's own text is truncated,
// never rewritten.
const maxItemChars = 200

// ExtractiveFallback produces a v2 digest from the run's chunks. Three
// independently ranked lists, priority score descending with arrival
// order as tie-break, each capped at maxItemsPerList. A chunk may appear
// in several lists.
func ExtractiveFallback(chunks []evidence.Chunk, digestDate, traceID, reason string) *digest.V2 {
	return &digest.V2{
		SchemaVersion: digest.SchemaV2,
		PromptVersion: digest.FallbackPromptVersion,
		DigestDate:    digestDate,
		TraceID:       traceID,
		Reason:        reason,
		MyActions: rank(chunks, func(c evidence.Chunk) bool {
			return c.AddressedToMe && c.HasActionSignal()
		}),
		OthersActions: rank(chunks, func(c evidence.Chunk) bool {
			return !c.AddressedToMe && c.HasActionSignal()
		}),
		DeadlinesMeetings: rank(chunks, func(c evidence.Chunk) bool {
			return c.HasDateSignal()
		}),
	}
}

// rank filters, sorts and caps one list.
func rank(chunks []evidence.Chunk, keep func(evidence.Chunk) bool) []digest.V2Item {
	var selected []evidence.Chunk
	for _, c := range chunks {
		if keep(c) {
			selected = append(selected, c)
		}
	}

	sort.SliceStable(selected, func(i, j int) bool {
		if selected[i].PriorityScore != selected[j].PriorityScore {
			return selected[i].PriorityScore > selected[j].PriorityScore
		}
		return selected[i].Seq < selected[j].Seq
	})

	if len(selected) > maxItemsPerList {
		selected = selected[:maxItemsPerList]
	}

	items := make([]digest.V2Item, 0, len(selected))
	for _, c := range selected {
		items = append(items, digest.V2Item{
			Text:       preview(c.Content),
			EvidenceID: c.EvidenceID,
			SourceRef:  c.SourceRef,
			Score:      c.PriorityScore,
		})
	}
	return items
}

// preview truncates chunk text at a rune boundary.
func preview(s string) string {
	s = strings.TrimSpace(strings.ReplaceAll(s, "\n", " "))
	if len(s) <= maxItemChars {
		return s
	}
	cut := maxItemChars
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
