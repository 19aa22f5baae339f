// Package digest defines the output contracts of a run: the raw
// LLMResponse, the full Digest v3 and the extractive-fallback Digest v2,
// plus the declarative validators that gate every emitted digest.
package digest

// Schema version tags. Mutually exclusive; each dictates the digest shape.
const (
	SchemaV2 = "2.0"
	SchemaV3 = "3.0"
)

// LLMResponse is the raw contract the model's text output must satisfy.
type LLMResponse struct {
	Version  string        `json:"version"`
	Evidence []EvidenceRef `json:"evidence"`
	Summary  []SummaryItem `json:"summary"`
}

// EvidenceRef is a back-reference from the model to source messages.
// MessageIDs must be non-empty; a violated entry invalidates the whole
// response in strict mode.
type EvidenceRef struct {
	ThreadID   string   `json:"thread_id"`
	MessageIDs []string `json:"message_ids"`
	Quote      string   `json:"quote,omitempty"`
}

// SummaryItem is one model-produced digest line.
type SummaryItem struct {
	Title  string `json:"title"`
	Detail string `json:"detail,omitempty"`
}

// Digest is either a V3 (full, LLM-derived) or a V2 (extractive
// fallback); both are serializable and trace_id-tagged.
type Digest interface {
	Schema() string
	Trace() string
}

// V3 is the full LLM-derived digest ("EnhancedDigestV3").
type V3 struct {
	SchemaVersion string    `json:"schema_version"`
	DigestDate    string    `json:"digest_date"`
	TraceID       string    `json:"trace_id"`
	Sections      []Section `json:"sections"`
}

// Section is an ordered group of digest items.
type Section struct {
	Title string `json:"title"`
	Items []Item `json:"items"`
}

// Item is one evidence-linked digest entry.
type Item struct {
	Title        string   `json:"title"`
	OwnersMasked []string `json:"owners_masked,omitempty"`
	Due          string   `json:"due,omitempty"`
	EvidenceID   string   `json:"evidence_id"`
	Confidence   float64  `json:"confidence"`
	SourceRef    string   `json:"source_ref"`
}

func (d *V3) Schema() string { return d.SchemaVersion }
func (d *V3) Trace() string  { return d.TraceID }

// FallbackPromptVersion tags v2 digests produced without the LLM.
const FallbackPromptVersion = "extractive_fallback"

// V2 is the extractive fallback digest.
type V2 struct {
	SchemaVersion     string   `json:"schema_version"`
	PromptVersion     string   `json:"prompt_version"`
	DigestDate        string   `json:"digest_date"`
	TraceID           string   `json:"trace_id"`
	Reason            string   `json:"reason"`
	MyActions         []V2Item `json:"my_actions"`
	OthersActions     []V2Item `json:"others_actions"`
	DeadlinesMeetings []V2Item `json:"deadlines_meetings"`
}

// V2Item is one extractive entry; Text is the chunk's own text, never
// synthesized content.
type V2Item struct {
	Text       string  `json:"text"`
	EvidenceID string  `json:"evidence_id"`
	SourceRef  string  `json:"source_ref"`
	Score      float64 `json:"score"`
}

func (d *V2) Schema() string { return d.SchemaVersion }
func (d *V2) Trace() string  { return d.TraceID }
