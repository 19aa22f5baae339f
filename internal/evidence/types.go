// Package evidence builds EvidenceChunks from normalized conversational
// messages: segmentation, signal extraction and priority scoring. Chunks
// are immutable run-scoped value objects; nothing here survives a run.
package evidence

import (
	"errors"
	"fmt"
	"time"
)

// Message is a normalized conversational message as consumed from the
// upstream normalizer. HTML conversion, quote stripping and timezone
// normalization have already happened by the time a Message reaches this
// package.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Timestamp      time.Time `json:"timestamp"`
	Author         string    `json:"author"`
	Text           string    `json:"text"`
	Permalink      string    `json:"permalink,omitempty"`
	Channel        string    `json:"channel,omitempty"`
	AddressedToMe  bool      `json:"addressed_to_me"`
}

// ErrMalformedInput marks messages missing required normalized fields.
// This is a precondition failure: the run is rejected before any LLM work.
var ErrMalformedInput = errors.New("malformed input")

// Validate checks the required normalized-message fields.
func (m Message) Validate() error {
	switch {
	case m.ID == "":
		return fmt.Errorf("%w: message id is required", ErrMalformedInput)
	case m.ConversationID == "":
		return fmt.Errorf("%w: conversation_id is required (message %s)", ErrMalformedInput, m.ID)
	case m.Timestamp.IsZero():
		return fmt.Errorf("%w: timestamp is required (message %s)", ErrMalformedInput, m.ID)
	case m.Text == "":
		return fmt.Errorf("%w: text is required (message %s)", ErrMalformedInput, m.ID)
	}
	return nil
}

// Signals holds the lexicon hits found in a chunk's content.
type Signals struct {
	ActionVerbs []string `json:"action_verbs"`
	Dates       []string `json:"dates"`
}

// MessageMetadata carries the originating message's context on a chunk.
type MessageMetadata struct {
	Timestamp time.Time `json:"timestamp"`
	Author    string    `json:"author"`
	Channel   string    `json:"channel,omitempty"`
}

// Chunk is the atomic unit of extracted conversation text with provenance
// and a relevance score. Immutable once created; created once per run and
// discarded at run end.
type Chunk struct {
	EvidenceID     string          `json:"evidence_id"`
	Content        string          `json:"content"`
	ConversationID string          `json:"conversation_id"`
	SourceRef      string          `json:"source_ref"`
	MessageIDs     []string        `json:"message_ids"`
	PriorityScore  float64         `json:"priority_score"`
	AddressedToMe  bool            `json:"addressed_to_me"`
	Signals        Signals         `json:"signals"`
	Metadata       MessageMetadata `json:"message_metadata"`
	TokenCount     int             `json:"token_count"`
	AliasesMatched []string        `json:"user_aliases_matched,omitempty"`

	// Seq is the stable arrival position, the tie-breaker for every
	// ranking downstream.
	Seq int `json:"-"`
}

// HasActionSignal reports whether the chunk carries an action-verb hit.
func (c Chunk) HasActionSignal() bool { return len(c.Signals.ActionVerbs) > 0 }

// HasDateSignal reports whether the chunk carries a date hit.
func (c Chunk) HasDateSignal() bool { return len(c.Signals.Dates) > 0 }

// ScoreWeights is the priority-score policy table. The exact coefficients
// are tunable configuration, not a contract; the score stays monotonic in
// every signal for any non-negative weights.
type ScoreWeights struct {
	ActionVerb    float64 `koanf:"action_verb"`
	DatePresent   float64 `koanf:"date_present"`
	DateUrgent    float64 `koanf:"date_urgent"`
	AddressedToMe float64 `koanf:"addressed_to_me"`
	AliasMatch    float64 `koanf:"alias_match"`
}

// DefaultScoreWeights returns the default policy table.
func DefaultScoreWeights() ScoreWeights {
	return ScoreWeights{
		ActionVerb:    1.0,
		DatePresent:   1.5,
		DateUrgent:    3.0,
		AddressedToMe: 2.0,
		AliasMatch:    0.5,
	}
}

// Validate rejects negative weights; monotonicity depends on it.
func (w ScoreWeights) Validate() error {
	for name, v := range map[string]float64{
		"action_verb":     w.ActionVerb,
		"date_present":    w.DatePresent,
		"date_urgent":     w.DateUrgent,
		"addressed_to_me": w.AddressedToMe,
		"alias_match":     w.AliasMatch,
	} {
		if v < 0 {
			return fmt.Errorf("score weight %s must be non-negative, got %v", name, v)
		}
	}
	return nil
}

// ChunkingConfig controls segmentation.
type ChunkingConfig struct {
	// MaxChunkChars caps a single chunk's content; longer messages are
	// split on line boundaries.
	MaxChunkChars int `koanf:"max_chunk_chars"`
	// UserAliases are the run owner's display names and addresses,
	// matched case-insensitively in chunk content.
	UserAliases []string `koanf:"user_aliases"`
}

// DefaultChunkingConfig returns segmentation defaults.
func DefaultChunkingConfig() ChunkingConfig {
	return ChunkingConfig{MaxChunkChars: 2000}
}
