package gateway

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/fyrsmithlabs/digestd/internal/evidence"
)

// Intents declared on every request; the endpoint contract requires the
// model to back-reference evidence for each of them.
var defaultIntents = []string{
	"extract_actions",
	"find_deadlines",
	"short_summary",
	"evidence_backrefs_required",
}

// Request is the payload sent to the LLM endpoint: run metadata plus a
// minimal per-message projection and explicit intents.
type Request struct {
	UnitID      string           `json:"unit_id"`
	TraceID     string           `json:"trace_id"`
	PrivacyMode string           `json:"privacy_mode"`
	Language    string           `json:"language"`
	Now         time.Time        `json:"now"`
	Intents     []string         `json:"intents"`
	Messages    []MessagePayload `json:"messages"`
}

// MessagePayload is the minimal projection of one evidence chunk.
type MessagePayload struct {
	MessageID string    `json:"message_id"`
	Timestamp time.Time `json:"timestamp"`
	Author    string    `json:"author"`
	Text      string    `json:"text"`
	SourceRef string    `json:"source_ref"`
	ThreadID  string    `json:"thread_id"`
}

// BuildRequest projects chunks into a request payload. PII handling: in
// strict privacy mode author identities are masked before the payload
// leaves this process; the endpoint boundary owns any further redaction.
func (g *Gateway) BuildRequest(unitID, traceID string, now time.Time, chunks []evidence.Chunk) Request {
	msgs := make([]MessagePayload, 0, len(chunks))
	for _, c := range chunks {
		msgs = append(msgs, MessagePayload{
			MessageID: c.MessageIDs[0],
			Timestamp: c.Metadata.Timestamp,
			Author:    g.DisplayAuthor(c.Metadata.Author),
			Text:      c.Content,
			SourceRef: c.SourceRef,
			ThreadID:  c.ConversationID,
		})
	}
	return Request{
		UnitID:      unitID,
		TraceID:     traceID,
		PrivacyMode: g.cfg.PrivacyMode,
		Language:    g.cfg.Language,
		Now:         now,
		Intents:     defaultIntents,
		Messages:    msgs,
	}
}

// DisplayAuthor masks an author identity in strict privacy mode: a short
// stable hash so the model can still distinguish participants.
func (g *Gateway) DisplayAuthor(author string) string {
	if g.cfg.PrivacyMode != "strict" || author == "" {
		return author
	}
	sum := sha256.Sum256([]byte(author))
	return "participant-" + hex.EncodeToString(sum[:4])
}

// Batch splits chunks into request-sized groups under the configured
// token budget, preserving arrival order. A single oversized chunk still
// forms its own batch; the estimate is advisory, not a hard limit.
func Batch(chunks []evidence.Chunk, maxBatchTokens int) [][]evidence.Chunk {
	if len(chunks) == 0 {
		return nil
	}
	if maxBatchTokens <= 0 {
		return [][]evidence.Chunk{chunks}
	}

	var (
		batches [][]evidence.Chunk
		current []evidence.Chunk
		budget  int
	)
	for _, c := range chunks {
		if len(current) > 0 && budget+c.TokenCount > maxBatchTokens {
			batches = append(batches, current)
			current = nil
			budget = 0
		}
		current = append(current, c)
		budget += c.TokenCount
	}
	if len(current) > 0 {
		batches = append(batches, current)
	}
	return batches
}
