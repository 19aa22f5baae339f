package evidence

import (
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/digestd/internal/signal"
)

// Chunker segments normalized messages into scored EvidenceChunks.
// Per-chunk work is pure; a Chunker is safe for concurrent use.
type Chunker struct {
	cfg       ChunkingConfig
	weights   ScoreWeights
	extractor *signal.Extractor
}

// NewChunker builds a chunker. A nil extractor selects the default
// signal backend.
func NewChunker(cfg ChunkingConfig, weights ScoreWeights, extractor *signal.Extractor) (*Chunker, error) {
	if cfg.MaxChunkChars <= 0 {
		cfg.MaxChunkChars = DefaultChunkingConfig().MaxChunkChars
	}
	if err := weights.Validate(); err != nil {
		return nil, err
	}
	if extractor == nil {
		var err error
		extractor, err = signal.NewExtractor(nil)
		if err != nil {
			return nil, err
		}
	}
	return &Chunker{cfg: cfg, weights: weights, extractor: extractor}, nil
}

// Chunk builds EvidenceChunks from messages in stable arrival order.
// Evidence IDs are unique within the run. Returns ErrMalformedInput if
// any message misses a required field.
func (c *Chunker) Chunk(messages []Message) ([]Chunk, error) {
	for _, msg := range messages {
		if err := msg.Validate(); err != nil {
			return nil, err
		}
	}

	var chunks []Chunk
	for _, msg := range messages {
		for _, content := range c.segment(msg.Text) {
			chunks = append(chunks, c.build(msg, content, len(chunks)))
		}
	}
	return chunks, nil
}

// segment splits text into pieces of at most MaxChunkChars, preferring
// line boundaries so header lines stay intact.
func (c *Chunker) segment(text string) []string {
	text = strings.TrimSpace(text)
	if len(text) <= c.cfg.MaxChunkChars {
		return []string{text}
	}

	var (
		pieces  []string
		current strings.Builder
	)
	flush := func() {
		if piece := strings.TrimSpace(current.String()); piece != "" {
			pieces = append(pieces, piece)
		}
		current.Reset()
	}

	for _, line := range strings.Split(text, "\n") {
		if current.Len() > 0 && current.Len()+len(line)+1 > c.cfg.MaxChunkChars {
			flush()
		}
		// A single oversized line is split hard at the char cap.
		for len(line) > c.cfg.MaxChunkChars {
			cut := safeCut(line, c.cfg.MaxChunkChars)
			current.WriteString(line[:cut])
			flush()
			line = line[cut:]
		}
		if current.Len() > 0 {
			current.WriteString("\n")
		}
		current.WriteString(line)
	}
	flush()
	return pieces
}

// safeCut returns a cut point at or below limit that does not split a
// UTF-8 sequence.
func safeCut(s string, limit int) int {
	cut := limit
	for cut > 0 && s[cut]&0xC0 == 0x80 {
		cut--
	}
	if cut == 0 {
		return limit
	}
	return cut
}

// build assembles one immutable chunk.
func (c *Chunker) build(msg Message, content string, seq int) Chunk {
	sig := Signals{
		ActionVerbs: c.extractor.ExtractActionVerbs(content),
		Dates:       c.extractor.ExtractDates(content),
	}
	aliases := c.matchAliases(content)

	chunk := Chunk{
		EvidenceID:     fmt.Sprintf("ev-%04d", seq),
		Content:        content,
		ConversationID: msg.ConversationID,
		SourceRef:      sourceRef(msg),
		MessageIDs:     []string{msg.ID},
		AddressedToMe:  msg.AddressedToMe,
		Signals:        sig,
		Metadata: MessageMetadata{
			Timestamp: msg.Timestamp,
			Author:    msg.Author,
			Channel:   msg.Channel,
		},
		TokenCount:     estimateTokens(content),
		AliasesMatched: aliases,
		Seq:            seq,
	}
	chunk.PriorityScore = c.score(chunk)
	return chunk
}

// score combines signals into the priority score. Monotonic in each
// signal for non-negative weights; deterministic for identical input.
func (c *Chunker) score(chunk Chunk) float64 {
	w := c.weights
	score := w.ActionVerb * float64(len(chunk.Signals.ActionVerbs))

	if chunk.HasDateSignal() {
		dateWeight := w.DatePresent
		for _, d := range chunk.Signals.Dates {
			if signal.IsUrgentDate(d) {
				dateWeight = w.DatePresent + w.DateUrgent
				break
			}
		}
		score += dateWeight
	}
	if chunk.AddressedToMe {
		score += w.AddressedToMe
	}
	score += w.AliasMatch * float64(len(chunk.AliasesMatched))
	return score
}

func (c *Chunker) matchAliases(content string) []string {
	if len(c.cfg.UserAliases) == 0 {
		return nil
	}
	lower := strings.ToLower(content)
	var matched []string
	for _, alias := range c.cfg.UserAliases {
		if alias != "" && strings.Contains(lower, strings.ToLower(alias)) {
			matched = append(matched, alias)
		}
	}
	return matched
}

func sourceRef(msg Message) string {
	if msg.Permalink != "" {
		return msg.Permalink
	}
	return msg.ConversationID + "/" + msg.ID
}

// estimateTokens is the cheap length-proportional budget estimate.
func estimateTokens(s string) int {
	if len(s) == 0 {
		return 0
	}
	n := len(s) / 4
	if n == 0 {
		n = 1
	}
	return n
}
