package fallback

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/digestd/internal/digest"
	"github.com/fyrsmithlabs/digestd/internal/evidence"
)

func actionChunk(seq int, score float64, mine bool) evidence.Chunk {
	return evidence.Chunk{
		EvidenceID:    fmt.Sprintf("ev-%04d", seq),
		Content:       fmt.Sprintf("прошу сделать задачу %d", seq),
		SourceRef:     fmt.Sprintf("thread-1/m%d", seq),
		PriorityScore: score,
		AddressedToMe: mine,
		Signals:       evidence.Signals{ActionVerbs: []string{"прошу"}},
		Seq:           seq,
	}
}

func dateChunk(seq int, score float64) evidence.Chunk {
	return evidence.Chunk{
		EvidenceID:    fmt.Sprintf("ev-%04d", seq),
		Content:       fmt.Sprintf("встреча завтра, пункт %d", seq),
		SourceRef:     fmt.Sprintf("thread-2/m%d", seq),
		PriorityScore: score,
		Signals:       evidence.Signals{Dates: []string{"завтра"}},
		Seq:           seq,
	}
}

func TestExtractiveFallbackTags(t *testing.T) {
	d := ExtractiveFallback(nil, "2026-03-10", "trace-1", ReasonDisabled)

	assert.Equal(t, digest.SchemaV2, d.SchemaVersion)
	assert.Equal(t, digest.FallbackPromptVersion, d.PromptVersion)
	assert.Equal(t, "2026-03-10", d.DigestDate)
	assert.Equal(t, "trace-1", d.TraceID)
	assert.Equal(t, ReasonDisabled, d.Reason)
	assert.Empty(t, d.MyActions)
	assert.Empty(t, d.OthersActions)
	assert.Empty(t, d.DeadlinesMeetings)
}

func TestExtractiveFallbackListMembership(t *testing.T) {
	chunks := []evidence.Chunk{
		actionChunk(0, 3, true),
		actionChunk(1, 2, false),
		dateChunk(2, 4.5),
	}
	d := ExtractiveFallback(chunks, "2026-03-10", "trace-1", ReasonInvalidJSON)

	require.Len(t, d.MyActions, 1)
	assert.Equal(t, "ev-0000", d.MyActions[0].EvidenceID)
	require.Len(t, d.OthersActions, 1)
	assert.Equal(t, "ev-0001", d.OthersActions[0].EvidenceID)
	require.Len(t, d.DeadlinesMeetings, 1)
	assert.Equal(t, "ev-0002", d.DeadlinesMeetings[0].EvidenceID)
}

func TestExtractiveFallbackRankingAndCap(t *testing.T) {
	var chunks []evidence.Chunk
	for i := 0; i < 8; i++ {
		chunks = append(chunks, actionChunk(i, float64(i), true))
	}
	// Two chunks with equal score: arrival order breaks the tie.
	chunks = append(chunks, actionChunk(8, 7, true), actionChunk(9, 7, true))

	d := ExtractiveFallback(chunks, "2026-03-10", "trace-1", ReasonTimeout)

	require.Len(t, d.MyActions, 5)
	assert.Equal(t, "ev-0008", d.MyActions[1].EvidenceID)
	assert.Equal(t, "ev-0009", d.MyActions[2].EvidenceID)
	for i := 1; i < len(d.MyActions); i++ {
		assert.GreaterOrEqual(t, d.MyActions[i-1].Score, d.MyActions[i].Score)
	}
}

func TestExtractiveFallbackCapBelowLimit(t *testing.T) {
	chunks := []evidence.Chunk{actionChunk(0, 1, true), actionChunk(1, 2, true)}
	d := ExtractiveFallback(chunks, "2026-03-10", "trace-1", ReasonEndpointError)
	assert.Len(t, d.MyActions, 2)
}

func TestExtractiveFallbackReferentialIntegrity(t *testing.T) {
	chunks := []evidence.Chunk{
		actionChunk(0, 3, true),
		actionChunk(1, 2, false),
		dateChunk(2, 4.5),
	}
	d := ExtractiveFallback(chunks, "2026-03-10", "trace-1", ReasonCancelled)

	consumed := map[string]bool{"ev-0000": true, "ev-0001": true, "ev-0002": true}
	require.NoError(t, digest.ValidateV2(d, consumed))

	// Every item's text is a substring of its chunk's own content.
	byID := map[string]evidence.Chunk{}
	for _, c := range chunks {
		byID[c.EvidenceID] = c
	}
	for _, list := range [][]digest.V2Item{d.MyActions, d.OthersActions, d.DeadlinesMeetings} {
		for _, item := range list {
			src, ok := byID[item.EvidenceID]
			require.True(t, ok)
			assert.Contains(t, src.Content, strings.TrimSuffix(item.Text, "..."))
			assert.Equal(t, src.SourceRef, item.SourceRef)
		}
	}
}

func TestExtractiveFallbackIdempotent(t *testing.T) {
	chunks := []evidence.Chunk{
		actionChunk(0, 3, true),
		actionChunk(1, 3, true),
		dateChunk(2, 1),
	}
	first := ExtractiveFallback(chunks, "2026-03-10", "trace-1", ReasonDisabled)
	second := ExtractiveFallback(chunks, "2026-03-10", "trace-1", ReasonDisabled)
	assert.Equal(t, first, second)
}

func TestExtractiveFallbackTruncatesLongText(t *testing.T) {
	long := actionChunk(0, 1, true)
	long.Content = strings.Repeat("очень длинный текст ", 30)
	d := ExtractiveFallback([]evidence.Chunk{long}, "2026-03-10", "trace-1", ReasonDisabled)

	require.Len(t, d.MyActions, 1)
	assert.LessOrEqual(t, len(d.MyActions[0].Text), maxItemChars+len("..."))
	assert.True(t, strings.HasSuffix(d.MyActions[0].Text, "..."))
}

func TestChunkMayAppearInSeveralLists(t *testing.T) {
	both := actionChunk(0, 5, true)
	both.Signals.Dates = []string{"завтра"}
	d := ExtractiveFallback([]evidence.Chunk{both}, "2026-03-10", "trace-1", ReasonDisabled)

	require.Len(t, d.MyActions, 1)
	require.Len(t, d.DeadlinesMeetings, 1)
	assert.Equal(t, d.MyActions[0].EvidenceID, d.DeadlinesMeetings[0].EvidenceID)
}
