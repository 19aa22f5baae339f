package pipeline

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fyrsmithlabs/digestd/internal/digest"
	"github.com/fyrsmithlabs/digestd/internal/evidence"
	"github.com/fyrsmithlabs/digestd/internal/gateway"
	"github.com/fyrsmithlabs/digestd/internal/logging"
)

// Section titles in emitted v3 digests.
const (
	sectionActions  = "actions"
	sectionOverview = "overview"
)

// partitionFallbackConfidence tags items synthesized extractively for a
// partition whose own LLM call failed while the rest of the run went on.
const partitionFallbackConfidence = 0.3

// maxPartitionFallbackItems bounds extractive items per degraded partition.
const maxPartitionFallbackItems = 3

// runFlat executes the single-pass strategy: all chunks batched under
// the token budget, one request per batch, responses merged into a
// single section.
func (r *Runner) runFlat(ctx context.Context, unitID, traceID, digestDate string, chunks []evidence.Chunk) (*digest.V3, error) {
	ctx, span := r.tracer.Start(ctx, "pipeline.flat")
	defer span.End()
	ctx = logging.WithStage(ctx, "llm")

	index := indexByMessageID(chunks)
	now := time.Now().UTC()

	var items []digest.Item
	batches := gateway.Batch(chunks, r.cfg.LLM.MaxBatchTokens)
	for i, batch := range batches {
		req := r.gateway.BuildRequest(unitID, traceID, now, batch)
		resp, err := r.gateway.Summarize(ctx, req)
		if err != nil {
			return nil, err
		}
		assembled, dropped := r.assemble(ctx, resp, index)
		items = append(items, assembled...)
		r.logger.Debug(ctx, "batch summarized",
			zap.Int("batch", i),
			zap.Int("items", len(assembled)),
			zap.Int("dropped", dropped))
	}

	if len(items) == 0 {
		return nil, &gateway.InvalidJSONError{
			TraceID: traceID,
			Reason:  "no summary item resolved to run evidence",
		}
	}

	return &digest.V3{
		SchemaVersion: digest.SchemaV3,
		DigestDate:    digestDate,
		TraceID:       traceID,
		Sections: []digest.Section{
			{Title: sectionActions, Items: items},
		},
	}, nil
}

// partitionResult is one conversation's outcome in a hierarchical run.
type partitionResult struct {
	convID   string
	chunks   []evidence.Chunk
	items    []digest.Item
	summary  string
	degraded bool
}

// runHierarchical executes the two-pass strategy: per-conversation
// summaries fan out under the concurrency bound, a barrier awaits every
// partition, then a roll-up pass merges them. A partition whose call
// fails degrades individually to extractive items; only run-wide
// cancellation or a roll-up failure degrades the whole run.
func (r *Runner) runHierarchical(ctx context.Context, unitID, traceID, digestDate string, chunks []evidence.Chunk) (*digest.V3, error) {
	ctx, span := r.tracer.Start(ctx, "pipeline.hierarchical")
	defer span.End()
	ctx = logging.WithStage(ctx, "llm")

	index := indexByMessageID(chunks)
	now := time.Now().UTC()
	partitions := partitionByConversation(chunks)

	results := make([]*partitionResult, len(partitions))
	limit := r.cfg.LLM.MaxConcurrent
	if limit < 1 {
		limit = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, part := range partitions {
		g.Go(func() error {
			res, err := r.summarizePartition(gctx, unitID, traceID, now, part, index)
			if err != nil {
				// Cancellation aborts the fan-out; anything else has
				// already degraded the partition in place.
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	degradedParts := 0
	for _, res := range results {
		if res.degraded {
			degradedParts++
		}
	}
	if degradedParts > 0 {
		r.logger.Warn(ctx, "partitions degraded",
			zap.Int("degraded", degradedParts),
			zap.Int("partitions", len(results)))
	}

	rollupItems, err := r.rollUp(ctx, unitID, traceID, now, results, index)
	if err != nil {
		return nil, err
	}

	sections := make([]digest.Section, 0, len(results)+1)
	sections = append(sections, digest.Section{Title: sectionOverview, Items: rollupItems})
	total := 0
	for _, res := range results {
		if len(res.items) == 0 {
			continue
		}
		sections = append(sections, digest.Section{Title: res.convID, Items: res.items})
		total += len(res.items)
	}
	if total+len(rollupItems) == 0 {
		return nil, &gateway.InvalidJSONError{
			TraceID: traceID,
			Reason:  "no summary item resolved to run evidence",
		}
	}

	return &digest.V3{
		SchemaVersion: digest.SchemaV3,
		DigestDate:    digestDate,
		TraceID:       traceID,
		Sections:      sections,
	}, nil
}

// summarizePartition runs the LLM call for one conversation. Recoverable
// failures degrade the partition to extractive items and do not fail the
// run; cancellation propagates.
func (r *Runner) summarizePartition(ctx context.Context, unitID, traceID string, now time.Time, part []evidence.Chunk, index map[string]*evidence.Chunk) (*partitionResult, error) {
	convID := part[0].ConversationID
	res := &partitionResult{convID: convID, chunks: part}

	var items []digest.Item
	var summaryLines []string
	for _, batch := range gateway.Batch(part, r.cfg.LLM.MaxBatchTokens) {
		req := r.gateway.BuildRequest(unitID, traceID, now, batch)
		resp, err := r.gateway.Summarize(ctx, req)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			reason, recoverable := classify(err)
			if !recoverable {
				return nil, err
			}
			r.logger.Warn(ctx, "partition degraded",
				zap.String("thread_id", convID),
				zap.String("reason", reason))
			res.degraded = true
			res.items = r.extractivePartitionItems(part)
			res.summary = partitionPreview(part)
			return res, nil
		}
		assembled, _ := r.assemble(ctx, resp, index)
		items = append(items, assembled...)
		for _, s := range resp.Summary {
			summaryLines = append(summaryLines, s.Title)
		}
	}

	res.items = items
	res.summary = strings.Join(summaryLines, "; ")
	if res.summary == "" {
		res.summary = partitionPreview(part)
	}
	return res, nil
}

// rollUp runs the second pass over per-partition summaries. Each
// synthetic message keeps a real message id from its partition's top
// chunk so the model's back-references still resolve to run evidence.
func (r *Runner) rollUp(ctx context.Context, unitID, traceID string, now time.Time, results []*partitionResult, index map[string]*evidence.Chunk) ([]digest.Item, error) {
	synthetic := make([]evidence.Chunk, 0, len(results))
	for _, res := range results {
		top := topChunk(res.chunks)
		synthetic = append(synthetic, evidence.Chunk{
			EvidenceID:     top.EvidenceID,
			Content:        res.summary,
			ConversationID: res.convID,
			SourceRef:      top.SourceRef,
			MessageIDs:     top.MessageIDs,
			Metadata:       top.Metadata,
			TokenCount:     len(res.summary) / 4,
		})
	}

	req := r.gateway.BuildRequest(unitID, traceID, now, synthetic)
	resp, err := r.gateway.Summarize(ctx, req)
	if err != nil {
		return nil, err
	}
	items, dropped := r.assemble(ctx, resp, index)
	r.logger.Debug(ctx, "roll-up summarized",
		zap.Int("partitions", len(results)),
		zap.Int("items", len(items)),
		zap.Int("dropped", dropped))
	return items, nil
}

// assemble converts a validated LLMResponse into evidence-linked items.
// Summary entries pair positionally with evidence entries; an entry
// whose message ids resolve to no chunk of this run is dropped and
// logged, never emitted. Confidence is the resolved fraction of the
// entry's message ids.
func (r *Runner) assemble(ctx context.Context, resp *digest.LLMResponse, index map[string]*evidence.Chunk) ([]digest.Item, int) {
	dropped := 0
	items := make([]digest.Item, 0, len(resp.Summary))
	for i, s := range resp.Summary {
		if i >= len(resp.Evidence) {
			dropped++
			r.logger.Warn(ctx, "summary item without evidence entry",
				zap.Int("index", i))
			continue
		}
		ref := resp.Evidence[i]

		var chunk *evidence.Chunk
		resolved := 0
		for _, id := range ref.MessageIDs {
			if c, ok := index[id]; ok {
				resolved++
				if chunk == nil {
					chunk = c
				}
			}
		}
		if chunk == nil {
			dropped++
			r.logger.Warn(ctx, "summary item referenced unknown messages",
				zap.Int("index", i),
				zap.String("thread_id", ref.ThreadID))
			continue
		}

		title := s.Title
		if s.Detail != "" {
			title = title + ": " + s.Detail
		}
		item := digest.Item{
			Title:      title,
			EvidenceID: chunk.EvidenceID,
			Confidence: float64(resolved) / float64(len(ref.MessageIDs)),
			SourceRef:  chunk.SourceRef,
		}
		if owner := r.gateway.DisplayAuthor(chunk.Metadata.Author); owner != "" {
			item.OwnersMasked = []string{owner}
		}
		if len(chunk.Signals.Dates) > 0 {
			item.Due = chunk.Signals.Dates[0]
		}
		items = append(items, item)
	}
	return items, dropped
}

// extractivePartitionItems builds items for a degraded partition from
// its own top chunks, same ranking as the run-level fallback.
func (r *Runner) extractivePartitionItems(part []evidence.Chunk) []digest.Item {
	ranked := make([]evidence.Chunk, len(part))
	copy(ranked, part)
	sortChunks(ranked)
	if len(ranked) > maxPartitionFallbackItems {
		ranked = ranked[:maxPartitionFallbackItems]
	}

	items := make([]digest.Item, 0, len(ranked))
	for _, c := range ranked {
		item := digest.Item{
			Title:      truncate(c.Content, 200),
			EvidenceID: c.EvidenceID,
			Confidence: partitionFallbackConfidence,
			SourceRef:  c.SourceRef,
		}
		if owner := r.gateway.DisplayAuthor(c.Metadata.Author); owner != "" {
			item.OwnersMasked = []string{owner}
		}
		if len(c.Signals.Dates) > 0 {
			item.Due = c.Signals.Dates[0]
		}
		items = append(items, item)
	}
	return items
}

// partitionByConversation groups chunks by conversation in first-arrival
// order, chunk order preserved within each group.
func partitionByConversation(chunks []evidence.Chunk) [][]evidence.Chunk {
	order := make([]string, 0)
	byConv := make(map[string][]evidence.Chunk)
	for _, c := range chunks {
		if _, ok := byConv[c.ConversationID]; !ok {
			order = append(order, c.ConversationID)
		}
		byConv[c.ConversationID] = append(byConv[c.ConversationID], c)
	}
	parts := make([][]evidence.Chunk, 0, len(order))
	for _, id := range order {
		parts = append(parts, byConv[id])
	}
	return parts
}

// indexByMessageID maps message ids to their chunk; the first chunk of a
// split message wins.
func indexByMessageID(chunks []evidence.Chunk) map[string]*evidence.Chunk {
	index := make(map[string]*evidence.Chunk)
	for i := range chunks {
		for _, id := range chunks[i].MessageIDs {
			if _, ok := index[id]; !ok {
				index[id] = &chunks[i]
			}
		}
	}
	return index
}

func sortChunks(chunks []evidence.Chunk) {
	sort.SliceStable(chunks, func(i, j int) bool {
		return less(chunks[i], chunks[j])
	})
}

func less(a, b evidence.Chunk) bool {
	if a.PriorityScore != b.PriorityScore {
		return a.PriorityScore > b.PriorityScore
	}
	return a.Seq < b.Seq
}

func topChunk(part []evidence.Chunk) evidence.Chunk {
	top := part[0]
	for _, c := range part[1:] {
		if less(c, top) {
			top = c
		}
	}
	return top
}

// partitionPreview joins a partition's highest-ranked chunk texts into a
// short synthetic summary for the roll-up pass.
func partitionPreview(part []evidence.Chunk) string {
	ranked := make([]evidence.Chunk, len(part))
	copy(ranked, part)
	sortChunks(ranked)
	if len(ranked) > maxPartitionFallbackItems {
		ranked = ranked[:maxPartitionFallbackItems]
	}
	lines := make([]string, 0, len(ranked))
	for _, c := range ranked {
		lines = append(lines, truncate(c.Content, 120))
	}
	return strings.Join(lines, "; ")
}

// truncate cuts at a rune boundary.
func truncate(s string, max int) string {
	s = strings.TrimSpace(strings.ReplaceAll(s, "\n", " "))
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
