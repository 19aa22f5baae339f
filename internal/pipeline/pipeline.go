// Package pipeline orchestrates one digest run: chunking, strategy
// selection, LLM summarization and the guaranteed degradation path. One
// run processes one snapshot; all state is in-memory and run-scoped.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/digestd/internal/config"
	"github.com/fyrsmithlabs/digestd/internal/digest"
	"github.com/fyrsmithlabs/digestd/internal/evidence"
	"github.com/fyrsmithlabs/digestd/internal/fallback"
	"github.com/fyrsmithlabs/digestd/internal/gateway"
	"github.com/fyrsmithlabs/digestd/internal/logging"
	"github.com/fyrsmithlabs/digestd/internal/signal"
	"github.com/fyrsmithlabs/digestd/internal/strategy"
)

const tracerName = "github.com/fyrsmithlabs/digestd/internal/pipeline"
const meterName = "pipeline"

// Snapshot is one run's input: a batch of normalized messages for one
// unit (mailbox or channel).
type Snapshot struct {
	UnitID     string             `json:"unit_id"`
	DigestDate string             `json:"digest_date,omitempty"`
	Messages   []evidence.Message `json:"messages"`
}

// Runner executes digest runs. Safe for concurrent runs: no shared
// mutable state beyond immutable configuration.
type Runner struct {
	cfg     *config.Config
	chunker *evidence.Chunker
	engine  *strategy.Engine
	gateway *gateway.Gateway
	logger  *logging.Logger

	tracer trace.Tracer
	meter  metric.Meter

	runsTotal         metric.Int64Counter
	degradationsTotal metric.Int64Counter
	runDuration       metric.Float64Histogram
}

// NewRunner wires a runner from config.
func NewRunner(cfg *config.Config, logger *logging.Logger) (*Runner, error) {
	if logger == nil {
		logger = logging.Nop()
	}

	extractor, err := signal.NewExtractor(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build signal extractor: %w", err)
	}
	chunker, err := evidence.NewChunker(cfg.Chunking, cfg.Scoring, extractor)
	if err != nil {
		return nil, fmt.Errorf("failed to build chunker: %w", err)
	}
	engine, err := strategy.NewEngine(cfg.Hierarchical)
	if err != nil {
		return nil, fmt.Errorf("failed to build strategy engine: %w", err)
	}
	gw, err := gateway.New(cfg.LLM, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to build llm gateway: %w", err)
	}

	r := &Runner{
		cfg:     cfg,
		chunker: chunker,
		engine:  engine,
		gateway: gw,
		logger:  logger.Named("pipeline"),
		tracer:  otel.Tracer(tracerName),
		meter:   otel.Meter(meterName),
	}
	if err := r.initMetrics(); err != nil {
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}
	return r, nil
}

// Run produces a digest for the snapshot. The caller always receives a
// schema-valid digest (v3 or v2) or an explicit fatal error (malformed
// input or schema violation); recoverable LLM failures surface only as
// a lower-fidelity digest plus a logged reason code.
func (r *Runner) Run(ctx context.Context, snap Snapshot) (digest.Digest, error) {
	traceID := uuid.NewString()
	ctx = logging.WithTraceID(ctx, traceID)
	ctx = logging.WithUnitID(ctx, sanitizeID(snap.UnitID))

	ctx, span := r.tracer.Start(ctx, "pipeline.run",
		trace.WithAttributes(
			attribute.String("trace_id", traceID),
			attribute.Int("messages", len(snap.Messages)),
		),
	)
	defer span.End()
	start := time.Now()

	digestDate := snap.DigestDate
	if digestDate == "" {
		digestDate = time.Now().UTC().Format("2006-01-02")
	}

	chunks, err := r.chunker.Chunk(snap.Messages)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	consumed := consumedSet(chunks)
	r.logger.Info(logging.WithStage(ctx, "chunking"), "evidence prepared",
		zap.Int("chunks", len(chunks)))

	if len(chunks) == 0 {
		return r.degrade(ctx, chunks, consumed, digestDate, traceID, "empty_snapshot", start)
	}

	threadCount := countThreads(chunks)
	emailCount := len(snap.Messages)

	if !r.gateway.Available() {
		return r.degrade(ctx, chunks, consumed, digestDate, traceID, fallback.ReasonDisabled, start)
	}

	kind := r.engine.Choose(threadCount, emailCount)
	r.logger.Info(logging.WithStage(ctx, "strategy"), "strategy selected",
		zap.String("strategy", string(kind)),
		zap.Int("threads", threadCount),
		zap.Int("emails", emailCount))

	var d *digest.V3
	switch kind {
	case strategy.Hierarchical:
		d, err = r.runHierarchical(ctx, snap.UnitID, traceID, digestDate, chunks)
	default:
		d, err = r.runFlat(ctx, snap.UnitID, traceID, digestDate, chunks)
	}
	if err != nil {
		reason, recoverable := classify(err)
		if !recoverable {
			span.RecordError(err)
			return nil, err
		}
		r.logger.Warn(logging.WithStage(ctx, "llm"), "llm path failed",
			zap.String("reason", reason),
			zap.String("error_type", fmt.Sprintf("%T", err)))
		return r.degrade(ctx, chunks, consumed, digestDate, traceID, reason, start)
	}

	if err := digest.ValidateV3(d, consumed); err != nil {
		span.RecordError(err)
		return nil, err
	}

	r.record(ctx, string(kind), digest.SchemaV3, start)
	r.logger.Info(logging.WithStage(ctx, "assemble"), "digest produced",
		zap.String("schema_version", digest.SchemaV3),
		zap.Int("sections", len(d.Sections)))
	return d, nil
}

// degrade runs the extractive fallback and schema-checks the result.
// A validator failure here is a bug and aborts the run.
func (r *Runner) degrade(ctx context.Context, chunks []evidence.Chunk, consumed map[string]bool, digestDate, traceID, reason string, start time.Time) (digest.Digest, error) {
	ctx = logging.WithStage(ctx, "degradation")
	d := fallback.ExtractiveFallback(chunks, digestDate, traceID, reason)
	if err := digest.ValidateV2(d, consumed); err != nil {
		return nil, err
	}

	r.record(ctx, "fallback", digest.SchemaV2, start)
	r.degradationsTotal.Add(ctx, 1,
		metric.WithAttributes(attribute.String("reason", reason)))
	r.logger.Info(ctx, "digest degraded",
		zap.String("reason", reason),
		zap.String("schema_version", digest.SchemaV2),
		zap.Int("my_actions", len(d.MyActions)),
		zap.Int("others_actions", len(d.OthersActions)),
		zap.Int("deadlines_meetings", len(d.DeadlinesMeetings)))
	return d, nil
}

// classify maps an LLM-path error to a degradation reason. Only invalid
// JSON, endpoint failures and cancellation are recoverable; anything
// else is a bug and aborts the run.
func classify(err error) (string, bool) {
	var invalidErr *gateway.InvalidJSONError
	if errors.As(err, &invalidErr) {
		return fallback.ReasonInvalidJSON, true
	}

	var endpointErr *gateway.EndpointError
	if errors.As(err, &endpointErr) {
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(endpointErr.Err) {
			return fallback.ReasonTimeout, true
		}
		if errors.Is(err, context.Canceled) {
			return fallback.ReasonCancelled, true
		}
		return fallback.ReasonEndpointError, true
	}

	if errors.Is(err, gateway.ErrDisabled) {
		return fallback.ReasonDisabled, true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fallback.ReasonTimeout, true
	}
	if errors.Is(err, context.Canceled) {
		return fallback.ReasonCancelled, true
	}
	return "", false
}

func isTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}

func countThreads(chunks []evidence.Chunk) int {
	seen := make(map[string]struct{})
	for _, c := range chunks {
		seen[c.ConversationID] = struct{}{}
	}
	return len(seen)
}

func consumedSet(chunks []evidence.Chunk) map[string]bool {
	consumed := make(map[string]bool, len(chunks))
	for _, c := range chunks {
		consumed[c.EvidenceID] = true
	}
	return consumed
}

// maxUnitIDLabel matches the logging package's id length limit.
const maxUnitIDLabel = 128

// sanitizeID maps an arbitrary unit id (a mailbox address, a channel
// name) into the bounded id alphabet the logging correlation fields
// require. Never panics: invalid characters are replaced and overlong
// ids truncated.
func sanitizeID(id string) string {
	if id == "" {
		return "default"
	}
	var b strings.Builder
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	s := b.String()
	if len(s) > maxUnitIDLabel {
		s = s[:maxUnitIDLabel]
	}
	return s
}

func (r *Runner) record(ctx context.Context, strategyName, schema string, start time.Time) {
	r.runsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("strategy", strategyName),
		attribute.String("schema_version", schema),
	))
	r.runDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(attribute.String("strategy", strategyName)))
}

// initMetrics initializes OpenTelemetry metrics.
func (r *Runner) initMetrics() error {
	var err error

	r.runsTotal, err = r.meter.Int64Counter(
		"pipeline.runs_total",
		metric.WithDescription("Total number of digest runs"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create runs counter: %w", err)
	}

	r.degradationsTotal, err = r.meter.Int64Counter(
		"pipeline.degradations_total",
		metric.WithDescription("Runs that fell back to the extractive digest"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create degradations counter: %w", err)
	}

	r.runDuration, err = r.meter.Float64Histogram(
		"pipeline.run_duration_seconds",
		metric.WithDescription("Wall time per digest run"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 30.0, 120.0),
	)
	if err != nil {
		return fmt.Errorf("failed to create run duration histogram: %w", err)
	}

	return nil
}
