// Package strategy chooses between the flat and hierarchical
// summarization strategies from snapshot volume.
package strategy

import "fmt"

// Kind names a summarization strategy.
type Kind string

const (
	// Flat passes all chunks through the LLM pipeline in one request
	// set, subject to the gateway's token-budget batching.
	Flat Kind = "flat"
	// Hierarchical summarizes each conversation partition independently,
	// then runs one roll-up pass over the per-partition summaries.
	Hierarchical Kind = "hierarchical"
)

// Config holds the volume thresholds for the decision. All fields are
// required; Validate rejects zero thresholds to keep the decision
// explicit rather than accidentally always-flat.
type Config struct {
	Enable                bool `koanf:"enable"`
	EnableAuto            bool `koanf:"enable_auto"`
	ThresholdThreads      int  `koanf:"threshold_threads"`
	ThresholdEmails       int  `koanf:"threshold_emails"`
	MinThreadsToSummarize int  `koanf:"min_threads_to_summarize"`
}

// DefaultConfig returns the stock thresholds.
func DefaultConfig() Config {
	return Config{
		Enable:                true,
		EnableAuto:            true,
		ThresholdThreads:      40,
		ThresholdEmails:       200,
		MinThreadsToSummarize: 6,
	}
}

// Validate checks threshold sanity.
func (c Config) Validate() error {
	if !c.Enable {
		return nil
	}
	if c.ThresholdThreads <= 0 {
		return fmt.Errorf("threshold_threads must be positive, got %d", c.ThresholdThreads)
	}
	if c.ThresholdEmails <= 0 {
		return fmt.Errorf("threshold_emails must be positive, got %d", c.ThresholdEmails)
	}
	if c.MinThreadsToSummarize <= 0 {
		return fmt.Errorf("min_threads_to_summarize must be positive, got %d", c.MinThreadsToSummarize)
	}
	return nil
}

// Engine applies the volume decision.
type Engine struct {
	cfg Config
}

// NewEngine builds an engine from validated config.
func NewEngine(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Engine{cfg: cfg}, nil
}

// ShouldUseHierarchical returns true iff hierarchical mode and auto
// selection are enabled, the thread count clears the summarizability
// gate (>=), and either volume threshold is strictly exceeded (>).
// Monotonic in both counts.
func (e *Engine) ShouldUseHierarchical(threadCount, emailCount int) bool {
	if !e.cfg.Enable || !e.cfg.EnableAuto {
		return false
	}
	if threadCount < e.cfg.MinThreadsToSummarize {
		return false
	}
	return threadCount > e.cfg.ThresholdThreads || emailCount > e.cfg.ThresholdEmails
}

// Choose maps the decision to a strategy kind.
func (e *Engine) Choose(threadCount, emailCount int) Kind {
	if e.ShouldUseHierarchical(threadCount, emailCount) {
		return Hierarchical
	}
	return Flat
}
