package signal

import (
	"regexp"

	"github.com/dlclark/regexp2"
)

// Span is a single match with its byte offset in the input, so results
// from several patterns can be merged back into text order.
type Span struct {
	Text  string
	Start int
}

// Matcher is a compiled pattern. Both backends produce identical
// observable results for the lexicon's character ranges; callers never
// learn which engine is active.
type Matcher interface {
	FindAll(text string) []Span
	Match(text string) bool
}

// Backend compiles lexicon patterns into matchers.
type Backend interface {
	Name() string
	Compile(expr string) (Matcher, error)
}

// StandardBackend is the stdlib regexp engine.
type StandardBackend struct{}

func (StandardBackend) Name() string { return "standard" }

func (StandardBackend) Compile(expr string) (Matcher, error) {
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, err
	}
	return &standardMatcher{re: re}, nil
}

type standardMatcher struct {
	re *regexp.Regexp
}

func (m *standardMatcher) FindAll(text string) []Span {
	idx := m.re.FindAllStringIndex(text, -1)
	if len(idx) == 0 {
		return nil
	}
	spans := make([]Span, 0, len(idx))
	for _, pair := range idx {
		spans = append(spans, Span{Text: text[pair[0]:pair[1]], Start: pair[0]})
	}
	return spans
}

func (m *standardMatcher) Match(text string) bool {
	return m.re.MatchString(text)
}

// EnhancedBackend is the regexp2 engine. It accepts a superset of the
// stdlib syntax; for the lexicon's patterns the two engines are certified
// equivalent by a shared compatibility test suite.
type EnhancedBackend struct{}

func (EnhancedBackend) Name() string { return "enhanced" }

func (EnhancedBackend) Compile(expr string) (Matcher, error) {
	re, err := regexp2.Compile(expr, regexp2.None)
	if err != nil {
		return nil, err
	}
	return &enhancedMatcher{re: re}, nil
}

type enhancedMatcher struct {
	re *regexp2.Regexp
}

func (m *enhancedMatcher) FindAll(text string) []Span {
	var spans []Span
	runes := []rune(text)
	match, err := m.re.FindStringMatch(text)
	for err == nil && match != nil {
		// regexp2 indexes are rune-based; convert to byte offsets so both
		// backends report identical positions.
		start := len(string(runes[:match.Index]))
		spans = append(spans, Span{Text: match.String(), Start: start})
		match, err = m.re.FindNextMatch(match)
	}
	return spans
}

func (m *enhancedMatcher) Match(text string) bool {
	ok, err := m.re.MatchString(text)
	return err == nil && ok
}

// DefaultBackend probes the enhanced engine against the full lexicon and
// silently falls back to the standard engine if any pattern fails to
// compile there.
func DefaultBackend() Backend {
	enhanced := EnhancedBackend{}
	for _, expr := range lexiconPatterns() {
		if _, err := enhanced.Compile(expr); err != nil {
			return StandardBackend{}
		}
	}
	return enhanced
}
