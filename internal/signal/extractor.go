// Package signal performs pure text analysis over normalized conversation
// text: date expressions, action verbs and header lines, recognized
// against a fixed Russian lexicon. The matching engine is swappable
// between an enhanced (regexp2) and a standard (stdlib regexp) backend
// with identical observable results.
package signal

import (
	"sort"
	"strings"
)

// Extractor recognizes lexicon signals in free text. Safe for concurrent
// use; all methods are pure.
type Extractor struct {
	backendName string
	absolute    Matcher
	tokens      Matcher
	header      Matcher
}

// NewExtractor builds an extractor on the given backend. Passing nil
// selects the default backend (enhanced with silent standard fallback).
func NewExtractor(backend Backend) (*Extractor, error) {
	if backend == nil {
		backend = DefaultBackend()
	}

	absolute, err := backend.Compile(absoluteDateExpr)
	if err != nil {
		return nil, err
	}
	tokens, err := backend.Compile(tokenExpr)
	if err != nil {
		return nil, err
	}
	header, err := backend.Compile(headerExpr)
	if err != nil {
		return nil, err
	}

	return &Extractor{
		backendName: backend.Name(),
		absolute:    absolute,
		tokens:      tokens,
		header:      header,
	}, nil
}

// BackendName reports which engine is active. Diagnostic only.
func (e *Extractor) BackendName() string { return e.backendName }

// ExtractDates returns raw date-expression substrings in text order:
// explicit day+month expressions (optionally with a deadline marker) and
// relative day terms. Empty on text with no lexicon hit.
func (e *Extractor) ExtractDates(text string) []string {
	spans := e.absolute.FindAll(text)

	// Relative terms are matched token-wise so «завтрак» never hits «завтра».
	for _, tok := range e.tokens.FindAll(text) {
		if _, ok := relativeDateLexicon[lowerTrim(tok.Text)]; ok && !covered(spans, tok) {
			spans = append(spans, tok)
		}
	}

	sort.SliceStable(spans, func(i, j int) bool { return spans[i].Start < spans[j].Start })

	dates := make([]string, 0, len(spans))
	for _, s := range spans {
		dates = append(dates, s.Text)
	}
	return dates
}

// ExtractActionVerbs returns the set of lower-cased tokens present in the
// fixed imperative/modal lexicon, sorted for determinism. Empty on
// neutral prose.
func (e *Extractor) ExtractActionVerbs(text string) []string {
	seen := make(map[string]struct{})
	for _, tok := range e.tokens.FindAll(text) {
		lower := lowerTrim(tok.Text)
		if _, ok := actionVerbLexicon[lower]; ok {
			seen[lower] = struct{}{}
		}
	}
	if len(seen) == 0 {
		return nil
	}
	verbs := make([]string, 0, len(seen))
	for v := range seen {
		verbs = append(verbs, v)
	}
	sort.Strings(verbs)
	return verbs
}

// IsHeaderLine reports whether line begins with an uppercase run
// (Cyrillic or Latin) followed by ": ".
func (e *Extractor) IsHeaderLine(line string) bool {
	return e.header.Match(line)
}

// covered reports whether tok lies inside an already-matched span, e.g.
// «завтра» inside «до завтра» matched by the absolute pattern.
func covered(spans []Span, tok Span) bool {
	end := tok.Start + len(tok.Text)
	for _, s := range spans {
		if tok.Start >= s.Start && end <= s.Start+len(s.Text) {
			return true
		}
	}
	return false
}

func lowerTrim(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
