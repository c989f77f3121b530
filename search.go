package audit

import (
	"fmt"
	"regexp"
)

// Search is one compiled extraction rule, the runtime counterpart of a raw
// Rule. Immutable after construction and safe for concurrent use, compiled
// patterns are shared read-only across all workers.
type Search struct {
	Rule *RuleHandle

	pat   *pattern
	preds filters
	ext   extractor
}

// NewSearch validates a rule handle and compiles it into a Search
// All structural problems surface here, at load time, so that matching can
// assume a well formed rule
func NewSearch(r RuleHandle) (*Search, error) {
	if r.ID == "" {
		return nil, ErrRuleValidation{Msg: "missing rule id"}
	}
	if r.Pattern == "" {
		return nil, ErrRuleValidation{ID: r.ID, Msg: "missing pattern"}
	}
	for _, f := range r.FieldList {
		if !identPattern.MatchString(f) {
			return nil, ErrRuleValidation{
				ID:  r.ID,
				Msg: fmt.Sprintf("field %q is not a legal group identifier", f),
			}
		}
	}
	preds, err := newFilters(r.Filters)
	if err != nil {
		return nil, ErrRuleValidation{ID: r.ID, Msg: err.Error()}
	}
	pat, err := newPattern(r.Rule)
	if err != nil {
		return nil, err
	}
	var ext extractor
	switch {
	case r.RecordDelimiter != "":
		delim, err := regexp.Compile(r.RecordDelimiter)
		if err != nil {
			return nil, ErrInvalidRegex{Pattern: r.RecordDelimiter, Err: err}
		}
		ext = recordMode{p: pat, delim: delim, multiline: r.Multiline}
	case r.Multiline:
		ext = blockMode{p: pat, onlyMatching: r.OnlyMatching}
	default:
		ext = lineMode{p: pat, onlyMatching: r.OnlyMatching}
	}
	return &Search{
		Rule:  &r,
		pat:   pat,
		preds: preds,
		ext:   ext,
	}, nil
}

// Applies decides whether the rule applies to a system described by facts
// Pure function, an empty filter list applies to every system and a filter
// referencing a missing attribute is simply not satisfied
func (s *Search) Applies(facts SystemFacts) bool {
	return s.preds.applies(facts)
}

// Fields returns the output column order shared by every record of this rule
func (s *Search) Fields() []string {
	if s.pat == nil {
		return nil
	}
	return s.pat.fields
}

// Label returns the human facing name for the rule output group
func (s *Search) Label() string {
	if s.Rule.ReportLabel != "" {
		return s.Rule.ReportLabel
	}
	return s.Rule.ID
}

// Extract runs the compiled rule against one system's captured text
// Empty text yields zero records, not an error
func (s *Search) Extract(facts SystemFacts, text string) ([]*Record, error) {
	if s.ext == nil || s.pat == nil || s.pat.re == nil {
		return nil, ErrPattern{
			RuleID: s.Rule.ID,
			Err:    fmt.Errorf("rule was not compiled"),
		}
	}
	dicts := s.ext.extract(text)
	if len(dicts) == 0 {
		return nil, nil
	}
	out := make([]*Record, 0, len(dicts))
	for _, d := range dicts {
		out = append(out, &Record{
			System: facts.System(),
			RuleID: s.Rule.ID,
			Fields: d,
		})
	}
	return out, nil
}
