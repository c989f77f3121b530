package audit

import (
	"regexp"
	"strings"

	"github.com/Velocidex/ordereddict"
)

// DefaultField is the synthetic column used when a rule has no named capture
// groups to project, or selects whole lines instead of sub-fields
const DefaultField = "value"

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// pattern pairs a compiled regular expression with its named group layout
// Group name to index mapping is resolved once at rule load so matching never
// repeats name lookups per match
type pattern struct {
	re     *regexp.Regexp
	groups []string
	index  map[string]int
	fields []string
}

func newPattern(r Rule) (*pattern, error) {
	expr := r.Pattern
	if r.Multiline {
		expr = "(?m)" + expr
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, ErrInvalidRegex{Pattern: r.Pattern, Err: err}
	}
	p := &pattern{
		re:     re,
		groups: make([]string, 0),
		index:  make(map[string]int),
	}
	for i, name := range re.SubexpNames() {
		if i == 0 || name == "" {
			continue
		}
		if _, seen := p.index[name]; !seen {
			p.groups = append(p.groups, name)
		}
		p.index[name] = i
	}
	p.fields = resolveFields(r, p.groups)
	return p, nil
}

// resolveFields decides the output column order shared by every record of one
// rule. Raw line selection always goes into the single synthetic column, as
// no sub-fields are extracted for it.
func resolveFields(r Rule, groups []string) []string {
	if r.RecordDelimiter == "" && !r.OnlyMatching {
		return []string{DefaultField}
	}
	if len(r.FieldList) > 0 {
		return r.FieldList
	}
	if len(groups) > 0 {
		return groups
	}
	return []string{DefaultField}
}

// project builds one record from a single submatch index vector
// Fields absent from the match become empty strings, never omitted, so all
// records of one rule stay structurally uniform
func (p *pattern) project(m []int, text string) *ordereddict.Dict {
	d := ordereddict.NewDict()
	for _, f := range p.fields {
		d.Set(f, p.capture(m, text, f))
	}
	return d
}

func (p *pattern) capture(m []int, text, field string) string {
	if len(p.groups) == 0 {
		if field == DefaultField {
			return text[m[0]:m[1]]
		}
		return ""
	}
	gi, ok := p.index[field]
	if !ok || 2*gi+1 >= len(m) {
		return ""
	}
	if s := m[2*gi]; s >= 0 {
		return text[s:m[2*gi+1]]
	}
	return ""
}

func rawRecord(text string) *ordereddict.Dict {
	return ordereddict.NewDict().Set(DefaultField, text)
}

// extractor is the closed set of matching modes, resolved once per rule at
// compile time instead of branching on flag combinations per match
type extractor interface {
	extract(text string) []*ordereddict.Dict
}

// lineMode evaluates the pattern against each physical line
type lineMode struct {
	p            *pattern
	onlyMatching bool
}

func (l lineMode) extract(text string) []*ordereddict.Dict {
	out := make([]*ordereddict.Dict, 0)
	for _, line := range splitLines(text) {
		if !l.onlyMatching {
			if l.p.re.MatchString(line) {
				out = append(out, rawRecord(line))
			}
			continue
		}
		for _, m := range l.p.re.FindAllStringSubmatchIndex(line, -1) {
			out = append(out, l.p.project(m, line))
		}
	}
	return out
}

// blockMode evaluates the pattern once against the whole captured text, with
// per-line anchoring enabled so capture groups may span source lines
type blockMode struct {
	p            *pattern
	onlyMatching bool
}

func (b blockMode) extract(text string) []*ordereddict.Dict {
	out := make([]*ordereddict.Dict, 0)
	if text == "" {
		return out
	}
	for _, m := range b.p.re.FindAllStringSubmatchIndex(text, -1) {
		if b.onlyMatching {
			out = append(out, b.p.project(m, text))
			continue
		}
		out = append(out, rawRecord(text[m[0]:m[1]]))
	}
	return out
}

// recordMode first partitions the text on a delimiter pattern, then merges
// all group captures found within one partition into a single record
// Later captures overwrite earlier ones for the same field name
type recordMode struct {
	p         *pattern
	delim     *regexp.Regexp
	multiline bool
}

func (r recordMode) extract(text string) []*ordereddict.Dict {
	out := make([]*ordereddict.Dict, 0)
	for _, rec := range partition(text, r.delim) {
		units := []string{rec}
		if !r.multiline {
			units = splitLines(rec)
		}
		vals := make(map[string]string)
		var found bool
		for _, unit := range units {
			for _, m := range r.p.re.FindAllStringSubmatchIndex(unit, -1) {
				if len(r.p.groups) == 0 {
					vals[DefaultField] = unit[m[0]:m[1]]
					found = true
					continue
				}
				for name, gi := range r.p.index {
					if 2*gi+1 >= len(m) {
						continue
					}
					if s := m[2*gi]; s >= 0 {
						vals[name] = unit[s:m[2*gi+1]]
						found = true
					}
				}
			}
		}
		if !found {
			// partition held no captures at all, suppress rather than
			// emit an all-empty record
			continue
		}
		d := ordereddict.NewDict()
		for _, f := range r.p.fields {
			d.Set(f, vals[f])
		}
		out = append(out, d)
	}
	return out
}

// partition splits text into consecutive non-overlapping records
// Each delimiter line opens a new record and stays at the head of its span,
// so concatenating all spans reproduces the input byte for byte
// Lines preceding the first delimiter form a record of their own
func partition(text string, delim *regexp.Regexp) []string {
	if text == "" {
		return nil
	}
	out := make([]string, 0)
	var cur strings.Builder
	for _, span := range splitSpans(text) {
		if delim.MatchString(trimEOL(span)) && cur.Len() > 0 {
			out = append(out, cur.String())
			cur.Reset()
		}
		cur.WriteString(span)
	}
	if cur.Len() > 0 {
		out = append(out, cur.String())
	}
	return out
}

// splitSpans cuts text into lines with terminators kept in place
func splitSpans(text string) []string {
	out := make([]string, 0)
	for len(text) > 0 {
		i := strings.IndexByte(text, '\n')
		if i < 0 {
			out = append(out, text)
			break
		}
		out = append(out, text[:i+1])
		text = text[i+1:]
	}
	return out
}

// splitLines cuts text into physical lines without terminators
func splitLines(text string) []string {
	spans := splitSpans(text)
	for i := range spans {
		spans[i] = trimEOL(spans[i])
	}
	return spans
}

func trimEOL(line string) string {
	return strings.TrimRight(line, "\r\n")
}
