package audit

import (
	"strconv"
	"strings"

	"github.com/gobwas/glob"
)

type comparator int

const (
	compEq comparator = iota
	compNe
	compGt
	compLt
	compGe
	compLe
	compIn
	compLike
)

func newComparator(raw string) (comparator, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "eq", "equals", "==", "=":
		return compEq, nil
	case "ne", "not-equals", "!=":
		return compNe, nil
	case "gt", ">":
		return compGt, nil
	case "lt", "<":
		return compLt, nil
	case "ge", ">=":
		return compGe, nil
	case "le", "<=":
		return compLe, nil
	case "in":
		return compIn, nil
	case "like":
		return compLike, nil
	}
	return 0, ErrUnknownComparator{Comparator: raw}
}

// predicate is one compiled filter triple
// glob patterns for the like comparator are compiled once at rule load
type predicate struct {
	attribute string
	comp      comparator
	value     string

	g       glob.Glob
	members []string
}

func newPredicate(f Filter) (predicate, error) {
	comp, err := newComparator(f.Comparator)
	if err != nil {
		return predicate{}, err
	}
	p := predicate{
		attribute: f.Attribute,
		comp:      comp,
		value:     f.Value,
	}
	switch comp {
	case compLike:
		g, err := glob.Compile(strings.ToLower(f.Value))
		if err != nil {
			return predicate{}, err
		}
		p.g = g
	case compIn:
		members := strings.Split(f.Value, ",")
		for i, m := range members {
			members[i] = strings.TrimSpace(m)
		}
		p.members = members
	}
	return p, nil
}

func (p predicate) eval(facts SystemFacts) bool {
	got, ok := facts.Get(p.attribute)
	if !ok {
		// missing attribute means not satisfied, never an error
		return false
	}
	switch p.comp {
	case compEq:
		return strings.EqualFold(got, p.value)
	case compNe:
		return !strings.EqualFold(got, p.value)
	case compGt:
		return compare(got, p.value) > 0
	case compLt:
		return compare(got, p.value) < 0
	case compGe:
		return compare(got, p.value) >= 0
	case compLe:
		return compare(got, p.value) <= 0
	case compIn:
		for _, m := range p.members {
			if strings.EqualFold(got, m) {
				return true
			}
		}
		return false
	case compLike:
		return p.g.Match(strings.ToLower(got))
	}
	return false
}

// compare orders two attribute values, numerically when both parse as numbers
// and lexicographically otherwise
func compare(a, b string) int {
	fa, errA := strconv.ParseFloat(strings.TrimSpace(a), 64)
	fb, errB := strconv.ParseFloat(strings.TrimSpace(b), 64)
	if errA == nil && errB == nil {
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		}
		return 0
	}
	return strings.Compare(a, b)
}

// filters is an ordered conjunction of predicates
// An empty list applies to every system
type filters []predicate

func newFilters(raw []Filter) (filters, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	out := make(filters, 0, len(raw))
	for _, f := range raw {
		p, err := newPredicate(f)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (f filters) applies(facts SystemFacts) bool {
	for _, p := range f {
		if !p.eval(facts) {
			return false
		}
	}
	return true
}
