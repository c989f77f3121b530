package audit

import (
	"context"
	"sort"
	"sync"

	"github.com/markuskont/go-dispatch"
	"github.com/sirupsen/logrus"
)

// RuleResult is the per-rule aggregate, ordered records across all systems
// plus applicability counts
// Applicable counts systems the rule applied to, Empty the subset of those
// that produced no findings; an empty result is still a real finding and is
// reported differently from a non-applicable rule
type RuleResult struct {
	ID          string    `json:"id"`
	Label       string    `json:"label"`
	Description string    `json:"description"`
	Fields      []string  `json:"fields"`
	Records     []*Record `json:"records"`
	Applicable  int       `json:"applicable"`
	Empty       int       `json:"applicable_but_empty"`
}

// PairError records a non-fatal failure for one (system, rule) pair
// Capture failures are recorded once per system, with an empty rule id
type PairError struct {
	System  string `json:"system"`
	Rule    string `json:"rule,omitempty"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Report is the finalized aggregation output handed to rendering
// A completed run always produces one, even when some pairs failed
type Report struct {
	Results      []*RuleResult  `json:"results"`
	SystemTotals map[string]int `json:"system_totals"`
	Errors       []PairError    `json:"errors"`
}

// AggregateConfig tunes one aggregation run
type AggregateConfig struct {
	// Workers bounds the system collection pool, minimum 1
	Workers int
	// Progress, when set, is invoked after each system has been collected
	Progress func(system string)
}

// systemPartial is one worker's accumulator for a single system
// Workers never share partials, so collection needs no locking; partials are
// merged sequentially in sorted system order once the pool drains
type systemPartial struct {
	system  string
	perRule [][]*Record
	applied []bool
	errs    []PairError
	total   int
	skipped bool
}

// Aggregate folds extraction results for the (system, rule) cross-product
// into a Report. Per-pair failures are recorded in the report errors list,
// never returned. Cancelling ctx stops scheduling new systems, results
// collected up to that point remain valid.
func Aggregate(ctx context.Context, rs *Ruleset, src CaptureSource, c AggregateConfig) (*Report, error) {
	systems, err := src.Systems()
	if err != nil {
		return nil, err
	}
	// stable processing order regardless of enumeration order
	sort.Strings(systems)

	workers := c.Workers
	if workers < 1 {
		workers = 1
	}
	partials := make([]*systemPartial, len(systems))

	queue := make(chan int)
	go func() {
		defer close(queue)
		for i := range systems {
			select {
			case <-ctx.Done():
				return
			case queue <- i:
			}
		}
	}()

	if err := dispatch.Run(dispatch.Config{
		Async:   false,
		Workers: workers,
		FeederFunc: func(tasks chan<- dispatch.Task, stop <-chan struct{}) {
			var wg sync.WaitGroup
			for w := 0; w < workers; w++ {
				wg.Add(1)
				tasks <- func(id, count int, _ context.Context) error {
					defer wg.Done()
					for idx := range queue {
						partials[idx] = collectSystem(rs, src, systems[idx])
						if c.Progress != nil {
							c.Progress(systems[idx])
						}
					}
					return nil
				}
			}
			wg.Wait()
		},
		ErrFunc: func(err error) bool {
			logrus.Error(err)
			return true
		},
	}); err != nil {
		return nil, err
	}
	return merge(rs, partials), nil
}

// collectSystem runs every applicable rule against one system's capture
func collectSystem(rs *Ruleset, prov CaptureProvider, system string) *systemPartial {
	part := &systemPartial{
		system:  system,
		perRule: make([][]*Record, len(rs.Searches)),
		applied: make([]bool, len(rs.Searches)),
		errs:    make([]PairError, 0),
	}
	facts, text, err := prov.Capture(system)
	if err != nil {
		part.skipped = true
		part.errs = append(part.errs, PairError{
			System:  system,
			Kind:    ErrKindCaptureUnavailable,
			Message: err.Error(),
		})
		return part
	}
	if facts == nil {
		facts = SystemFacts{}
	}
	if _, ok := facts.Get(FactSystemName); !ok {
		facts[FactSystemName] = system
	}
	for i, s := range rs.Searches {
		if !s.Applies(facts) {
			continue
		}
		recs, err := s.Extract(facts, text)
		if err != nil {
			part.errs = append(part.errs, PairError{
				System:  system,
				Rule:    s.Rule.ID,
				Kind:    ErrKindPattern,
				Message: err.Error(),
			})
			continue
		}
		part.applied[i] = true
		part.perRule[i] = recs
		part.total += len(recs)
	}
	return part
}

// merge folds per-system partials into the final report, in sorted system
// order so record sequences are deterministic across runs
func merge(rs *Ruleset, partials []*systemPartial) *Report {
	results := make([]*RuleResult, len(rs.Searches))
	for i, s := range rs.Searches {
		results[i] = &RuleResult{
			ID:          s.Rule.ID,
			Label:       s.Label(),
			Description: s.Rule.Description,
			Fields:      s.Fields(),
			Records:     make([]*Record, 0),
		}
	}
	report := &Report{
		Results:      results,
		SystemTotals: make(map[string]int),
		Errors:       make([]PairError, 0),
	}
	for _, part := range partials {
		if part == nil {
			// run was cancelled before this system was scheduled
			continue
		}
		report.Errors = append(report.Errors, part.errs...)
		if part.skipped {
			continue
		}
		report.SystemTotals[part.system] = part.total
		for i := range rs.Searches {
			if !part.applied[i] {
				continue
			}
			results[i].Applicable++
			if len(part.perRule[i]) == 0 {
				results[i].Empty++
				continue
			}
			results[i].Records = append(results[i].Records, part.perRule[i]...)
		}
	}
	return report
}

// TotalRecords sums record counts across all rules
func (r *Report) TotalRecords() int {
	var n int
	for _, res := range r.Results {
		n += len(res.Records)
	}
	return n
}
