package audit

import (
	"context"
	"testing"
)

// memSource is an in-memory capture backend for aggregation tests
type memSource struct {
	order    []string
	facts    map[string]SystemFacts
	captures map[string]string
	fail     map[string]bool
}

func (m memSource) Systems() ([]string, error) {
	return append([]string(nil), m.order...), nil
}

func (m memSource) Capture(id string) (SystemFacts, string, error) {
	if m.fail[id] {
		return nil, "", ErrCaptureUnavailable{System: id, Err: context.DeadlineExceeded}
	}
	return m.facts[id], m.captures[id], nil
}

func testRuleset(t *testing.T, rules ...Rule) *Ruleset {
	t.Helper()
	handles := make([]RuleHandle, 0, len(rules))
	for _, r := range rules {
		handles = append(handles, RuleHandle{Rule: r})
	}
	rs, err := NewRulesetFromList(handles, true)
	if err != nil {
		t.Fatal(err)
	}
	return rs
}

var statusRule = Rule{
	ID:           "svc-status",
	Pattern:      `status: (?P<status>\w+)`,
	FieldList:    []string{"status"},
	OnlyMatching: true,
}

var linuxRule = Rule{
	ID:           "kernel",
	Pattern:      `kernel=(?P<version>\S+)`,
	FieldList:    []string{"version"},
	OnlyMatching: true,
	Filters:      []Filter{{FactOSFamily, "eq", "Linux"}},
}

func twoSystemSource() memSource {
	return memSource{
		order: []string{"web01", "laptop02"},
		facts: map[string]SystemFacts{
			"web01":    {FactSystemName: "web01", FactOSFamily: "Linux"},
			"laptop02": {FactSystemName: "laptop02", FactOSFamily: "Darwin"},
		},
		captures: map[string]string{
			"web01":    "status: running\nkernel=5.15.0\n",
			"laptop02": "status: stopped\n",
		},
	}
}

func TestAggregate(t *testing.T) {
	rs := testRuleset(t, statusRule, linuxRule)
	report, err := Aggregate(context.Background(), rs, twoSystemSource(), AggregateConfig{Workers: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Errors) != 0 {
		t.Fatalf("unexpected errors: %+v", report.Errors)
	}

	status := report.Results[0]
	if status.Applicable != 2 || status.Empty != 0 {
		t.Fatalf("status counts: applicable %d empty %d", status.Applicable, status.Empty)
	}
	if len(status.Records) != 2 {
		t.Fatalf("expected 2 status records, got %d", len(status.Records))
	}
	// sorted system order: laptop02 before web01
	if status.Records[0].System != "laptop02" || status.Records[0].Get("status") != "stopped" {
		t.Fatalf("unexpected first record: %+v", status.Records[0])
	}
	if status.Records[1].System != "web01" || status.Records[1].Get("status") != "running" {
		t.Fatalf("unexpected second record: %+v", status.Records[1])
	}

	kernel := report.Results[1]
	// non-applicable system must not touch either counter
	if kernel.Applicable != 1 || kernel.Empty != 0 {
		t.Fatalf("kernel counts: applicable %d empty %d", kernel.Applicable, kernel.Empty)
	}
	if len(kernel.Records) != 1 || kernel.Records[0].Get("version") != "5.15.0" {
		t.Fatalf("unexpected kernel records: %+v", kernel.Records)
	}

	if report.SystemTotals["web01"] != 2 || report.SystemTotals["laptop02"] != 1 {
		t.Fatalf("unexpected totals: %+v", report.SystemTotals)
	}
}

func TestAggregateApplicableButEmpty(t *testing.T) {
	src := twoSystemSource()
	src.captures["laptop02"] = "no services listed\n"
	rs := testRuleset(t, statusRule)
	report, err := Aggregate(context.Background(), rs, src, AggregateConfig{})
	if err != nil {
		t.Fatal(err)
	}
	res := report.Results[0]
	if res.Applicable != 2 || res.Empty != 1 {
		t.Fatalf("applicable %d empty %d, want 2 and 1", res.Applicable, res.Empty)
	}
	if report.SystemTotals["laptop02"] != 0 {
		t.Fatalf("checked-but-empty system should report zero total, got %d",
			report.SystemTotals["laptop02"])
	}
}

func TestAggregateCaptureUnavailable(t *testing.T) {
	src := twoSystemSource()
	src.fail = map[string]bool{"laptop02": true}
	rs := testRuleset(t, statusRule, linuxRule)
	report, err := Aggregate(context.Background(), rs, src, AggregateConfig{Workers: 4})
	if err != nil {
		t.Fatal(err)
	}
	// one entry for the system, not one per rule
	if len(report.Errors) != 1 {
		t.Fatalf("expected single capture error, got %+v", report.Errors)
	}
	if report.Errors[0].Kind != ErrKindCaptureUnavailable || report.Errors[0].System != "laptop02" {
		t.Fatalf("unexpected error entry: %+v", report.Errors[0])
	}
	if _, ok := report.SystemTotals["laptop02"]; ok {
		t.Fatal("failed system should not appear in totals")
	}
	if len(report.Results[0].Records) != 1 {
		t.Fatalf("remaining system should still produce records, got %d",
			len(report.Results[0].Records))
	}
}

func TestAggregatePatternErrorIsolated(t *testing.T) {
	rs := testRuleset(t, statusRule)
	// simulate a matcher failure that slipped past load validation
	rs.Searches = append(rs.Searches, &Search{
		Rule: &RuleHandle{Rule: Rule{ID: "corrupt"}},
	})
	report, err := Aggregate(context.Background(), rs, twoSystemSource(), AggregateConfig{Workers: 2})
	if err != nil {
		t.Fatal(err)
	}
	// one error per failing (system, rule) pair
	if len(report.Errors) != 2 {
		t.Fatalf("expected 2 pattern errors, got %+v", report.Errors)
	}
	for _, e := range report.Errors {
		if e.Kind != ErrKindPattern || e.Rule != "corrupt" {
			t.Fatalf("unexpected error entry: %+v", e)
		}
	}
	// failing rule contributes zero records and no applicability counts
	corrupt := report.Results[1]
	if corrupt.Applicable != 0 || corrupt.Empty != 0 || len(corrupt.Records) != 0 {
		t.Fatalf("failing rule should stay empty: %+v", corrupt)
	}
	// healthy rule is unaffected
	if len(report.Results[0].Records) != 2 {
		t.Fatalf("healthy rule should keep its records, got %d",
			len(report.Results[0].Records))
	}
}

func TestAggregateCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rs := testRuleset(t, statusRule)
	report, err := Aggregate(ctx, rs, twoSystemSource(), AggregateConfig{Workers: 2})
	if err != nil {
		t.Fatal(err)
	}
	// partial results remain valid, nothing scheduled means nothing reported
	if report == nil {
		t.Fatal("cancelled run must still produce a report")
	}
	if got := len(report.Results[0].Records); got > 2 {
		t.Fatalf("impossible record count %d", got)
	}
}

func TestAggregateDeterministicOrder(t *testing.T) {
	src := twoSystemSource()
	// enumeration order should not matter
	src.order = []string{"web01", "laptop02"}
	rs := testRuleset(t, statusRule)
	first, err := Aggregate(context.Background(), rs, src, AggregateConfig{Workers: 4})
	if err != nil {
		t.Fatal(err)
	}
	src.order = []string{"laptop02", "web01"}
	second, err := Aggregate(context.Background(), rs, src, AggregateConfig{Workers: 1})
	if err != nil {
		t.Fatal(err)
	}
	a, b := first.Results[0].Records, second.Results[0].Records
	if len(a) != len(b) {
		t.Fatalf("record counts differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i].System != b[i].System || a[i].Get("status") != b[i].Get("status") {
			t.Fatalf("record %d differs between runs", i)
		}
	}
}
