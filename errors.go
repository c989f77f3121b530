package audit

import "fmt"

// Error kind labels attached to per-pair failures in the report
// Kept as plain strings so the report stays trivially serializable
const (
	ErrKindPattern            = "pattern"
	ErrKindCaptureUnavailable = "capture_unavailable"
)

// ErrInvalidRegex contextualizes broken regular expressions presented by the user
type ErrInvalidRegex struct {
	Pattern string
	Err     error
}

// Error implements error
func (e ErrInvalidRegex) Error() string {
	return fmt.Sprintf("/%s/ %s", e.Pattern, e.Err)
}

// ErrRuleValidation indicates a structurally broken rule definition
// Raised at load time, before any capture is touched
type ErrRuleValidation struct {
	ID  string
	Msg string
}

func (e ErrRuleValidation) Error() string {
	return fmt.Sprintf("rule %s: %s", e.ID, e.Msg)
}

// ErrDuplicateRuleID indicates an id collision across the loaded rule set
// Rule ids double as report keys, so collisions cannot be tolerated
type ErrDuplicateRuleID struct {
	ID   string
	Path string
}

func (e ErrDuplicateRuleID) Error() string {
	return fmt.Sprintf("duplicate rule id %s in %s", e.ID, e.Path)
}

// ErrUnknownComparator indicates a filter comparator outside the supported set
type ErrUnknownComparator struct {
	Comparator string
}

func (e ErrUnknownComparator) Error() string {
	return fmt.Sprintf("unknown filter comparator %q", e.Comparator)
}

// ErrMissingAttribute indicates a filter referencing an attribute the system
// fact set does not carry
// Policy is non-fatal, the rule is simply not applicable to that system
type ErrMissingAttribute struct {
	Attribute string
}

func (e ErrMissingAttribute) Error() string {
	return fmt.Sprintf("missing system attribute %s", e.Attribute)
}

// ErrPattern indicates a matcher failure during extraction
// Non-fatal, the (system, rule) pair contributes zero records and the failure
// is recorded in the report errors list
type ErrPattern struct {
	RuleID string
	Err    error
}

func (e ErrPattern) Error() string {
	return fmt.Sprintf("pattern failure for rule %s: %s", e.RuleID, e.Err)
}

// ErrCaptureUnavailable indicates that the capture provider could not supply
// text for a system
// The system is skipped for all rules and recorded once in the errors list
type ErrCaptureUnavailable struct {
	System string
	Err    error
}

func (e ErrCaptureUnavailable) Error() string {
	return fmt.Sprintf("capture unavailable for %s: %s", e.System, e.Err)
}

// ErrParseYaml indicates YAML parsing error
type ErrParseYaml struct {
	Path  string
	Err   error
	Count int
}

func (e ErrParseYaml) Error() string {
	return fmt.Sprintf("%d - File: %s; Err: %s", e.Count, e.Path, e.Err)
}

// ErrBulkParseYaml is a bulk error handler for dealing with broken rule files
// Some files are bound to fail, no reason to exit entire application
// Individual errors can be collected and returned at the end
// Caller decides if they should be only reported or warrant a full exit
type ErrBulkParseYaml struct {
	Errs []ErrParseYaml
}

func (e ErrBulkParseYaml) Error() string {
	return fmt.Sprintf("got %d broken yaml files", len(e.Errs))
}
