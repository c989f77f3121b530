package audit

import (
	"fmt"
	"os"
)

// Config is used as argument to creating a new ruleset
type Config struct {
	// root directories for recursive rule search
	// rules must be readable yaml files
	Directory []string
	// by default, a broken rule definition simply increments the
	// Ruleset.Failed counter
	// these parameters cause an early error return instead
	FailOnRuleParse, FailOnYamlParse bool
}

func (c Config) validate() error {
	if len(c.Directory) == 0 {
		return fmt.Errorf("missing root directory for audit rules")
	}
	for _, dir := range c.Directory {
		info, err := os.Stat(dir)
		if os.IsNotExist(err) {
			return fmt.Errorf("%s does not exist", dir)
		}
		if !info.IsDir() {
			return fmt.Errorf("%s is not a directory", dir)
		}
	}
	return nil
}

// Ruleset is a collection of compiled extraction rules
type Ruleset struct {
	Searches []*Search
	root     []string

	Total, Ok, Failed int
}

// NewRuleset instantiates a Ruleset object
// Rules failing structural validation are counted, not fatal, unless
// FailOnRuleParse is set
func NewRuleset(c Config) (*Ruleset, error) {
	if err := c.validate(); err != nil {
		return nil, err
	}
	files, err := NewRuleFileList(c.Directory)
	if err != nil {
		return nil, err
	}
	var fail int
	rules, err := NewRuleList(files, !c.FailOnYamlParse)
	if err != nil {
		switch e := err.(type) {
		case ErrBulkParseYaml:
			fail += len(e.Errs)
		default:
			return nil, err
		}
	}
	set := make([]*Search, 0)
	seen := make(map[string]string)
loop:
	for _, raw := range rules {
		if prev, ok := seen[raw.ID]; ok && raw.ID != "" {
			err := ErrDuplicateRuleID{ID: raw.ID, Path: prev}
			if c.FailOnRuleParse {
				return nil, err
			}
			fail++
			continue loop
		}
		s, err := NewSearch(raw)
		if err != nil {
			if c.FailOnRuleParse {
				return nil, err
			}
			fail++
			continue loop
		}
		seen[raw.ID] = raw.Path
		set = append(set, s)
	}
	return &Ruleset{
		root:     c.Directory,
		Searches: set,
		Failed:   fail,
		Ok:       len(set),
		Total:    len(rules),
	}, nil
}

// NewRulesetFromList compiles an already parsed rule list, mostly useful for
// embedding the engine without a rule directory on disk
func NewRulesetFromList(rules []RuleHandle, failFast bool) (*Ruleset, error) {
	set := make([]*Search, 0, len(rules))
	seen := make(map[string]string)
	var fail int
	for _, raw := range rules {
		if prev, ok := seen[raw.ID]; ok && raw.ID != "" {
			err := ErrDuplicateRuleID{ID: raw.ID, Path: prev}
			if failFast {
				return nil, err
			}
			fail++
			continue
		}
		s, err := NewSearch(raw)
		if err != nil {
			if failFast {
				return nil, err
			}
			fail++
			continue
		}
		seen[raw.ID] = raw.Path
		set = append(set, s)
	}
	return &Ruleset{
		Searches: set,
		Failed:   fail,
		Ok:       len(set),
		Total:    len(rules),
	}, nil
}
