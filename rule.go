package audit

import (
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v2"
)

// Filter is one (attribute, comparator, value) triple from a rule definition
// All triples of a rule must hold for the rule to apply to a system
type Filter struct {
	Attribute  string `yaml:"attr" json:"attr"`
	Comparator string `yaml:"comp" json:"comp"`
	Value      string `yaml:"value" json:"value"`
}

// Rule defines one raw extraction rule as written in configuration yaml
// Only meant for parsing, compile into a Search before matching anything
type Rule struct {
	ID              string   `yaml:"id" json:"id"`
	Pattern         string   `yaml:"pattern" json:"pattern"`
	Filters         []Filter `yaml:"filters" json:"filters"`
	FieldList       []string `yaml:"field_list" json:"field_list"`
	OnlyMatching    bool     `yaml:"only_matching" json:"only_matching"`
	Multiline       bool     `yaml:"multiline" json:"multiline"`
	RecordDelimiter string   `yaml:"record_delimiter" json:"record_delimiter"`
	ReportLabel     string   `yaml:"report_label" json:"report_label"`
	Description     string   `yaml:"description" json:"description"`
}

// RuleHandle is a meta object holding a raw rule along with debugging info
// from the tool, such as source file path
type RuleHandle struct {
	Rule

	Path string `json:"path"`
}

// NewRuleList reads a list of rule file paths and parses them to rule objects
// A file may hold either a single rule document or a list of rules
func NewRuleList(files []string, skip bool) ([]RuleHandle, error) {
	if len(files) == 0 {
		return nil, fmt.Errorf("missing rule file list")
	}
	errs := make([]ErrParseYaml, 0)
	rules := make([]RuleHandle, 0)
loop:
	for i, path := range files {
		data, err := ioutil.ReadFile(path)
		if err != nil {
			return nil, err
		}
		parsed, err := unmarshalRules(data)
		if err != nil {
			if skip {
				errs = append(errs, ErrParseYaml{
					Path:  path,
					Count: i,
					Err:   err,
				})
				continue loop
			}
			return nil, &ErrParseYaml{Err: err, Path: path}
		}
		for _, r := range parsed {
			rules = append(rules, RuleHandle{
				Path: path,
				Rule: r,
			})
		}
	}
	return rules, func() error {
		if len(errs) > 0 {
			return ErrBulkParseYaml{Errs: errs}
		}
		return nil
	}()
}

func unmarshalRules(data []byte) ([]Rule, error) {
	var list []Rule
	if err := yaml.Unmarshal(data, &list); err == nil {
		return list, nil
	}
	var single Rule
	if err := yaml.Unmarshal(data, &single); err != nil {
		return nil, err
	}
	return []Rule{single}, nil
}

// NewRuleFileList finds all yaml files from defined root directories
// Subtree is scanned recursively
// No file validation, other than suffix matching
func NewRuleFileList(dirs []string) ([]string, error) {
	out := make([]string, 0)
	for _, dir := range dirs {
		if err := filepath.Walk(dir, func(
			path string,
			info os.FileInfo,
			err error,
		) error {
			if err != nil {
				return err
			}
			if !info.IsDir() && (strings.HasSuffix(path, "yml") || strings.HasSuffix(path, "yaml")) {
				out = append(out, path)
			}
			return nil
		}); err != nil {
			return out, err
		}
	}
	return out, nil
}
