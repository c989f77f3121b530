package audit

import (
	"io/ioutil"
	"path/filepath"
	"testing"
)

const goodRuleYaml = `
- id: sshd-config
  pattern: '^(?P<key>\w+)\s+(?P<value>.+)$'
  field_list: [key, value]
  only_matching: true
  report_label: SSHd Configuration
  filters:
    - attr: os_family
      comp: eq
      value: Linux
- id: world-writable
  pattern: 'rwxrwxrwx'
  report_label: World Writable Files
`

const singleRuleYaml = `
id: os-release
pattern: 'PRETTY_NAME="(?P<name>[^"]+)"'
field_list: [name]
only_matching: true
`

const brokenRuleYaml = `
id: broken
pattern: '(?P<oops>'
`

const dupRuleYaml = `
id: sshd-config
pattern: 'x'
`

func writeRules(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, body := range files {
		if err := ioutil.WriteFile(filepath.Join(dir, name), []byte(body), 0644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func TestNewRuleset(t *testing.T) {
	dir := writeRules(t, map[string]string{
		"linux.yml":  goodRuleYaml,
		"common.yml": singleRuleYaml,
	})
	rs, err := NewRuleset(Config{Directory: []string{dir}})
	if err != nil {
		t.Fatal(err)
	}
	if rs.Total != 3 || rs.Ok != 3 || rs.Failed != 0 {
		t.Fatalf("counter mismatch: total %d ok %d failed %d", rs.Total, rs.Ok, rs.Failed)
	}
}

func TestNewRulesetCountsBrokenRules(t *testing.T) {
	dir := writeRules(t, map[string]string{
		"good.yml":   singleRuleYaml,
		"broken.yml": brokenRuleYaml,
	})
	rs, err := NewRuleset(Config{Directory: []string{dir}})
	if err != nil {
		t.Fatal(err)
	}
	if rs.Ok != 1 || rs.Failed != 1 {
		t.Fatalf("expected 1 ok 1 failed, got %d ok %d failed", rs.Ok, rs.Failed)
	}
}

func TestNewRulesetFailFast(t *testing.T) {
	dir := writeRules(t, map[string]string{
		"broken.yml": brokenRuleYaml,
	})
	_, err := NewRuleset(Config{Directory: []string{dir}, FailOnRuleParse: true})
	if err == nil {
		t.Fatal("expected early error with FailOnRuleParse")
	}
}

func TestNewRulesetDuplicateID(t *testing.T) {
	dir := writeRules(t, map[string]string{
		"a.yml": goodRuleYaml,
		"b.yml": dupRuleYaml,
	})
	rs, err := NewRuleset(Config{Directory: []string{dir}})
	if err != nil {
		t.Fatal(err)
	}
	if rs.Failed != 1 {
		t.Fatalf("duplicate id should be counted as failed, got %d", rs.Failed)
	}
	_, err = NewRuleset(Config{Directory: []string{dir}, FailOnRuleParse: true})
	if err == nil {
		t.Fatal("expected duplicate id error with FailOnRuleParse")
	}
	if _, ok := err.(ErrDuplicateRuleID); !ok {
		t.Fatalf("expected ErrDuplicateRuleID, got %T", err)
	}
}

func TestNewRulesetMissingDirectory(t *testing.T) {
	if _, err := NewRuleset(Config{}); err == nil {
		t.Fatal("expected error for empty directory list")
	}
	if _, err := NewRuleset(Config{Directory: []string{"/no/such/dir"}}); err == nil {
		t.Fatal("expected error for missing directory")
	}
}

func TestRuleFileList(t *testing.T) {
	dir := writeRules(t, map[string]string{
		"a.yml":      goodRuleYaml,
		"b.yaml":     singleRuleYaml,
		"readme.txt": "not a rule",
	})
	files, err := NewRuleFileList([]string{dir})
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 2 {
		t.Fatalf("expected 2 rule files, got %d", len(files))
	}
}

func TestUnmarshalSingleDocument(t *testing.T) {
	rules, err := unmarshalRules([]byte(singleRuleYaml))
	if err != nil {
		t.Fatal(err)
	}
	if len(rules) != 1 || rules[0].ID != "os-release" {
		t.Fatalf("unexpected parse result: %+v", rules)
	}
}
