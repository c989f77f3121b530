// Package captures loads raw system enumeration captures from disk and
// derives system facts from their banner lines. Inputs are expected to be
// already decoded to UTF-8 by the collection tooling.
package captures

import (
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"regexp"

	"github.com/araddon/dateparse"
	audit "github.com/kirkpatrickprice/analysis-toolkit-sub003"
)

// Suffix of capture files picked up by the directory walk
const captureSuffix = ".txt"

var (
	producerBanner = regexp.MustCompile(`KP(NIX|WIN|MAC)VERSION:\s*([0-9][0-9a-z.-]*)`)
	systemNameLine = regexp.MustCompile(`(?i)^(?:[\w-]+::)?\s*(?:system name|hostname|computer name)\s*[:=]\s*(\S+)`)
	captureTime    = regexp.MustCompile(`(?i)(?:current date(?:/time)?|capture[d]? (?:at|on))\s*[:=]?\s*(.+?)\s*$`)
)

var osFamilies = map[string]string{
	"NIX": "Linux",
	"WIN": "Windows",
	"MAC": "Darwin",
}

// Source enumerates capture files found under one or more root directories
// and serves them as (facts, text) pairs. Implements audit.CaptureSource.
type Source struct {
	roots []string
	files map[string]string
}

// NewSource walks the given directories for capture files
// System identifiers are file stems; colliding stems fall back to the
// relative path so every capture stays addressable
func NewSource(dirs ...string) (*Source, error) {
	if len(dirs) == 0 {
		return nil, fmt.Errorf("missing capture directory list")
	}
	s := &Source{
		roots: dirs,
		files: make(map[string]string),
	}
	for _, dir := range dirs {
		if err := filepath.Walk(dir, func(
			path string,
			info os.FileInfo,
			err error,
		) error {
			if err != nil {
				return err
			}
			if info.IsDir() || !strings.HasSuffix(path, captureSuffix) {
				return nil
			}
			id := strings.TrimSuffix(filepath.Base(path), captureSuffix)
			if _, taken := s.files[id]; taken {
				rel, err := filepath.Rel(dir, path)
				if err != nil {
					rel = path
				}
				id = strings.TrimSuffix(filepath.ToSlash(rel), captureSuffix)
			}
			s.files[id] = path
			return nil
		}); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Systems implements audit.Enumerator
func (s *Source) Systems() ([]string, error) {
	out := make([]string, 0, len(s.files))
	for id := range s.files {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

// Capture implements audit.CaptureProvider
func (s *Source) Capture(id string) (audit.SystemFacts, string, error) {
	path, ok := s.files[id]
	if !ok {
		return nil, "", audit.ErrCaptureUnavailable{
			System: id,
			Err:    fmt.Errorf("unknown system"),
		}
	}
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, "", audit.ErrCaptureUnavailable{System: id, Err: err}
	}
	text := string(data)
	return ParseFacts(id, text), text, nil
}

// ParseFacts derives a system fact set from capture banner lines
// Collector scripts stamp their name and version near the top of the output,
// which also identifies the OS family the capture came from
func ParseFacts(id, text string) audit.SystemFacts {
	facts := audit.SystemFacts{
		audit.FactSystemName: id,
	}
	var count int
	for _, line := range strings.Split(text, "\n") {
		// banners live near the top, no point scanning whole captures
		if count++; count > 100 {
			break
		}
		if _, ok := facts[audit.FactOSFamily]; !ok {
			if m := producerBanner.FindStringSubmatch(line); m != nil {
				facts[audit.FactOSFamily] = osFamilies[m[1]]
				facts[audit.FactProducer] = "kp" + strings.ToLower(m[1])
				facts[audit.FactProducerVersion] = m[2]
				continue
			}
		}
		if m := systemNameLine.FindStringSubmatch(line); m != nil {
			facts[audit.FactSystemName] = m[1]
			continue
		}
		if _, ok := facts[audit.FactCaptureTime]; !ok {
			if m := captureTime.FindStringSubmatch(line); m != nil {
				if ts, err := dateparse.ParseAny(m[1]); err == nil {
					facts[audit.FactCaptureTime] = ts.Format(time.RFC3339)
				}
			}
		}
	}
	return facts
}
