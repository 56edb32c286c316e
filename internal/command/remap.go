package command

import (
	"fmt"
	"regexp"
	"strings"
)

// RemapRule rewrites part of a test file path before it is handed to the
// runner, e.g. to translate a local path into a container path.
type RemapRule struct {
	From      string `yaml:"from" json:"from"`
	To        string `yaml:"to" json:"to"`
	Regex     bool   `yaml:"regex" json:"regex"`
	Exclusive bool   `yaml:"exclusive" json:"exclusive"`
}

// groupRef matches $1-style group references in a replacement.
var groupRef = regexp.MustCompile(`\$(\d+)`)

// RemapPath applies rules in order. Each rule replaces its first match only.
// A matching exclusive rule stops evaluation; a matching non-exclusive rule
// lets the following rules run against the rewritten path.
func RemapPath(path string, rules []RemapRule) (string, error) {
	for i, rule := range rules {
		rewritten, matched, err := rule.apply(path)
		if err != nil {
			return "", fmt.Errorf("rewrite rule %d: %w", i, err)
		}
		if !matched {
			continue
		}

		path = rewritten
		if rule.Exclusive {
			break
		}
	}
	return path, nil
}

// Validate checks that a regex rule compiles.
func (r RemapRule) Validate() error {
	if r.From == "" {
		return fmt.Errorf("rewrite rule has empty 'from'")
	}
	if r.Regex {
		if _, err := regexp.Compile(r.From); err != nil {
			return fmt.Errorf("invalid rewrite pattern %q: %w", r.From, err)
		}
	}
	return nil
}

func (r RemapRule) apply(path string) (string, bool, error) {
	if !r.Regex {
		if r.From == "" || !strings.Contains(path, r.From) {
			return path, false, nil
		}
		return strings.Replace(path, r.From, r.To, 1), true, nil
	}

	re, err := regexp.Compile(r.From)
	if err != nil {
		return "", false, err
	}

	loc := re.FindStringSubmatchIndex(path)
	if loc == nil {
		return path, false, nil
	}

	template := groupRef.ReplaceAllString(r.To, `$${${1}}`)
	replacement := re.ExpandString(nil, template, path, loc)
	return path[:loc[0]] + string(replacement) + path[loc[1]:], true, nil
}
