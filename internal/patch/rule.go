// Package patch applies declarative text rewrites to bundled artifacts.
//
// A rule either changes the artifact or, when ChangeRequired is set, fails
// the build: a required patch that silently stops matching means the
// artifact ships exactly what the rule was written to remove.
package patch

import (
	"bytes"
	"fmt"
	"regexp"
	"slices"

	"github.com/conciliate-app/wrapkit/internal/target"
)

// Rule is one rewrite. Pattern is matched against the whole artifact and
// every match is replaced. With Literal set the replacement is inserted
// verbatim; otherwise $1-style group references are expanded.
type Rule struct {
	Name           string
	Pattern        *regexp.Regexp
	Replacement    string
	Literal        bool
	ChangeRequired bool
	// Targets limits the rule to some build targets. Empty means all.
	Targets []target.Target
}

// AppliesTo reports whether the rule runs for t.
func (r Rule) AppliesTo(t target.Target) bool {
	return len(r.Targets) == 0 || slices.Contains(r.Targets, t)
}

// Result records what a rule did.
type Result struct {
	Rule    string
	Matches int
}

// NoChangeError is returned when a rule with ChangeRequired leaves the
// content unchanged.
type NoChangeError struct {
	Rule string
	Path string
}

func (e *NoChangeError) Error() string {
	path := e.Path
	if path == "" {
		path = "artifact"
	}
	return fmt.Sprintf("patch %q: no changes made to %s", e.Rule, path)
}

// Apply runs rules over content in order. It returns the patched content
// and one Result per rule. A *NoChangeError stops at the first required
// rule that made no change.
func Apply(content []byte, rules []Rule) ([]byte, []Result, error) {
	results := make([]Result, 0, len(rules))
	for _, r := range rules {
		matches := len(r.Pattern.FindAllIndex(content, -1))
		var next []byte
		if r.Literal {
			next = r.Pattern.ReplaceAllLiteral(content, []byte(r.Replacement))
		} else {
			next = r.Pattern.ReplaceAll(content, []byte(r.Replacement))
		}
		if r.ChangeRequired && bytes.Equal(next, content) {
			return nil, results, &NoChangeError{Rule: r.Name}
		}
		content = next
		results = append(results, Result{Rule: r.Name, Matches: matches})
	}
	return content, results, nil
}

// New compiles a rule from its textual form.
func New(name, pattern, replacement string, literal, changeRequired bool) (Rule, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return Rule{}, fmt.Errorf("patch %q: %w", name, err)
	}
	return Rule{
		Name:           name,
		Pattern:        re,
		Replacement:    replacement,
		Literal:        literal,
		ChangeRequired: changeRequired,
	}, nil
}
