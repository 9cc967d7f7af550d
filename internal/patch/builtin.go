package patch

import (
	"fmt"
	"regexp"
	"slices"
)

// StripSessionSigLog removes the threshold-cryptography SDK's console
// diagnostic that prints session signature bodies.
const StripSessionSigLog = "strip-session-sig-log"

var builtins = map[string]Rule{
	StripSessionSigLog: {
		Name:           StripSessionSigLog,
		Pattern:        regexp.MustCompile("console\\.log\\(\\s*[\"'`]sessionSigs?\\b[^\\n;]*\\)"),
		Replacement:    "/* wrapkit: removed session diagnostic */ void 0",
		Literal:        true,
		ChangeRequired: true,
	},
	"web-storage-digest-buffer": {
		Name:        "web-storage-digest-buffer",
		Pattern:     regexp.MustCompile(regexp.QuoteMeta("subtle.digest('SHA-512', message.buffer)")),
		Replacement: "subtle.digest('SHA-512', message)",
		Literal:     true,
	},
	"web-storage-legacy-endpoint": {
		Name:        "web-storage-legacy-endpoint",
		Pattern:     regexp.MustCompile(`https://up\.storacha\.network`),
		Replacement: "https://up.web3.storage",
		Literal:     true,
	},
	"web-storage-legacy-did": {
		Name:        "web-storage-legacy-did",
		Pattern:     regexp.MustCompile(`did:web:up\.storacha\.network`),
		Replacement: "did:web:web3.storage",
		Literal:     true,
	},
}

// Builtin returns a named built-in rule.
func Builtin(name string) (Rule, error) {
	r, ok := builtins[name]
	if !ok {
		return Rule{}, fmt.Errorf("unknown patch rule %q", name)
	}
	return r, nil
}

// BuiltinNames lists the built-in rules in sorted order.
func BuiltinNames() []string {
	names := make([]string, 0, len(builtins))
	for n := range builtins {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// DefaultRules is the rule set `wrapkit patch` applies when no rule is named.
func DefaultRules() []Rule {
	return []Rule{builtins[StripSessionSigLog]}
}
