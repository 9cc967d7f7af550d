package bundle

import (
	"fmt"
	"strings"

	"github.com/conciliate-app/wrapkit/internal/target"
)

// CompileError reports a failed compile step. Output holds the compiler's
// own diagnostics exactly as it printed them.
type CompileError struct {
	Wrapper string
	Command string
	Output  string
	Err     error
}

func (e *CompileError) Error() string {
	if e.Command == "" {
		return fmt.Sprintf("compile %s: %v", e.Wrapper, e.Err)
	}
	return fmt.Sprintf("compile %s: %q failed: %v", e.Wrapper, e.Command, e.Err)
}

func (e *CompileError) Unwrap() error { return e.Err }

// BuildError reports bundler errors. Messages are esbuild's formatted
// diagnostics, unmodified.
type BuildError struct {
	Wrapper  string
	Target   target.Target
	Messages []string
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("bundle %s (%s) failed with %d error(s):\n%s",
		e.Wrapper, e.Target, len(e.Messages), strings.Join(e.Messages, ""))
}

// ExternalError reports runtime imports an artifact is not allowed to keep
// for its target.
type ExternalError struct {
	Wrapper    string
	Target     target.Target
	Disallowed []string
}

func (e *ExternalError) Error() string {
	return fmt.Sprintf("bundle %s (%s) keeps imports outside its %s allowlist: %s",
		e.Wrapper, e.Target, e.Target, strings.Join(e.Disallowed, ", "))
}
