package pipeline

import (
	"fmt"
	"strings"

	"github.com/conciliate-app/wrapkit/internal/scan"
	"github.com/conciliate-app/wrapkit/internal/target"
)

// Step names a stage of a wrapper build.
type Step string

const (
	StepWasm    Step = "wasm"
	StepCompile Step = "compile"
	StepBundle  Step = "bundle"
	StepPatch   Step = "patch"
	StepVerify  Step = "verify"
	StepWrite   Step = "write"
)

// StepError reports the stage a wrapper build stopped at.
type StepError struct {
	Wrapper string
	Step    Step
	Target  target.Target
	Err     error
}

func (e *StepError) Error() string {
	if e.Target != "" {
		return fmt.Sprintf("%s: %s (%s): %v", e.Wrapper, e.Step, e.Target, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Wrapper, e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// ViolationError lists runtime imports found in an artifact that its target
// does not allow.
type ViolationError struct {
	Path       string
	Target     target.Target
	Violations []scan.Import
}

func (e *ViolationError) Error() string {
	parts := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		parts[i] = fmt.Sprintf("%s %q (line %d)", v.Kind, v.Path, v.Line)
	}
	return fmt.Sprintf("%s is not self-contained for %s: %s", e.Path, e.Target, strings.Join(parts, ", "))
}
