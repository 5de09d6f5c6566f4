// Package fail provides a single fail-fast assertion primitive used across
// the front-end timing packages. Every component funnels its precondition
// checks through Assert rather than scattering ad hoc panics, so a
// violated invariant always produces the same kind of diagnostic.
package fail

import "fmt"

// Assert panics with a formatted message if cond is false.
//
// All operating errors in this codebase's timing components are programmer
// faults (a full Active List dispatched into, a checkpoint taken against a
// saturated GBM, a commit of an incomplete instruction, and so on); there is
// no recovery path for a violated precondition, so Assert fails fast instead
// of returning an error.
func Assert(cond bool, format string, args ...any) {
	if !cond {
		panic(fmt.Sprintf(format, args...))
	}
}
