// Package output renders panic-analysis results: console text, JSON stream
// and DOT call graphs.
package output

import (
	"fmt"
	"io"

	"panicscan/internal/analysis"
	"panicscan/internal/callgraph"
)

// Options selects the console rendering mode.
type Options struct {
	Verbose bool
	JSON    bool
	Silent  bool
}

// Print writes the analysis result to w in the selected mode.
func Print(w io.Writer, res *analysis.Result, opts Options) error {
	switch {
	case opts.Silent:
		return nil
	case opts.JSON:
		return printJSON(w, res)
	case opts.Verbose:
		return printVerbose(w, res)
	}
	return printSimple(w, res)
}

// printSimple emits one line per trace: the last user function, the panic
// primitive it reaches, and where.
func printSimple(w io.Writer, res *analysis.Result) error {
	for _, t := range res.Traces {
		caller, origin := callerAndOrigin(t)
		if origin == nil {
			continue
		}
		var line string
		if caller == nil {
			line = fmt.Sprintf("%s (%s) is a panic entry point",
				origin.Proc.DisplayName(), origin.Proc.Crate)
		} else {
			line = fmt.Sprintf("%s calls %s (%s)", caller.Proc.DisplayName(),
				origin.Proc.DisplayName(), origin.Proc.Crate)
		}
		if loc := traceLocation(caller, origin); loc != nil {
			line += fmt.Sprintf(" at %s:%d", loc.File, loc.Line)
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return summarize(w, res)
}

// printVerbose emits full traces including inline frames.
func printVerbose(w io.Writer, res *analysis.Result) error {
	for i, t := range res.Traces {
		fmt.Fprintf(w, "--#%03d --Pattern: %s\n", i+1, t.Pattern)
		if t.Dynamic {
			fmt.Fprintln(w, "  note: trace contains dynamic invocations and may be a false positive")
		}
		fmt.Fprintln(w)
		for j, s := range t.Steps {
			fmt.Fprintf(w, " %d: %s (%s)\n", j, s.Proc.DisplayName(), s.Proc.Crate)
			if s.Proc.Location != nil {
				fmt.Fprintf(w, "         at %s:%d\n", s.Proc.Location.File, s.Proc.Location.Line)
			}
			if s.Via != nil {
				for _, f := range s.Via.Frames {
					fmt.Fprintf(w, "         <inline %s at %s:%d >\n",
						f.Function, f.Location.File, f.Location.Line)
				}
			}
		}
		fmt.Fprintln(w)
	}
	return summarize(w, res)
}

func summarize(w io.Writer, res *analysis.Result) error {
	if len(res.Traces) == 0 {
		_, err := fmt.Fprintln(w, "no panic traces found")
		return err
	}
	_, err := fmt.Fprintf(w, "%d panic trace(s) found (%d whitelisted)\n",
		len(res.Traces), res.Whitelisted)
	return err
}

// callerAndOrigin returns the last user step before the panic machinery and
// the first panic step. caller is nil when the trace begins inside the
// machinery.
func callerAndOrigin(t analysis.PanicTrace) (caller, origin *analysis.TraceStep) {
	for i := range t.Steps {
		if t.Steps[i].Proc.Attributes.IsPanic {
			origin = &t.Steps[i]
			if i > 0 {
				caller = &t.Steps[i-1]
			}
			return caller, origin
		}
	}
	return nil, nil
}

// traceLocation picks the most precise source position available for the
// call into the panic machinery.
func traceLocation(caller, origin *analysis.TraceStep) *callgraph.Location {
	if origin.Via != nil && len(origin.Via.Frames) > 0 {
		loc := origin.Via.Frames[0].Location
		if loc.File != "" {
			return &loc
		}
	}
	if caller != nil {
		return caller.Proc.Location
	}
	return origin.Proc.Location
}
