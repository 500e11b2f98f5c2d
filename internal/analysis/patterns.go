package analysis

import "strings"

// PanicPattern is the recognized cause category of a panic trace.
type PanicPattern int

const (
	// Unrecognized covers traces no other category explains.
	Unrecognized PanicPattern = iota
	// DirectCall is an explicit panic invocation in user code.
	DirectCall
	// Unwrap is Option/Result unwrap or expect.
	Unwrap
	// Indexing is an out-of-bounds slice or string access.
	Indexing
	// Arithmetic is overflow or division by zero.
	Arithmetic
)

func (p PanicPattern) String() string {
	switch p {
	case DirectCall:
		return "DirectCall"
	case Unwrap:
		return "Unwrap"
	case Indexing:
		return "Indexing"
	case Arithmetic:
		return "Arithmetic"
	}
	return "Unrecognized"
}

var (
	unwrapMarkers = []string{
		"unwrap_failed", "expect_failed", "::unwrap", "::expect",
	}
	indexingMarkers = []string{
		"panic_bounds_check", "slice_index", "slice_error_fail",
		"str::slice", "::index",
	}
	arithmeticMarkers = []string{
		"overflow", "core::ops::arith", "::div", "::rem", "div_euclid",
	}
	directPanicEntries = map[string]bool{
		"core::panicking::panic":         true,
		"core::panicking::panic_fmt":     true,
		"core::panicking::panic_str":     true,
		"std::panicking::begin_panic":    true,
		"core::panicking::panic_display": true,
	}
)

// classify inspects the identities and inline frames around the panic
// origin to attach a cause category.
func classify(t PanicTrace) PanicPattern {
	origin := t.Origin()
	if origin == nil {
		return Unrecognized
	}

	var names []string
	if origin.Via != nil {
		for _, f := range origin.Via.Frames {
			names = append(names, f.Function)
		}
	}
	inMachinery := false
	for _, s := range t.Steps {
		if s.Proc.Attributes.IsPanic {
			inMachinery = true
		}
		if inMachinery {
			names = append(names, s.Proc.DisplayName())
		}
	}

	switch {
	case matchAny(names, unwrapMarkers):
		return Unwrap
	case matchAny(names, indexingMarkers):
		return Indexing
	case matchAny(names, arithmeticMarkers):
		return Arithmetic
	}

	// A panic primitive invoked straight from user code with no inlining is
	// an explicit panic.
	if origin.Via != nil && len(origin.Via.Frames) == 0 &&
		directPanicEntries[origin.Proc.DisplayName()] {
		return DirectCall
	}
	return Unrecognized
}

func matchAny(names, markers []string) bool {
	for _, n := range names {
		for _, m := range markers {
			if strings.Contains(n, m) {
				return true
			}
		}
	}
	return false
}
