package analysis

import (
	"strings"

	"panicscan/internal/callgraph"
	"panicscan/internal/rustsym"
)

// panicSymbols are the fail-fast primitives of the Rust panic machinery,
// by demangled hash-stripped name. The base set is stable across releases;
// version-dependent entries are added in panicSymbolsFor.
var panicSymbols = []string{
	"core::panicking::panic",
	"core::panicking::panic_fmt",
	"core::panicking::panic_bounds_check",
	"core::result::unwrap_failed",
	"core::option::expect_failed",
	"core::slice::slice_index_len_fail",
	"core::slice::slice_index_order_fail",
	"core::str::slice_error_fail",
	"std::panicking::begin_panic",
	"std::panicking::begin_panic_fmt",
	"std::panicking::rust_panic_with_hook",
	"rust_begin_unwind",
}

// panicSymbolsFor extends the base table with idioms introduced in later
// toolchains.
func panicSymbolsFor(rustVersion string) map[string]bool {
	set := make(map[string]bool, len(panicSymbols)+8)
	for _, s := range panicSymbols {
		set[s] = true
	}
	if minorAtLeast(rustVersion, 52) {
		set["core::panicking::panic_str"] = true
		set["core::panicking::assert_failed"] = true
	}
	if minorAtLeast(rustVersion, 65) {
		set["core::panicking::panic_display"] = true
		set["core::panicking::panic_nounwind"] = true
	}
	return set
}

// minorAtLeast parses "1.<minor>.<patch>"; unknown versions get the full
// modern table so newer binaries are not under-matched.
func minorAtLeast(version string, minor int) bool {
	if version == "" {
		return true
	}
	rest, ok := strings.CutPrefix(version, "1.")
	if !ok {
		return true
	}
	n := 0
	for i := 0; i < len(rest) && rest[i] >= '0' && rest[i] <= '9'; i++ {
		n = n*10 + int(rest[i]-'0')
	}
	return n >= minor
}

// markPanics sets IsPanic on every node whose identity matches a panic
// primitive. Placeholder nodes carry raw symbol names and are demangled
// before matching.
func markPanics(g *callgraph.Graph, rustVersion string) {
	set := panicSymbolsFor(rustVersion)
	for id := callgraph.NodeID(0); int(id) < g.NumNodes(); id++ {
		p := g.Proc(id)
		name := p.LinkageNameDemangled
		if name == "" {
			name = rustsym.StripHash(rustsym.Demangle(p.Name))
		}
		if set[name] || set[p.Name] {
			p.Attributes.IsPanic = true
		}
	}
}
