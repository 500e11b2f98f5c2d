package binload

import (
	"debug/dwarf"
	"testing"

	"github.com/google/go-cmp/cmp"

	"panicscan/internal/callgraph"
)

func TestFrameResolver(t *testing.T) {
	names := map[dwarf.Offset]procName{
		1: {name: "helper", linkage: "_ZN3app6helper17h1111111111111111E"},
		2: {name: "deserialize", linkage: "_ZN5serde2de11deserialize17h2222222222222222E"},
		3: {name: "expect_failed", linkage: "_ZN4core6option13expect_failed17h0000000000000000E"},
	}
	inlines := []inlineRec{
		// Innermost first in the slice; the resolver must order by depth.
		{
			ranges: [][2]uint64{{0x100, 0x120}},
			origin: 3,
			file:   "src/libcore/option.rs",
			line:   300,
			depth:  3,
		},
		{
			ranges: [][2]uint64{{0x0F0, 0x130}},
			origin: 2,
			file:   "/home/u/.cargo/registry/src/github.com-1ecc6299db9ec823/serde-1.0.80/src/de.rs",
			line:   88,
			depth:  2,
		},
		{
			ranges:  [][2]uint64{{0x0E0, 0x140}, {0x200, 0x210}},
			origin:  1,
			file:    "src/main.rs",
			line:    12,
			depth:   1,
			unitDir: "/src/app",
		},
	}

	resolve := frameResolver(inlines, names, "1.26.2")
	if resolve == nil {
		t.Fatal("resolver is nil with inline records present")
	}

	got := resolve(0x110)
	want := []callgraph.Frame{
		{
			Function: "app::helper",
			Location: callgraph.Location{File: "/src/app/src/main.rs", Line: 12},
			Crate:    callgraph.Crate{Name: "app"},
		},
		{
			Function: "serde::de::deserialize",
			Location: callgraph.Location{
				File: "/home/u/.cargo/registry/src/github.com-1ecc6299db9ec823/serde-1.0.80/src/de.rs",
				Line: 88,
			},
			Crate: callgraph.Crate{Name: "serde", Version: "1.0.80"},
		},
		{
			Function: "core::option::expect_failed",
			Location: callgraph.Location{File: "src/libcore/option.rs", Line: 300},
			Crate:    callgraph.Crate{Name: "core", Version: "1.26.2"},
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("frames mismatch (-want +got):\n%s", diff)
	}

	// Only the outermost record's second range covers 0x205.
	got = resolve(0x205)
	if len(got) != 1 || got[0].Function != "app::helper" {
		t.Errorf("frames at 0x205 = %+v, want app::helper only", got)
	}

	// Range ends are exclusive.
	if got := resolve(0x140); got != nil {
		t.Errorf("frames at range end = %+v, want nil", got)
	}
	if got := resolve(0x500); got != nil {
		t.Errorf("frames at uncovered address = %+v, want nil", got)
	}
}

func TestFrameResolverNoInlines(t *testing.T) {
	if frameResolver(nil, nil, "") != nil {
		t.Fatal("resolver for an inline-free binary is not nil")
	}
}

func TestFrameResolverNameFallback(t *testing.T) {
	// An origin with no linkage name falls back to the plain name.
	names := map[dwarf.Offset]procName{7: {name: "closure"}}
	inlines := []inlineRec{
		{ranges: [][2]uint64{{0x10, 0x20}}, origin: 7, depth: 1},
	}
	got := frameResolver(inlines, names, "")(0x10)
	if len(got) != 1 || got[0].Function != "closure" {
		t.Fatalf("frames = %+v, want one closure frame", got)
	}
}
