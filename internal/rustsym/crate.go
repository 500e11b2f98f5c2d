package rustsym

import (
	"regexp"
	"strings"
)

var (
	registryVersion = regexp.MustCompile(`registry[/\\]src[/\\][^/\\]+[/\\][A-Za-z0-9_.-]+-([0-9]+\.[0-9]+\.[0-9]+)`)
	rustcVersion    = regexp.MustCompile(`rustc version ([0-9]+\.[0-9]+\.[0-9]+)`)
)

// stdlib crates ship with the toolchain; their version is the rustc version.
var stdlibCrates = map[string]bool{
	"core":         true,
	"std":          true,
	"alloc":        true,
	"std_unicode":  true,
	"panic_unwind": true,
	"panic_abort":  true,
	"unwind":       true,
}

// CrateName extracts the defining crate from a demangled symbol path.
// Trait impl paths like "<core::option::Option<T>>::unwrap" resolve to the
// crate of the implementing type.
func CrateName(demangled string) string {
	s := demangled
	for len(s) > 0 && (s[0] == '<' || s[0] == '&' || s[0] == '*') {
		s = s[1:]
	}
	if strings.HasPrefix(s, "dyn ") {
		s = s[len("dyn "):]
	}
	end := len(s)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !(c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '_') {
			end = i
			break
		}
	}
	return s[:end]
}

// CrateVersion extracts a crate version from a cargo registry source path,
// e.g. ~/.cargo/registry/src/github.com-…/serde-1.0.80/src/lib.rs.
func CrateVersion(path string) (string, bool) {
	m := registryVersion.FindStringSubmatch(path)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// RustVersion extracts the toolchain version from a DWARF producer string,
// e.g. "clang LLVM (rustc version 1.26.2 (594fb253c 2018-06-01))".
func RustVersion(producer string) (string, bool) {
	m := rustcVersion.FindStringSubmatch(producer)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// IsStdlibCrate reports whether the crate is part of the Rust distribution.
func IsStdlibCrate(name string) bool {
	return stdlibCrates[name]
}
