// Package rustsym decodes Rust linkage names and crate provenance.
package rustsym

import (
	"regexp"
	"strings"

	"github.com/ianlancetaylor/demangle"
)

var hashSuffix = regexp.MustCompile(`::h[0-9a-f]{16}$`)

// Demangle returns the demangled form of a Rust linkage name.
// Legacy (_ZN…E) names are decoded in-package; v0 (_R…) names go through
// the system demangler. Unrecognized names are returned unchanged.
func Demangle(linkage string) string {
	if strings.HasPrefix(linkage, "_R") || strings.HasPrefix(linkage, "__R") {
		return demangle.Filter(linkage)
	}
	if d, ok := demangleLegacy(linkage); ok {
		return d
	}
	return linkage
}

// StripHash removes the trailing ::h<16 hex> disambiguator the legacy
// mangling appends to every path.
func StripHash(demangled string) string {
	return hashSuffix.ReplaceAllString(demangled, "")
}

// demangleLegacy decodes the pre-2018 rustc mangling: an Itanium-style
// _ZN<len><seg>…E nesting with $-escapes inside segments.
func demangleLegacy(s string) (string, bool) {
	switch {
	case strings.HasPrefix(s, "__ZN"):
		s = s[4:]
	case strings.HasPrefix(s, "_ZN"):
		s = s[3:]
	case strings.HasPrefix(s, "ZN"):
		s = s[2:]
	default:
		return "", false
	}
	// LLVM may append .llvm.<id> after the mangled name.
	if i := strings.Index(s, ".llvm."); i >= 0 {
		s = s[:i]
	}

	var segs []string
	for len(s) > 0 && s[0] != 'E' {
		n := 0
		i := 0
		for i < len(s) && s[i] >= '0' && s[i] <= '9' {
			n = n*10 + int(s[i]-'0')
			i++
		}
		if i == 0 || n == 0 || i+n > len(s) {
			return "", false
		}
		segs = append(segs, unescapeSegment(s[i:i+n]))
		s = s[i+n:]
	}
	if s != "E" || len(segs) == 0 {
		return "", false
	}
	return strings.Join(segs, "::"), true
}

// unescapeSegment rewrites the $…$ escapes and '.' encodings rustc uses for
// characters that are not valid in Itanium identifiers.
func unescapeSegment(seg string) string {
	// rustc prefixes an underscore when a segment starts with punctuation.
	if strings.HasPrefix(seg, "_$") {
		seg = seg[1:]
	}
	var b strings.Builder
	for i := 0; i < len(seg); {
		c := seg[i]
		if c == '$' {
			end := strings.IndexByte(seg[i+1:], '$')
			if end >= 0 {
				esc := seg[i+1 : i+1+end]
				if r, ok := unescapeDollar(esc); ok {
					b.WriteString(r)
					i += end + 2
					continue
				}
			}
		}
		if c == '.' {
			if i+1 < len(seg) && seg[i+1] == '.' {
				b.WriteString("::")
				i += 2
			} else {
				b.WriteByte('-')
				i++
			}
			continue
		}
		b.WriteByte(c)
		i++
	}
	return b.String()
}

func unescapeDollar(esc string) (string, bool) {
	switch esc {
	case "SP":
		return "@", true
	case "BP":
		return "*", true
	case "RF":
		return "&", true
	case "LT":
		return "<", true
	case "GT":
		return ">", true
	case "LP":
		return "(", true
	case "RP":
		return ")", true
	case "C":
		return ",", true
	}
	if strings.HasPrefix(esc, "u") {
		if r, ok := parseHexRune(esc[1:]); ok {
			return string(r), true
		}
	}
	return "", false
}

func parseHexRune(s string) (rune, bool) {
	if s == "" {
		return 0, false
	}
	var v rune
	for _, c := range s {
		switch {
		case c >= '0' && c <= '9':
			v = v*16 + (c - '0')
		case c >= 'a' && c <= 'f':
			v = v*16 + (c - 'a' + 10)
		default:
			return 0, false
		}
	}
	return v, true
}
