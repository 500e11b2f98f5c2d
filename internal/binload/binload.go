// Package binload decodes an ELF binary and its DWARF debug information
// into a call-graph construction context: compilation units, procedures
// with attached disassembly, inline-frame resolution and toolchain version.
package binload

import (
	"debug/dwarf"
	"fmt"
	"path/filepath"
	"sort"

	"panicscan/internal/callgraph"
	"panicscan/internal/disasm"
	"panicscan/internal/elfx"
	"panicscan/internal/rustsym"
)

// procName is the identity of a subprogram entry, indexed by DWARF offset
// so inlined-subroutine origins can be resolved after the walk.
type procName struct {
	name    string
	linkage string
}

// inlineRec is one DW_TAG_inlined_subroutine occurrence.
type inlineRec struct {
	ranges   [][2]uint64
	origin   dwarf.Offset
	file     string
	line     int
	depth    int
	unitDir  string
	unitName string
}

// Load opens the binary at path and builds the construction context.
// The returned elfx.File backs the context's code reader and must stay open
// until the graph is built.
func Load(path string) (*callgraph.Context, *elfx.File, error) {
	f, err := elfx.Open(path)
	if err != nil {
		return nil, nil, err
	}

	d, err := f.ELF.DWARF()
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("%w: no usable DWARF debug info: %v", elfx.ErrNotSupported, err)
	}

	text, textBase, err := f.Text()
	if err != nil {
		f.Close()
		return nil, nil, err
	}

	ctx := &callgraph.Context{
		Classifier: disasm.X86Classifier{},
		Code:       f,
		SymbolName: f.SymbolAt,
	}

	names := make(map[dwarf.Offset]procName)
	var inlines []inlineRec
	var depth int
	var unit *callgraph.CompilationUnit
	var unitFiles []*dwarf.LineFile

	flush := func() {
		if unit != nil {
			ctx.Units = append(ctx.Units, *unit)
			unit = nil
		}
	}

	r := d.Reader()
	for {
		entry, err := r.Next()
		if err != nil {
			f.Close()
			return nil, nil, fmt.Errorf("%w: DWARF walk: %v", elfx.ErrParse, err)
		}
		if entry == nil {
			break
		}
		if entry.Tag == 0 {
			if depth > 0 {
				depth--
			}
			continue
		}

		switch entry.Tag {
		case dwarf.TagCompileUnit:
			flush()
			name, _ := entry.Val(dwarf.AttrName).(string)
			dir, _ := entry.Val(dwarf.AttrCompDir).(string)
			producer, _ := entry.Val(dwarf.AttrProducer).(string)
			unit = &callgraph.CompilationUnit{Name: name, Dir: dir, Producer: producer}
			unitFiles = nil
			if lr, err := d.LineReader(entry); err == nil && lr != nil {
				unitFiles = lr.Files()
			}
			if ctx.ToolchainVersion == "" {
				if v, ok := rustsym.RustVersion(producer); ok {
					ctx.ToolchainVersion = v
				}
			}

		case dwarf.TagSubprogram:
			name, _ := entry.Val(dwarf.AttrName).(string)
			linkage := linkageName(entry)
			names[entry.Offset] = procName{name: name, linkage: linkage}
			if unit == nil {
				break
			}
			lo, ok := entry.Val(dwarf.AttrLowpc).(uint64)
			if !ok {
				break // declaration or fully inlined, no code of its own
			}
			hi, ok := highPC(entry, lo)
			if !ok || hi <= lo {
				break
			}
			proc := buildProcedure(entry, unit, unitFiles, name, linkage, lo, hi, text, textBase)
			unit.Procedures = append(unit.Procedures, proc)

		case dwarf.TagInlinedSubroutine:
			origin, ok := entry.Val(dwarf.AttrAbstractOrigin).(dwarf.Offset)
			if !ok {
				break
			}
			ranges, err := d.Ranges(entry)
			if err != nil || len(ranges) == 0 {
				break
			}
			rec := inlineRec{ranges: ranges, origin: origin, depth: depth}
			if unit != nil {
				rec.unitDir = unit.Dir
				rec.unitName = unit.Name
			}
			if fi, ok := entry.Val(dwarf.AttrCallFile).(int64); ok {
				rec.file = fileName(unitFiles, fi)
			}
			if li, ok := entry.Val(dwarf.AttrCallLine).(int64); ok {
				rec.line = int(li)
			}
			inlines = append(inlines, rec)
		}

		if entry.Children {
			depth++
		}
	}
	flush()

	ctx.InlineFrames = frameResolver(inlines, names, ctx.ToolchainVersion)
	fillStdlibVersions(ctx)
	return ctx, f, nil
}

// buildProcedure assembles one Procedure record, attaching disassembly
// sliced out of .text.
func buildProcedure(entry *dwarf.Entry, unit *callgraph.CompilationUnit, files []*dwarf.LineFile,
	name, linkage string, lo, hi uint64, text []byte, textBase uint64) *callgraph.Procedure {

	if linkage == "" {
		linkage = name
	}
	demangled := rustsym.StripHash(rustsym.Demangle(linkage))

	proc := &callgraph.Procedure{
		StartAddress:         lo,
		Name:                 name,
		LinkageName:          linkage,
		LinkageNameDemangled: demangled,
	}

	var file string
	if fi, ok := entry.Val(dwarf.AttrDeclFile).(int64); ok {
		file = resolvePath(fileName(files, fi), unit.Dir)
	}
	if file != "" {
		loc := &callgraph.Location{File: file}
		if li, ok := entry.Val(dwarf.AttrDeclLine).(int64); ok {
			loc.Line = int(li)
		}
		proc.Location = loc
	}

	proc.Crate = crateOf(demangled, file, unit)

	if lo >= textBase && hi-textBase <= uint64(len(text)) {
		proc.Disassembly = disasm.Decode(text[lo-textBase:hi-textBase], lo)
	}
	return proc
}

// crateOf determines crate provenance from the demangled symbol, falling
// back to the compilation-unit name, with a version when the source path
// points into the cargo registry.
func crateOf(demangled, file string, unit *callgraph.CompilationUnit) callgraph.Crate {
	name := rustsym.CrateName(demangled)
	if name == "" {
		name = rustsym.CrateName(unit.Name)
	}
	c := callgraph.Crate{Name: name}
	if v, ok := rustsym.CrateVersion(file); ok {
		c.Version = v
	} else if v, ok := rustsym.CrateVersion(unit.Dir); ok {
		c.Version = v
	}
	return c
}

// fillStdlibVersions stamps the toolchain version onto stdlib crates, which
// carry no registry path of their own.
func fillStdlibVersions(ctx *callgraph.Context) {
	if ctx.ToolchainVersion == "" {
		return
	}
	for _, u := range ctx.Units {
		for _, p := range u.Procedures {
			if p.Crate.Version == "" && rustsym.IsStdlibCrate(p.Crate.Name) {
				p.Crate.Version = ctx.ToolchainVersion
			}
		}
	}
}

// frameResolver returns a lookup producing the inlining chain covering an
// instruction address, outermost call first.
func frameResolver(inlines []inlineRec, names map[dwarf.Offset]procName, rustVersion string) func(uint64) []callgraph.Frame {
	if len(inlines) == 0 {
		return nil
	}
	return func(site uint64) []callgraph.Frame {
		var hits []inlineRec
		for _, rec := range inlines {
			for _, rg := range rec.ranges {
				if site >= rg[0] && site < rg[1] {
					hits = append(hits, rec)
					break
				}
			}
		}
		if len(hits) == 0 {
			return nil
		}
		sort.SliceStable(hits, func(i, j int) bool { return hits[i].depth < hits[j].depth })

		frames := make([]callgraph.Frame, 0, len(hits))
		for _, rec := range hits {
			pn := names[rec.origin]
			fn := pn.linkage
			if fn == "" {
				fn = pn.name
			}
			demangled := rustsym.StripHash(rustsym.Demangle(fn))
			crate := callgraph.Crate{Name: rustsym.CrateName(demangled)}
			if v, ok := rustsym.CrateVersion(rec.file); ok {
				crate.Version = v
			} else if rustsym.IsStdlibCrate(crate.Name) {
				crate.Version = rustVersion
			}
			frames = append(frames, callgraph.Frame{
				Function: demangled,
				Location: callgraph.Location{File: resolvePath(rec.file, rec.unitDir), Line: rec.line},
				Crate:    crate,
			})
		}
		return frames
	}
}

// linkageName reads DW_AT_linkage_name, falling back to the pre-DWARF4
// vendor attribute older rustc releases emit.
func linkageName(entry *dwarf.Entry) string {
	if s, ok := entry.Val(dwarf.AttrLinkageName).(string); ok {
		return s
	}
	const attrMIPSLinkageName = dwarf.Attr(0x2007)
	if s, ok := entry.Val(attrMIPSLinkageName).(string); ok {
		return s
	}
	return ""
}

// highPC handles both encodings of DW_AT_high_pc: absolute address or
// offset from low pc.
func highPC(entry *dwarf.Entry, lo uint64) (uint64, bool) {
	switch v := entry.Val(dwarf.AttrHighpc).(type) {
	case uint64:
		return v, true
	case int64:
		return lo + uint64(v), true
	}
	return 0, false
}

// fileName indexes the compilation unit's file table; index 0 is the
// no-file placeholder.
func fileName(files []*dwarf.LineFile, idx int64) string {
	if idx <= 0 || int(idx) >= len(files) || files[idx] == nil {
		return ""
	}
	return files[idx].Name
}

// resolvePath joins relative source paths with the compilation directory.
func resolvePath(file, dir string) string {
	if file == "" || filepath.IsAbs(file) || dir == "" {
		return file
	}
	return filepath.Join(dir, file)
}
