// Package elfx provides ELF loading helpers for x86-64 Rust binaries.
package elfx

import (
	"debug/elf"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
)

var (
	ErrParse        = errors.New("elfx: file could not be parsed")
	ErrRead         = errors.New("elfx: file could not be read")
	ErrNotSupported = errors.New("elfx: not supported")
	ErrNoSymbol     = errors.New("elfx: symbol not found")
	ErrNoSegment    = errors.New("elfx: no PT_LOAD segment covers address")
)

// File wraps a debug/elf.File with convenience methods for call-graph analysis.
type File struct {
	ELF  *elf.File
	Path string

	raw  io.ReaderAt
	size int64
	syms []elf.Symbol // function symbols sorted by value
}

// Open opens an ELF file and validates it is a 64-bit x86-64 executable
// or shared object.
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("elfx: open: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("elfx: stat: %w", err)
	}

	ef, err := elf.NewFile(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}

	if ef.Class != elf.ELFCLASS64 {
		ef.Close()
		return nil, fmt.Errorf("%w: 32-bit ELF", ErrNotSupported)
	}
	if ef.Machine != elf.EM_X86_64 {
		ef.Close()
		return nil, fmt.Errorf("%w: machine %v (x86-64 only)", ErrNotSupported, ef.Machine)
	}
	if ef.Type != elf.ET_EXEC && ef.Type != elf.ET_DYN {
		ef.Close()
		return nil, fmt.Errorf("%w: ELF type %v", ErrNotSupported, ef.Type)
	}

	xf := &File{ELF: ef, Path: path, raw: f, size: info.Size()}
	xf.loadFuncSymbols()
	return xf, nil
}

// Close releases resources.
func (f *File) Close() error {
	return f.ELF.Close()
}

// FileSize returns the size of the underlying file.
func (f *File) FileSize() int64 { return f.size }

// loadFuncSymbols caches STT_FUNC symbols sorted by address. A missing or
// empty symbol table is not an error; lookups just fail.
func (f *File) loadFuncSymbols() {
	syms, err := f.ELF.Symbols()
	if err != nil {
		syms, err = f.ELF.DynamicSymbols()
		if err != nil {
			return
		}
	}
	for _, s := range syms {
		if elf.ST_TYPE(s.Info) == elf.STT_FUNC && s.Value != 0 {
			f.syms = append(f.syms, s)
		}
	}
	sort.Slice(f.syms, func(i, j int) bool { return f.syms[i].Value < f.syms[j].Value })
}

// SymbolAt returns the name of the function symbol defined exactly at va.
func (f *File) SymbolAt(va uint64) (string, bool) {
	i := sort.Search(len(f.syms), func(i int) bool { return f.syms[i].Value >= va })
	if i < len(f.syms) && f.syms[i].Value == va {
		return f.syms[i].Name, true
	}
	return "", false
}

// Text returns the contents and base virtual address of the .text section.
func (f *File) Text() ([]byte, uint64, error) {
	sec := f.ELF.Section(".text")
	if sec == nil {
		return nil, 0, fmt.Errorf("%w: no .text section", ErrParse)
	}
	data, err := sec.Data()
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, 0, fmt.Errorf("%w: .text: %v", ErrRead, err)
	}
	return data, sec.Addr, nil
}

// VAToFileOffset converts a virtual address to a file offset using PT_LOAD segments.
func (f *File) VAToFileOffset(va uint64) (uint64, error) {
	for _, p := range f.ELF.Progs {
		if p.Type != elf.PT_LOAD {
			continue
		}
		if va >= p.Vaddr && va < p.Vaddr+p.Filesz {
			offset := va - p.Vaddr + p.Off
			if offset >= uint64(f.size) {
				return 0, fmt.Errorf("%w: VA 0x%x maps to offset 0x%x beyond file size 0x%x", ErrRead, va, offset, f.size)
			}
			return offset, nil
		}
	}
	return 0, fmt.Errorf("%w: VA 0x%x", ErrNoSegment, va)
}

// ReadBytesAtVA reads n bytes starting at the given virtual address.
func (f *File) ReadBytesAtVA(va uint64, n int) ([]byte, error) {
	off, err := f.VAToFileOffset(va)
	if err != nil {
		return nil, err
	}
	avail := f.size - int64(off)
	if avail <= 0 {
		return nil, fmt.Errorf("%w: offset 0x%x at or past end of file", ErrRead, off)
	}
	if int64(n) > avail {
		n = int(avail)
	}
	buf := make([]byte, n)
	if _, err := f.raw.ReadAt(buf, int64(off)); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: read at 0x%x: %v", ErrRead, off, err)
	}
	return buf, nil
}

// ReadPointer reads a 64-bit little-endian pointer at the given virtual
// address. Returns false if the address is not mapped in the file image.
func (f *File) ReadPointer(va uint64) (uint64, bool) {
	buf, err := f.ReadBytesAtVA(va, 8)
	if err != nil || len(buf) < 8 {
		return 0, false
	}
	return binary.LittleEndian.Uint64(buf), true
}
