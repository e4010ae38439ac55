package objfile

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"fmt"

	"github.com/pkg/errors"
)

type SymbolKind uint8

const (
	KindOther SymbolKind = iota
	KindFunction
)

func (k SymbolKind) String() string {
	if k == KindFunction {
		return "function"
	}
	return "other"
}

// STT_GNU_IFUNC shares its value with STT_LOOS.
const sttGNUIFunc = elf.STT_LOOS

// Symbol is one raw entry of a symbol table. Name and section resolution can
// fail independently for each entry.
type Symbol struct {
	Index     int
	Kind      SymbolKind
	Bind      elf.SymBind
	Undefined bool
	Address   uint64
	Size      uint64

	name       string
	nameErr    error
	section    string
	sectionErr error
}

func (s *Symbol) Name() (string, error) {
	if s.nameErr != nil {
		return "", s.nameErr
	}
	return s.name, nil
}

// Section returns the name of the section containing the symbol, or an error
// wrapping ErrNoSection for undefined, absolute and common symbols.
func (s *Symbol) Section() (string, error) {
	if s.sectionErr != nil {
		return "", s.sectionErr
	}
	return s.section, nil
}

type rawSym struct {
	name  uint32
	info  uint8
	other uint8
	shndx uint16
	value uint64
	size  uint64
}

func decodeSym(b []byte, class elf.Class, bo binary.ByteOrder) rawSym {
	if class == elf.ELFCLASS64 {
		return rawSym{
			name:  bo.Uint32(b[0:4]),
			info:  b[4],
			other: b[5],
			shndx: bo.Uint16(b[6:8]),
			value: bo.Uint64(b[8:16]),
			size:  bo.Uint64(b[16:24]),
		}
	}
	return rawSym{
		name:  bo.Uint32(b[0:4]),
		value: uint64(bo.Uint32(b[4:8])),
		size:  uint64(bo.Uint32(b[8:12])),
		info:  b[12],
		other: b[13],
		shndx: bo.Uint16(b[14:16]),
	}
}

func findSymtab(ef *elf.File) int {
	for i, s := range ef.Sections {
		if s.Type == elf.SHT_SYMTAB {
			return i
		}
	}
	return -1
}

type symtabReader struct {
	ef     *elf.File
	strtab []byte
	shndx  []byte
}

func readSymtab(ef *elf.File) ([]Symbol, error) {
	idx := findSymtab(ef)
	if idx < 0 {
		return nil, nil
	}
	symtab := ef.Sections[idx]

	entSize := elf.Sym32Size
	if ef.Class == elf.ELFCLASS64 {
		entSize = elf.Sym64Size
	}
	if symtab.Entsize != 0 && int(symtab.Entsize) != entSize {
		return nil, fmt.Errorf("unexpected symbol entry size %d", symtab.Entsize)
	}
	data, err := symtab.Data()
	if err != nil {
		return nil, errors.Wrap(err, "read symbol table")
	}
	if len(data)%entSize != 0 {
		return nil, fmt.Errorf("symbol table size %d is not a multiple of %d", len(data), entSize)
	}
	if int(symtab.Link) >= len(ef.Sections) {
		return nil, fmt.Errorf("symbol table links to missing string table %d", symtab.Link)
	}
	strtab, err := ef.Sections[symtab.Link].Data()
	if err != nil {
		return nil, errors.Wrap(err, "read symbol string table")
	}

	r := &symtabReader{ef: ef, strtab: strtab}
	for _, s := range ef.Sections {
		if s.Type == elf.SHT_SYMTAB_SHNDX && int(s.Link) == idx {
			if r.shndx, err = s.Data(); err != nil {
				return nil, errors.Wrap(err, "read extended section indices")
			}
			break
		}
	}

	n := len(data) / entSize
	if n == 0 {
		return nil, nil
	}
	// entry 0 is the reserved null symbol
	syms := make([]Symbol, 0, n-1)
	for i := 1; i < n; i++ {
		syms = append(syms, r.symbol(i, decodeSym(data[i*entSize:], ef.Class, ef.ByteOrder)))
	}
	return syms, nil
}

func (r *symtabReader) symbol(i int, raw rawSym) Symbol {
	typ := elf.ST_TYPE(raw.info)
	s := Symbol{
		Index:     i,
		Kind:      KindOther,
		Bind:      elf.ST_BIND(raw.info),
		Undefined: elf.SectionIndex(raw.shndx) == elf.SHN_UNDEF,
		Address:   raw.value,
		Size:      raw.size,
	}
	if typ == elf.STT_FUNC || typ == sttGNUIFunc {
		s.Kind = KindFunction
	}

	if name, err := stringAt(r.strtab, raw.name); err != nil {
		s.nameErr = &SymbolLookupError{Index: i, Err: err}
	} else {
		s.name = name
	}

	sec, err := r.section(i, raw.shndx)
	if err != nil {
		s.sectionErr = &SymbolLookupError{Index: i, Err: err}
	} else {
		s.section = sec.Name
		if r.ef.Type == elf.ET_REL {
			s.Address += sec.Addr
		}
	}

	// Thumb functions carry the mode in bit 0.
	if r.ef.Machine == elf.EM_ARM && s.Kind == KindFunction {
		s.Address &^= 1
	}
	return s
}

func (r *symtabReader) section(i int, shndx uint16) (*elf.Section, error) {
	idx := uint32(shndx)
	switch si := elf.SectionIndex(shndx); {
	case si == elf.SHN_UNDEF:
		return nil, ErrNoSection
	case si == elf.SHN_XINDEX:
		off := i * 4
		if off+4 > len(r.shndx) {
			return nil, errors.New("extended section index missing")
		}
		idx = r.ef.ByteOrder.Uint32(r.shndx[off:])
	case si >= elf.SHN_LORESERVE:
		return nil, errors.Wrapf(ErrNoSection, "reserved section index %#x", shndx)
	}
	if int(idx) >= len(r.ef.Sections) {
		return nil, fmt.Errorf("section index %d out of range", idx)
	}
	return r.ef.Sections[idx], nil
}

func stringAt(tab []byte, off uint32) (string, error) {
	if int(off) >= len(tab) {
		return "", fmt.Errorf("name offset %d outside string table of size %d", off, len(tab))
	}
	end := bytes.IndexByte(tab[off:], 0)
	if end < 0 {
		return "", fmt.Errorf("unterminated name at offset %d", off)
	}
	if end == 0 {
		return "", errors.New("empty name")
	}
	return string(tab[off : int(off)+end]), nil
}
