// Package objtest synthesises small ELF objects for tests.
package objtest

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/ulikunitz/xz"
)

// Pseudo section names for reserved section indices.
const (
	SectionAbs    = "*ABS*"
	SectionCommon = "*COMMON*"
)

type Section struct {
	Name  string
	Type  elf.SectionType
	Flags elf.SectionFlag
	Addr  uint64
	Data  []byte
}

type Symbol struct {
	Name string
	Type elf.SymType
	Bind elf.SymBind
	// Section names the containing section; empty means undefined.
	Section string
	Value   uint64
	Size    uint64
	// BadName points the name past the end of the string table.
	BadName bool
	// Extended routes the section index through .symtab_shndx.
	Extended bool
}

type Object struct {
	Class    elf.Class
	Data     elf.Data
	Machine  elf.Machine
	Type     elf.Type
	Sections []Section
	Symbols  []Symbol
	// NoSymtab leaves out .symtab and .strtab.
	NoSymtab bool
	// MiniDebugInfo is xz-compressed into .gnu_debugdata.
	MiniDebugInfo *Object
}

// New returns a 64-bit little-endian shared object with .text and .data.
func New(machine elf.Machine) *Object {
	return &Object{
		Class:   elf.ELFCLASS64,
		Data:    elf.ELFDATA2LSB,
		Machine: machine,
		Type:    elf.ET_DYN,
		Sections: []Section{
			{Name: ".text", Type: elf.SHT_PROGBITS, Flags: elf.SHF_ALLOC | elf.SHF_EXECINSTR, Addr: 0x1000, Data: make([]byte, 0x100)},
			{Name: ".data", Type: elf.SHT_PROGBITS, Flags: elf.SHF_ALLOC | elf.SHF_WRITE, Addr: 0x2000, Data: make([]byte, 0x10)},
		},
	}
}

func Func(name string, value uint64) Symbol {
	return Symbol{Name: name, Type: elf.STT_FUNC, Bind: elf.STB_GLOBAL, Section: ".text", Value: value, Size: 0x10}
}

func (o *Object) WithSymbols(syms ...Symbol) *Object {
	o.Symbols = append(o.Symbols, syms...)
	return o
}

func (o *Object) WriteFile(dir, name string) (string, error) {
	b, err := o.Bytes()
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, name)
	return path, os.WriteFile(path, b, 0o644)
}

type strtab struct {
	buf []byte
}

func newStrtab() *strtab { return &strtab{buf: []byte{0}} }

func (s *strtab) add(name string) uint32 {
	off := uint32(len(s.buf))
	s.buf = append(s.buf, name...)
	s.buf = append(s.buf, 0)
	return off
}

type outSection struct {
	Section
	link    uint32
	info    uint32
	entsize uint64
	nameOff uint32
	offset  uint64
}

func (o *Object) bo() binary.ByteOrder {
	if o.Data == elf.ELFDATA2MSB {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

func (o *Object) is64() bool { return o.Class == elf.ELFCLASS64 }

func (o *Object) Bytes() ([]byte, error) {
	bo := o.bo()
	sections := []*outSection{{}}
	index := map[string]int{}
	for _, s := range o.Sections {
		index[s.Name] = len(sections)
		sections = append(sections, &outSection{Section: s})
	}

	if o.MiniDebugInfo != nil {
		inner, err := o.MiniDebugInfo.Bytes()
		if err != nil {
			return nil, errors.Wrap(err, "build MiniDebugInfo")
		}
		var compressed bytes.Buffer
		w, err := xz.NewWriter(&compressed)
		if err != nil {
			return nil, err
		}
		if _, err := w.Write(inner); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		sections = append(sections, &outSection{Section: Section{Name: ".gnu_debugdata", Type: elf.SHT_PROGBITS, Data: compressed.Bytes()}})
	}

	if !o.NoSymtab {
		symtabIdx := len(sections)
		strtabIdx := symtabIdx + 1
		extended := false
		for _, s := range o.Symbols {
			extended = extended || s.Extended
		}
		if extended {
			strtabIdx++
		}
		symtabData, shndxData, strData, err := o.encodeSymbols(index)
		if err != nil {
			return nil, err
		}
		entsize := uint64(elf.Sym32Size)
		if o.is64() {
			entsize = elf.Sym64Size
		}
		sections = append(sections, &outSection{
			Section: Section{Name: ".symtab", Type: elf.SHT_SYMTAB, Data: symtabData},
			link:    uint32(strtabIdx),
			info:    1,
			entsize: entsize,
		})
		if extended {
			sections = append(sections, &outSection{
				Section: Section{Name: ".symtab_shndx", Type: elf.SHT_SYMTAB_SHNDX, Data: shndxData},
				link:    uint32(symtabIdx),
				entsize: 4,
			})
		}
		sections = append(sections, &outSection{Section: Section{Name: ".strtab", Type: elf.SHT_STRTAB, Data: strData}})
	}

	shstrtab := newStrtab()
	for _, s := range sections[1:] {
		s.nameOff = shstrtab.add(s.Name)
	}
	shstrndx := len(sections)
	shstrtabSec := &outSection{Section: Section{Name: ".shstrtab", Type: elf.SHT_STRTAB}}
	shstrtabSec.nameOff = shstrtab.add(".shstrtab")
	shstrtabSec.Data = shstrtab.buf
	sections = append(sections, shstrtabSec)

	ehsize, shentsize, phentsize := 52, 40, 32
	if o.is64() {
		ehsize, shentsize, phentsize = 64, 64, 56
	}
	var body bytes.Buffer
	body.Write(make([]byte, ehsize))
	for _, s := range sections[1:] {
		pad(&body, 8)
		s.offset = uint64(body.Len())
		body.Write(s.Data)
	}
	pad(&body, 8)
	shoff := uint64(body.Len())

	for _, s := range sections {
		if err := o.writeSectionHeader(&body, s); err != nil {
			return nil, err
		}
	}

	out := body.Bytes()
	var hdr bytes.Buffer
	var ident [elf.EI_NIDENT]byte
	copy(ident[:], elf.ELFMAG)
	ident[elf.EI_CLASS] = byte(o.Class)
	ident[elf.EI_DATA] = byte(o.Data)
	ident[elf.EI_VERSION] = byte(elf.EV_CURRENT)
	var err error
	if o.is64() {
		err = binary.Write(&hdr, bo, elf.Header64{
			Ident:     ident,
			Type:      uint16(o.Type),
			Machine:   uint16(o.Machine),
			Version:   uint32(elf.EV_CURRENT),
			Shoff:     shoff,
			Ehsize:    uint16(ehsize),
			Phentsize: uint16(phentsize),
			Shentsize: uint16(shentsize),
			Shnum:     uint16(len(sections)),
			Shstrndx:  uint16(shstrndx),
		})
	} else {
		err = binary.Write(&hdr, bo, elf.Header32{
			Ident:     ident,
			Type:      uint16(o.Type),
			Machine:   uint16(o.Machine),
			Version:   uint32(elf.EV_CURRENT),
			Shoff:     uint32(shoff),
			Ehsize:    uint16(ehsize),
			Phentsize: uint16(phentsize),
			Shentsize: uint16(shentsize),
			Shnum:     uint16(len(sections)),
			Shstrndx:  uint16(shstrndx),
		})
	}
	if err != nil {
		return nil, err
	}
	copy(out, hdr.Bytes())
	return out, nil
}

func (o *Object) writeSectionHeader(w *bytes.Buffer, s *outSection) error {
	if o.is64() {
		return binary.Write(w, o.bo(), elf.Section64{
			Name:      s.nameOff,
			Type:      uint32(s.Type),
			Flags:     uint64(s.Flags),
			Addr:      s.Addr,
			Off:       s.offset,
			Size:      uint64(len(s.Data)),
			Link:      s.link,
			Info:      s.info,
			Addralign: 1,
			Entsize:   s.entsize,
		})
	}
	return binary.Write(w, o.bo(), elf.Section32{
		Name:      s.nameOff,
		Type:      uint32(s.Type),
		Flags:     uint32(s.Flags),
		Addr:      uint32(s.Addr),
		Off:       uint32(s.offset),
		Size:      uint32(len(s.Data)),
		Link:      s.link,
		Info:      s.info,
		Addralign: 1,
		Entsize:   uint32(s.entsize),
	})
}

func (o *Object) encodeSymbols(index map[string]int) (symtab, shndx, strs []byte, err error) {
	bo := o.bo()
	names := newStrtab()
	var tab, xtab bytes.Buffer
	// null symbol
	if o.is64() {
		err = binary.Write(&tab, bo, elf.Sym64{})
	} else {
		err = binary.Write(&tab, bo, elf.Sym32{})
	}
	if err != nil {
		return nil, nil, nil, err
	}
	_ = binary.Write(&xtab, bo, uint32(0))

	nameOffs := make([]uint32, len(o.Symbols))
	for i, s := range o.Symbols {
		nameOffs[i] = names.add(s.Name)
	}
	for i, s := range o.Symbols {
		nameOff := nameOffs[i]
		if s.BadName {
			nameOff = uint32(len(names.buf) + 0x100)
		}
		var secIdx uint32
		switch s.Section {
		case "":
			secIdx = uint32(elf.SHN_UNDEF)
		case SectionAbs:
			secIdx = uint32(elf.SHN_ABS)
		case SectionCommon:
			secIdx = uint32(elf.SHN_COMMON)
		default:
			idx, ok := index[s.Section]
			if !ok {
				return nil, nil, nil, errors.Errorf("symbol %s refers to unknown section %s", s.Name, s.Section)
			}
			secIdx = uint32(idx)
		}
		shndxField := uint16(secIdx)
		if s.Extended {
			shndxField = uint16(elf.SHN_XINDEX)
		}
		_ = binary.Write(&xtab, bo, secIdx)

		info := elf.ST_INFO(s.Bind, s.Type)
		if o.is64() {
			err = binary.Write(&tab, bo, elf.Sym64{Name: nameOff, Info: info, Shndx: shndxField, Value: s.Value, Size: s.Size})
		} else {
			err = binary.Write(&tab, bo, elf.Sym32{Name: nameOff, Value: uint32(s.Value), Size: uint32(s.Size), Info: info, Shndx: shndxField})
		}
		if err != nil {
			return nil, nil, nil, err
		}
	}
	return tab.Bytes(), xtab.Bytes(), names.buf, nil
}

func pad(b *bytes.Buffer, align int) {
	for b.Len()%align != 0 {
		b.WriteByte(0)
	}
}
