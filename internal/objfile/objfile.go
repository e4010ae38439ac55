// Package objfile reads symbol tables and target metadata out of ELF object
// files. Every Open maps the file afresh; nothing is cached between calls.
package objfile

import (
	"bytes"
	"debug/elf"
	"fmt"
	"log/slog"
	"os"

	"github.com/pkg/errors"
)

type File struct {
	path  string
	elf   *elf.File
	unmap func() error
}

func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, openError(path, err)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return nil, openError(path, err)
	}
	if st.IsDir() {
		return nil, openError(path, fmt.Errorf("%s is a directory", path))
	}
	if st.Size() == 0 {
		return nil, formatError(path, ErrEmptyFile)
	}

	data, unmap, err := mapFile(f, int(st.Size()))
	if err != nil {
		return nil, openError(path, err)
	}
	if !bytes.HasPrefix(data, []byte(elf.ELFMAG)) {
		_ = unmap()
		return nil, formatError(path, ErrNotELF)
	}
	ef, err := elf.NewFile(bytes.NewReader(data))
	if err != nil {
		_ = unmap()
		return nil, formatError(path, errors.Wrap(err, "parse ELF"))
	}
	slog.Debug("Opened object file", "path", path, "size", st.Size(), "machine", ef.Machine.String())
	return &File{path: path, elf: ef, unmap: unmap}, nil
}

func (f *File) Path() string { return f.path }

func (f *File) Close() error {
	_ = f.elf.Close()
	return f.unmap()
}

// Architecture renders the container's machine type as a canonical
// architecture name, e.g. "x86_64" or "aarch64".
func (f *File) Architecture() string {
	return archName(f.elf.Machine, f.elf.Class, f.elf.Data)
}

// Symbols enumerates the static symbol table in table order. A file without
// a symbol table yields no symbols; when only MiniDebugInfo is present the
// embedded table is used, unless it cannot be decoded.
func (f *File) Symbols() ([]Symbol, error) {
	tab := f.elf
	if findSymtab(tab) < 0 {
		inner, err := f.miniDebugInfo()
		if err != nil {
			slog.Warn("Ignoring unreadable MiniDebugInfo", "path", f.path, "error", err)
		} else if inner != nil {
			slog.Debug("Using MiniDebugInfo symbol table", "path", f.path)
			tab = inner
		}
	}
	syms, err := readSymtab(tab)
	if err != nil {
		return nil, formatError(f.path, err)
	}
	return syms, nil
}

// DetectArchitecture opens path, reads its architecture and closes it again.
func DetectArchitecture(path string) (string, error) {
	f, err := Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	return f.Architecture(), nil
}
