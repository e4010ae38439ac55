package symbolizer

import (
	"log/slog"
	"strings"

	"github.com/VladMinzatu/xarch-symbols/internal/objfile"
)

const (
	textSection    = ".text"
	reservedPrefix = "__"
)

// Extractor reads function symbol tables out of object files.
type Extractor struct {
	demangler *Demangler
}

func NewExtractor(d *Demangler) *Extractor {
	if d == nil {
		d = NewDemangler(DemangleDefault)
	}
	return &Extractor{demangler: d}
}

func (e *Extractor) DetectArchitecture(path string) (string, error) {
	return objfile.DetectArchitecture(path)
}

// ReadSymbols opens path and returns its defined, user-visible functions in
// symbol table order. File-level failures come back as *objfile.ReadError.
func (e *Extractor) ReadSymbols(path string) ([]FunctionSymbol, error) {
	f, err := objfile.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	raw, err := f.Symbols()
	if err != nil {
		return nil, err
	}
	syms, skipped := e.Filter(raw)
	slog.Debug("Extracted function symbols", "path", path, "raw", len(raw), "functions", len(syms), "unnamed", skipped)
	return syms, nil
}

// Filter keeps defined functions in the executable code section whose names
// resolve and are not reserved. It also returns how many function entries
// were dropped because their name could not be resolved.
func (e *Extractor) Filter(raw []objfile.Symbol) ([]FunctionSymbol, int) {
	var (
		out     = make([]FunctionSymbol, 0, len(raw))
		unnamed int
	)
	for i := range raw {
		sym := &raw[i]
		if sym.Kind != objfile.KindFunction || sym.Undefined {
			continue
		}
		name, err := sym.Name()
		if err != nil {
			unnamed++
			continue
		}
		if strings.HasPrefix(name, reservedPrefix) {
			continue
		}
		section, err := sym.Section()
		if err != nil || !strings.EqualFold(section, textSection) {
			continue
		}
		out = append(out, FunctionSymbol{
			Address:       sym.Address,
			Name:          name,
			DemangledName: e.demangler.Demangle(name),
		})
	}
	return out, unnamed
}
