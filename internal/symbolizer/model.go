package symbolizer

// FunctionSymbol is one defined, executable function found in an object file.
// Address is only meaningful within the file it came from.
type FunctionSymbol struct {
	Address       uint64
	Name          string
	DemangledName string
}

// Demangled reports whether demangling changed the raw name.
func (s FunctionSymbol) Demangled() bool {
	return s.DemangledName != s.Name
}

// SymbolSet is the extraction result for a single input file, in symbol
// table order.
type SymbolSet struct {
	Path    string
	Arch    string
	Symbols []FunctionSymbol
}

func (s *SymbolSet) Len() int { return len(s.Symbols) }
