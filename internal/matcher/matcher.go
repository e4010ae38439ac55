// Package matcher pairs function symbols of two architectures by name.
package matcher

import (
	"github.com/VladMinzatu/xarch-symbols/internal/symbolizer"
)

type MatchKind int

const (
	ExactName MatchKind = iota
	DemangledName
)

func (k MatchKind) String() string {
	switch k {
	case ExactName:
		return "exact-name"
	case DemangledName:
		return "demangled-name"
	default:
		return "unknown"
	}
}

// Label is the short annotation used in console reports.
func (k MatchKind) Label() string {
	if k == DemangledName {
		return "demangled match"
	}
	return "exact match"
}

type MatchPair struct {
	A    symbolizer.FunctionSymbol
	B    symbolizer.FunctionSymbol
	Kind MatchKind
}

type Result struct {
	ArchA, ArchB string
	Pairs        []MatchPair
	// UnmatchedA and UnmatchedB are len(side) - len(Pairs). When a name has
	// several counterparts this undercounts symbols with no match at all, and
	// can go negative.
	UnmatchedA int
	UnmatchedB int
}

func (r *Result) Found() bool { return len(r.Pairs) > 0 }

// Match compares every symbol of a against every symbol of b. A pair is
// recorded for each (a, b) with equal raw names, or failing that equal
// non-empty demangled names. No bijection is enforced, so one symbol can take
// part in several pairs. Inputs are not modified.
func Match(a, b *symbolizer.SymbolSet) *Result {
	res := &Result{ArchA: a.Arch, ArchB: b.Arch}
	for _, sa := range a.Symbols {
		for _, sb := range b.Symbols {
			if sa.Name == sb.Name {
				res.Pairs = append(res.Pairs, MatchPair{A: sa, B: sb, Kind: ExactName})
				continue
			}
			if sa.DemangledName != "" && sb.DemangledName != "" && sa.DemangledName == sb.DemangledName {
				res.Pairs = append(res.Pairs, MatchPair{A: sa, B: sb, Kind: DemangledName})
			}
		}
	}
	res.UnmatchedA = len(a.Symbols) - len(res.Pairs)
	res.UnmatchedB = len(b.Symbols) - len(res.Pairs)
	return res
}
