package matcher

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/VladMinzatu/xarch-symbols/internal/symbolizer"
)

func sym(addr uint64, name, demangled string) symbolizer.FunctionSymbol {
	return symbolizer.FunctionSymbol{Address: addr, Name: name, DemangledName: demangled}
}

func plain(addr uint64, name string) symbolizer.FunctionSymbol {
	return sym(addr, name, name)
}

func set(arch string, syms ...symbolizer.FunctionSymbol) *symbolizer.SymbolSet {
	return &symbolizer.SymbolSet{Path: arch + ".o", Arch: arch, Symbols: syms}
}

func TestMatch_ExactAndDemangled(t *testing.T) {
	a := set("x86_64", sym(0x1000, "_Z3fooi", "foo(int)"), plain(0x1010, "bar"))
	b := set("aarch64", sym(0x2000, "_Z3fooj", "foo(int)"), plain(0x2010, "bar"))

	res := Match(a, b)
	require.Equal(t, "x86_64", res.ArchA)
	require.Equal(t, "aarch64", res.ArchB)
	require.Len(t, res.Pairs, 2)

	require.Equal(t, DemangledName, res.Pairs[0].Kind)
	require.Equal(t, "_Z3fooi", res.Pairs[0].A.Name)
	require.Equal(t, "_Z3fooj", res.Pairs[0].B.Name)

	require.Equal(t, ExactName, res.Pairs[1].Kind)
	require.Equal(t, "bar", res.Pairs[1].A.Name)
	require.Equal(t, uint64(0x2010), res.Pairs[1].B.Address)

	require.Equal(t, 0, res.UnmatchedA)
	require.Equal(t, 0, res.UnmatchedB)
	require.True(t, res.Found())
}

func TestMatch_Disjoint(t *testing.T) {
	a := set("x86_64", plain(1, "a1"), plain(2, "a2"), plain(3, "a3"))
	b := set("riscv64", plain(1, "b1"), plain(2, "b2"))

	res := Match(a, b)
	require.Empty(t, res.Pairs)
	require.False(t, res.Found())
	require.Equal(t, 3, res.UnmatchedA)
	require.Equal(t, 2, res.UnmatchedB)
}

func TestMatch_EmptyDemangledNamesNeverMatch(t *testing.T) {
	a := set("x86_64", sym(1, "one", ""))
	b := set("aarch64", sym(1, "two", ""))
	require.Empty(t, Match(a, b).Pairs)
}

func TestMatch_ExactWinsOverDemangled(t *testing.T) {
	a := set("x86_64", sym(1, "_Z1fv", "f()"))
	b := set("aarch64", sym(2, "_Z1fv", "f()"))
	res := Match(a, b)
	require.Len(t, res.Pairs, 1)
	require.Equal(t, ExactName, res.Pairs[0].Kind)
}

func TestMatch_MultiplicityAndResidualFormula(t *testing.T) {
	// "dup" on B matches the single "dup" on A twice
	a := set("x86_64", plain(1, "dup"), plain(2, "solo"))
	b := set("aarch64", plain(1, "dup"), plain(2, "dup"), plain(3, "other"))

	res := Match(a, b)
	require.Len(t, res.Pairs, 2)
	for _, p := range res.Pairs {
		require.Equal(t, "dup", p.A.Name)
	}
	require.Equal(t, len(a.Symbols)-len(res.Pairs), res.UnmatchedA)
	require.Equal(t, len(b.Symbols)-len(res.Pairs), res.UnmatchedB)
	require.Equal(t, 0, res.UnmatchedA, "solo has no partner but the formula reports 0")
	require.Equal(t, 1, res.UnmatchedB)

	// three-way duplication drives the A residual below zero
	b.Symbols = append(b.Symbols, plain(4, "dup"))
	res = Match(a, b)
	require.Len(t, res.Pairs, 3)
	require.Equal(t, -1, res.UnmatchedA)
	require.Equal(t, len(a.Symbols), res.UnmatchedA+len(res.Pairs))
	require.Equal(t, len(b.Symbols), res.UnmatchedB+len(res.Pairs))
}

func TestMatch_SymmetricOnExactNames(t *testing.T) {
	a := set("x86_64", plain(1, "init"), plain(2, "run"), plain(3, "run"), plain(4, "only_a"))
	b := set("aarch64", plain(5, "run"), plain(6, "init"), plain(7, "only_b"))

	pairs := func(res *Result, swap bool) []string {
		var out []string
		for _, p := range res.Pairs {
			x, y := p.A.Name, p.B.Name
			if swap {
				x, y = y, x
			}
			out = append(out, x+"|"+y)
		}
		sort.Strings(out)
		return out
	}
	require.Equal(t, pairs(Match(a, b), false), pairs(Match(b, a), true))
}

func TestMatch_DoesNotMutateInputs(t *testing.T) {
	a := set("x86_64", plain(1, "x"), plain(2, "y"))
	b := set("aarch64", plain(3, "y"), plain(4, "x"))
	wantA := append([]symbolizer.FunctionSymbol(nil), a.Symbols...)
	wantB := append([]symbolizer.FunctionSymbol(nil), b.Symbols...)

	first := Match(a, b)
	second := Match(a, b)
	require.Equal(t, wantA, a.Symbols)
	require.Equal(t, wantB, b.Symbols)
	require.Equal(t, first, second)
}

func TestMatchKind_Strings(t *testing.T) {
	require.Equal(t, "exact-name", ExactName.String())
	require.Equal(t, "demangled-name", DemangledName.String())
	require.Equal(t, "exact match", ExactName.Label())
	require.Equal(t, "demangled match", DemangledName.Label())
}
