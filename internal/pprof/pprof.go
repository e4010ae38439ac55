package pprof

import (
	"fmt"
	"io"
	"os"

	"github.com/google/pprof/profile"
	"github.com/pkg/errors"

	"github.com/VladMinzatu/xarch-symbols/internal/matcher"
	"github.com/VladMinzatu/xarch-symbols/internal/symbolizer"
)

const matchKindLabel = "match_kind"

// Aliases share an address, so a location is per (mapping, address, name).
type symbolKey struct {
	mapping uint64
	addr    uint64
	name    string
}

// BuildPprofProfile lays out every symbol set as a mapping with one function
// and location per symbol. Each MatchPair becomes a sample whose stack is the
// (A, B) location pair, labelled with the match kind. res may be nil.
func BuildPprofProfile(sets []*symbolizer.SymbolSet, res *matcher.Result) (*profile.Profile, error) {
	p := &profile.Profile{
		SampleType: []*profile.ValueType{{Type: "matches", Unit: "count"}},
	}

	funcs := map[string]*profile.Function{}
	locMap := map[symbolKey]*profile.Location{}
	nextFuncID := uint64(1)
	nextLocID := uint64(1)

	addFunction := func(m *profile.Mapping, sym symbolizer.FunctionSymbol) *profile.Function {
		key := fmt.Sprintf("%d/%s", m.ID, sym.Name)
		if f, ok := funcs[key]; ok {
			return f
		}
		fn := &profile.Function{
			ID:         nextFuncID,
			Name:       sym.DemangledName,
			SystemName: sym.Name,
			Filename:   m.File,
		}
		nextFuncID++
		funcs[key] = fn
		p.Function = append(p.Function, fn)
		return fn
	}

	addLocationFor := func(m *profile.Mapping, sym symbolizer.FunctionSymbol) *profile.Location {
		key := symbolKey{mapping: m.ID, addr: sym.Address, name: sym.Name}
		if loc, ok := locMap[key]; ok {
			return loc
		}
		loc := &profile.Location{
			ID:      nextLocID,
			Mapping: m,
			Address: sym.Address,
			Line:    []profile.Line{{Function: addFunction(m, sym), Line: 0}},
		}
		nextLocID++
		locMap[key] = loc
		p.Location = append(p.Location, loc)
		return loc
	}

	for i, set := range sets {
		m := &profile.Mapping{
			ID:           uint64(i + 1),
			File:         set.Path,
			HasFunctions: true,
		}
		for j, sym := range set.Symbols {
			if j == 0 || sym.Address < m.Start {
				m.Start = sym.Address
			}
			if sym.Address >= m.Limit {
				m.Limit = sym.Address + 1
			}
		}
		p.Mapping = append(p.Mapping, m)
		p.Comments = append(p.Comments, fmt.Sprintf("%s: %s, %d functions", set.Path, set.Arch, len(set.Symbols)))
		for _, sym := range set.Symbols {
			addLocationFor(m, sym)
		}
	}

	if res != nil && len(sets) >= 2 {
		ma, mb := p.Mapping[0], p.Mapping[1]
		for _, pair := range res.Pairs {
			p.Sample = append(p.Sample, &profile.Sample{
				Value:    []int64{1},
				Location: []*profile.Location{addLocationFor(ma, pair.A), addLocationFor(mb, pair.B)},
				Label: map[string][]string{
					matchKindLabel: {pair.Kind.String()},
				},
			})
		}
	}

	if err := p.CheckValid(); err != nil {
		return nil, errors.Wrap(err, "invalid pprof profile")
	}
	return p, nil
}

// WriteProfile writes p in the gzip-compressed protobuf format.
func WriteProfile(p *profile.Profile, w io.Writer) error {
	return p.Write(w)
}

func WriteProfileFile(p *profile.Profile, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteProfile(p, f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
