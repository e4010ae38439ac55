package exporter

import (
	"os"

	"github.com/pkg/errors"
	collectorpb "go.opentelemetry.io/proto/otlp/collector/profiles/v1development"
	v1 "go.opentelemetry.io/proto/otlp/common/v1"
	profilespb "go.opentelemetry.io/proto/otlp/profiles/v1development"
	resourceV1 "go.opentelemetry.io/proto/otlp/resource/v1"
	"google.golang.org/protobuf/proto"

	"github.com/VladMinzatu/xarch-symbols/internal/matcher"
	"github.com/VladMinzatu/xarch-symbols/internal/symbolizer"
)

const (
	scopeName    = "xarch-symbols"
	scopeVersion = "v1"
)

type NowFunc func() uint64 // produces unix nsec

type symbolKey struct {
	addr uint64
	name string
}

// BuildOltpRequest renders each symbol set as one resource whose profile holds
// a single-frame sample per function, plus one extra resource with a profile
// per match kind whose samples are two-frame (A, B) stacks. res may be nil.
func BuildOltpRequest(sets []*symbolizer.SymbolSet, res *matcher.Result, now NowFunc) *collectorpb.ExportProfilesServiceRequest {
	nowNsec := now()
	stringTable := []string{""}
	mappingTable := []*profilespb.Mapping{{}}
	locationTable := []*profilespb.Location{{}}
	functionTable := []*profilespb.Function{{}}
	stackTable := []*profilespb.Stack{{}}

	addStack := func(locIndices ...int32) int32 {
		stackTable = append(stackTable, &profilespb.Stack{LocationIndices: locIndices})
		return int32(len(stackTable) - 1)
	}
	newSample := func(stackIdx int32) *profilespb.Sample {
		return &profilespb.Sample{
			StackIndex:         stackIdx,
			Values:             []int64{1},
			AttributeIndices:   []int32{},
			LinkIndex:          0,
			TimestampsUnixNano: []uint64{nowNsec},
		}
	}
	newProfile := func(typ, unit string, samples []*profilespb.Sample) *profilespb.Profile {
		return &profilespb.Profile{
			TimeUnixNano: nowNsec,
			DurationNano: uint64(0),
			SampleType: &profilespb.ValueType{
				TypeStrindex: strIndex(&stringTable, typ),
				UnitStrindex: strIndex(&stringTable, unit),
			},
			Samples: samples,
		}
	}

	locations := make([]map[symbolKey]int32, len(sets))
	resourceProfiles := make([]*profilespb.ResourceProfiles, 0, len(sets)+1)
	for i, set := range sets {
		mappingTable = append(mappingTable, &profilespb.Mapping{FilenameStrindex: strIndex(&stringTable, set.Path)})
		mappingIdx := int32(len(mappingTable) - 1)
		locations[i] = make(map[symbolKey]int32, len(set.Symbols))

		samples := make([]*profilespb.Sample, 0, len(set.Symbols))
		for _, sym := range set.Symbols {
			functionTable = append(functionTable, &profilespb.Function{
				NameStrindex:       strIndex(&stringTable, sym.DemangledName),
				SystemNameStrindex: strIndex(&stringTable, sym.Name),
			})
			fnIdx := int32(len(functionTable) - 1)

			locationTable = append(locationTable, &profilespb.Location{
				Address:      sym.Address,
				MappingIndex: mappingIdx,
				Lines:        []*profilespb.Line{{FunctionIndex: fnIdx, Line: 0}},
			})
			locIdx := int32(len(locationTable) - 1)
			key := symbolKey{addr: sym.Address, name: sym.Name}
			if _, ok := locations[i][key]; !ok {
				locations[i][key] = locIdx
			}
			samples = append(samples, newSample(addStack(locIdx)))
		}

		resourceProfiles = append(resourceProfiles, &profilespb.ResourceProfiles{
			Resource: &resourceV1.Resource{Attributes: []*v1.KeyValue{
				stringAttr("host.arch", set.Arch),
				stringAttr("file.path", set.Path),
			}},
			ScopeProfiles: []*profilespb.ScopeProfiles{{
				Scope:    &v1.InstrumentationScope{Name: scopeName, Version: scopeVersion},
				Profiles: []*profilespb.Profile{newProfile("functions", "count", samples)},
			}},
		})
	}

	if res != nil && len(sets) >= 2 {
		byKind := map[matcher.MatchKind][]*profilespb.Sample{}
		for _, p := range res.Pairs {
			locA := locations[0][symbolKey{addr: p.A.Address, name: p.A.Name}]
			locB := locations[1][symbolKey{addr: p.B.Address, name: p.B.Name}]
			byKind[p.Kind] = append(byKind[p.Kind], newSample(addStack(locA, locB)))
		}
		var profiles []*profilespb.Profile
		for _, kind := range []matcher.MatchKind{matcher.ExactName, matcher.DemangledName} {
			profiles = append(profiles, newProfile(kind.String(), "pairs", byKind[kind]))
		}
		resourceProfiles = append(resourceProfiles, &profilespb.ResourceProfiles{
			Resource: &resourceV1.Resource{Attributes: []*v1.KeyValue{
				stringAttr("host.arch", res.ArchA+","+res.ArchB),
			}},
			ScopeProfiles: []*profilespb.ScopeProfiles{{
				Scope:    &v1.InstrumentationScope{Name: scopeName, Version: scopeVersion},
				Profiles: profiles,
			}},
		})
	}

	return &collectorpb.ExportProfilesServiceRequest{
		ResourceProfiles: resourceProfiles,
		Dictionary: &profilespb.ProfilesDictionary{
			MappingTable:  mappingTable,
			LocationTable: locationTable,
			FunctionTable: functionTable,
			StackTable:    stackTable,
			StringTable:   stringTable,
		},
	}
}

func WriteOltpRequest(req *collectorpb.ExportProfilesServiceRequest, path string) error {
	b, err := proto.Marshal(req)
	if err != nil {
		return errors.Wrap(err, "marshal OTLP profiles request")
	}
	return os.WriteFile(path, b, 0o644)
}

func stringAttr(key, value string) *v1.KeyValue {
	return &v1.KeyValue{Key: key, Value: &v1.AnyValue{Value: &v1.AnyValue_StringValue{StringValue: value}}}
}

func strIndex(table *[]string, s string) int32 {
	for i, v := range *table {
		if v == s {
			return int32(i)
		}
	}
	*table = append(*table, s)
	return int32(len(*table) - 1)
}
