package analyzer

import (
	"bytes"
	"debug/elf"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/pprof/profile"
	"github.com/stretchr/testify/require"
	collectorpb "go.opentelemetry.io/proto/otlp/collector/profiles/v1development"
	"google.golang.org/protobuf/proto"

	"github.com/VladMinzatu/xarch-symbols/internal/exporter"
	"github.com/VladMinzatu/xarch-symbols/internal/matcher"
	"github.com/VladMinzatu/xarch-symbols/internal/objfile"
	"github.com/VladMinzatu/xarch-symbols/internal/objfile/objtest"
	"github.com/VladMinzatu/xarch-symbols/internal/symbolizer"
)

type mockReader struct {
	arches  map[string]string
	symbols map[string][]symbolizer.FunctionSymbol
	archErr map[string]error
	symErr  map[string]error
	calls   []string
}

func (m *mockReader) DetectArchitecture(path string) (string, error) {
	m.calls = append(m.calls, "arch:"+path)
	if err := m.archErr[path]; err != nil {
		return "", err
	}
	return m.arches[path], nil
}

func (m *mockReader) ReadSymbols(path string) ([]symbolizer.FunctionSymbol, error) {
	m.calls = append(m.calls, "symbols:"+path)
	if err := m.symErr[path]; err != nil {
		return nil, err
	}
	return m.symbols[path], nil
}

type mockReporter struct {
	events []string
	sets   []*symbolizer.SymbolSet
	match  *matcher.Result
}

func (m *mockReporter) Begin() { m.events = append(m.events, "begin") }

func (m *mockReporter) ArchitectureError(path string, err error) {
	m.events = append(m.events, "arch-error:"+path)
}

func (m *mockReporter) SymbolsError(path string, err error) {
	m.events = append(m.events, "symbols-error:"+path)
}

func (m *mockReporter) SymbolSet(set *symbolizer.SymbolSet) {
	m.events = append(m.events, "set:"+set.Path)
	m.sets = append(m.sets, set)
}

func (m *mockReporter) CrossArchitecture(res *matcher.Result) {
	m.events = append(m.events, "cross")
	m.match = res
}

func fn(addr uint64, name string) symbolizer.FunctionSymbol {
	return symbolizer.FunctionSymbol{Address: addr, Name: name, DemangledName: name}
}

func newMockReader() *mockReader {
	return &mockReader{
		arches: map[string]string{"a.o": "x86_64", "b.o": "aarch64", "c.o": "riscv64"},
		symbols: map[string][]symbolizer.FunctionSymbol{
			"a.o": {fn(0x1000, "main"), fn(0x1010, "helper")},
			"b.o": {fn(0x2000, "main")},
			"c.o": {fn(0x3000, "main")},
		},
		archErr: map[string]error{},
		symErr:  map[string]error{},
	}
}

func TestRun_TwoFiles(t *testing.T) {
	reader := newMockReader()
	rep := &mockReporter{}
	a, err := New(Config{InputPaths: []string{"a.o", "b.o"}}, reader, rep)
	require.NoError(t, err)

	sum, err := a.Run()
	require.NoError(t, err)
	require.NoError(t, sum.Failures)
	require.Equal(t, []string{"begin", "set:a.o", "set:b.o", "cross"}, rep.events)
	require.Len(t, sum.Match.Pairs, 1)
	require.Equal(t, 1, sum.Match.UnmatchedA)
	require.Equal(t, 0, sum.Match.UnmatchedB)
	require.Equal(t, "x86_64", sum.Match.ArchA)
	require.Same(t, sum.Match, rep.match)
}

func TestRun_SingleFileHasNoCrossSection(t *testing.T) {
	rep := &mockReporter{}
	a, err := New(Config{InputPaths: []string{"a.o"}}, newMockReader(), rep)
	require.NoError(t, err)

	sum, err := a.Run()
	require.NoError(t, err)
	require.Nil(t, sum.Match)
	require.Equal(t, []string{"begin", "set:a.o"}, rep.events)
}

func TestRun_FailuresAreSkipped(t *testing.T) {
	reader := newMockReader()
	reader.archErr["a.o"] = errors.New("boom")
	reader.symErr["b.o"] = errors.New("bad symtab")
	rep := &mockReporter{}
	a, err := New(Config{InputPaths: []string{"a.o", "b.o", "c.o"}}, reader, rep)
	require.NoError(t, err)

	sum, err := a.Run()
	require.NoError(t, err, "per-file failures never fail the run")
	require.Equal(t, []string{"begin", "arch-error:a.o", "symbols-error:b.o", "set:c.o"}, rep.events)
	require.NotContains(t, reader.calls, "symbols:a.o", "symbols are not read after architecture detection fails")
	require.Len(t, sum.Sets, 1)
	require.Nil(t, sum.Match)

	require.Error(t, sum.Failures)
	require.Contains(t, sum.Failures.Error(), "a.o")
	require.Contains(t, sum.Failures.Error(), "b.o")
}

func TestRun_MoreThanTwoFilesMatchesFirstTwoReadable(t *testing.T) {
	reader := newMockReader()
	reader.archErr["a.o"] = errors.New("boom")
	rep := &mockReporter{}
	a, err := New(Config{InputPaths: []string{"a.o", "b.o", "c.o", "b.o"}}, reader, rep)
	require.NoError(t, err)

	sum, err := a.Run()
	require.NoError(t, err)
	require.NotNil(t, sum.Match)
	require.Equal(t, "aarch64", sum.Match.ArchA)
	require.Equal(t, "riscv64", sum.Match.ArchB)
	require.Len(t, sum.Sets, 3)
	require.Equal(t, []string{"begin", "arch-error:a.o", "set:b.o", "set:c.o", "set:b.o", "cross"}, rep.events)
}

func TestRun_Profraw(t *testing.T) {
	rep := &mockReporter{}
	a, err := New(Config{Mode: AnalyzeProfraw, InputPaths: []string{"default.profraw"}}, newMockReader(), rep)
	require.NoError(t, err)

	_, err = a.Run()
	require.ErrorIs(t, err, ErrProfrawNotSpecified)
	require.Empty(t, rep.events)
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{}, newMockReader(), &mockReporter{})
	require.ErrorIs(t, err, ErrNoInputs)

	_, err = New(Config{InputPaths: []string{"a.o"}}, nil, &mockReporter{})
	require.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	cfg := Config{
		Demangle: "fancy",
		Exports:  []Export{{Kind: "svg", Path: "out.svg"}},
	}
	err := cfg.Validate()
	require.ErrorIs(t, err, ErrNoInputs)
	require.Contains(t, err.Error(), "fancy")
	require.Contains(t, err.Error(), "svg")

	ok := Config{InputPaths: []string{"a.o"}, Demangle: symbolizer.DemangleFull, Exports: []Export{{Kind: ExportPprof, Path: "p.pb.gz"}}}
	require.NoError(t, ok.Validate())
}

func TestParseExport(t *testing.T) {
	tests := []struct {
		in      string
		want    Export
		wantErr bool
	}{
		{in: "pprof=out.pb.gz", want: Export{Kind: ExportPprof, Path: "out.pb.gz"}},
		{in: "otlp=/tmp/a=b.bin", want: Export{Kind: ExportOtlp, Path: "/tmp/a=b.bin"}},
		{in: "pprof", wantErr: true},
		{in: "pprof=", wantErr: true},
		{in: "json=out.json", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseExport(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestMode_String(t *testing.T) {
	require.Equal(t, "analyze-symbols", AnalyzeSymbols.String())
	require.Equal(t, "analyze-profraw", AnalyzeProfraw.String())
}

// The tests below run the real extractor and console on synthesised objects.

func writeFixture(t *testing.T, dir, name string, o *objtest.Object) string {
	t.Helper()
	path, err := o.WriteFile(dir, name)
	require.NoError(t, err)
	return path
}

func runFixtures(t *testing.T, cfg Config) (*Summary, string, string) {
	t.Helper()
	var out, errOut bytes.Buffer
	mode := cfg.Demangle
	if mode == "" {
		mode = symbolizer.DemangleDefault
	}
	a, err := New(cfg, symbolizer.NewExtractor(symbolizer.NewDemangler(mode)), exporter.NewConsole(&out, &errOut, false))
	require.NoError(t, err)
	a.now = func() uint64 { return 42 }
	sum, err := a.Run()
	require.NoError(t, err)
	return sum, out.String(), errOut.String()
}

func TestRun_UnreadableFileDoesNotStopValidOne(t *testing.T) {
	dir := t.TempDir()
	junk := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(junk, []byte("hello"), 0o644))
	valid := writeFixture(t, dir, "x86.o", objtest.New(elf.EM_X86_64).WithSymbols(objtest.Func("main", 0x1000)))

	sum, out, errOut := runFixtures(t, Config{InputPaths: []string{junk, valid}})
	require.Len(t, sum.Sets, 1)
	require.Contains(t, errOut, "Error detecting architecture for "+junk)
	require.Contains(t, out, "File: "+valid+"\nArchitecture: x86_64\nFunctions found: 1\n 0x00001000: main\n")
	require.NotContains(t, out, "Cross-Architecture")
	require.True(t, objfile.IsReadError(sum.Failures, objfile.FormatError), "got %v", sum.Failures)
}

func TestRun_DisjointSetsWarn(t *testing.T) {
	dir := t.TempDir()
	a := writeFixture(t, dir, "x86.o", objtest.New(elf.EM_X86_64).WithSymbols(objtest.Func("only_x86", 0x1000)))
	b := writeFixture(t, dir, "arm.o", objtest.New(elf.EM_AARCH64).WithSymbols(objtest.Func("only_arm", 0x1000)))

	sum, out, _ := runFixtures(t, Config{InputPaths: []string{a, b}})
	require.False(t, sum.Match.Found())
	require.Contains(t, out, "Potential matches found: 0")
	require.Contains(t, out, "x86_64-only functions: 1")
	require.Contains(t, out, "aarch64-only functions: 1")
	require.Contains(t, out, "WARNING")
}

func TestRun_CloneSuffixMatchesWhenDemangledWithoutClones(t *testing.T) {
	dir := t.TempDir()
	a := writeFixture(t, dir, "x86.o", objtest.New(elf.EM_X86_64).WithSymbols(objtest.Func("_Z3fooi", 0x1000)))
	b := writeFixture(t, dir, "arm.o", objtest.New(elf.EM_AARCH64).WithSymbols(objtest.Func("_Z3fooi.cold", 0x1000)))

	sum, out, _ := runFixtures(t, Config{InputPaths: []string{a, b}, Demangle: symbolizer.DemangleFull})
	require.Len(t, sum.Match.Pairs, 1)
	require.Equal(t, matcher.DemangledName, sum.Match.Pairs[0].Kind)
	require.Contains(t, out, "foo(int) <-> foo(int) (demangled match)")

	sum, _, _ = runFixtures(t, Config{InputPaths: []string{a, b}})
	require.False(t, sum.Match.Found(), "default mode keeps the clone suffix")
}

func TestRun_Exports(t *testing.T) {
	dir := t.TempDir()
	a := writeFixture(t, dir, "x86.o", objtest.New(elf.EM_X86_64).WithSymbols(objtest.Func("main", 0x1000), objtest.Func("f", 0x1010)))
	b := writeFixture(t, dir, "arm.o", objtest.New(elf.EM_AARCH64).WithSymbols(objtest.Func("main", 0x1000)))
	pprofPath := filepath.Join(dir, "matches.pb.gz")
	otlpPath := filepath.Join(dir, "matches.otlp")

	sum, _, _ := runFixtures(t, Config{
		InputPaths: []string{a, b},
		Exports:    []Export{{Kind: ExportPprof, Path: pprofPath}, {Kind: ExportOtlp, Path: otlpPath}},
	})
	require.NoError(t, sum.Failures)

	f, err := os.Open(pprofPath)
	require.NoError(t, err)
	defer f.Close()
	p, err := profile.Parse(f)
	require.NoError(t, err)
	require.Len(t, p.Sample, 1)
	require.Equal(t, []string{"exact-name"}, p.Sample[0].Label["match_kind"])

	raw, err := os.ReadFile(otlpPath)
	require.NoError(t, err)
	var req collectorpb.ExportProfilesServiceRequest
	require.NoError(t, proto.Unmarshal(raw, &req))
	require.Len(t, req.ResourceProfiles, 3)
}

func TestRun_ExportFailureIsNotFatal(t *testing.T) {
	dir := t.TempDir()
	a := writeFixture(t, dir, "x86.o", objtest.New(elf.EM_X86_64).WithSymbols(objtest.Func("main", 0x1000)))
	bad := filepath.Join(dir, "missing", "out.pb.gz")

	sum, out, _ := runFixtures(t, Config{InputPaths: []string{a}, Exports: []Export{{Kind: ExportPprof, Path: bad}}})
	require.Error(t, sum.Failures)
	require.True(t, strings.Contains(sum.Failures.Error(), "write pprof profile"))
	require.Contains(t, out, "Functions found: 1")
}
