package analyzer

import (
	"log/slog"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"github.com/VladMinzatu/xarch-symbols/internal/exporter"
	"github.com/VladMinzatu/xarch-symbols/internal/matcher"
	"github.com/VladMinzatu/xarch-symbols/internal/pprof"
	"github.com/VladMinzatu/xarch-symbols/internal/symbolizer"
)

var ErrProfrawNotSpecified = errors.New("analyze-profraw is not yet specified")

type SymbolReader interface {
	DetectArchitecture(path string) (string, error)
	ReadSymbols(path string) ([]symbolizer.FunctionSymbol, error)
}

type Reporter interface {
	Begin()
	ArchitectureError(path string, err error)
	SymbolsError(path string, err error)
	SymbolSet(set *symbolizer.SymbolSet)
	CrossArchitecture(res *matcher.Result)
}

// Summary is what one run produced. Failures aggregates per-file and export
// errors; none of them fail the run.
type Summary struct {
	Sets     []*symbolizer.SymbolSet
	Match    *matcher.Result
	Failures error
}

type Analyzer struct {
	cfg      Config
	reader   SymbolReader
	reporter Reporter
	now      exporter.NowFunc
}

func New(cfg Config, reader SymbolReader, reporter Reporter) (*Analyzer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if reader == nil || reporter == nil {
		return nil, errors.New("analyzer needs a symbol reader and a reporter")
	}
	return &Analyzer{
		cfg:      cfg,
		reader:   reader,
		reporter: reporter,
		now:      func() uint64 { return uint64(time.Now().UnixNano()) },
	}, nil
}

// Run analyzes every input in order. Files that cannot be read are reported
// and skipped; the first two readable files are matched against each other.
func (a *Analyzer) Run() (*Summary, error) {
	if a.cfg.Mode == AnalyzeProfraw {
		return nil, ErrProfrawNotSpecified
	}

	var failures *multierror.Error
	sum := &Summary{}

	a.reporter.Begin()
	for _, path := range a.cfg.InputPaths {
		arch, err := a.reader.DetectArchitecture(path)
		if err != nil {
			a.reporter.ArchitectureError(path, err)
			failures = multierror.Append(failures, errors.Wrapf(err, "detect architecture of %s", path))
			continue
		}
		syms, err := a.reader.ReadSymbols(path)
		if err != nil {
			a.reporter.SymbolsError(path, err)
			failures = multierror.Append(failures, errors.Wrapf(err, "read symbols of %s", path))
			continue
		}
		set := &symbolizer.SymbolSet{Path: path, Arch: arch, Symbols: syms}
		a.reporter.SymbolSet(set)
		sum.Sets = append(sum.Sets, set)
	}

	if len(sum.Sets) >= 2 {
		if len(sum.Sets) > 2 {
			ignored := make([]string, 0, len(sum.Sets)-2)
			for _, s := range sum.Sets[2:] {
				ignored = append(ignored, s.Path)
			}
			slog.Warn("Only the first two files are matched", "a", sum.Sets[0].Path, "b", sum.Sets[1].Path, "ignored", ignored)
		}
		sum.Match = matcher.Match(sum.Sets[0], sum.Sets[1])
		slog.Debug("Matched symbol sets", "pairs", len(sum.Match.Pairs), "arch_a", sum.Match.ArchA, "arch_b", sum.Match.ArchB)
		a.reporter.CrossArchitecture(sum.Match)
	}

	for _, e := range a.cfg.Exports {
		if err := a.export(e, sum); err != nil {
			slog.Error("Failed to export results", "export", e.String(), "error", err)
			failures = multierror.Append(failures, err)
		}
	}

	sum.Failures = failures.ErrorOrNil()
	return sum, nil
}

func (a *Analyzer) export(e Export, sum *Summary) error {
	switch e.Kind {
	case ExportPprof:
		p, err := pprof.BuildPprofProfile(sum.Sets, sum.Match)
		if err != nil {
			return err
		}
		return errors.Wrapf(pprof.WriteProfileFile(p, e.Path), "write pprof profile %s", e.Path)
	case ExportOtlp:
		req := exporter.BuildOltpRequest(sum.Sets, sum.Match, a.now)
		return errors.Wrapf(exporter.WriteOltpRequest(req, e.Path), "write otlp request %s", e.Path)
	}
	return errors.Errorf("unknown export kind %q", e.Kind)
}
