package analyzer

import (
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"github.com/VladMinzatu/xarch-symbols/internal/symbolizer"
)

type Mode int

const (
	AnalyzeSymbols Mode = iota
	AnalyzeProfraw
)

func (m Mode) String() string {
	switch m {
	case AnalyzeSymbols:
		return "analyze-symbols"
	case AnalyzeProfraw:
		return "analyze-profraw"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

type ExportKind string

const (
	ExportPprof ExportKind = "pprof"
	ExportOtlp  ExportKind = "otlp"
)

// Export asks for the results to be rendered in an additional format.
type Export struct {
	Kind ExportKind
	Path string
}

func (e Export) String() string {
	return string(e.Kind) + "=" + e.Path
}

// ParseExport parses a KIND=PATH export flag value.
func ParseExport(s string) (Export, error) {
	kind, path, ok := strings.Cut(s, "=")
	if !ok || path == "" {
		return Export{}, errors.Errorf("malformed export %q, expected KIND=PATH", s)
	}
	switch k := ExportKind(kind); k {
	case ExportPprof, ExportOtlp:
		return Export{Kind: k, Path: path}, nil
	}
	return Export{}, errors.Errorf("unknown export kind %q", kind)
}

var ErrNoInputs = errors.New("no input files given")

type Config struct {
	Mode       Mode
	InputPaths []string
	Demangle   symbolizer.DemangleMode
	Exports    []Export
	Color      bool
	Verbose    bool
}

// Validate reports every problem with the configuration at once.
func (c *Config) Validate() error {
	var result *multierror.Error
	if len(c.InputPaths) == 0 {
		result = multierror.Append(result, ErrNoInputs)
	}
	if c.Demangle != "" {
		if _, err := symbolizer.ParseDemangleMode(string(c.Demangle)); err != nil {
			result = multierror.Append(result, err)
		}
	}
	for _, e := range c.Exports {
		if _, err := ParseExport(e.String()); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}
