package exporter

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/VladMinzatu/xarch-symbols/internal/matcher"
	"github.com/VladMinzatu/xarch-symbols/internal/symbolizer"
)

// Console renders analysis results as the human-readable text report.
type Console struct {
	out    io.Writer
	errOut io.Writer

	heading *color.Color
	success *color.Color
	warning *color.Color
	failure *color.Color
}

func NewConsole(out, errOut io.Writer, colored bool) *Console {
	c := &Console{
		out:     out,
		errOut:  errOut,
		heading: color.New(color.Bold),
		success: color.New(color.FgGreen, color.Bold),
		warning: color.New(color.FgYellow, color.Bold),
		failure: color.New(color.FgRed),
	}
	if !colored {
		for _, col := range []*color.Color{c.heading, c.success, c.warning, c.failure} {
			col.DisableColor()
		}
	}
	return c
}

func (c *Console) Begin() {
	c.heading.Fprint(c.out, "=== Symbol Analysis ==")
	fmt.Fprint(c.out, "\n\n")
}

func (c *Console) ArchitectureError(path string, err error) {
	c.failure.Fprintf(c.errOut, "Error detecting architecture for %s: %v", path, err)
	fmt.Fprintln(c.errOut)
}

func (c *Console) SymbolsError(path string, err error) {
	c.failure.Fprintf(c.errOut, "Error reading symbols from %s: %v", path, err)
	fmt.Fprintln(c.errOut)
}

func (c *Console) SymbolSet(set *symbolizer.SymbolSet) {
	fmt.Fprintf(c.out, "File: %s\n", set.Path)
	fmt.Fprintf(c.out, "Architecture: %s\n", set.Arch)
	fmt.Fprintf(c.out, "Functions found: %d\n", len(set.Symbols))
	for _, s := range set.Symbols {
		fmt.Fprintf(c.out, " 0x%08x: %s", s.Address, displayName(s.Name))
		if s.Demangled() {
			fmt.Fprintf(c.out, " (%s)", displayName(s.DemangledName))
		}
		fmt.Fprintln(c.out)
	}
	fmt.Fprintln(c.out)
}

func (c *Console) CrossArchitecture(res *matcher.Result) {
	c.heading.Fprint(c.out, "=== Cross-Architecture Analysis ==")
	fmt.Fprintln(c.out)
	fmt.Fprintf(c.out, "Potential matches found: %d\n", len(res.Pairs))
	for _, p := range res.Pairs {
		a, b := p.A.Name, p.B.Name
		if p.Kind == matcher.DemangledName && p.A.DemangledName == p.B.DemangledName {
			a, b = p.A.DemangledName, p.B.DemangledName
		}
		fmt.Fprintf(c.out, " %s <-> %s (%s)\n", displayName(a), displayName(b), p.Kind.Label())
	}

	fmt.Fprintf(c.out, "\n%s-only functions: %d\n", res.ArchA, res.UnmatchedA)
	fmt.Fprintf(c.out, "%s-only functions: %d\n", res.ArchB, res.UnmatchedB)

	fmt.Fprintln(c.out)
	if res.Found() {
		c.success.Fprintf(c.out, "SUCCESS: Found %d functions that exist in both architectures!", len(res.Pairs))
	} else {
		c.warning.Fprint(c.out, "WARNING: No matching functions found between architectures.")
	}
	fmt.Fprintln(c.out)
}

// displayName keeps one symbol per line even for names with embedded newlines.
func displayName(name string) string {
	if !strings.ContainsAny(name, "\r\n") {
		return name
	}
	name = strings.ReplaceAll(name, "\r", " ")
	return strings.ReplaceAll(name, "\n", " ")
}
