package symbolizer

import (
	"fmt"

	"github.com/ianlancetaylor/demangle"
)

type DemangleMode string

const (
	DemangleDefault    DemangleMode = "default"
	DemangleFull       DemangleMode = "full"
	DemangleTemplates  DemangleMode = "templates"
	DemangleSimplified DemangleMode = "simplified"
	DemangleNone       DemangleMode = "none"
)

var DemangleModes = []DemangleMode{DemangleDefault, DemangleFull, DemangleTemplates, DemangleSimplified, DemangleNone}

func ParseDemangleMode(s string) (DemangleMode, error) {
	for _, m := range DemangleModes {
		if string(m) == s {
			return m, nil
		}
	}
	return "", fmt.Errorf("unknown demangle mode %q", s)
}

func (m DemangleMode) options() (opts []demangle.Option, enabled bool) {
	switch m {
	case DemangleNone:
		return nil, false
	case DemangleSimplified:
		return []demangle.Option{demangle.NoParams, demangle.NoEnclosingParams, demangle.NoTemplateParams}, true
	case DemangleTemplates:
		return []demangle.Option{demangle.NoParams, demangle.NoEnclosingParams}, true
	case DemangleFull:
		return []demangle.Option{demangle.NoClones}, true
	default:
		return nil, true
	}
}

// Demangler turns C++ and Rust linker names into source-level names. It never
// fails: anything it cannot parse comes back unchanged.
type Demangler struct {
	opts    []demangle.Option
	enabled bool
}

func NewDemangler(mode DemangleMode) *Demangler {
	opts, enabled := mode.options()
	return &Demangler{opts: opts, enabled: enabled}
}

func (d *Demangler) Demangle(name string) string {
	if !d.enabled {
		return name
	}
	return demangle.Filter(name, d.opts...)
}
