package objfile

import (
	"errors"
	"fmt"
)

type ErrorKind int

const (
	// OpenError: the file could not be opened or mapped.
	OpenError ErrorKind = iota
	// FormatError: the file is not a supported object container.
	FormatError
)

func (k ErrorKind) String() string {
	switch k {
	case OpenError:
		return "open error"
	case FormatError:
		return "format error"
	default:
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
}

// ReadError is returned for file-level failures. Callers are expected to skip
// the file and carry on with the remaining inputs.
type ReadError struct {
	Kind ErrorKind
	Path string
	Err  error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *ReadError) Unwrap() error { return e.Err }

// SymbolLookupError reports a symbol-table entry whose name or section could
// not be resolved. It only ever affects that one entry.
type SymbolLookupError struct {
	Index int
	Err   error
}

func (e *SymbolLookupError) Error() string {
	return fmt.Sprintf("symbol %d: %v", e.Index, e.Err)
}

func (e *SymbolLookupError) Unwrap() error { return e.Err }

var (
	ErrNotELF    = errors.New("not an ELF object file")
	ErrEmptyFile = errors.New("empty file")
	ErrNoSection = errors.New("symbol has no containing section")
)

func openError(path string, err error) error {
	return &ReadError{Kind: OpenError, Path: path, Err: err}
}

func formatError(path string, err error) error {
	return &ReadError{Kind: FormatError, Path: path, Err: err}
}

// IsReadError reports whether err is a ReadError of the given kind.
func IsReadError(err error, kind ErrorKind) bool {
	var re *ReadError
	return errors.As(err, &re) && re.Kind == kind
}
