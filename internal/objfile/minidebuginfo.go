package objfile

import (
	"bytes"
	"debug/elf"
	"io"

	"github.com/pkg/errors"
	"github.com/ulikunitz/xz"
)

const (
	miniDebugInfoSection = ".gnu_debugdata"
	// maxMiniDebugInfoSize bounds the decompressed embedded object.
	maxMiniDebugInfoSize = 256 << 20
)

var errMiniDebugInfoTooLarge = errors.New(miniDebugInfoSection + " decompresses beyond the size limit")

// miniDebugInfo decompresses the xz-packed ELF that stripped distribution
// binaries keep in .gnu_debugdata. It returns nil when the section is absent.
func (f *File) miniDebugInfo() (*elf.File, error) {
	sec := f.elf.Section(miniDebugInfoSection)
	if sec == nil {
		return nil, nil
	}
	data, err := sec.Data()
	if err != nil {
		return nil, errors.Wrap(err, "read "+miniDebugInfoSection)
	}
	reader, err := xz.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrap(err, "decompress "+miniDebugInfoSection)
	}
	var uncompressed bytes.Buffer
	n, err := io.Copy(&uncompressed, io.LimitReader(reader, maxMiniDebugInfoSize+1))
	if err != nil {
		return nil, errors.Wrap(err, "decompress "+miniDebugInfoSection)
	}
	if n > maxMiniDebugInfoSize {
		return nil, errMiniDebugInfoTooLarge
	}
	inner, err := elf.NewFile(bytes.NewReader(uncompressed.Bytes()))
	if err != nil {
		return nil, errors.Wrap(err, "parse "+miniDebugInfoSection)
	}
	return inner, nil
}
