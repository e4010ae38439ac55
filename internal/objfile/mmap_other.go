//go:build !unix

package objfile

import (
	"io"
	"os"

	"github.com/pkg/errors"
)

func mapFile(f *os.File, size int) ([]byte, func() error, error) {
	data := make([]byte, size)
	if _, err := io.ReadFull(f, data); err != nil {
		return nil, nil, errors.Wrap(err, "read")
	}
	return data, func() error { return nil }, nil
}
