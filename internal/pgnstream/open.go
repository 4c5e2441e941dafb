package pgnstream

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
)

// Open opens a PGN or CSV input, transparently decompressing ".zst" files.
func Open(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open input")
	}
	if filepath.Ext(path) != ".zst" {
		return f, nil
	}
	dec, err := zstd.NewReader(f)
	if err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "zstd reader for %s", path)
	}
	return &zstdFile{Decoder: dec, f: f}, nil
}

type zstdFile struct {
	*zstd.Decoder
	f *os.File
}

func (z *zstdFile) Close() error {
	z.Decoder.Close()
	return z.f.Close()
}

// IsPGNFile reports whether name looks like a (possibly compressed) PGN file.
func IsPGNFile(name string) bool {
	return hasExt(name, ".pgn")
}

// IsCSVFile reports whether name looks like a (possibly compressed) CSV file.
func IsCSVFile(name string) bool {
	return hasExt(name, ".csv")
}

func hasExt(name, ext string) bool {
	name = strings.ToLower(name)
	if filepath.Ext(name) == ".zst" {
		name = strings.TrimSuffix(name, ".zst")
	}
	return filepath.Ext(name) == ext
}
