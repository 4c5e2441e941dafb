package shard

import (
	"encoding/binary"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// NumPy dtype descriptors used by the shards.
const (
	DtypeBool    = "|b1"
	DtypeUint16  = "<u2"
	DtypeFloat32 = "<f4"
)

const (
	npyMagic     = "\x93NUMPY"
	npyAlign     = 64
	npyPrelude   = len(npyMagic) + 2 + 2 // magic, version, header length
	npyMaxHeader = 1<<16 - 1
)

// npyHeader returns a version 1.0 .npy header for a C-ordered array. The
// header is padded with spaces and terminated by a newline so that the data
// starts on a 64-byte boundary.
func npyHeader(dtype string, shape ...int) ([]byte, error) {
	dims := make([]string, len(shape))
	for i, d := range shape {
		if d < 0 {
			return nil, errors.Errorf("npy: negative dimension %d", d)
		}
		dims[i] = strconv.Itoa(d)
	}
	tuple := strings.Join(dims, ", ")
	if len(shape) == 1 {
		tuple += ","
	}
	dict := fmt.Sprintf("{'descr': '%s', 'fortran_order': False, 'shape': (%s), }", dtype, tuple)

	total := npyPrelude + len(dict) + 1
	if rem := total % npyAlign; rem != 0 {
		total += npyAlign - rem
	}
	hlen := total - npyPrelude
	if hlen > npyMaxHeader {
		return nil, errors.Errorf("npy: header of %d bytes too long", hlen)
	}

	buf := make([]byte, total)
	n := copy(buf, npyMagic)
	buf[n], buf[n+1] = 1, 0
	binary.LittleEndian.PutUint16(buf[n+2:], uint16(hlen))
	n = copy(buf[npyPrelude:], dict) + npyPrelude
	for ; n < total-1; n++ {
		buf[n] = ' '
	}
	buf[total-1] = '\n'
	return buf, nil
}

// writeNpyHeader writes the .npy header for dtype and shape to w.
func writeNpyHeader(w io.Writer, dtype string, shape ...int) error {
	hdr, err := npyHeader(dtype, shape...)
	if err != nil {
		return err
	}
	_, err = w.Write(hdr)
	return err
}
