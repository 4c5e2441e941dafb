// Package shard writes chunks of encoded records as numbered pairs of NumPy
// .npy files: {i}.npy in the inputs directory holds a [n, 833] bool array and
// {i}.npy in the labels directory holds the matching [n] label array.
package shard

import (
	"bufio"
	"encoding/binary"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/leo848/jufo2023/internal/chessenc"
	"github.com/leo848/jufo2023/internal/config"
)

// ErrShardLimit is returned when a chunk is written past the shard limit.
var ErrShardLimit = errors.New("shard limit reached")

// ChunkSource yields chunks of records; io.EOF ends the stream.
type ChunkSource interface {
	Next() ([]chessenc.Record, error)
}

// Writer writes shards into a pair of fresh directories.
type Writer struct {
	inputsDir string
	labelsDir string
	labels    config.LabelKind
	chunkSize int
	maxShards int
	log       zerolog.Logger
	progress  *Progress
	written   int
	row       []byte
}

// NewWriter returns a Writer for the output settings of cfg.
func NewWriter(cfg *config.Config) *Writer {
	return &Writer{
		inputsDir: cfg.InputsDir,
		labelsDir: cfg.LabelsDir,
		labels:    cfg.Labels,
		chunkSize: cfg.ChunkSize,
		maxShards: cfg.Shards(),
		log:       cfg.Logger,
		progress:  NewProgress(cfg.Logger, cfg.MaxRecords(), cfg.ProgressEvery),
		row:       make([]byte, chessenc.InputLen),
	}
}

// Create creates both output directories. If either already exists nothing
// is created.
func (w *Writer) Create() error {
	dirs := []string{w.inputsDir, w.labelsDir}
	for _, dir := range dirs {
		if _, err := os.Stat(dir); err == nil {
			return errors.Wrap(config.ErrOutputExists, dir)
		} else if !os.IsNotExist(err) {
			return errors.Wrapf(err, "stat %s", dir)
		}
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(filepath.Dir(dir), 0755); err != nil {
			return errors.Wrapf(err, "create parent of %s", dir)
		}
		if err := os.Mkdir(dir, 0755); err != nil {
			return errors.Wrapf(err, "create %s", dir)
		}
	}
	return nil
}

// Run writes chunks from src until it is exhausted or the shard limit is
// reached. Chunks beyond the limit are never pulled. It returns the number of
// shards written.
func (w *Writer) Run(src ChunkSource) (int, error) {
	for w.written < w.maxShards {
		chunk, err := src.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return w.written, err
		}
		if err := w.WriteChunk(chunk); err != nil {
			return w.written, err
		}
	}
	return w.written, nil
}

// WriteChunk writes chunk as the next shard.
func (w *Writer) WriteChunk(chunk []chessenc.Record) error {
	if w.written >= w.maxShards {
		return errors.Wrapf(ErrShardLimit, "%d shards", w.maxShards)
	}
	if len(chunk) != w.chunkSize {
		return errors.Errorf("chunk of %d records, want %d", len(chunk), w.chunkSize)
	}
	name := strconv.Itoa(w.written) + ".npy"

	err := writeFile(filepath.Join(w.inputsDir, name), func(bw *bufio.Writer) error {
		return w.writeInputs(bw, chunk)
	})
	if err != nil {
		return err
	}
	err = writeFile(filepath.Join(w.labelsDir, name), func(bw *bufio.Writer) error {
		return w.writeLabels(bw, chunk)
	})
	if err != nil {
		return err
	}

	w.written++
	w.log.Debug().Int("shard", w.written-1).Int("records", len(chunk)).Msg("shard written")
	return nil
}

// Written returns the number of shards written so far.
func (w *Writer) Written() int {
	return w.written
}

func (w *Writer) writeInputs(bw *bufio.Writer, chunk []chessenc.Record) error {
	if err := writeNpyHeader(bw, DtypeBool, len(chunk), chessenc.InputLen); err != nil {
		return err
	}
	for i := range chunk {
		chunk[i].Input.Unpack(w.row)
		if _, err := bw.Write(w.row); err != nil {
			return err
		}
		w.progress.Add(1)
	}
	return nil
}

func (w *Writer) writeLabels(bw *bufio.Writer, chunk []chessenc.Record) error {
	var buf [4]byte
	switch w.labels {
	case config.MoveLabels:
		if err := writeNpyHeader(bw, DtypeUint16, len(chunk)); err != nil {
			return err
		}
		for i := range chunk {
			binary.LittleEndian.PutUint16(buf[:2], uint16(chunk[i].Move))
			if _, err := bw.Write(buf[:2]); err != nil {
				return err
			}
		}
	case config.EvalLabels:
		if err := writeNpyHeader(bw, DtypeFloat32, len(chunk)); err != nil {
			return err
		}
		for i := range chunk {
			binary.LittleEndian.PutUint32(buf[:], math.Float32bits(chunk[i].Eval))
			if _, err := bw.Write(buf[:]); err != nil {
				return err
			}
		}
	default:
		return errors.Errorf("unknown label kind %d", w.labels)
	}
	return nil
}

// writeFile creates path, which must not exist, and fills it through a
// buffered writer.
func writeFile(path string, fill func(*bufio.Writer) error) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return errors.Wrapf(err, "create %s", path)
	}
	bw := bufio.NewWriterSize(f, 1<<20)

	var result *multierror.Error
	if err := fill(bw); err != nil {
		result = multierror.Append(result, errors.Wrapf(err, "write %s", path))
	} else if err := bw.Flush(); err != nil {
		result = multierror.Append(result, errors.Wrapf(err, "flush %s", path))
	}
	if err := f.Close(); err != nil {
		result = multierror.Append(result, errors.Wrapf(err, "close %s", path))
	}
	return result.ErrorOrNil()
}
