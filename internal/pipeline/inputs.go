package pipeline

import (
	"io"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/leo848/jufo2023/internal/config"
	"github.com/leo848/jufo2023/internal/pgnstream"
	"github.com/leo848/jufo2023/internal/replay"
)

// Inputs is the sample stream of a list of input files, read one after the
// other. It embeds the Replayer reading them.
type Inputs struct {
	*replay.Replayer
	closer io.Closer
}

// Close closes the file currently being read.
func (in *Inputs) Close() error {
	return in.closer.Close()
}

// OpenInputs returns the samples of paths. Paths are PGN game files or
// puzzle CSV files, optionally zstd-compressed; all must be of the same kind.
// Files are opened lazily as the stream reaches them.
func OpenInputs(cfg *config.Config, paths []string) (*Inputs, error) {
	if len(paths) == 0 {
		return nil, errors.New("no input files")
	}
	puzzles := pgnstream.IsCSVFile(paths[0])
	for _, p := range paths {
		switch {
		case pgnstream.IsCSVFile(p) != puzzles:
			return nil, errors.Errorf("cannot mix games and puzzles: %s", p)
		case !puzzles && !pgnstream.IsPGNFile(p):
			return nil, errors.Errorf("unknown input kind: %s", p)
		}
	}

	if puzzles {
		if cfg.Labels != config.MoveLabels {
			return nil, errors.New("puzzles only carry move labels")
		}
		c := &chain[pgnstream.Puzzle]{
			paths: paths,
			log:   cfg.Logger,
			open: func(r io.Reader) func() (pgnstream.Puzzle, error) {
				return pgnstream.NewPuzzleReader(r).Next
			},
		}
		return &Inputs{Replayer: replay.NewPuzzleReplayer(cfg, c), closer: c}, nil
	}
	c := &chain[*pgnstream.Game]{
		paths: paths,
		log:   cfg.Logger,
		open: func(r io.Reader) func() (*pgnstream.Game, error) {
			return pgnstream.NewScanner(r).Next
		},
	}
	return &Inputs{Replayer: replay.NewGameReplayer(cfg, c), closer: c}, nil
}

// chain concatenates the records of several files.
type chain[T any] struct {
	paths []string
	open  func(io.Reader) func() (T, error)
	log   zerolog.Logger

	path string
	rc   io.ReadCloser
	next func() (T, error)
}

func (c *chain[T]) Next() (T, error) {
	var zero T
	for {
		if c.next == nil {
			if len(c.paths) == 0 {
				return zero, io.EOF
			}
			c.path, c.paths = c.paths[0], c.paths[1:]
			rc, err := pgnstream.Open(c.path)
			if err != nil {
				return zero, err
			}
			c.log.Info().Str("file", filepath.Base(c.path)).Msg("reading input")
			c.rc = rc
			c.next = c.open(rc)
		}

		v, err := c.next()
		if err == io.EOF {
			if err := c.Close(); err != nil {
				return zero, err
			}
			continue
		}
		if err != nil {
			return zero, errors.Wrap(err, filepath.Base(c.path))
		}
		return v, nil
	}
}

func (c *chain[T]) Close() error {
	if c.rc == nil {
		return nil
	}
	err := c.rc.Close()
	c.rc = nil
	c.next = nil
	return errors.Wrapf(err, "close %s", c.path)
}
