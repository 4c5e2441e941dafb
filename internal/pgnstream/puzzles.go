package pgnstream

import (
	"encoding/csv"
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Puzzle is one row of the lichess puzzle database:
// PuzzleId,FEN,Moves,Rating,...
type Puzzle struct {
	ID     string
	FEN    string
	Moves  []string // UCI moves, starting with the move that sets up the puzzle
	Rating int      // 0 when the column is absent
}

// PuzzleReader reads puzzle rows one at a time.
type PuzzleReader struct {
	r   *csv.Reader
	row int
}

// NewPuzzleReader returns a PuzzleReader reading CSV from r.
// A leading "PuzzleId,..." header row is skipped.
func NewPuzzleReader(r io.Reader) *PuzzleReader {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true
	return &PuzzleReader{r: cr}
}

// Next returns the next puzzle, or io.EOF when the input is exhausted.
func (p *PuzzleReader) Next() (Puzzle, error) {
	for {
		rec, err := p.r.Read()
		if err == io.EOF {
			return Puzzle{}, io.EOF
		}
		if err != nil {
			return Puzzle{}, errors.Wrap(err, "read puzzle row")
		}
		p.row++
		if p.row == 1 && len(rec) > 0 && rec[0] == "PuzzleId" {
			continue
		}
		return parsePuzzle(rec, p.row)
	}
}

func parsePuzzle(rec []string, row int) (Puzzle, error) {
	if len(rec) < 3 {
		return Puzzle{}, errors.Errorf("puzzle row %d: expected at least 3 columns, got %d", row, len(rec))
	}
	moves := strings.Fields(rec[2])
	if len(moves) == 0 {
		return Puzzle{}, errors.Errorf("puzzle row %d: no moves", row)
	}
	pz := Puzzle{
		ID:    rec[0],
		FEN:   strings.TrimSpace(rec[1]),
		Moves: moves,
	}
	if len(rec) > 3 && rec[3] != "" {
		rating, err := strconv.Atoi(rec[3])
		if err != nil {
			return Puzzle{}, errors.Wrapf(err, "puzzle row %d: rating", row)
		}
		pz.Rating = rating
	}
	return pz, nil
}
