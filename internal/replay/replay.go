// Package replay turns game and puzzle records into (position, label) samples.
//
// Each PGN game is folded through BEGIN → headers → moves → END. Header
// filters decide whether the game is considerable before any move is
// tokenised; checkmate and sampling decisions are taken once the whole game
// has been replayed.
package replay

import (
	"io"
	"math/rand"
	"sort"
	"strconv"
	"strings"

	"github.com/notnil/chess"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/leo848/jufo2023/internal/chessenc"
	"github.com/leo848/jufo2023/internal/config"
	"github.com/leo848/jufo2023/internal/pgnstream"
)

// Errors describing upstream data-integrity problems.
var (
	ErrBadHeader     = errors.New("header value cannot be parsed")
	ErrMissingHeader = errors.New("required header missing")
)

// Sample is one position and its label before encoding.
// Move is set for move labels, Eval (raw, in pawns) for evaluation labels.
type Sample struct {
	Position *chess.Position
	Move     *chess.Move
	Eval     float32
}

// Stats counts what a Replayer has consumed and produced.
type Stats struct {
	Games        int64 // games read
	Filtered     int64 // games rejected by their headers
	Discarded    int64 // games rejected at the end (not checkmate)
	NoEvals      int64 // games without evaluation annotations
	Puzzles      int64 // puzzles read
	MovesSkipped int64 // unresolvable moves skipped in lenient mode
	Samples      int64 // samples emitted
}

// GameSource yields PGN game records; io.EOF ends the stream.
type GameSource interface {
	Next() (*pgnstream.Game, error)
}

// PuzzleSource yields puzzle records; io.EOF ends the stream.
type PuzzleSource interface {
	Next() (pgnstream.Puzzle, error)
}

// Replayer is a pull-based stream of samples.
type Replayer struct {
	cfg   *config.Config
	log   zerolog.Logger
	rng   *rand.Rand
	fill  func() ([]Sample, error)
	queue []Sample
	stats Stats
}

// NewGameReplayer replays PGN games from src. The label kind of cfg selects
// between move samples and evaluation samples.
func NewGameReplayer(cfg *config.Config, src GameSource) *Replayer {
	r := newReplayer(cfg)
	r.fill = func() ([]Sample, error) {
		g, err := src.Next()
		if err != nil {
			return nil, err
		}
		r.stats.Games++
		return r.replayGame(g)
	}
	return r
}

// NewPuzzleReplayer replays puzzle solutions from src into move samples.
func NewPuzzleReplayer(cfg *config.Config, src PuzzleSource) *Replayer {
	r := newReplayer(cfg)
	r.fill = func() ([]Sample, error) {
		p, err := src.Next()
		if err != nil {
			return nil, err
		}
		r.stats.Puzzles++
		return r.replayPuzzle(p)
	}
	return r
}

func newReplayer(cfg *config.Config) *Replayer {
	return &Replayer{
		cfg: cfg,
		log: cfg.Logger,
		rng: rand.New(rand.NewSource(cfg.Seed)),
	}
}

// Next returns the next sample, or io.EOF when the source is exhausted.
func (r *Replayer) Next() (Sample, error) {
	for len(r.queue) == 0 {
		batch, err := r.fill()
		if err == io.EOF {
			return Sample{}, io.EOF
		}
		if err != nil {
			return Sample{}, err
		}
		r.queue = batch
	}
	s := r.queue[0]
	r.queue[0] = Sample{}
	r.queue = r.queue[1:]
	r.stats.Samples++
	return s, nil
}

// Stats returns the counters accumulated so far.
func (r *Replayer) Stats() Stats {
	return r.stats
}

// gameState is the fold carried through one game.
type gameState struct {
	board        *chess.Position
	pairs        []Sample
	considerable bool
	hasResult    bool
	commented    bool // a comment has been seen (eval labels)
	collecting   bool // evaluations are still being collected
	noEvals      bool // the first comment carried no evaluation
}

func (r *Replayer) begin() gameState {
	return gameState{
		board:        chess.NewGame().Position(),
		considerable: true,
		collecting:   true,
	}
}

func (r *Replayer) replayGame(g *pgnstream.Game) ([]Sample, error) {
	st := r.begin()
	for _, h := range g.Headers {
		if err := r.header(&st, h); err != nil {
			return nil, errors.Wrapf(err, "game at line %d", g.Line)
		}
	}
	if r.cfg.OnlyCheckmates && !st.hasResult {
		return nil, errors.Wrapf(ErrMissingHeader, "game at line %d: Result", g.Line)
	}
	if !st.considerable {
		r.stats.Filtered++
		return nil, nil
	}

	moves, err := g.Moves()
	if err != nil {
		return nil, err
	}
	for ply, m := range moves {
		done, err := r.move(&st, m)
		if err != nil {
			return nil, errors.Wrapf(err, "game at line %d, ply %d", g.Line, ply+1)
		}
		if done {
			break
		}
	}
	if r.cfg.Labels == config.EvalLabels && (st.noEvals || !st.commented) {
		r.stats.NoEvals++
		return nil, nil
	}
	return r.end(&st), nil
}

func (r *Replayer) header(st *gameState, h pgnstream.Header) error {
	if h.Value == "-" || h.Value == "?" {
		return nil
	}
	switch {
	case h.Key == "TimeControl":
		heuristic, err := timeHeuristic(h.Value)
		if err != nil {
			return err
		}
		if heuristic < r.cfg.MinTime {
			st.considerable = false
		}
	case strings.HasSuffix(h.Key, "Elo"):
		elo, err := strconv.Atoi(h.Value)
		if err != nil {
			return errors.Wrapf(ErrBadHeader, "%s %q", h.Key, h.Value)
		}
		if elo < r.cfg.MinElo {
			st.considerable = false
		}
	case h.Key == "Result":
		st.hasResult = true
		if r.cfg.OnlyCheckmates && h.Value != "1-0" && h.Value != "0-1" {
			st.considerable = false
		}
	}
	return nil
}

// timeHeuristic estimates the game length in seconds as base + 30*increment.
func timeHeuristic(tc string) (int, error) {
	base, inc := tc, "0"
	if i := strings.IndexByte(tc, '+'); i >= 0 {
		base, inc = tc[:i], tc[i+1:]
	}
	b, err := strconv.Atoi(base)
	if err != nil {
		return 0, errors.Wrapf(ErrBadHeader, "TimeControl %q", tc)
	}
	n, err := strconv.Atoi(inc)
	if err != nil {
		return 0, errors.Wrapf(ErrBadHeader, "TimeControl %q", tc)
	}
	return b + 30*n, nil
}

// move resolves and plays one main-line token. done reports that the rest of
// the game can be ignored.
func (r *Replayer) move(st *gameState, tok pgnstream.Move) (done bool, err error) {
	mv, err := resolveSAN(st.board, tok.SAN)
	if err != nil {
		if !r.cfg.Lenient {
			return false, err
		}
		r.stats.MovesSkipped++
		r.log.Warn().Err(err).Msg("skipping unresolvable move")
		return false, nil
	}

	before := st.board
	st.board = before.Update(mv)

	if r.cfg.Labels != config.EvalLabels {
		if r.phaseOK(before) {
			st.pairs = append(st.pairs, Sample{Position: before, Move: mv})
		}
		return false, nil
	}

	if !tok.HasComment || !st.collecting {
		return false, nil
	}
	score, ok, err := chessenc.ParseEval(tok.Comment)
	if err != nil {
		return false, err
	}
	first := !st.commented
	st.commented = true
	if !ok {
		// Evaluations stop at the first comment without one; a game whose
		// first comment has none is skipped whole.
		st.collecting = false
		st.noEvals = first
		return first, nil
	}
	if r.phaseOK(st.board) {
		st.pairs = append(st.pairs, Sample{Position: st.board, Eval: score})
	}
	return false, nil
}

func (r *Replayer) end(st *gameState) []Sample {
	if r.cfg.OnlyCheckmates && st.board.Status() != chess.Checkmate {
		r.stats.Discarded++
		return nil
	}
	return r.sample(st.pairs)
}

// sample keeps at most SamplePerGame pairs, chosen at random, in game order.
func (r *Replayer) sample(pairs []Sample) []Sample {
	n := r.cfg.SamplePerGame
	if n <= 0 || len(pairs) <= n {
		return pairs
	}
	idx := r.rng.Perm(len(pairs))[:n]
	sort.Ints(idx)
	out := make([]Sample, n)
	for i, j := range idx {
		out[i] = pairs[j]
	}
	return out
}

// phaseOK reports whether pos belongs to the configured game phase.
func (r *Replayer) phaseOK(pos *chess.Position) bool {
	if r.cfg.Phase == config.PhaseAll {
		return true
	}
	material := chessenc.Material(pos.Board())
	switch r.cfg.Phase {
	case config.PhaseOpening:
		return material >= r.cfg.OpeningMaterial
	case config.PhaseEndgame:
		return material <= r.cfg.EndgameMaterial
	case config.PhaseMiddlegame:
		return material > r.cfg.EndgameMaterial && material < r.cfg.OpeningMaterial
	}
	return true
}

func (r *Replayer) replayPuzzle(p pgnstream.Puzzle) ([]Sample, error) {
	pos, err := positionFromFEN(p.FEN)
	if err != nil {
		if r.cfg.Lenient {
			r.log.Warn().Err(err).Str("puzzle", p.ID).Msg("skipping puzzle")
			return nil, nil
		}
		return nil, errors.Wrapf(err, "puzzle %s", p.ID)
	}
	pairs := make([]Sample, 0, len(p.Moves))
	for _, uci := range p.Moves {
		mv, err := resolveUCI(pos, uci)
		if err != nil {
			if !r.cfg.Lenient {
				return nil, errors.Wrapf(err, "puzzle %s", p.ID)
			}
			r.stats.MovesSkipped++
			r.log.Warn().Err(err).Str("puzzle", p.ID).Msg("skipping rest of puzzle")
			break
		}
		if r.phaseOK(pos) {
			pairs = append(pairs, Sample{Position: pos, Move: mv})
		}
		pos = pos.Update(mv)
	}
	return pairs, nil
}
