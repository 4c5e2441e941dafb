package replay

import (
	"io"
	"strings"
	"testing"

	"github.com/chewxy/math32"
	"github.com/notnil/chess"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leo848/jufo2023/internal/chessenc"
	"github.com/leo848/jufo2023/internal/config"
	"github.com/leo848/jufo2023/internal/pgnstream"
)

func testConfig() *config.Config {
	cfg := config.Default()
	return &cfg
}

// drain pulls every sample from r.
func drain(t *testing.T, r *Replayer) []Sample {
	t.Helper()
	var out []Sample
	for {
		s, err := r.Next()
		if err == io.EOF {
			return out
		}
		require.NoError(t, err)
		out = append(out, s)
	}
}

func drainErr(r *Replayer) error {
	for {
		_, err := r.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func games(pgn string, cfg *config.Config) *Replayer {
	return NewGameReplayer(cfg, pgnstream.NewScanner(strings.NewReader(pgn)))
}

func moveUCIs(samples []Sample) []string {
	out := make([]string, len(samples))
	for i, s := range samples {
		out[i] = chessenc.EncodeMove(s.Move).UCI()
	}
	return out
}

const e4e5Nf3 = `[Elo "2000"]
[TimeControl "600+5"]

1. e4 e5 2. Nf3 *
`

func TestGameReplayer_ThreeMoves(t *testing.T) {
	r := games(e4e5Nf3, testConfig())
	samples := drain(t, r)

	require.Len(t, samples, 3)
	assert.Equal(t, []string{"e2e4", "e7e5", "g1f3"}, moveUCIs(samples))

	first := chessenc.EncodePosition(samples[0].Position)
	assert.True(t, first.WhiteToMove())
	assert.Equal(t, chess.Black, samples[1].Position.Turn())

	stats := r.Stats()
	assert.Equal(t, int64(1), stats.Games)
	assert.Equal(t, int64(3), stats.Samples)
}

func TestGameReplayer_LowEloSkipsMoves(t *testing.T) {
	// The movetext is broken: it must never be tokenised.
	pgn := `[Elo "800"]
[TimeControl "600+5"]

1. e4 { never closed
`
	r := games(pgn, testConfig())
	assert.Empty(t, drain(t, r))
	assert.Equal(t, int64(1), r.Stats().Filtered)
}

func TestGameReplayer_HeaderOnlyGameKeepsItsOwnHeaders(t *testing.T) {
	pgn := `[Event "a"]
[WhiteElo "800"]
[TimeControl "600+5"]

[Event "b"]
[WhiteElo "2000"]
[TimeControl "600+5"]

1. e4 *
`
	r := games(pgn, testConfig())
	assert.Equal(t, []string{"e2e4"}, moveUCIs(drain(t, r)))
	assert.Equal(t, int64(2), r.Stats().Games)
	assert.Equal(t, int64(1), r.Stats().Filtered)
}

func TestGameReplayer_Headers(t *testing.T) {
	tests := []struct {
		name    string
		headers string
		want    int
		wantErr error
	}{
		{"fast time control", `[TimeControl "60+0"]`, 0, nil},
		{"increment counts thirty times", `[TimeControl "180+4"]`, 3, nil},
		{"base only", `[TimeControl "300"]`, 3, nil},
		{"placeholder time", `[TimeControl "-"]`, 3, nil},
		{"placeholder elo", `[WhiteElo "?"]`, 3, nil},
		{"one low player", "[WhiteElo \"2100\"]\n[BlackElo \"1400\"]", 0, nil},
		{"bad elo", `[WhiteElo "strong"]`, 0, ErrBadHeader},
		{"bad time control", `[TimeControl "5|3"]`, 0, ErrBadHeader},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := games(tt.headers+"\n\n1. e4 e5 2. Nf3 *\n", testConfig())
			if tt.wantErr != nil {
				err := drainErr(r)
				require.Error(t, err)
				assert.True(t, errors.Is(err, tt.wantErr))
				return
			}
			assert.Len(t, drain(t, r), tt.want)
		})
	}
}

func TestGameReplayer_UnresolvableMove(t *testing.T) {
	pgn := "1. e4 e5 2. Qz9 Nf3 *\n"

	err := drainErr(games(pgn, testConfig()))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnresolvedMove))
	assert.Contains(t, err.Error(), "ply 3")

	cfg := testConfig()
	cfg.Lenient = true
	r := games(pgn, cfg)
	assert.Equal(t, []string{"e2e4", "e7e5", "g1f3"}, moveUCIs(drain(t, r)))
	assert.Equal(t, int64(1), r.Stats().MovesSkipped)
}

func TestGameReplayer_CastlingAndPromotion(t *testing.T) {
	pgn := "1. e4 e5 2. Nf3 Nc6 3. Bc4 Bc5 4. 0-0 d6 *\n"
	samples := drain(t, games(pgn, testConfig()))
	require.Len(t, samples, 8)
	assert.True(t, samples[6].Move.HasTag(chess.KingSideCastle))
	assert.Equal(t, "e1g1", chessenc.EncodeMove(samples[6].Move).UCI())

	pos, err := positionFromFEN("8/P6k/8/8/8/8/8/K7 w - - 0 1")
	require.NoError(t, err)
	mv, err := resolveSAN(pos, "a8Q+")
	require.NoError(t, err)
	assert.Equal(t, chess.Queen, mv.Promo())
}

const foolsMate = `[Result "0-1"]

1. f3 e5 2. g4 Qh4# 0-1
`

func TestGameReplayer_OnlyCheckmates(t *testing.T) {
	cfg := testConfig()
	cfg.OnlyCheckmates = true

	assert.Len(t, drain(t, games(foolsMate, cfg)), 4)

	r := games("[Result \"1/2-1/2\"]\n\n1. f3 e5 2. g4 Qh4# 1/2-1/2\n", cfg)
	assert.Empty(t, drain(t, r))
	assert.Equal(t, int64(1), r.Stats().Filtered)

	r = games("[Result \"1-0\"]\n\n1. e4 e5 2. Nf3 1-0\n", cfg)
	assert.Empty(t, drain(t, r))
	assert.Equal(t, int64(1), r.Stats().Discarded)

	err := drainErr(games("1. f3 e5 2. g4 Qh4# *\n", cfg))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingHeader))
}

func TestGameReplayer_SamplePerGame(t *testing.T) {
	pgn := "1. e4 e5 2. Nf3 Nc6 3. Bb5 a6 4. Ba4 Nf6 *\n"
	all := moveUCIs(drain(t, games(pgn, testConfig())))
	require.Len(t, all, 8)

	cfg := testConfig()
	cfg.SamplePerGame = 3
	cfg.Seed = 42
	picked := moveUCIs(drain(t, games(pgn, cfg)))
	require.Len(t, picked, 3)

	// The picked moves keep game order.
	last := -1
	for _, m := range picked {
		idx := -1
		for i, a := range all {
			if a == m {
				idx = i
			}
		}
		require.Greater(t, idx, last)
		last = idx
	}

	// Same seed, same subset.
	assert.Equal(t, picked, moveUCIs(drain(t, games(pgn, cfg))))

	// Short games are kept whole.
	cfg.SamplePerGame = 20
	assert.Len(t, drain(t, games(pgn, cfg)), 8)
}

func TestGameReplayer_Phase(t *testing.T) {
	pgn := "1. e4 d5 2. exd5 Qxd5 3. Nc3 Qa5 *\n"

	cfg := testConfig()
	cfg.Phase = config.PhaseOpening
	assert.Len(t, drain(t, games(pgn, cfg)), 6)

	cfg.Phase = config.PhaseEndgame
	assert.Empty(t, drain(t, games(pgn, cfg)))

	// Opening threshold just below the start material: only positions before
	// the first capture count as opening.
	cfg.Phase = config.PhaseOpening
	cfg.OpeningMaterial = 78
	assert.Len(t, drain(t, games(pgn, cfg)), 3)

	cfg.Phase = config.PhaseMiddlegame
	assert.Len(t, drain(t, games(pgn, cfg)), 3)
}

func evalConfig() *config.Config {
	cfg := testConfig()
	cfg.Labels = config.EvalLabels
	return cfg
}

func TestGameReplayer_Evals(t *testing.T) {
	pgn := `1. e4 { [%eval 0.17] [%clk 0:10:00] } 1... e5 { [%eval 0.2] } 2. Nf3 { [%eval #-3] }
2... Nc6 { [%clk 0:09:00] } 3. Bb5 { [%eval 0.5] } *
`
	r := games(pgn, evalConfig())
	samples := drain(t, r)
	require.Len(t, samples, 3)

	assert.Equal(t, float32(0.17), samples[0].Eval)
	assert.Equal(t, float32(0.2), samples[1].Eval)
	assert.Equal(t, math32.Inf(-1), samples[2].Eval)
	assert.InDelta(t, 0.0, chessenc.Squash(samples[2].Eval), 1e-7)

	// Evaluations describe the position after the annotated move.
	assert.Equal(t, chess.Black, samples[0].Position.Turn())
	assert.Nil(t, samples[0].Move)
}

func TestGameReplayer_EvalsMissing(t *testing.T) {
	tests := []struct {
		name string
		pgn  string
	}{
		{"first comment without eval", "1. e4 { [%clk 0:10:00] } 1... e5 { [%eval 0.2] } *\n"},
		{"no comments", "1. e4 e5 2. Nf3 *\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := games(tt.pgn, evalConfig())
			assert.Empty(t, drain(t, r))
			assert.Equal(t, int64(1), r.Stats().NoEvals)
		})
	}
}

func TestGameReplayer_EvalsMalformed(t *testing.T) {
	err := drainErr(games("1. e4 { [%eval x1] } *\n", evalConfig()))
	require.Error(t, err)
	assert.True(t, errors.Is(err, chessenc.ErrMalformedEval))
}

type puzzleSlice []pgnstream.Puzzle

func (p *puzzleSlice) Next() (pgnstream.Puzzle, error) {
	if len(*p) == 0 {
		return pgnstream.Puzzle{}, io.EOF
	}
	next := (*p)[0]
	*p = (*p)[1:]
	return next, nil
}

func TestPuzzleReplayer(t *testing.T) {
	src := &puzzleSlice{
		{ID: "a", FEN: "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1", Moves: []string{"e2e4", "e7e5", "g1f3"}},
		{ID: "b", FEN: "r3k2r/8/8/8/8/8/8/R3K2R w KQkq - 0 1", Moves: []string{"e1g1", "e8c8"}},
	}
	r := NewPuzzleReplayer(testConfig(), src)
	samples := drain(t, r)

	assert.Equal(t, []string{"e2e4", "e7e5", "g1f3", "e1g1", "e8c8"}, moveUCIs(samples))
	assert.True(t, samples[3].Move.HasTag(chess.KingSideCastle))
	assert.True(t, samples[4].Move.HasTag(chess.QueenSideCastle))
	assert.Equal(t, int64(2), r.Stats().Puzzles)
}

func TestPuzzleReplayer_Invalid(t *testing.T) {
	bad := func() *puzzleSlice {
		return &puzzleSlice{
			{ID: "x", FEN: "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1", Moves: []string{"e2e4", "e2e5", "g1f3"}},
		}
	}

	err := drainErr(NewPuzzleReplayer(testConfig(), bad()))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnresolvedMove))

	cfg := testConfig()
	cfg.Lenient = true
	r := NewPuzzleReplayer(cfg, bad())
	assert.Equal(t, []string{"e2e4"}, moveUCIs(drain(t, r)))
	assert.Equal(t, int64(1), r.Stats().MovesSkipped)

	err = drainErr(NewPuzzleReplayer(testConfig(), &puzzleSlice{{ID: "y", FEN: "not a fen", Moves: []string{"e2e4"}}}))
	assert.Error(t, err)
}

func TestTimeHeuristic(t *testing.T) {
	got, err := timeHeuristic("600+5")
	require.NoError(t, err)
	assert.Equal(t, 750, got)

	_, err = timeHeuristic("600+")
	assert.Error(t, err)
}

func TestNormalizeSAN(t *testing.T) {
	assert.Equal(t, "O-O", normalizeSAN("0-0+"))
	assert.Equal(t, "O-O-O", normalizeSAN("0-0-0"))
	assert.Equal(t, "e8=Q", normalizeSAN("e8Q"))
	assert.Equal(t, "dxe1=N", normalizeSAN("dxe1N#"))
	assert.Equal(t, "Nf3", normalizeSAN("Nf3!?"))
	assert.Equal(t, "Rd1", normalizeSAN("Rd1"))
}

func TestResolveUCI(t *testing.T) {
	pos, err := positionFromFEN("8/4P3/8/8/8/8/k7/4K3 w - - 0 1")
	require.NoError(t, err)

	m, err := resolveUCI(pos, "e7e8q")
	require.NoError(t, err)
	assert.Equal(t, chess.E7, m.S1())
	assert.Equal(t, chess.E8, m.S2())
	assert.Equal(t, chess.Queen, m.Promo())

	m, err = resolveUCI(pos, "E7E8N")
	require.NoError(t, err)
	assert.Equal(t, chess.Knight, m.Promo())

	m, err = resolveUCI(pos, "e1d2")
	require.NoError(t, err)
	assert.Equal(t, chess.D2, m.S2())

	// Well-formed but illegal tokens are rejected, not decoded blindly.
	for _, uci := range []string{"e7e8", "e1e3", "a2a1", "zz"} {
		_, err := resolveUCI(pos, uci)
		assert.True(t, errors.Is(err, ErrUnresolvedMove), "resolveUCI(%q)", uci)
	}
}

func TestResolveSAN(t *testing.T) {
	pos, err := positionFromFEN("r3k2r/8/8/8/8/8/8/R3K2R w KQkq - 0 1")
	require.NoError(t, err)

	m, err := resolveSAN(pos, "0-0")
	require.NoError(t, err)
	assert.True(t, m.HasTag(chess.KingSideCastle))

	m, err = resolveSAN(pos, "Rxa8+")
	require.NoError(t, err)
	assert.Equal(t, chess.A8, m.S2())

	_, err = resolveSAN(pos, "Nf3")
	assert.True(t, errors.Is(err, ErrUnresolvedMove))
}
