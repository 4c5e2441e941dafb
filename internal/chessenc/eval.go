package chessenc

import (
	"math"
	"strconv"
	"strings"

	"github.com/chewxy/math32"
	"github.com/pkg/errors"
)

// evalPrefix opens the evaluation annotation inside a move comment,
// e.g. "{ [%eval 0.17] [%clk 0:03:00] }".
const evalPrefix = "[%eval "

// ErrMalformedEval reports an evaluation annotation whose score cannot be read.
var ErrMalformedEval = errors.New("malformed eval annotation")

// Finite scores squash into [squashMin, squashMax], strictly inside (0,1).
var (
	squashMin = math32.Nextafter(0, 1)
	squashMax = math32.Nextafter(1, 0)
)

// Squash maps a score in pawns onto (0,1) with the logistic function.
// Finite scores never reach 0 or 1; mate scores (±Inf) saturate to 1 and 0.
func Squash(x float32) float32 {
	switch {
	case math32.IsInf(x, 1):
		return 1
	case math32.IsInf(x, -1):
		return 0
	}
	s := float32(1 / (1 + math.Exp(-float64(x))))
	if s < squashMin {
		return squashMin
	}
	if s > squashMax {
		return squashMax
	}
	return s
}

// ParseEval extracts the evaluation from a move comment. Mate scores are
// returned as +Inf (white mates) or -Inf (black mates). ok is false when the
// comment carries no evaluation annotation.
func ParseEval(comment string) (score float32, ok bool, err error) {
	i := strings.Index(comment, evalPrefix)
	if i < 0 {
		return 0, false, nil
	}
	rest := comment[i+len(evalPrefix):]
	end := strings.IndexAny(rest, "] \t\r\n")
	if end < 0 {
		end = len(rest)
	}
	tok := rest[:end]

	if strings.HasPrefix(tok, "#") {
		if strings.HasPrefix(tok[1:], "-") {
			return math32.Inf(-1), true, nil
		}
		return math32.Inf(1), true, nil
	}

	v, err := strconv.ParseFloat(tok, 32)
	if err != nil || math32.IsInf(float32(v), 0) || math32.IsNaN(float32(v)) {
		return 0, false, errors.Wrapf(ErrMalformedEval, "score %q", tok)
	}
	return float32(v), true, nil
}
