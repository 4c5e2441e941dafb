package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"

	"github.com/leo848/jufo2023/internal/config"
	"github.com/leo848/jufo2023/internal/logx"
	"github.com/leo848/jufo2023/internal/pipeline"
)

func main() {
	defaults := config.Default()
	defaultMinElo := envInt("JUFO_MIN_ELO", defaults.MinElo)
	defaultMinTime := envInt("JUFO_MIN_TIME", defaults.MinTime)

	var (
		labels          = flag.String("labels", "moves", "Label kind: moves or evals")
		minElo          = flag.Int("min-elo", defaultMinElo, "Skip games with any rating below this")
		minTime         = flag.Int("min-time", defaultMinTime, "Skip games whose base+30*increment is below this many seconds")
		onlyCheckmates  = flag.Bool("only-checkmates", false, "Keep only decisive games ending in checkmate")
		phase           = flag.String("phase", "all", "Record only positions of this phase: all, opening, middlegame, endgame")
		openingMaterial = flag.Int("opening-material", defaults.OpeningMaterial, "Material at or above which a position is opening")
		endgameMaterial = flag.Int("endgame-material", defaults.EndgameMaterial, "Material at or below which a position is endgame")
		sample          = flag.Int("sample", 0, "Keep at most this many random positions per game (0 = all)")
		seed            = flag.Int64("seed", 0, "Seed for per-game sampling")
		lenient         = flag.Bool("lenient", false, "Skip moves that cannot be resolved instead of failing")
		noDedup         = flag.Bool("no-dedup", false, "Keep duplicate positions")
		chunkSize       = flag.Int("chunk-size", defaults.ChunkSize, "Records per shard")
		maxShards       = flag.Int("max-shards", defaults.MaxShards, "Maximum number of shards")
		total           = flag.Int("total", 0, "Total records to write; must be divisible by --chunk-size (overrides --max-shards)")
		inputsDir       = flag.String("inputs-dir", "", "Output directory for encoded positions (must not exist)")
		labelsDir       = flag.String("labels-dir", "", "Output directory for labels (must not exist)")
		dryRun          = flag.Bool("dry-run", false, "Count records without writing anything")
		progressEvery   = flag.Int("progress-every", defaults.ProgressEvery, "Log progress every N records")
	)
	flag.Parse()

	if flag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "Usage: encode [options] <games.pgn[.zst]|puzzles.csv[.zst]>...")
		flag.PrintDefaults()
		os.Exit(1)
	}

	logger := logx.NewLogger()

	cfg := defaults
	cfg.MinElo = *minElo
	cfg.MinTime = *minTime
	cfg.OnlyCheckmates = *onlyCheckmates
	cfg.OpeningMaterial = *openingMaterial
	cfg.EndgameMaterial = *endgameMaterial
	cfg.SamplePerGame = *sample
	cfg.Seed = *seed
	cfg.Lenient = *lenient
	cfg.Dedup = !*noDedup
	cfg.ChunkSize = *chunkSize
	cfg.MaxShards = *maxShards
	cfg.TotalRecords = *total
	cfg.InputsDir = *inputsDir
	cfg.LabelsDir = *labelsDir
	cfg.DryRun = *dryRun
	cfg.ProgressEvery = *progressEvery
	cfg.Logger = logger

	switch *labels {
	case "moves":
		cfg.Labels = config.MoveLabels
	case "evals":
		cfg.Labels = config.EvalLabels
	default:
		logger.Fatal().Str("labels", *labels).Msg("unknown label kind")
	}
	p, err := config.ParsePhase(*phase)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse phase")
	}
	cfg.Phase = p

	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	logger.Info().
		Strs("inputs", flag.Args()).
		Stringer("labels", cfg.Labels).
		Stringer("phase", cfg.Phase).
		Int("min_elo", cfg.MinElo).
		Int("min_time", cfg.MinTime).
		Bool("only_checkmates", cfg.OnlyCheckmates).
		Bool("dedup", cfg.Dedup).
		Bool("dry_run", cfg.DryRun).
		Msg("starting encode")

	if err := run(&cfg, flag.Args(), os.Stdout); err != nil {
		logger.Fatal().Err(err).Msg("encode failed")
	}
}

// run encodes every input into shards and logs the summary. Dry runs print
// the record count to out.
func run(cfg *config.Config, paths []string, out io.Writer) error {
	in, err := pipeline.OpenInputs(cfg, paths)
	if err != nil {
		return errors.Wrap(err, "open inputs")
	}
	defer in.Close()

	res, err := pipeline.Run(cfg, in)
	if err != nil {
		return err
	}

	st := in.Stats()
	cfg.Logger.Info().
		Str("games", humanize.Comma(st.Games)).
		Str("puzzles", humanize.Comma(st.Puzzles)).
		Int64("filtered", st.Filtered).
		Int64("discarded", st.Discarded).
		Int64("no_evals", st.NoEvals).
		Int64("moves_skipped", st.MovesSkipped).
		Str("samples", humanize.Comma(st.Samples)).
		Str("records", humanize.Comma(res.Records)).
		Int("shards", res.Shards).
		Dur("elapsed", res.Elapsed).
		Msg("encode complete")

	if cfg.DryRun {
		fmt.Fprintln(out, res.Records)
	}
	return in.Close()
}

func envInt(name string, def int) int {
	if v := os.Getenv(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
