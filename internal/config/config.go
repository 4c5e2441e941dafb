// Package config holds the run configuration shared by every pipeline stage.
//
// A Config is built once in main, validated before any file is touched and
// then passed by pointer to the components that need it.
package config

import (
	"os"
	"path/filepath"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// LabelKind selects what the label array of each record holds.
type LabelKind int

const (
	// MoveLabels stores the played move as from*64+to (uint16).
	MoveLabels LabelKind = iota
	// EvalLabels stores the squashed engine evaluation (float32).
	EvalLabels
)

func (k LabelKind) String() string {
	switch k {
	case MoveLabels:
		return "moves"
	case EvalLabels:
		return "evals"
	default:
		return "unknown"
	}
}

// Phase restricts which positions of a game are recorded.
type Phase int

const (
	PhaseAll Phase = iota
	PhaseOpening
	PhaseMiddlegame
	PhaseEndgame
)

func (p Phase) String() string {
	switch p {
	case PhaseAll:
		return "all"
	case PhaseOpening:
		return "opening"
	case PhaseMiddlegame:
		return "middlegame"
	case PhaseEndgame:
		return "endgame"
	default:
		return "unknown"
	}
}

// ParsePhase parses a phase name as accepted on the command line.
func ParsePhase(s string) (Phase, error) {
	switch s {
	case "", "all":
		return PhaseAll, nil
	case "opening", "openings":
		return PhaseOpening, nil
	case "middlegame":
		return PhaseMiddlegame, nil
	case "endgame", "endgames":
		return PhaseEndgame, nil
	}
	return PhaseAll, errors.Errorf("unknown phase %q", s)
}

// Default thresholds.
const (
	DefaultMinElo          = 1500
	DefaultMinTime         = 300
	DefaultChunkSize       = 500_000
	DefaultMaxShards       = 40
	DefaultOpeningMaterial = 62
	DefaultEndgameMaterial = 26
	DefaultProgressEvery   = 1024
)

// Sentinel precondition errors.
var (
	ErrOutputExists = errors.New("output directory already exists")
	ErrSameOutput   = errors.New("inputs and labels directories are the same")
	ErrNotDivisible = errors.New("total records not divisible by chunk size")
)

// Config configures one pipeline run.
type Config struct {
	Labels LabelKind

	// Game filters.
	MinElo         int   // Games with any *Elo header below this are skipped
	MinTime        int   // Games with base+30*inc below this many seconds are skipped
	OnlyCheckmates bool  // Keep only decisive games that end in checkmate
	Phase          Phase // Record only positions of this phase
	SamplePerGame  int   // Keep at most this many pairs per game (0 = all)
	Seed           int64 // Seed for per-game sampling
	Lenient        bool  // Skip unresolvable moves instead of failing

	// Material bounds used to classify the phase of a position.
	OpeningMaterial int // material >= this is opening
	EndgameMaterial int // material <= this is endgame

	// Output.
	Dedup         bool
	ChunkSize     int    // Records per shard
	MaxShards     int    // Maximum number of shards written
	TotalRecords  int    // When set, MaxShards = TotalRecords / ChunkSize
	InputsDir     string // Directory receiving the encoded-input arrays
	LabelsDir     string // Directory receiving the label arrays
	DryRun        bool   // Count records without writing anything
	ProgressEvery int    // Report progress every N records

	Logger zerolog.Logger
}

// Default returns a Config with the standard thresholds filled in.
func Default() Config {
	return Config{
		Labels:          MoveLabels,
		MinElo:          DefaultMinElo,
		MinTime:         DefaultMinTime,
		Phase:           PhaseAll,
		OpeningMaterial: DefaultOpeningMaterial,
		EndgameMaterial: DefaultEndgameMaterial,
		Dedup:           true,
		ChunkSize:       DefaultChunkSize,
		MaxShards:       DefaultMaxShards,
		ProgressEvery:   DefaultProgressEvery,
		Logger:          zerolog.Nop(),
	}
}

// Shards returns the number of shards the run may write.
func (c *Config) Shards() int {
	if c.TotalRecords > 0 && c.ChunkSize > 0 {
		return c.TotalRecords / c.ChunkSize
	}
	return c.MaxShards
}

// MaxRecords returns the number of records the run may write.
func (c *Config) MaxRecords() int {
	return c.Shards() * c.ChunkSize
}

// Validate checks every precondition that must hold before any I/O happens.
// All problems are reported together.
func (c *Config) Validate() error {
	var result *multierror.Error

	if c.ChunkSize <= 0 {
		result = multierror.Append(result, errors.Errorf("chunk size must be positive, got %d", c.ChunkSize))
	}
	if c.TotalRecords > 0 && c.ChunkSize > 0 && c.TotalRecords%c.ChunkSize != 0 {
		result = multierror.Append(result, errors.Wrapf(ErrNotDivisible, "%d records / %d per shard", c.TotalRecords, c.ChunkSize))
	}
	if c.Shards() <= 0 {
		result = multierror.Append(result, errors.Errorf("shard count must be positive, got %d", c.Shards()))
	}
	if c.SamplePerGame < 0 {
		result = multierror.Append(result, errors.Errorf("sample per game must not be negative, got %d", c.SamplePerGame))
	}
	if c.ProgressEvery <= 0 {
		result = multierror.Append(result, errors.Errorf("progress interval must be positive, got %d", c.ProgressEvery))
	}
	if c.Phase != PhaseAll && c.EndgameMaterial >= c.OpeningMaterial {
		result = multierror.Append(result, errors.Errorf("endgame material %d must be below opening material %d", c.EndgameMaterial, c.OpeningMaterial))
	}

	if !c.DryRun {
		result = multierror.Append(result, c.validateOutput())
	}
	return result.ErrorOrNil()
}

func (c *Config) validateOutput() error {
	if c.InputsDir == "" || c.LabelsDir == "" {
		return errors.New("inputs and labels directories are required")
	}
	if filepath.Clean(c.InputsDir) == filepath.Clean(c.LabelsDir) {
		return errors.Wrap(ErrSameOutput, c.InputsDir)
	}
	var result *multierror.Error
	for _, dir := range []string{c.InputsDir, c.LabelsDir} {
		if _, err := os.Stat(dir); err == nil {
			result = multierror.Append(result, errors.Wrap(ErrOutputExists, dir))
		} else if !os.IsNotExist(err) {
			result = multierror.Append(result, errors.Wrapf(err, "stat %s", dir))
		}
	}
	return result.ErrorOrNil()
}
