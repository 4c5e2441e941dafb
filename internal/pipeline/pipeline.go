// Package pipeline runs one encoding pass: samples are encoded into records,
// deduplicated, grouped into chunks and written as shards.
package pipeline

import (
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"

	"github.com/leo848/jufo2023/internal/chessenc"
	"github.com/leo848/jufo2023/internal/config"
	"github.com/leo848/jufo2023/internal/dedup"
	"github.com/leo848/jufo2023/internal/replay"
	"github.com/leo848/jufo2023/internal/shard"
)

// SampleSource yields replayed samples; io.EOF ends the stream.
type SampleSource interface {
	Next() (replay.Sample, error)
}

// Result summarises a run.
type Result struct {
	Records int64 // records written, or counted in a dry run
	Shards  int   // shards written
	Dedup   dedup.Stats
	Elapsed time.Duration
}

// Run validates cfg and drives src through the pipeline. In a dry run every
// unique record is counted and nothing is written.
func Run(cfg *config.Config, src SampleSource) (Result, error) {
	if err := cfg.Validate(); err != nil {
		return Result{}, err
	}
	log := cfg.Logger
	start := time.Now()
	enc := NewEncoder(src, cfg.Labels)

	if cfg.DryRun {
		res, err := count(cfg, enc)
		res.Elapsed = time.Since(start)
		if err != nil {
			return res, err
		}
		log.Info().
			Str("records", humanize.Comma(res.Records)).
			Str("duplicates", humanize.Comma(res.Dedup.Duplicates)).
			Dur("elapsed", res.Elapsed).
			Msg("dry run complete")
		return res, nil
	}

	w := shard.NewWriter(cfg)
	if err := w.Create(); err != nil {
		return Result{}, err
	}
	log.Info().
		Str("inputs", cfg.InputsDir).
		Str("labels", cfg.LabelsDir).
		Stringer("label_kind", cfg.Labels).
		Int("chunk_size", cfg.ChunkSize).
		Int("max_shards", cfg.Shards()).
		Msg("writing shards")

	chunks := dedup.NewChunker(enc, cfg.ChunkSize, cfg.Dedup, log)
	n, err := w.Run(chunks)
	res := Result{
		Records: int64(n) * int64(cfg.ChunkSize),
		Shards:  n,
		Dedup:   chunks.Stats(),
		Elapsed: time.Since(start),
	}
	if err != nil {
		return res, errors.Wrapf(err, "shard %d", n)
	}
	log.Info().
		Int("shards", res.Shards).
		Str("records", humanize.Comma(res.Records)).
		Str("duplicates", humanize.Comma(res.Dedup.Duplicates)).
		Int64("trailing_dropped", res.Dedup.Trailing).
		Dur("elapsed", res.Elapsed).
		Msg("shards complete")
	if n < cfg.Shards() {
		log.Warn().Int("shards", n).Int("max_shards", cfg.Shards()).Msg("input exhausted before shard limit")
	}
	return res, nil
}

func count(cfg *config.Config, enc *Encoder) (Result, error) {
	f := dedup.NewFilter(enc, cfg.Dedup)
	var res Result
	for {
		_, err := f.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			res.Dedup = f.Stats()
			return res, err
		}
		res.Records++
		if res.Records%int64(cfg.ProgressEvery) == 0 {
			cfg.Logger.Debug().Int64("records", res.Records).Msg("counting")
		}
	}
	res.Dedup = f.Stats()
	return res, nil
}

// Encoder turns samples into encoded records.
type Encoder struct {
	src    SampleSource
	labels config.LabelKind
}

// NewEncoder returns an Encoder labelling records with kind.
func NewEncoder(src SampleSource, kind config.LabelKind) *Encoder {
	return &Encoder{src: src, labels: kind}
}

// Next returns the next encoded record.
func (e *Encoder) Next() (chessenc.Record, error) {
	s, err := e.src.Next()
	if err != nil {
		return chessenc.Record{}, err
	}
	rec := chessenc.Record{Input: chessenc.EncodePosition(s.Position)}
	switch e.labels {
	case config.MoveLabels:
		rec.Move = chessenc.EncodeMove(s.Move)
	case config.EvalLabels:
		rec.Eval = chessenc.Squash(s.Eval)
	}
	return rec, nil
}
