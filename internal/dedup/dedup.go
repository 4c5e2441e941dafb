// Package dedup drops records whose encoded input has already been seen in
// the run and groups the survivors into fixed-size chunks.
//
// Inputs are keyed by their 64-bit xxhash; two distinct inputs with the same
// hash are treated as duplicates. The hash set lives for the whole run and is
// never persisted.
package dedup

import (
	"io"

	"github.com/cespare/xxhash/v2"
	"github.com/rs/zerolog"

	"github.com/leo848/jufo2023/internal/chessenc"
)

// Source yields encoded records; io.EOF ends the stream.
type Source interface {
	Next() (chessenc.Record, error)
}

// Stats counts what the filter and chunker have seen.
type Stats struct {
	Seen       int64 // records pulled from the source
	Duplicates int64 // records dropped as already seen
	Emitted    int64 // records handed downstream in full chunks
	Trailing   int64 // unique records left in the final, incomplete chunk
}

// Filter passes each distinct encoded input once.
type Filter struct {
	src   Source
	seen  map[uint64]struct{} // nil when dedup is disabled
	stats Stats
}

// NewFilter returns a Filter over src. With enabled false every record is
// passed through.
func NewFilter(src Source, enabled bool) *Filter {
	f := &Filter{src: src}
	if enabled {
		f.seen = make(map[uint64]struct{})
	}
	return f
}

// Next returns the next record whose input has not been seen before.
func (f *Filter) Next() (chessenc.Record, error) {
	for {
		rec, err := f.src.Next()
		if err != nil {
			return chessenc.Record{}, err
		}
		f.stats.Seen++
		if f.admit(&rec.Input) {
			return rec, nil
		}
		f.stats.Duplicates++
	}
}

func (f *Filter) admit(in *chessenc.Input) bool {
	if f.seen == nil {
		return true
	}
	h := xxhash.Sum64(in[:])
	if _, ok := f.seen[h]; ok {
		return false
	}
	f.seen[h] = struct{}{}
	return true
}

// Stats returns the counters accumulated so far.
func (f *Filter) Stats() Stats {
	return f.stats
}

// Chunker groups filtered records into chunks of exactly size records.
type Chunker struct {
	f    *Filter
	size int
	log  zerolog.Logger
	buf  []chessenc.Record
	done bool

	emitted  int64
	trailing int64
}

// NewChunker returns a Chunker emitting chunks of size unique records from src.
func NewChunker(src Source, size int, enabled bool, log zerolog.Logger) *Chunker {
	return &Chunker{
		f:    NewFilter(src, enabled),
		size: size,
		log:  log,
	}
}

// Next returns the next full chunk. The returned slice is reused by the
// following call. A final chunk with fewer than size records is dropped and
// io.EOF is returned in its place.
func (c *Chunker) Next() ([]chessenc.Record, error) {
	if c.done {
		return nil, io.EOF
	}
	if c.buf == nil {
		c.buf = make([]chessenc.Record, 0, c.size)
	}
	c.buf = c.buf[:0]
	for len(c.buf) < c.size {
		rec, err := c.f.Next()
		if err == io.EOF {
			c.done = true
			if len(c.buf) > 0 {
				c.trailing = int64(len(c.buf))
				c.log.Info().
					Int("records", len(c.buf)).
					Int("chunk_size", c.size).
					Msg("dropping incomplete final chunk")
			}
			return nil, io.EOF
		}
		if err != nil {
			return nil, err
		}
		c.buf = append(c.buf, rec)
	}
	c.emitted += int64(len(c.buf))
	return c.buf, nil
}

// Stats returns the counters accumulated so far.
func (c *Chunker) Stats() Stats {
	s := c.f.Stats()
	s.Emitted = c.emitted
	s.Trailing = c.trailing
	return s
}
