package shard

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
)

// Progress logs throughput every few records: count/total, percentage,
// per-record cost and an ETA derived from the running average.
type Progress struct {
	log   zerolog.Logger
	total int
	every int
	count int
	start time.Time
	now   func() time.Time
}

// NewProgress returns a Progress expecting total records and logging every
// every records.
func NewProgress(log zerolog.Logger, total, every int) *Progress {
	if every <= 0 {
		every = 1
	}
	return &Progress{
		log:   log,
		total: total,
		every: every,
		start: time.Now(),
		now:   time.Now,
	}
}

// Add records n more written records.
func (p *Progress) Add(n int) {
	before := p.count / p.every
	p.count += n
	if p.count/p.every == before {
		return
	}
	elapsed := p.now().Sub(p.start)
	perRecord := elapsed / time.Duration(p.count)
	remaining := p.total - p.count
	if remaining < 0 {
		remaining = 0
	}
	var percent float64
	if p.total > 0 {
		percent = float64(p.count) * 100 / float64(p.total)
	}
	p.log.Info().
		Str("records", humanize.Comma(int64(p.count))+"/"+humanize.Comma(int64(p.total))).
		Str("percent", fmt.Sprintf("%.3f%%", percent)).
		Dur("elapsed", elapsed).
		Dur("per_record", perRecord).
		Str("eta", formatETA(perRecord*time.Duration(remaining))).
		Msg("writing shards")
}

// Count returns the number of records reported so far.
func (p *Progress) Count() int {
	return p.count
}

// formatETA renders d as H:MM:SS.
func formatETA(d time.Duration) string {
	s := int64(d / time.Second)
	return fmt.Sprintf("%d:%02d:%02d", s/3600, s%3600/60, s%60)
}
