// Package fetch downloads a monthly lichess game database and decompresses
// it to a plain PGN file.
package fetch

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

const (
	DefaultBaseURL   = "https://database.lichess.org/standard/"
	DefaultChunkSize = 100 << 20 // bytes per range request
)

var (
	ErrUnexpectedStatus = errors.New("unexpected server response")
	ErrNoLength         = errors.New("response doesn't include the content length")
	ErrBadRetryAfter    = errors.New("missing or invalid Retry-After header")
)

// Config configures a Downloader.
type Config struct {
	BaseURL   string       // Directory URL of the monthly databases
	Month     string       // Database month, YYYY-MM
	Dir       string       // Directory receiving the files
	ChunkSize int64        // Bytes per range request
	Client    *http.Client // HTTP client
	Logger    zerolog.Logger
}

// Downloader fetches one monthly database.
type Downloader struct {
	cfg   Config
	log   zerolog.Logger
	sleep func(context.Context, time.Duration) error
}

// New returns a Downloader, filling in defaults.
func New(cfg Config) (*Downloader, error) {
	if _, err := time.Parse("2006-01", cfg.Month); err != nil {
		return nil, errors.Errorf("month %q is not YYYY-MM", cfg.Month)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Dir == "" {
		cfg.Dir = "."
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: 30 * time.Minute}
	}
	return &Downloader{cfg: cfg, log: cfg.Logger, sleep: sleepCtx}, nil
}

// URL returns the address of the compressed database.
func (d *Downloader) URL() string {
	return d.cfg.BaseURL + "lichess_db_standard_rated_" + d.cfg.Month + ".pgn.zst"
}

// Paths returns the compressed and decompressed file paths.
func (d *Downloader) Paths() (compressed, plain string) {
	plain = filepath.Join(d.cfg.Dir, "database-"+d.cfg.Month+".pgn")
	return plain + ".zst", plain
}

// Run downloads the database in range chunks, decompresses it and removes
// the compressed file. It returns the path of the PGN file.
func (d *Downloader) Run(ctx context.Context) (string, error) {
	compressed, plain := d.Paths()
	if err := d.Download(ctx, compressed); err != nil {
		return "", err
	}
	if err := Decompress(compressed, plain); err != nil {
		return "", err
	}
	if err := os.Remove(compressed); err != nil {
		return "", errors.Wrapf(err, "remove %s", compressed)
	}
	d.log.Info().Str("file", plain).Msg("database saved")
	return plain, nil
}

// Download writes the compressed database to path.
func (d *Downloader) Download(ctx context.Context, path string) error {
	url := d.URL()
	length, err := d.contentLength(ctx, url)
	if err != nil {
		return err
	}
	d.log.Info().
		Str("url", url).
		Str("size", humanize.Bytes(uint64(length))).
		Msg("downloading database")

	out, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "create %s", path)
	}
	defer out.Close()

	start := time.Now()
	for from := int64(0); from < length; {
		to := from + d.cfg.ChunkSize - 1
		if to >= length {
			to = length - 1
		}
		n, whole, err := d.fetchRange(ctx, url, from, to, out)
		if err != nil {
			return err
		}
		if whole {
			break
		}
		if n == 0 {
			return errors.Errorf("empty range at byte %d", from)
		}
		from += n
		d.log.Debug().
			Str("done", humanize.Bytes(uint64(from))).
			Str("total", humanize.Bytes(uint64(length))).
			Msg("download progress")
	}
	if err := out.Close(); err != nil {
		return errors.Wrapf(err, "close %s", path)
	}
	d.log.Info().Dur("elapsed", time.Since(start)).Msg("download complete")
	return nil
}

func (d *Downloader) contentLength(ctx context.Context, url string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return 0, err
	}
	resp, err := d.cfg.Client.Do(req)
	if err != nil {
		return 0, errors.Wrap(err, "head")
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, errors.Wrapf(ErrUnexpectedStatus, "head: %s", resp.Status)
	}
	length, err := strconv.ParseInt(resp.Header.Get("Content-Length"), 10, 64)
	if err != nil {
		length = resp.ContentLength
	}
	if length <= 0 {
		return 0, ErrNoLength
	}
	return length, nil
}

// fetchRange copies bytes from..to of url into out. whole reports that the
// server ignored the range and sent the complete file.
func (d *Downloader) fetchRange(ctx context.Context, url string, from, to int64, out io.Writer) (n int64, whole bool, err error) {
	resp, err := d.get(ctx, url, from, to)
	if err != nil {
		return 0, false, err
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		resp.Body.Close()
		wait, err := retryAfter(resp)
		if err != nil {
			return 0, false, err
		}
		d.log.Warn().Dur("retry_after", wait).Msg("too many requests, retrying")
		if err := d.sleep(ctx, wait); err != nil {
			return 0, false, err
		}
		if resp, err = d.get(ctx, url, from, to); err != nil {
			return 0, false, err
		}
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		whole = true
	case http.StatusPartialContent:
	default:
		return 0, false, errors.Wrapf(ErrUnexpectedStatus, "bytes %d-%d: %s", from, to, resp.Status)
	}
	n, err = io.Copy(out, resp.Body)
	if err != nil {
		return n, whole, errors.Wrapf(err, "bytes %d-%d", from, to)
	}
	return n, whole, nil
}

func (d *Downloader) get(ctx context.Context, url string, from, to int64) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Range", "bytes="+strconv.FormatInt(from, 10)+"-"+strconv.FormatInt(to, 10))
	resp, err := d.cfg.Client.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "get bytes %d-%d", from, to)
	}
	return resp, nil
}

func retryAfter(resp *http.Response) (time.Duration, error) {
	secs, err := strconv.Atoi(resp.Header.Get("Retry-After"))
	if err != nil || secs < 0 {
		return 0, ErrBadRetryAfter
	}
	return time.Duration(secs) * time.Second, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Decompress writes the zstd stream in src to dst.
func Decompress(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return errors.Wrapf(err, "open %s", src)
	}
	defer in.Close()

	dec, err := zstd.NewReader(in)
	if err != nil {
		return errors.Wrapf(err, "zstd %s", src)
	}
	defer dec.Close()

	out, err := os.Create(dst)
	if err != nil {
		return errors.Wrapf(err, "create %s", dst)
	}
	defer out.Close()

	if _, err := io.Copy(out, dec); err != nil {
		return errors.Wrapf(err, "decompress %s", src)
	}
	return errors.Wrapf(out.Close(), "close %s", dst)
}
