package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/leo848/jufo2023/internal/fetch"
	"github.com/leo848/jufo2023/internal/logx"
)

func main() {
	var (
		month     = flag.String("month", "", "Database month, YYYY-MM")
		dir       = flag.String("dir", ".", "Directory receiving the database")
		baseURL   = flag.String("base-url", fetch.DefaultBaseURL, "URL of the monthly database listing")
		chunkSize = flag.Int64("chunk-size", fetch.DefaultChunkSize, "Bytes per range request")
	)
	flag.Parse()

	if *month == "" {
		fmt.Fprintln(os.Stderr, "Usage: fetch-db --month YYYY-MM [options]")
		flag.PrintDefaults()
		os.Exit(1)
	}

	logger := logx.NewLogger()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	d, err := fetch.New(fetch.Config{
		BaseURL:   *baseURL,
		Month:     *month,
		Dir:       *dir,
		ChunkSize: *chunkSize,
		Logger:    logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("configure download")
	}

	path, err := d.Run(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("fetch database")
	}
	fmt.Println(path)
}
