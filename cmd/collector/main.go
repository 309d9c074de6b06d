// Command collector is the observatory's single binary: it runs the live
// collection loop or a historical backfill (spec.md §6's CLI surface) and,
// in live mode, serves the query API alongside it.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	err := Execute(ctx)
	os.Exit(exitCode(ctx, err))
}

// exitCode maps a run's outcome to spec.md §6's exit code contract: 0 clean,
// 1 configuration error, 2 unrecoverable runtime error, 130 cancelled.
func exitCode(ctx context.Context, err error) int {
	if err == nil {
		return 0
	}

	var ce *configError
	if errors.As(err, &ce) {
		log.Error().Err(ce.err).Msg("configuration error")
		return 1
	}

	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		log.Info().Msg("collector cancelled")
		return 130
	}

	log.Error().Err(err).Msg("unrecoverable runtime error")
	return 2
}
