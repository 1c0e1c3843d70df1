package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"horse.fit/echocave/internal/cli"
	"horse.fit/echocave/internal/review"
)

func runCompare(args []string) int {
	fs := flag.NewFlagSet("compare", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 5*time.Minute, "Command timeout")
	threshold := fs.Float64("threshold", 80, "Jaccard keyword-overlap threshold in [0,100]")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if *threshold < 0 || *threshold > 100 {
		fmt.Fprintln(os.Stderr, "--threshold must be within [0,100]")
		return 2
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	rt, err := bootstrap(ctx, envLoader)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed: %v\n", err)
		return 1
	}
	defer rt.close()

	metas, err := rt.pool.ListAllMeta(ctx)
	if err != nil {
		rt.logger.Error().Err(err).Msg("meta listing failed")
		fmt.Fprintf(os.Stderr, "Failed to load metadata: %v\n", err)
		return 1
	}

	fmt.Println(review.GenerateKeywordReport(metas, *threshold))
	return 0
}
