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

func runCheck(args []string) int {
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 5*time.Minute, "Command timeout")
	textThreshold := fs.Float64("text-threshold", -1, "Override TEXT_THRESHOLD for this report")
	imageThreshold := fs.Float64("image-threshold", -1, "Override IMAGE_THRESHOLD for this report")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
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

	records, err := rt.pool.ListHashes(ctx, "")
	if err != nil {
		rt.logger.Error().Err(err).Msg("hash listing failed")
		fmt.Fprintf(os.Stderr, "Failed to load hashes: %v\n", err)
		return 1
	}

	text := rt.cfg.TextThreshold
	if *textThreshold >= 0 {
		text = *textThreshold
	}
	image := rt.cfg.ImageThreshold
	if *imageThreshold >= 0 {
		image = *imageThreshold
	}

	fmt.Println(review.GenerateReport(records, text, image))
	return 0
}
