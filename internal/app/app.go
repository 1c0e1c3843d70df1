package app

import (
	"fmt"
	"os"
	"strings"
)

// Run executes the CLI command and returns a process exit code.
func Run(args []string) int {
	if len(args) == 0 {
		printUsage()
		return 2
	}

	switch strings.ToLower(strings.TrimSpace(args[0])) {
	case "help", "--help", "-h":
		printUsage()
		return 0
	case "health":
		return runHealth(args[1:])
	case "ingest":
		return runIngest(args[1:])
	case "check":
		return runCheck(args[1:])
	case "compare":
		return runCompare(args[1:])
	case "hash":
		return runHash(args[1:])
	case "ai":
		return runAI(args[1:])
	case "fix":
		return runFix(args[1:])
	case "serve":
		return runServe(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", args[0])
		printUsage()
		return 2
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "echocave CLI")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  echocave <command> [flags]")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Commands:")
	fmt.Fprintln(os.Stderr, "  health   Verify database connectivity")
	fmt.Fprintln(os.Stderr, "  ingest   Run one submission through the moderation pipeline")
	fmt.Fprintln(os.Stderr, "  check    Print the similarity cluster report over stored hashes")
	fmt.Fprintln(os.Stderr, "  compare  Print the keyword cluster report over AI metadata")
	fmt.Fprintln(os.Stderr, "  hash     Rebuild hash records for active entries")
	fmt.Fprintln(os.Stderr, "  ai       Backfill AI metadata for active entries missing it")
	fmt.Fprintln(os.Stderr, "  fix      Sweep stale preload rows and orphaned hash/meta rows")
	fmt.Fprintln(os.Stderr, "  serve    Start the admin API server")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Use \"echocave <command> -h\" for command-specific flags.")
}
