package history

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

const usageExample = `
Usage: omega13 history [--db path] <N> <unit>

Examples:
  omega13 history 20 min
  omega13 history 3 hours
  omega13 history 2 days
`

var errUsage = errors.New("invalid usage")

// Run executes the history subcommand: print transcripts from the
// trailing time window, oldest first.
func Run(args []string, defaultDB string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	fs.SetOutput(stderr)
	dbPath := fs.String("db", defaultDB, "history database path")
	if err := fs.Parse(args); err != nil {
		return err
	}
	remaining := fs.Args()
	if len(remaining) < 2 {
		Usage(stderr)
		return errUsage
	}

	n, err := strconv.Atoi(remaining[0])
	if err != nil || n <= 0 {
		return fmt.Errorf("invalid N %q", remaining[0])
	}
	window, err := parseUnit(remaining[1], n)
	if err != nil {
		return err
	}

	store, err := Open(*dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	entries, err := store.Since(time.Now().Add(-window))
	if err != nil {
		return fmt.Errorf("failed to query history: %w", err)
	}

	for _, e := range entries {
		fmt.Fprintf(stdout, "%s [%s #%d] %s\n",
			e.CreatedAt.Local().Format("2006/01/02 15:04:05"),
			e.SessionID, e.Ordinal, e.Text)
	}
	return nil
}

// Usage prints help for the history subcommand.
func Usage(w io.Writer) {
	fmt.Fprint(w, usageExample)
}

func parseUnit(unit string, n int) (time.Duration, error) {
	switch strings.ToLower(strings.TrimSuffix(unit, "s")) {
	case "min", "minute":
		return time.Duration(n) * time.Minute, nil
	case "hour", "hr":
		return time.Duration(n) * time.Hour, nil
	case "day":
		return time.Duration(n) * 24 * time.Hour, nil
	case "week":
		return time.Duration(n) * 7 * 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("unrecognized unit %q", unit)
	}
}
