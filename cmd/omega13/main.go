// Package main provides the omega13 CLI.
package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/b08x/omega-13/internal/config"
	"github.com/b08x/omega-13/internal/engine"
	"github.com/b08x/omega-13/internal/history"
	"github.com/b08x/omega-13/internal/trigger"
)

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		return engine.Run(nil, stdout, stderr)
	}

	switch args[0] {
	case "help", "-h", "--help":
		return runHelp(args[1:], stdout, stderr)
	case "run":
		return engine.Run(args[1:], stdout, stderr)
	case "toggle", "--toggle":
		return runToggle(stdout)
	case "devices":
		return engine.Run([]string{"--list-devices"}, stdout, stderr)
	case "history":
		return history.Run(args[1:], defaultHistoryDB(), stdout, stderr)
	default:
		// Bare flags go to the engine, matching `omega13 --auto` usage.
		if len(args[0]) > 0 && args[0][0] == '-' {
			return engine.Run(args, stdout, stderr)
		}
		return fmt.Errorf("unknown command: %s", args[0])
	}
}

func runToggle(stdout io.Writer) error {
	if err := trigger.SendToggle(trigger.PIDPath()); err != nil {
		return err
	}
	fmt.Fprintln(stdout, "Toggle sent.")
	return nil
}

func defaultHistoryDB() string {
	cfg, err := config.Load(config.FindConfigFile(""))
	if err != nil {
		cfg = config.Default()
	}
	return history.DefaultPath(config.ExpandPath(cfg.Sessions.TempRoot))
}

func runHelp(args []string, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		printUsage(stdout)
		return nil
	}

	switch args[0] {
	case "history":
		history.Usage(stdout)
		return nil
	case "run", "toggle", "devices":
		printUsage(stdout)
		return nil
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", args[0])
		printUsage(stderr)
		return fmt.Errorf("unknown command: %s", args[0])
	}
}

func printUsage(w io.Writer) {
	name := filepath.Base(os.Args[0])
	fmt.Fprintf(w, "Usage: %s [command] [flags]\n", name)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  run        Start the retroactive recorder (default)")
	fmt.Fprintln(w, "  toggle     Start/stop recording in a running instance")
	fmt.Fprintln(w, "  devices    List audio input devices")
	fmt.Fprintln(w, "  history    Query archived transcripts by time window")
	fmt.Fprintln(w, "  help       Show help for a command")
}
