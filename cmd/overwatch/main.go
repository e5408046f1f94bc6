package main

import (
	"fmt"
	"os"
	"runtime"

	owerr "github.com/odvcencio/overwatch/pkg/errors"
)

// Version information - set via ldflags during build
var (
	version   = "0.1.0-dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	if handled, code := dispatchSubcommand(os.Args[1:]); handled {
		os.Exit(code)
	}
	printHelp()
	os.Exit(2)
}

func dispatchSubcommand(args []string) (bool, int) {
	if len(args) == 0 {
		return false, 0
	}
	switch args[0] {
	case "--version", "-v", "version":
		printVersion()
		return true, 0
	case "--help", "-h", "help":
		printHelp()
		return true, 0
	case "serve":
		return true, runCommand(runServeCommand, args[1:])
	case "simulate":
		return true, runCommand(runSimulateCommand, args[1:])
	case "rules":
		return true, runCommand(runRulesCommand, args[1:])
	case "config":
		return true, runCommand(runConfigCommand, args[1:])
	}
	fmt.Fprintf(os.Stderr, "Error: unknown command %q\n", args[0])
	return true, 2
}

func runCommand(handler func([]string) error, args []string) int {
	if err := handler(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		for _, tip := range owerr.Remediation(err) {
			fmt.Fprintf(os.Stderr, "  hint: %s\n", tip)
		}
		return exitCodeForError(err)
	}
	return 0
}

func printVersion() {
	fmt.Printf("Overwatch %s\n", version)
	if commit != "unknown" {
		fmt.Printf("  Commit:     %s\n", commit)
	}
	if buildDate != "unknown" {
		fmt.Printf("  Built:      %s\n", buildDate)
	}
	fmt.Printf("  Go version: %s\n", runtime.Version())
}

func printHelp() {
	fmt.Println("Overwatch - mission orchestration and compliance gating")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  overwatch <command> [flags]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve              Run the orchestrator with its expiry sweeper and metrics endpoint")
	fmt.Println("  simulate           Drive one mission from draft to completion and print it as JSON")
	fmt.Println("  rules              List every compliance rule in evaluation order")
	fmt.Println("  config             Print the effective configuration as YAML")
	fmt.Println("  version            Show version information")
	fmt.Println()
	fmt.Println("Environment:")
	fmt.Println("  OVERWATCH_CONFIG   Path to overwatch.yaml")
}
