package main

import (
	"errors"
	"fmt"
	"os"
)

// errTracesFound signals a clean run that still found panic traces; the
// process exits 2 so CI gates can tell it apart from hard failures.
var errTracesFound = errors.New("panic traces found")

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "check":
		err = cmdCheck(os.Args[2:])
	case "graph":
		err = cmdGraph(os.Args[2:])
	case "crates":
		err = cmdCrates(os.Args[2:])
	case "help", "-h", "--help":
		usage()
		os.Exit(0)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		usage()
		os.Exit(1)
	}

	if errors.Is(err, errTracesFound) {
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `panicscan — find panic paths in Rust binaries

Usage:
  panicscan check  --binary <path> [flags]   Analyze a binary for panic traces
  panicscan graph  --binary <path> [--out <file>]  Write the full call graph as DOT
  panicscan crates --binary <path>               List crates found in the binary

Flags for check:
  --binary <path>        Path to the binary to analyze (required)
  --crates <a,b,…>       Crates to analyze; default is the crate of main
  --config <path>        Configuration file (default: panicscan.toml)
  --callgraph <types>    Write DOT call graphs: full, filtered, or full,filtered
  --full-crate-analysis  Treat every function of the target crates as an entry point
  --verbose              Full stack traces including inlined calls
  --json-stream          One JSON object per trace on stdout
  --silent               No output; exit code only

Exit codes: 0 no panic traces, 1 error, 2 panic traces found.
`)
}
