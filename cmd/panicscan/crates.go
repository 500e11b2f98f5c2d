package main

import (
	"flag"
	"fmt"
	"os"
	"sort"

	"panicscan/internal/binload"
)

func cmdCrates(args []string) error {
	fs := flag.NewFlagSet("crates", flag.ExitOnError)
	binary := fs.String("binary", "", "path to binary to analyze")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if *binary == "" {
		return fmt.Errorf("--binary is required")
	}

	ctx, ef, err := binload.Load(*binary)
	if err != nil {
		return err
	}
	defer ef.Close()

	counts := make(map[string]int)
	for _, u := range ctx.Units {
		for _, p := range u.Procedures {
			counts[p.Crate.String()]++
		}
	}
	names := make([]string, 0, len(counts))
	for n := range counts {
		names = append(names, n)
	}
	sort.Strings(names)

	for _, n := range names {
		fmt.Printf("%-50s %d functions\n", n, counts[n])
	}
	if ctx.ToolchainVersion != "" {
		fmt.Fprintf(os.Stderr, "rustc %s\n", ctx.ToolchainVersion)
	}
	return nil
}
