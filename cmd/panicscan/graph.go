package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"panicscan/internal/binload"
	"panicscan/internal/callgraph"
	"panicscan/internal/output"
)

func cmdGraph(args []string) error {
	fs := flag.NewFlagSet("graph", flag.ExitOnError)
	binary := fs.String("binary", "", "path to binary to analyze")
	out := fs.String("out", "", "output DOT file (default: panicscan-callgraph-<project>-full.dot)")

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

	g := callgraph.NewBuilder().Build(ctx)
	fmt.Fprintf(os.Stderr, "call graph: %d nodes, %d edges\n", g.NumNodes(), g.NumEdges())

	project := strings.TrimSuffix(filepath.Base(*binary), filepath.Ext(*binary))
	path := *out
	if path == "" {
		path = output.CallGraphFileName(project, "full")
	}
	if err := output.WriteDOT(path, g, nil, project); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "wrote %s\n", path)
	return nil
}
