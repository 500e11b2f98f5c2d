package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"panicscan/internal/analysis"
	"panicscan/internal/binload"
	"panicscan/internal/callgraph"
	"panicscan/internal/config"
	"panicscan/internal/output"
)

func cmdCheck(args []string) error {
	fs := flag.NewFlagSet("check", flag.ExitOnError)
	binary := fs.String("binary", "", "path to binary to analyze")
	crates := fs.String("crates", "", "comma-separated crate names to analyze")
	configPath := fs.String("config", "panicscan.toml", "path to configuration file")
	graphs := fs.String("callgraph", "", "write DOT call graphs: full, filtered, or full,filtered")
	full := fs.Bool("full-crate-analysis", false, "analyze all functions of the target crates")
	verbose := fs.Bool("verbose", false, "full stack traces of panic calls")
	jsonStream := fs.Bool("json-stream", false, "output traces as a JSON stream")
	silent := fs.Bool("silent", false, "no output, exit code only")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if *binary == "" {
		return fmt.Errorf("--binary is required")
	}
	if *silent && (*verbose || *jsonStream) {
		return fmt.Errorf("--silent conflicts with --verbose and --json-stream")
	}

	configRequired := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "config" {
			configRequired = true
		}
	})
	cf, err := config.Load(*configPath, configRequired)
	if err != nil {
		return err
	}

	res, g, err := runAnalysis(*binary, analysis.Options{
		Crates:               splitList(*crates),
		FullCrateAnalysis:    *full,
		WhitelistedFunctions: cf.WhitelistedFunctions,
	})
	if err != nil {
		return err
	}

	if err := output.Print(os.Stdout, res, output.Options{
		Verbose: *verbose,
		JSON:    *jsonStream,
		Silent:  *silent,
	}); err != nil {
		return err
	}

	project := strings.TrimSuffix(filepath.Base(*binary), filepath.Ext(*binary))
	for _, typ := range splitList(*graphs) {
		switch typ {
		case "full":
			path := output.CallGraphFileName(project, "full")
			if err := output.WriteDOT(path, g, nil, project); err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "wrote %s\n", path)
		case "filtered":
			path := output.CallGraphFileName(project, "filtered")
			if err := output.WriteDOT(path, g, output.TraceNodes(res), project); err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "wrote %s\n", path)
		default:
			return fmt.Errorf("unknown callgraph type %q (want full or filtered)", typ)
		}
	}

	if len(res.Traces) > 0 {
		return errTracesFound
	}
	return nil
}

// runAnalysis is the shared load → build → analyze pipeline.
func runAnalysis(binary string, opts analysis.Options) (*analysis.Result, *callgraph.Graph, error) {
	ctx, ef, err := binload.Load(binary)
	if err != nil {
		return nil, nil, err
	}
	defer ef.Close()

	nprocs := 0
	for _, u := range ctx.Units {
		nprocs += len(u.Procedures)
	}
	fmt.Fprintf(os.Stderr, "loaded %d compilation units, %d procedures", len(ctx.Units), nprocs)
	if ctx.ToolchainVersion != "" {
		fmt.Fprintf(os.Stderr, " (rustc %s)", ctx.ToolchainVersion)
	}
	fmt.Fprintln(os.Stderr)

	g := callgraph.NewBuilder().Build(ctx)
	fmt.Fprintf(os.Stderr, "call graph: %d nodes, %d edges, %d unresolved dynamic call sites\n",
		g.NumNodes(), g.NumEdges(), len(g.UnresolvedSites()))

	info := callgraph.CompilationInfo{
		SourceDirs:  ctx.CompilationDirs(),
		RustVersion: ctx.ToolchainVersion,
	}
	res := analysis.FindPanics(g, info, opts)
	if len(res.TargetCrates) > 0 {
		fmt.Fprintf(os.Stderr, "analysis targets: %s\n", strings.Join(res.TargetCrates, ", "))
	}
	return res, g, nil
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
