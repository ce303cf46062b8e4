// Package main provides yaradbctl, a thin non-interactive admin CLI over
// a yaradb data directory: force a checkpoint, print table/document
// stats, dump the live documents (snapshot plus replayed WAL), or wipe
// all data. It has no text-editing surface, so unlike tk it has no
// interactive editor mode (see SPEC_FULL.md's dropped-dependency table
// for why that means liner stays out).
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	flag "github.com/spf13/pflag"

	"github.com/yaradb/yaradb/pkg/yaradb"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		printUsage(stderr)
		return 2
	}

	sub, rest := args[0], args[1:]

	switch sub {
	case "checkpoint":
		return runCheckpoint(rest, stdout, stderr)
	case "stats":
		return runStats(rest, stdout, stderr)
	case "dump":
		return runDump(rest, stdout, stderr)
	case "wipe":
		return runWipe(rest, stdout, stderr)
	case "-h", "--help", "help":
		printUsage(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "yaradbctl: unknown command %q\n", sub)
		printUsage(stderr)
		return 2
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: yaradbctl <checkpoint|stats|dump|wipe> [--data-dir DIR]")
	fmt.Fprintln(w, "  checkpoint   run a checkpoint (snapshot + WAL truncate) and exit")
	fmt.Fprintln(w, "  stats        print per-table document counts, index counts and read-only flags")
	fmt.Fprintln(w, "  dump         print the current live document set as JSON")
	fmt.Fprintln(w, "  wipe         clear all data (documents, tables, indexes) irreversibly")
}

func dataDirFlag(fs *flag.FlagSet) *string {
	return fs.String("data-dir", "", "data directory (defaults to $DATA_DIR, then .)")
}

func openEngine(dataDir string) (*yaradb.Engine, error) {
	cfg, err := yaradb.LoadConfig(yaradb.LoadConfigInput{
		DataDirOverride: dataDir,
		Env:             envMap(),
	})
	if err != nil {
		return nil, err
	}

	return yaradb.Open(cfg)
}

func envMap() map[string]string {
	out := make(map[string]string)

	for _, e := range os.Environ() {
		for i := 0; i < len(e); i++ {
			if e[i] == '=' {
				out[e[:i]] = e[i+1:]
				break
			}
		}
	}

	return out
}

func runCheckpoint(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("checkpoint", flag.ContinueOnError)
	dataDir := dataDirFlag(fs)

	if err := fs.Parse(args); err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}

	e, err := openEngine(*dataDir)
	if err != nil {
		fmt.Fprintln(stderr, "yaradbctl:", err)
		return 1
	}
	defer e.Close(context.Background())

	if err := e.Checkpoint(context.Background()); err != nil {
		fmt.Fprintln(stderr, "yaradbctl: checkpoint failed:", err)
		return 1
	}

	fmt.Fprintln(stdout, "checkpoint complete")

	return 0
}

func runStats(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("stats", flag.ContinueOnError)
	dataDir := dataDirFlag(fs)

	if err := fs.Parse(args); err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}

	e, err := openEngine(*dataDir)
	if err != nil {
		fmt.Fprintln(stderr, "yaradbctl:", err)
		return 1
	}
	defer e.Close(context.Background())

	ctx := context.Background()

	tables, err := e.ListTables(ctx)
	if err != nil {
		fmt.Fprintln(stderr, "yaradbctl:", err)
		return 1
	}

	for _, t := range tables {
		fmt.Fprintf(stdout, "%s\tdocuments=%d\tindexes=%d\tread_only=%v\n",
			t.Name, t.DocumentsCount, len(t.Indexes), t.Settings.ReadOnly)
	}

	return 0
}

func runDump(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("dump", flag.ContinueOnError)
	dataDir := dataDirFlag(fs)
	table := fs.String("table", "", "restrict the dump to one table")

	if err := fs.Parse(args); err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}

	e, err := openEngine(*dataDir)
	if err != nil {
		fmt.Fprintln(stderr, "yaradbctl:", err)
		return 1
	}
	defer e.Close(context.Background())

	docs, err := e.FindDocuments(context.Background(), yaradb.FindDocumentsRequest{TableName: *table})
	if err != nil {
		fmt.Fprintln(stderr, "yaradbctl:", err)
		return 1
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")

	if err := enc.Encode(docs); err != nil {
		fmt.Fprintln(stderr, "yaradbctl:", err)
		return 1
	}

	return 0
}

func runWipe(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("wipe", flag.ContinueOnError)
	dataDir := dataDirFlag(fs)
	confirm := fs.Bool("yes", false, "required: confirms the irreversible wipe")

	if err := fs.Parse(args); err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}

	if !*confirm {
		fmt.Fprintln(stderr, "yaradbctl: wipe requires --yes to confirm")
		return 2
	}

	e, err := openEngine(*dataDir)
	if err != nil {
		fmt.Fprintln(stderr, "yaradbctl:", err)
		return 1
	}
	defer e.Close(context.Background())

	if err := e.WipeAllData(context.Background()); err != nil {
		fmt.Fprintln(stderr, "yaradbctl: wipe failed:", err)
		return 1
	}

	fmt.Fprintln(stdout, "all data wiped")

	return 0
}
