package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"

	"github.com/gekko3d/lightbake"
	"github.com/gekko3d/lightbake/levelfile"
)

// command describes a CLI subcommand.
type command struct {
	name  string
	short string
	usage string
	long  string
	run   func(args []string) error
}

var commands = []command{
	{
		name:  "analyze",
		short: "Convert and cluster lights, print scores (no assets)",
		usage: "lightbake analyze [flags] <level.yaml>",
		long: `Run unification and clustering and print the cluster listing with
fidelity scores. Nothing is baked and the level file is not touched.

Use -dump to also write the listing as YAML.
`,
		run: func(args []string) error { return runMode(lightbake.ModeAnalyzeOnly, args, os.Stdout) },
	},
	{
		name:  "update",
		short: "Bake the LUT layout without touching the level",
		usage: "lightbake update [flags] <level.yaml>",
		long: `Run the full pipeline and build the LUT rows, material stubs and
script table. The level file is left as is.

Fails when the scene produces more clusters than max_clusters.
`,
		run: func(args []string) error { return runMode(lightbake.ModeUpdateAssets, args, os.Stdout) },
	},
	{
		name:  "final",
		short: "Bake and prepare the level patch",
		usage: "lightbake final [flags] <level.yaml>",
		long: `Like update, then report the material and light table the level
patching step consumes.
`,
		run: func(args []string) error { return runMode(lightbake.ModeFinal, args, os.Stdout) },
	},
}

func printUsage(w io.Writer) {
	fmt.Fprintf(w, "lightbake: light unification and raytraced clustering\n\n")
	fmt.Fprintf(w, "Usage:\n  lightbake <command> [flags] <level.yaml>\n\n")
	fmt.Fprintf(w, "Commands:\n")
	for _, cmd := range commands {
		fmt.Fprintf(w, "  %-10s %s\n", cmd.name, cmd.short)
	}
	fmt.Fprintf(w, "\nRun 'lightbake help <command>' for details on a specific command.\n")
}

func printCommandHelp(w io.Writer, name string) {
	for _, cmd := range commands {
		if cmd.name == name {
			fmt.Fprintf(w, "Usage: %s\n\n%s\nFlags:\n", cmd.usage, cmd.long)
			fs, _ := newFlagSet(cmd.name)
			fs.SetOutput(w)
			fs.PrintDefaults()
			return
		}
	}
	fmt.Fprintf(w, "lightbake: unknown command %q\n\nRun 'lightbake help' for usage.\n", name)
}

func dispatch(args []string) error {
	if len(args) == 0 || args[0] == "--help" || args[0] == "-h" {
		printUsage(os.Stdout)
		return nil
	}
	if args[0] == "help" {
		if len(args) >= 2 {
			printCommandHelp(os.Stdout, args[1])
		} else {
			printUsage(os.Stdout)
		}
		return nil
	}
	for _, cmd := range commands {
		if cmd.name == args[0] {
			return cmd.run(args[1:])
		}
	}
	return fmt.Errorf("unknown command %q\n\nRun 'lightbake help' for usage.", args[0])
}

type runOptions struct {
	config     string
	workers    int
	verbose    bool
	quiet      bool
	dump       string
	dumpLights bool
	mapName    string
	level      string
}

func newFlagSet(name string) (*flag.FlagSet, *runOptions) {
	opts := &runOptions{}
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.StringVar(&opts.config, "config", "lightbake.yaml", "config file; missing file means defaults")
	fs.IntVar(&opts.workers, "workers", 0, "worker goroutines (0 = number of CPUs)")
	fs.BoolVar(&opts.verbose, "verbose", false, "debug logging and stage timings")
	fs.BoolVar(&opts.quiet, "quiet", false, "no progress bar")
	fs.StringVar(&opts.dump, "dump", "", "write the cluster listing as YAML to this file")
	fs.BoolVar(&opts.dumpLights, "dump-lights", false, "include per-light scores in the listing")
	fs.StringVar(&opts.mapName, "map-name", "", "asset name prefix (default: level name)")
	return fs, opts
}

func parseRunArgs(name string, args []string, stderr io.Writer) (*runOptions, error) {
	fs, opts := newFlagSet(name)
	fs.SetOutput(stderr)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() != 1 {
		return nil, fmt.Errorf("usage: lightbake %s [flags] <level.yaml>", name)
	}
	opts.level = fs.Arg(0)
	return opts, nil
}

func runMode(mode lightbake.RunMode, args []string, stdout io.Writer) error {
	opts, err := parseRunArgs(commandName(mode), args, os.Stderr)
	if err != nil {
		return err
	}

	cfg, err := lightbake.LoadConfig(opts.config)
	if err != nil {
		return err
	}
	if opts.workers > 0 {
		cfg.Workers = opts.workers
	}

	logger := lightbake.NewDefaultLogger("lightbake", opts.verbose)
	defer logger.Sync()

	lvl, entities, world, err := levelfile.Load(opts.level)
	if err != nil {
		return err
	}
	mapName := opts.mapName
	if mapName == "" {
		mapName = lvl.Name
	}
	logger.Infof("level %s: %d lights, %d brushes", lvl.Name, len(entities), len(world.Brushes()))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var bar *progressBar
	if !opts.quiet {
		bar = newProgressBar(os.Stderr)
	}
	engine, err := lightbake.NewEngineBuilder().
		UseConfig(cfg).
		UseLogger(logger).
		UseGeometry(world).
		UseProgress(bar.Update).
		UseBakeOptions(lightbake.BakeOptions{MapName: mapName}).
		Build()
	if err != nil {
		return err
	}

	res, err := engine.Run(ctx, entities, mode)
	bar.Done()
	if errors.Is(err, lightbake.ErrCanceled) {
		return fmt.Errorf("interrupted, nothing was produced")
	}
	if err != nil {
		return err
	}
	return report(stdout, res, opts)
}

func report(w io.Writer, res *lightbake.RunResult, opts *runOptions) error {
	dump := res.Dump()
	if !opts.dumpLights {
		dump.Lights = nil
	}
	if res.Mode == lightbake.ModeAnalyzeOnly {
		if err := dump.WriteText(w); err != nil {
			return err
		}
	}
	if opts.dump != "" {
		if err := writeDump(opts.dump, dump); err != nil {
			return err
		}
		fmt.Fprintf(w, "wrote listing to %s\n", opts.dump)
	}

	if b := res.Bake; b != nil {
		fmt.Fprintf(w, "baked %d clusters into a %dx%d LUT (%d lights, %d dropped)\n",
			len(b.Rows), b.Width, b.Height, len(res.Lights), len(res.Diagnostics))
		for _, m := range b.Materials {
			fmt.Fprintf(w, "  %-40s row %3d  %s\n", m.Name, m.Row, m.LUTPath)
		}
	}
	if res.Mode.PatchesLevel() {
		named := 0
		for _, e := range res.Bake.Script.Entries {
			if e.Named {
				named++
			}
		}
		fmt.Fprintf(w, "level patch: %d materials, %d switchable lights, %d initially dark\n",
			len(res.Bake.Materials), named, len(res.Bake.Script.DarkLights))
	}
	return nil
}

func writeDump(path string, dump *lightbake.Dump) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := dump.WriteYAML(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func commandName(mode lightbake.RunMode) string {
	switch mode {
	case lightbake.ModeUpdateAssets:
		return "update"
	case lightbake.ModeFinal:
		return "final"
	default:
		return "analyze"
	}
}

func main() {
	if err := dispatch(os.Args[1:]); err != nil {
		log.Fatal(err)
	}
}
