// heapsnap - take, inspect, store and restore web snapshots of a script heap
package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/pflag"
	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/chazu/heapsnap/manifest"
)

var log = commonlog.GetLogger("heapsnap")

var stdin io.Reader = os.Stdin

// app carries what every subcommand needs.
type app struct {
	cfg *manifest.Config
	out io.Writer
	err io.Writer
}

func main() {
	a, args, err := setup(os.Args[1:])
	if err != nil {
		if err == pflag.ErrHelp {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}
	if err := a.dispatch(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// setup parses global flags, loads heapsnap.toml and configures logging.
func setup(argv []string) (*app, []string, error) {
	flags := pflag.NewFlagSet("heapsnap", pflag.ContinueOnError)
	flags.SetInterspersed(false)
	verbose := flags.CountP("verbose", "v", "Increase log verbosity (repeatable)")
	dir := flags.StringP("chdir", "C", "", "Look for heapsnap.toml starting in this directory")
	flags.Usage = func() { usage(os.Stderr, flags) }
	if err := flags.Parse(argv); err != nil {
		return nil, nil, err
	}

	cfg, err := loadConfig(*dir)
	if err != nil {
		return nil, nil, err
	}

	verbosity := cfg.Log.Verbosity + *verbose
	if cfg.Log.File != "" {
		commonlog.Configure(verbosity, &cfg.Log.File)
	} else {
		commonlog.Configure(verbosity, nil)
	}
	log.Debugf("configuration from %s", cfg.Dir)

	return &app{cfg: cfg, out: os.Stdout, err: os.Stderr}, flags.Args(), nil
}

func loadConfig(dir string) (*manifest.Config, error) {
	start := dir
	if start == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		start = wd
	}
	cfg, err := manifest.FindAndLoad(start)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg = manifest.Default()
	}
	return cfg, nil
}

func usage(w io.Writer, flags *pflag.FlagSet) {
	fmt.Fprintf(w, "Usage: heapsnap [options] <command> [args]\n\n")
	fmt.Fprintf(w, "Commands:\n")
	fmt.Fprintf(w, "  take <script> -e <expr>...    Run a script and snapshot export expressions\n")
	fmt.Fprintf(w, "  load <file|ref>               Deserialize a snapshot into a fresh realm\n")
	fmt.Fprintf(w, "  inspect <file|ref>            Print the structure of a snapshot\n")
	fmt.Fprintf(w, "  store [ls|put|get|rm] ...     Manage the snapshot store\n")
	fmt.Fprintf(w, "  serve                         Serve the store and a live realm over HTTP\n")
	fmt.Fprintf(w, "  repl                          Start an interactive realm\n")
	fmt.Fprintf(w, "\nOptions:\n")
	fmt.Fprint(w, flags.FlagUsages())
	fmt.Fprintf(w, "\nExamples:\n")
	fmt.Fprintf(w, "  heapsnap take app.js -e data -o app.snap\n")
	fmt.Fprintf(w, "  heapsnap take app.js -e data --name app   # into the store\n")
	fmt.Fprintf(w, "  heapsnap load app --eval 'data.counter()'\n")
	fmt.Fprintf(w, "  heapsnap inspect app.snap --format json\n")
}

func (a *app) dispatch(args []string) error {
	if len(args) == 0 {
		return a.handleREPLCommand(nil)
	}
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "take":
		return a.handleTakeCommand(rest)
	case "load":
		return a.handleLoadCommand(rest)
	case "inspect":
		return a.handleInspectCommand(rest)
	case "store":
		return a.handleStoreCommand(rest)
	case "serve":
		return a.handleServeCommand(rest)
	case "repl":
		return a.handleREPLCommand(rest)
	case "help":
		usage(a.out, pflag.NewFlagSet("heapsnap", pflag.ContinueOnError))
		return nil
	default:
		return fmt.Errorf("unknown command %q (try heapsnap help)", cmd)
	}
}

// newFlags returns a FlagSet for a subcommand whose errors are returned
// rather than printed twice.
func (a *app) newFlags(name, args string) *pflag.FlagSet {
	flags := pflag.NewFlagSet(name, pflag.ContinueOnError)
	flags.SetOutput(a.err)
	flags.Usage = func() {
		fmt.Fprintf(a.err, "Usage: heapsnap %s %s\n\n", name, args)
		fmt.Fprint(a.err, flags.FlagUsages())
	}
	return flags
}

func expectArgs(flags *pflag.FlagSet, n int, what string) error {
	if flags.NArg() != n {
		return fmt.Errorf("heapsnap %s: expected %s, got %q", flags.Name(), what, strings.Join(flags.Args(), " "))
	}
	return nil
}
