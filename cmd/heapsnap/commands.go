package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/chazu/heapsnap/compiler"
	"github.com/chazu/heapsnap/heap"
	"github.com/chazu/heapsnap/server"
	"github.com/chazu/heapsnap/snapshot"
	"github.com/chazu/heapsnap/store"
)

// ---------------------------------------------------------------------------
// take
// ---------------------------------------------------------------------------

// handleTakeCommand runs a script and snapshots the given export
// expressions.
//
//	heapsnap take app.js -e data -e 'lib.helpers' [-o out.snap] [--name app]
func (a *app) handleTakeCommand(args []string) error {
	flags := a.newFlags("take", "<script> -e <expr>...")
	exports := flags.StringArrayP("export", "e", nil, "Export expression (repeatable)")
	output := flags.StringP("output", "o", "", "Write the snapshot to this file (- for stdout)")
	name := flags.String("name", "", "Put the snapshot into the store under this name")
	program := flags.String("program", "", "Append this trailing program to the snapshot")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if err := expectArgs(flags, 1, "one script"); err != nil {
		return err
	}
	if len(*exports) == 0 {
		return errors.New("heapsnap take: at least one --export is required")
	}

	script := flags.Arg(0)
	source, err := os.ReadFile(script)
	if err != nil {
		return err
	}

	realm := a.cfg.NewRealm()
	in := compiler.New()
	in.Out = a.err
	if err := in.Run(realm, script, string(source)); err != nil {
		return fmt.Errorf("%s: %w", script, err)
	}

	opts := append(a.cfg.Options(), snapshot.WithEvaluator(in))
	data, err := snapshot.NewSerializer(realm, opts...).TakeSnapshot(*exports)
	if err != nil {
		return err
	}
	if *program != "" {
		if _, err := compiler.Parse(*program); err != nil {
			return fmt.Errorf("trailing program: %w", err)
		}
		data = append(data, *program...)
	}
	log.Infof("snapshot of %s: %d bytes", script, len(data))

	if *output == "" && *name == "" {
		*output = "-"
	}
	if err := a.writeOutput(*output, data); err != nil {
		return err
	}
	if *name != "" {
		return a.withStore(func(ctx context.Context, st *store.Store) error {
			e, err := st.Put(ctx, *name, data)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.err, "stored %s as %s\n", e.ID.Short(), *name)
			return nil
		})
	}
	return nil
}

func (a *app) writeOutput(path string, data []byte) error {
	switch path {
	case "":
		return nil
	case "-":
		_, err := a.out.Write(data)
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// ---------------------------------------------------------------------------
// load
// ---------------------------------------------------------------------------

// handleLoadCommand deserializes a snapshot file or store reference into
// a fresh realm, then evaluates expressions against it.
//
//	heapsnap load app.snap --eval 'data.counter()' [--repl]
func (a *app) handleLoadCommand(args []string) error {
	flags := a.newFlags("load", "<file|ref> [--eval <expr>]... [--repl]")
	evals := flags.StringArray("eval", nil, "Evaluate an expression after loading (repeatable)")
	repl := flags.Bool("repl", false, "Start a REPL over the restored realm")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if err := expectArgs(flags, 1, "one snapshot"); err != nil {
		return err
	}

	data, err := a.readSnapshot(flags.Arg(0))
	if err != nil {
		return err
	}

	realm := a.cfg.NewRealm()
	in := compiler.New()
	in.Out = a.out
	roots, err := a.restore(realm, in, data)
	if err != nil {
		return err
	}
	for _, root := range roots {
		fmt.Fprintf(a.out, "%s = %s\n", root.Name, heap.Describe(root.Value))
	}

	for _, expr := range *evals {
		v, err := in.Evaluate(realm, expr)
		if err != nil {
			return fmt.Errorf("%s: %w", expr, err)
		}
		fmt.Fprintln(a.out, heap.Describe(v))
	}
	if *repl {
		return newREPL(a, realm, in).run(stdin)
	}
	return nil
}

func (a *app) restore(realm *heap.Realm, in *compiler.Interpreter, data []byte) ([]snapshot.Root, error) {
	opts := append(a.cfg.Options(), snapshot.WithEvaluator(in))
	d := snapshot.NewDeserializer(realm, opts...)
	defer d.Close()
	if err := d.Deserialize(data); err != nil {
		return nil, err
	}
	c := d.Counts()
	log.Infof("restored %d objects, %d arrays, %d functions, %d classes",
		c.Objects, c.Arrays, c.Functions, c.Classes)
	return d.Exports(), nil
}

// readSnapshot reads ref as a file if one exists, otherwise from the
// store.
func (a *app) readSnapshot(ref string) ([]byte, error) {
	data, err := os.ReadFile(ref)
	if err == nil {
		return data, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	err = a.withStore(func(ctx context.Context, st *store.Store) error {
		var err error
		data, _, err = st.Get(ctx, ref)
		return err
	})
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%s: no such file or stored snapshot", ref)
	}
	return data, err
}

// ---------------------------------------------------------------------------
// inspect
// ---------------------------------------------------------------------------

// handleInspectCommand prints the structure of a snapshot.
//
//	heapsnap inspect app.snap [--format yaml|json|cbor]
func (a *app) handleInspectCommand(args []string) error {
	flags := a.newFlags("inspect", "<file|ref> [--format yaml|json|cbor]")
	format := flags.StringP("format", "f", "yaml", "Output format: yaml, json or cbor")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if err := expectArgs(flags, 1, "one snapshot"); err != nil {
		return err
	}

	data, err := a.readSnapshot(flags.Arg(0))
	if err != nil {
		return err
	}
	dump, err := snapshot.Inspect(data)
	if err != nil {
		return err
	}

	var out []byte
	switch *format {
	case "yaml":
		out, err = dump.YAML()
	case "json":
		out, err = json.MarshalIndent(dump, "", "  ")
		out = append(out, '\n')
	case "cbor":
		out, err = snapshot.MarshalDump(dump)
	default:
		return fmt.Errorf("unknown format %q", *format)
	}
	if err != nil {
		return err
	}
	_, err = a.out.Write(out)
	return err
}

// ---------------------------------------------------------------------------
// store
// ---------------------------------------------------------------------------

// handleStoreCommand manages the snapshot store.
//
//	heapsnap store ls
//	heapsnap store put <file> [--name NAME]
//	heapsnap store get <ref> [-o file]
//	heapsnap store rm <ref>
func (a *app) handleStoreCommand(args []string) error {
	if len(args) == 0 {
		fmt.Fprintln(a.err, "Usage: heapsnap store [ls|put|get|rm] ...")
		fmt.Fprintln(a.err, "  ls                     List stored snapshots")
		fmt.Fprintln(a.err, "  put <file> [--name N]  Store a snapshot file")
		fmt.Fprintln(a.err, "  get <ref> [-o file]    Write a stored snapshot")
		fmt.Fprintln(a.err, "  rm <ref>               Delete a stored snapshot and its names")
		return errors.New("heapsnap store: missing subcommand")
	}

	switch args[0] {
	case "ls":
		return a.withStore(a.storeList)
	case "put":
		flags := a.newFlags("store put", "<file> [--name NAME]")
		name := flags.String("name", "", "Name for the snapshot")
		if err := flags.Parse(args[1:]); err != nil {
			return err
		}
		if err := expectArgs(flags, 1, "one file"); err != nil {
			return err
		}
		data, err := os.ReadFile(flags.Arg(0))
		if err != nil {
			return err
		}
		return a.withStore(func(ctx context.Context, st *store.Store) error {
			e, err := st.Put(ctx, *name, data)
			if err != nil {
				return err
			}
			fmt.Fprintln(a.out, e.ID)
			return nil
		})
	case "get":
		flags := a.newFlags("store get", "<ref> [-o file]")
		output := flags.StringP("output", "o", "-", "Write to this file (- for stdout)")
		if err := flags.Parse(args[1:]); err != nil {
			return err
		}
		if err := expectArgs(flags, 1, "one reference"); err != nil {
			return err
		}
		return a.withStore(func(ctx context.Context, st *store.Store) error {
			data, _, err := st.Get(ctx, flags.Arg(0))
			if err != nil {
				return err
			}
			return a.writeOutput(*output, data)
		})
	case "rm":
		if len(args) != 2 {
			return errors.New("heapsnap store rm: expected one reference")
		}
		return a.withStore(func(ctx context.Context, st *store.Store) error {
			return st.Delete(ctx, args[1])
		})
	default:
		return fmt.Errorf("unknown store subcommand %q", args[0])
	}
}

func (a *app) storeList(ctx context.Context, st *store.Store) error {
	entries, err := st.List(ctx)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAMES\tSIZE\tSTORED\tCODEC\tEXPORTS\tCREATED")
	for _, e := range entries {
		names := "-"
		if len(e.Names) > 0 {
			names = fmt.Sprint(e.Names)
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\t%d\t%s\n", e.ID.Short(), names, e.Size, e.Stored,
			e.Codec, e.Summary.Counts.Exports, e.Created.Local().Format(time.DateTime))
	}
	return tw.Flush()
}

func (a *app) openStore() (*store.Store, error) {
	codec, err := store.ParseCodec(a.cfg.Store.Codec)
	if err != nil {
		return nil, err
	}
	return store.Open(a.cfg.Store.Path, codec)
}

func (a *app) withStore(fn func(context.Context, *store.Store) error) error {
	st, err := a.openStore()
	if err != nil {
		return err
	}
	defer st.Close()
	return fn(context.Background(), st)
}

// ---------------------------------------------------------------------------
// serve
// ---------------------------------------------------------------------------

// handleServeCommand serves the store and a live realm until interrupted.
//
//	heapsnap serve [--addr :7755]
func (a *app) handleServeCommand(args []string) error {
	flags := a.newFlags("serve", "[--addr host:port]")
	addr := flags.String("addr", a.cfg.Server.Addr, "Listen address")
	if err := flags.Parse(args); err != nil {
		return err
	}

	st, err := a.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	srv := server.New(st, server.WithConfig(a.cfg))
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe(*addr) }()

	select {
	case err := <-errc:
		srv.Stop(context.Background())
		return err
	case <-ctx.Done():
	}
	log.Info("shutting down")
	shutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Stop(shutdown)
}
