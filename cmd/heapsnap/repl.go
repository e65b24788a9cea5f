package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/chazu/heapsnap/compiler"
	"github.com/chazu/heapsnap/heap"
	"github.com/chazu/heapsnap/snapshot"
	"github.com/chazu/heapsnap/store"
)

// repl is an interactive session over one realm.
type repl struct {
	app   *app
	realm *heap.Realm
	in    *compiler.Interpreter
}

func newREPL(a *app, realm *heap.Realm, in *compiler.Interpreter) *repl {
	return &repl{app: a, realm: realm, in: in}
}

// handleREPLCommand starts a REPL over a fresh realm, optionally loading
// a snapshot first.
//
//	heapsnap repl [file|ref]
func (a *app) handleREPLCommand(args []string) error {
	realm := a.cfg.NewRealm()
	in := compiler.New()
	in.Out = a.out
	r := newREPL(a, realm, in)
	if len(args) > 0 {
		if err := r.load(args[0]); err != nil {
			return err
		}
	}
	return r.run(nil)
}

// run reads from src (stdin when nil) until EOF or exit. Input
// accumulates until brackets balance, then runs.
func (r *repl) run(src io.Reader) error {
	if src == nil {
		src = stdin
	}
	out := r.app.out
	fmt.Fprintln(out, "heapsnap REPL (type 'exit' to quit, ':help' for commands)")

	scanner := bufio.NewScanner(src)
	var buf strings.Builder
	for {
		if buf.Len() == 0 {
			fmt.Fprint(out, ">> ")
		} else {
			fmt.Fprint(out, ".. ")
		}
		if !scanner.Scan() {
			break
		}
		line := scanner.Text()

		if buf.Len() == 0 {
			trimmed := strings.TrimSpace(line)
			if trimmed == "exit" || trimmed == "quit" {
				break
			}
			if strings.HasPrefix(trimmed, ":") {
				if err := r.command(trimmed); err != nil {
					fmt.Fprintf(out, "Error: %v\n", err)
				}
				continue
			}
		}

		if buf.Len() > 0 {
			buf.WriteString("\n")
		}
		buf.WriteString(line)
		if line != "" && depth(buf.String()) > 0 {
			continue
		}

		input := strings.TrimSpace(buf.String())
		buf.Reset()
		if input != "" {
			r.evalAndPrint(input)
		}
	}
	fmt.Fprintln(out)
	return scanner.Err()
}

// depth is the naive bracket nesting of src, ignoring string contents.
func depth(src string) int {
	n := 0
	var quote rune
	escaped := false
	for _, c := range src {
		switch {
		case escaped:
			escaped = false
		case quote != 0:
			if c == '\\' {
				escaped = true
			} else if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"' || c == '`':
			quote = c
		case c == '(' || c == '[' || c == '{':
			n++
		case c == ')' || c == ']' || c == '}':
			n--
		}
	}
	return n
}

// evalAndPrint evaluates a lone expression statement and prints its
// value. Anything else runs as a script.
func (r *repl) evalAndPrint(input string) {
	out := r.app.out
	prog, err := compiler.Parse(input)
	if err != nil {
		fmt.Fprintf(out, "%v\n", err)
		return
	}
	if len(prog.Body) == 1 {
		if _, ok := prog.Body[0].(*compiler.ExprStmt); ok {
			v, err := r.in.Evaluate(r.realm, strings.TrimSuffix(input, ";"))
			if err != nil {
				fmt.Fprintf(out, "%v\n", err)
				return
			}
			fmt.Fprintln(out, heap.Describe(v))
			return
		}
	}
	if err := r.in.Run(r.realm, "repl", input); err != nil {
		fmt.Fprintf(out, "%v\n", err)
	}
}

// command handles REPL meta-commands.
func (r *repl) command(line string) error {
	out := r.app.out
	fields := strings.Fields(line)
	switch fields[0] {
	case ":help", ":h", ":?":
		fmt.Fprintln(out, "REPL Commands:")
		fmt.Fprintln(out, "  :help, :h, :?           Show this help")
		fmt.Fprintln(out, "  :globals                List global bindings")
		fmt.Fprintln(out, "  :take <name> <expr>...  Snapshot expressions into the store")
		fmt.Fprintln(out, "  :load <file|ref>        Load a snapshot into this realm")
		fmt.Fprintln(out, "  exit, quit              Exit REPL")
	case ":globals":
		names := r.realm.GlobalNames()
		sort.Strings(names)
		for _, name := range names {
			v, _ := r.realm.Global(name)
			fmt.Fprintf(out, "%s = %s\n", name, heap.Describe(v))
		}
	case ":take":
		if len(fields) < 3 {
			return errors.New("usage: :take <name> <expr>...")
		}
		opts := append(r.app.cfg.Options(), snapshot.WithEvaluator(r.in))
		data, err := snapshot.NewSerializer(r.realm, opts...).TakeSnapshot(fields[2:])
		if err != nil {
			return err
		}
		return r.app.withStore(func(ctx context.Context, st *store.Store) error {
			e, err := st.Put(ctx, fields[1], data)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "stored %s as %s (%d bytes)\n", e.ID.Short(), fields[1], e.Size)
			return nil
		})
	case ":load":
		if len(fields) != 2 {
			return errors.New("usage: :load <file|ref>")
		}
		return r.load(fields[1])
	default:
		fmt.Fprintf(out, "Unknown command: %s (type :help for commands)\n", fields[0])
	}
	return nil
}

func (r *repl) load(ref string) error {
	data, err := r.app.readSnapshot(ref)
	if err != nil {
		return err
	}
	roots, err := r.app.restore(r.realm, r.in, data)
	if err != nil {
		return err
	}
	for _, root := range roots {
		fmt.Fprintf(r.app.out, "%s = %s\n", root.Name, heap.Describe(root.Value))
	}
	return nil
}
