package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// errUsage marks a command invoked with wrong arguments; the wrapped text is
// the usage line.
var errUsage = errors.New("usage")

func usage(line string) error {
	return fmt.Errorf("%w: %s", errUsage, line)
}

// execIface defines the minimal command surface the REPL needs to operate.
// The real App type satisfies this interface; tests can provide a lightweight stub.
type execIface interface {
	Connect(ctx context.Context, args []string) error
	Callback(ctx context.Context, args []string) error
	Disconnect(ctx context.Context, args []string) error
	Status(ctx context.Context, args []string) error
	Add(ctx context.Context, args []string) error
	List(ctx context.Context, args []string) error
	Show(ctx context.Context, args []string) error
	Tag(ctx context.Context, args []string) error
	RemoveDocument(ctx context.Context, args []string) error
	AddTag(ctx context.Context, args []string) error
	Settings(ctx context.Context, args []string) error
	Sync(ctx context.Context, args []string) error
	Uploads(ctx context.Context, args []string) error
	Wipe(ctx context.Context, args []string) error
}

const helpText = `Available commands:
  connect <mock|dropbox|s3|postgres>  connect a cloud provider
  callback [code]                     finish an OAuth authorization
  disconnect                          disconnect the provider
  status                              connection and sync status
  add <path>                          upload a file and add it as a document
  list [limit] [offset]               list documents, newest first
  show <id>                           show one document
  tag <id> <tag>                      tag a document (tag id or name)
  rmdoc <id>                          remove a document
  addtag <name> [color]               create a tag
  settings [client-side|api]          show or change the processing method
  sync                                synchronize now
  uploads                             retry staged uploads
  wipe confirm                        clear the local cache
  exit | quit                         leave the program`

// runREPL starts a simple read–eval–print loop for the DocKeeper CLI.
//
// It reads a line from the provided scanner, parses the first token as the
// command, and dispatches to methods on 'a' with the remaining tokens as
// arguments. Handler errors are printed and the loop continues. The loop
// exits on scanner EOF, on ctx cancellation, or when the user types "exit"
// or "quit".
func runREPL(ctx context.Context, a execIface, statusFn func() string, scanner *bufio.Scanner, out io.Writer) {
	for {
		if ctx.Err() != nil {
			return
		}
		fmt.Fprintf(out, "dk %s> ", statusFn())
		if !scanner.Scan() {
			return
		}
		parts := strings.Fields(scanner.Text())
		if len(parts) == 0 {
			continue
		}
		cmd, args := parts[0], parts[1:]

		var err error
		switch cmd {
		case "help":
			fmt.Fprintln(out, helpText)
		case "connect":
			err = a.Connect(ctx, args)
		case "callback":
			err = a.Callback(ctx, args)
		case "disconnect":
			err = a.Disconnect(ctx, args)
		case "status":
			err = a.Status(ctx, args)
		case "add":
			err = a.Add(ctx, args)
		case "l", "list":
			err = a.List(ctx, args)
		case "show":
			err = a.Show(ctx, args)
		case "tag":
			err = a.Tag(ctx, args)
		case "rmdoc":
			err = a.RemoveDocument(ctx, args)
		case "addtag":
			err = a.AddTag(ctx, args)
		case "settings":
			err = a.Settings(ctx, args)
		case "sync":
			err = a.Sync(ctx, args)
		case "uploads":
			err = a.Uploads(ctx, args)
		case "wipe":
			err = a.Wipe(ctx, args)
		case "exit", "quit":
			fmt.Fprintln(out, "Bye!")
			return
		default:
			fmt.Fprintln(out, "Unknown command:", cmd)
		}

		switch {
		case err == nil:
		case errors.Is(err, errUsage):
			fmt.Fprintln(out, "Usage:", strings.TrimPrefix(err.Error(), errUsage.Error()+": "))
		default:
			fmt.Fprintln(out, "Error:", err)
		}
	}
}
