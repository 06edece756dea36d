package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strings"
)

// printlnFn is a test seam for user-facing output. In tests, replace it with a stub.
var printlnFn = fmt.Println

// execIface defines the minimal command surface the REPL needs to operate.
// The real App type satisfies this interface; tests can provide a lightweight stub.
type execIface interface {
	Connect(ctx context.Context, args []string) error
	Disconnect(ctx context.Context, args []string) error
	Upload(ctx context.Context, args []string) error
	Download(ctx context.Context, args []string) error
	List(ctx context.Context, args []string) error
	Keys(ctx context.Context, args []string) error
	SaveKeys(ctx context.Context, args []string) error
	LoadKeys(ctx context.Context, args []string) error
	Seal(ctx context.Context, args []string) error
	Discover(ctx context.Context, args []string) error
	History(ctx context.Context, args []string) error
}

const helpText = `Available commands:
  connect [host:port]       open a session (default: configured server)
  disconnect                close the session
  upload <path>             encrypt and upload a file
  download <id> [output]    download and decrypt a file
  (l)ist                    list files on the server
  keys                      show cached file keys
  savekeys [path]           write the key store
  loadkeys [path]           read the key store
  seal [path]               protect the key store with a passphrase
  discover                  find servers on the local network
  history [limit]           show recent transfers
  exit | quit               leave the program`

// runREPL starts a simple read–eval–print loop for the securexfer client.
//
// It reads a line from the provided scanner, parses the first token as the
// command and the rest as its arguments, and dispatches to methods on 'a'.
// Command errors are printed and never end the loop. The loop exits on
// scanner EOF, context cancellation, or when the user types "exit" or "quit".
func runREPL(ctx context.Context, a execIface, statusFn func() string, scanner *bufio.Scanner) {
	for {
		if ctx.Err() != nil {
			return
		}
		printlnFn(fmt.Sprintf("sx %s> ", statusFn()))
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
			printlnFn(helpText)

		case "connect":
			err = a.Connect(ctx, args)

		case "disconnect":
			err = a.Disconnect(ctx, args)

		case "upload":
			err = a.Upload(ctx, args)

		case "download":
			err = a.Download(ctx, args)

		case "l", "list":
			err = a.List(ctx, args)

		case "keys":
			err = a.Keys(ctx, args)

		case "savekeys":
			err = a.SaveKeys(ctx, args)

		case "loadkeys":
			err = a.LoadKeys(ctx, args)

		case "seal":
			err = a.Seal(ctx, args)

		case "discover":
			err = a.Discover(ctx, args)

		case "history":
			err = a.History(ctx, args)

		case "exit", "quit":
			printlnFn("Bye!")
			return

		default:
			printlnFn("Unknown command:", cmd)
		}

		if err != nil {
			if errors.Is(err, errUsage) {
				printlnFn("Usage:", strings.TrimPrefix(err.Error(), errUsage.Error()+": "))
			} else {
				printlnFn("Error:", err)
			}
		}
	}
}
