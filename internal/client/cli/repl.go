package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// printlnFn is a test seam for user-facing output. In tests, replace it with a stub.
var printlnFn = fmt.Println

// execIface is the command surface the REPL drives. App satisfies it; tests
// use a lightweight stub.
type execIface interface {
	Request(ctx context.Context, method string, args []string) error
	Token(ctx context.Context, args []string) error
	Logout(ctx context.Context) error
	Queue(ctx context.Context) error
	Drain(ctx context.Context) error
	Stats(ctx context.Context) error
	SetOnline(ctx context.Context, online bool) error
}

const helpText = `Available commands:
  get <path> [cache-key [ttl]]   fetch, optionally caching for ttl (default 5m)
  post|put|patch <path> [json]   send a JSON body (prompted when omitted)
  delete <path>                  delete a resource
  token [value|clear]            set or clear the bearer token
  logout                         clear token, cache and queue
  queue                          list queued requests
  drain                          replay queued requests now
  stats                          show client counters
  online | offline               report connectivity by hand
  exit | quit                    leave the program`

// runREPL reads commands line by line from reader and dispatches them to a.
// It returns on EOF, on "exit"/"quit" or when ctx ends. Handler errors are
// reported by the handlers themselves and do not stop the loop.
func runREPL(ctx context.Context, a execIface, statusFn func() string, reader *bufio.Reader) {
	for ctx.Err() == nil {
		printlnFn(fmt.Sprintf("api %s > ", statusFn()))

		line, err := reader.ReadString('\n')
		if err != nil && (!errors.Is(err, io.EOF) || line == "") {
			return
		}
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		cmd, args := parts[0], parts[1:]

		switch cmd {
		case "help":
			printlnFn(helpText)

		case "get":
			_ = a.Request(ctx, http.MethodGet, args)
		case "post":
			_ = a.Request(ctx, http.MethodPost, args)
		case "put":
			_ = a.Request(ctx, http.MethodPut, args)
		case "patch":
			_ = a.Request(ctx, http.MethodPatch, args)
		case "delete":
			_ = a.Request(ctx, http.MethodDelete, args)

		case "token":
			_ = a.Token(ctx, args)
		case "logout":
			_ = a.Logout(ctx)

		case "queue":
			_ = a.Queue(ctx)
		case "drain":
			_ = a.Drain(ctx)
		case "stats":
			_ = a.Stats(ctx)

		case "online":
			_ = a.SetOnline(ctx, true)
		case "offline":
			_ = a.SetOnline(ctx, false)

		case "exit", "quit":
			printlnFn("Bye!")
			return

		default:
			printlnFn("Unknown command:", cmd)
		}
	}
}
