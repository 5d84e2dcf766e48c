package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dmitrijs2005/resilientapi/internal/client/client"
)

const defaultCacheTTL = 5 * time.Minute

var (
	errUsage       = errors.New("usage")
	errInvalidBody = errors.New("request body must be valid JSON")
)

// Request runs one call through the client and prints the outcome.
//
//	get <path> [cache-key [ttl]]
//	post|put|patch <path> [json]
//	delete <path>
func (a *App) Request(ctx context.Context, method string, args []string) error {
	if len(args) == 0 {
		printlnFn(fmt.Sprintf("Usage: %s <path>", strings.ToLower(method)))
		return errUsage
	}
	path := args[0]

	var (
		out json.RawMessage
		err error
	)
	switch method {
	case http.MethodGet:
		var opts []client.CallOption
		if len(args) > 1 {
			ttl := defaultCacheTTL
			if len(args) > 2 {
				if ttl, err = time.ParseDuration(args[2]); err != nil {
					printlnFn("Invalid ttl:", args[2])
					return err
				}
			}
			opts = append(opts, client.WithCache(args[1], ttl))
		}
		err = a.client.Get(ctx, path, &out, opts...)

	case http.MethodDelete:
		err = a.client.Delete(ctx, path, &out)

	default:
		body, berr := a.readBody(args[1:])
		if berr != nil {
			printlnFn("Error:", berr)
			return berr
		}
		switch method {
		case http.MethodPost:
			err = a.client.Post(ctx, path, body, &out)
		case http.MethodPut:
			err = a.client.Put(ctx, path, body, &out)
		case http.MethodPatch:
			err = a.client.Patch(ctx, path, body, &out)
		default:
			return fmt.Errorf("unsupported method %s", method)
		}
	}

	return a.report(err, out)
}

func (a *App) readBody(args []string) (json.RawMessage, error) {
	text := strings.Join(args, " ")
	if text == "" {
		var err error
		if text, err = getMultiline(a.reader, "Enter JSON body", a.out); err != nil {
			return nil, err
		}
	}
	if text == "" {
		return nil, nil
	}
	if !json.Valid([]byte(text)) {
		return nil, errInvalidBody
	}
	return json.RawMessage(text), nil
}

func (a *App) report(err error, out json.RawMessage) error {
	if err == nil {
		printlnFn(formatJSON(out))
		return nil
	}

	var (
		ne *client.NetworkError
		re *client.ResponseError
	)
	switch {
	case errors.As(err, &ne) && ne.QueuedID != "":
		printlnFn("Offline: request queued as", ne.QueuedID)
	case errors.Is(err, client.ErrUnauthorized):
		printlnFn("Unauthorized: token cleared, set a new one with 'token'")
	case errors.As(err, &re):
		printlnFn(fmt.Sprintf("Error %d: %s", re.Status, re.Message))
		if len(re.Details) > 0 {
			printlnFn(formatJSON(re.Details))
		}
	default:
		printlnFn("Error:", err)
	}
	return err
}

func formatJSON(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "OK"
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return string(raw)
	}
	return buf.String()
}

// Token sets the bearer token from args, or from a hidden prompt when args
// is empty. "token clear" removes it.
func (a *App) Token(ctx context.Context, args []string) error {
	if len(args) == 1 && args[0] == "clear" {
		if err := a.client.ClearAuthToken(ctx); err != nil {
			printlnFn("Error:", err)
			return err
		}
		printlnFn("Token cleared")
		return nil
	}

	token := strings.Join(args, " ")
	if token == "" {
		secret, err := getSecret(a.out, "Enter token")
		if err != nil {
			printlnFn("Error:", err)
			return err
		}
		token = strings.TrimSpace(string(secret))
		clear(secret)
	}
	if token == "" {
		printlnFn("Usage: token [value|clear]")
		return errUsage
	}

	if err := a.client.SetAuthToken(ctx, token); err != nil {
		printlnFn("Error:", err)
		return err
	}
	printlnFn("Token saved")
	return nil
}

func (a *App) Logout(ctx context.Context) error {
	if err := a.client.Logout(ctx); err != nil {
		printlnFn("Error:", err)
		return err
	}
	printlnFn("Logged out")
	return nil
}

// Queue lists pending requests in replay order.
func (a *App) Queue(ctx context.Context) error {
	pending := a.queue.Snapshot()
	if len(pending) == 0 {
		printlnFn("Queue is empty")
		return nil
	}
	for _, r := range pending {
		line := fmt.Sprintf("%s  %-6s %s  queued %s",
			r.ID, r.Method, r.URL, time.UnixMilli(r.EnqueuedAt).Format(time.DateTime))
		if r.Attempts > 0 {
			line += fmt.Sprintf("  attempts=%d last error: %s", r.Attempts, r.LastError)
		}
		printlnFn(line)
	}
	return nil
}

func (a *App) Drain(ctx context.Context) error {
	res, err := a.client.Drain(ctx)
	if err != nil {
		printlnFn("Error:", err)
		return err
	}
	printlnFn(fmt.Sprintf("Replayed %d, requeued %d, dropped %d", res.Replayed, res.Requeued, len(res.Dropped)))
	return nil
}

func (a *App) Stats(ctx context.Context) error {
	data, err := json.MarshalIndent(a.client.Stats(), "", "  ")
	if err != nil {
		return err
	}
	printlnFn(string(data))
	return nil
}

// SetOnline reports connectivity through the monitor, as the prober would.
// The next probe that disagrees reports again.
func (a *App) SetOnline(ctx context.Context, online bool) error {
	a.monitor.Report(online)
	if online {
		printlnFn("Marked online")
	} else {
		printlnFn("Marked offline")
	}
	return nil
}
