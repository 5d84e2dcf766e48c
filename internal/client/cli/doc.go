// Package cli provides an interactive command-line client for exercising the
// resilient request pipeline against a live backend.
//
// NewApp wires configuration, the durable store, the token store, cache,
// request queue, client and network monitor. App.Run starts the health
// prober and a REPL that supports get/post/put/patch/delete, token handling,
// queue inspection, manual drains and connectivity overrides.
package cli
