// Package engine drives the full poll cycle for one device session:
// execute → sanitize → parse → normalize → shape → post-process → store, per
// collection, each on its own interval.
package engine

import "context"

// CommandChannel is the authenticated command-execution abstraction the
// engine polls through. One session owns exactly one channel; the engine is
// its only user and never issues overlapping commands.
type CommandChannel interface {
	// Run sends a CLI command and returns the raw stdout. Blocking is
	// bounded by the transport's per-command read timeout; ctx cancellation
	// terminates the session rather than aborting a partial read.
	Run(ctx context.Context, command string) (string, error)

	// Prompt returns the detected session prompt, used by the sanitizer.
	Prompt() string

	// Hostname returns the device hostname extracted from the prompt, or "".
	Hostname() string

	// Close tears the session down.
	Close() error
}

// Dialer establishes command channels. The engine redials through it during
// reconnect backoff.
type Dialer interface {
	Dial(ctx context.Context) (CommandChannel, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(ctx context.Context) (CommandChannel, error)

// Dial implements Dialer.
func (f DialerFunc) Dial(ctx context.Context) (CommandChannel, error) { return f(ctx) }
