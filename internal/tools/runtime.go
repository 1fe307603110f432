// Package tools implements the built-in tool set and the runtimes that
// execute their commands: the local host, a remote sprites VM, or a
// Docker container.
package tools

import (
	"context"
	"time"
)

// DefaultTimeout bounds a single tool command.
const DefaultTimeout = 30 * time.Second

// Runtime executes one command and returns its combined stdout/stderr.
// A non-empty stdin is fed to the process. Implementations kill the
// command when the timeout elapses.
type Runtime interface {
	Run(ctx context.Context, cmd []string, stdin string, timeout time.Duration) (string, error)
}
