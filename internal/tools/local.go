//go:build !windows

package tools

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"syscall"
	"time"
)

// LocalRuntime runs commands directly on the host, unsandboxed. Stdout
// and stderr are interleaved into one stream, which is what the model
// sees for shell output.
type LocalRuntime struct{}

func (r *LocalRuntime) Run(ctx context.Context, cmdArgs []string, stdin string, timeout time.Duration) (string, error) {
	if len(cmdArgs) == 0 {
		return "", errors.New("empty command")
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.Command(cmdArgs[0], cmdArgs[1:]...)
	// New process group so the whole tree dies on timeout, not just
	// the direct child.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if stdin != "" {
		cmd.Stdin = strings.NewReader(stdin)
	}

	if err := cmd.Start(); err != nil {
		return "", err
	}

	done := make(chan struct{})
	go func() {
		select {
		case <-cctx.Done():
			if cmd.Process != nil {
				syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
			}
		case <-done:
		}
	}()

	waitErr := cmd.Wait()
	close(done)

	if errors.Is(cctx.Err(), context.DeadlineExceeded) {
		return out.String(), fmt.Errorf("command timed out after %s", timeout)
	}
	// A non-zero exit is not an error at this level: the combined
	// output, stderr included, is the result the model reads.
	var exitErr *exec.ExitError
	if waitErr != nil && !errors.As(waitErr, &exitErr) {
		return out.String(), waitErr
	}
	return out.String(), nil
}
