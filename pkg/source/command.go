package source

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/creack/pty"
)

// Command is a process running under a pseudo-terminal. Reading returns
// what the process writes to its terminal; writing sends it input.
type Command struct {
	name string
	cmd  *exec.Cmd
	ptmx *os.File

	waitOnce sync.Once
	waitErr  error
	done     chan struct{}
}

// StartCommand runs args[0] with args[1:] on a new pseudo-terminal of the
// given size. env entries are added to the current environment.
func StartCommand(args []string, width, height int, env ...string) (*Command, error) {
	if len(args) == 0 || args[0] == "" {
		return nil, fmt.Errorf("command cannot be empty")
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid terminal size %dx%d", width, height)
	}

	cmd := exec.Command(args[0], args[1:]...)
	cmd.Env = append(os.Environ(), "TERM=xterm-256color")
	cmd.Env = append(cmd.Env, env...)

	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Rows: uint16(height), Cols: uint16(width)})
	if err != nil {
		return nil, fmt.Errorf("failed to start %s on a pty: %w", args[0], err)
	}

	c := &Command{
		name: strings.Join(args, " "),
		cmd:  cmd,
		ptmx: ptmx,
		done: make(chan struct{}),
	}
	go c.wait()
	return c, nil
}

func (c *Command) wait() {
	c.waitOnce.Do(func() {
		c.waitErr = c.cmd.Wait()
		close(c.done)
	})
}

// Name returns the command line
func (c *Command) Name() string { return c.name }

// Read reads terminal output. Once the process has exited and its output is
// drained it returns io.EOF.
func (c *Command) Read(p []byte) (int, error) {
	n, err := c.ptmx.Read(p)
	if err != nil && isPtyClosed(err) {
		return n, io.EOF
	}
	return n, err
}

// isPtyClosed reports the error Linux returns from the master side once
// the slave side has gone away
func isPtyClosed(err error) bool {
	var pathErr *os.PathError
	if errors.As(err, &pathErr) && errors.Is(pathErr.Err, syscall.EIO) {
		return true
	}
	return errors.Is(err, os.ErrClosed)
}

// Write sends input to the process
func (c *Command) Write(p []byte) (int, error) {
	return c.ptmx.Write(p)
}

// Resize changes the pseudo-terminal size
func (c *Command) Resize(width, height int) error {
	if err := pty.Setsize(c.ptmx, &pty.Winsize{Rows: uint16(height), Cols: uint16(width)}); err != nil {
		return fmt.Errorf("failed to resize pty: %w", err)
	}
	return nil
}

// Done is closed when the process exits
func (c *Command) Done() <-chan struct{} { return c.done }

// Wait blocks until the process exits and returns its exit error
func (c *Command) Wait() error {
	<-c.done
	return c.waitErr
}

// Close terminates the process if it is still running and closes the
// pseudo-terminal
func (c *Command) Close() error {
	select {
	case <-c.done:
	default:
		if c.cmd.Process != nil {
			c.cmd.Process.Signal(syscall.SIGTERM)
		}
		select {
		case <-c.done:
		case <-time.After(2 * time.Second):
			c.cmd.Process.Kill()
			<-c.done
		}
	}
	return c.ptmx.Close()
}
