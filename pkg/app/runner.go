package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"screen-sync/pkg/source"
)

// Runner runs an application until its source ends, the user quits, or
// the process is interrupted, then prints a summary
type Runner struct {
	app *Application
	out io.Writer
}

// NewRunner creates a runner. The summary is written to out, which may be
// nil to discard it.
func NewRunner(config AppConfig, src source.Source, out io.Writer, opts ...Option) (*Runner, error) {
	app, err := NewApplication(config, src, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create application: %w", err)
	}
	if out == nil {
		out = io.Discard
	}
	return &Runner{app: app, out: out}, nil
}

// App returns the application being run
func (r *Runner) App() *Application {
	return r.app
}

// Run starts the application and blocks until it's stopped
func (r *Runner) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := r.app.Start(ctx); err != nil {
		return fmt.Errorf("failed to start application: %w", err)
	}

	interrupted := false
	select {
	case <-ctx.Done():
		interrupted = true
	case <-r.app.Done():
	}

	if err := r.app.Stop(); err != nil {
		return fmt.Errorf("failed to stop application: %w", err)
	}
	if interrupted {
		fmt.Fprintln(r.out, "Interrupted, shutting down")
	}
	r.printSummary()

	return r.app.Err()
}

// printSummary prints a summary of the run
func (r *Runner) printSummary() {
	stats := r.app.GetStats()
	model := r.app.Model()

	fmt.Fprintf(r.out, "\n=== Session Summary ===\n")
	fmt.Fprintf(r.out, "Session: %s\n", stats.SessionID)
	fmt.Fprintf(r.out, "Source: %s\n", stats.Source)
	fmt.Fprintf(r.out, "Duration: %v\n", stats.Duration)
	fmt.Fprintf(r.out, "Bytes Fed: %d\n", stats.Session.BytesFed)
	fmt.Fprintf(r.out, "Windows Suppressed: %d\n", stats.Session.WindowsSuppressed)
	fmt.Fprintf(r.out, "Cells Written: %d\n", stats.Session.CellsWritten)
	fmt.Fprintf(r.out, "Snapshots: %d\n", stats.Session.Snapshots)
	fmt.Fprintf(r.out, "Screen: %dx%d, %d scrollback rows\n", model.Width(), model.Height(), model.Scrollback())
	fmt.Fprintf(r.out, "=======================\n")
}
