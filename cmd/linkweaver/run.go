package main

import (
	"bufio"
	"context"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/alvmarrod/link-weaver/internal/input"
	"github.com/alvmarrod/link-weaver/internal/metrics"
	"github.com/alvmarrod/link-weaver/internal/record"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

// stageFunc is the body of a stage; records go to out
type stageFunc func(ctx context.Context, tracker *metrics.Tracker, out *record.Writer) error

// exactArgs is cobra.ExactArgs that also prints usage
func exactArgs(n int) cobra.PositionalArgs {
	return withUsage(cobra.ExactArgs(n))
}

func withUsage(check cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := check(cmd, args); err != nil {
			cmd.PrintErrln(cmd.UsageString())
			return err
		}
		return nil
	}
}

// addOutputFlag registers --output on a stage that emits records
func addOutputFlag(cmd *cobra.Command, dst *string) {
	cmd.Flags().StringVarP(dst, "output", "o", "-", `output path ("-" is stdout, .gz is compressed)`)
}

// open returns a line source over path and the closer releasing it
func (a *app) open(cmd *cobra.Command, path string) (*bufio.Scanner, io.Closer, error) {
	return input.Lines(path, a.inputOptions(cmd))
}

// lazyOutput creates the destination on the first write, so a stage that
// fails before emitting anything leaves no output file behind
type lazyOutput struct {
	path   string
	stdout io.Writer
	dst    io.WriteCloser
}

func (l *lazyOutput) open() error {
	dst, err := input.Create(l.path, l.stdout)
	if err != nil {
		return err
	}
	l.dst = dst
	return nil
}

func (l *lazyOutput) Write(p []byte) (int, error) {
	if l.dst == nil {
		if err := l.open(); err != nil {
			return 0, err
		}
	}
	return l.dst.Write(p)
}

// Close releases the destination. When nothing was written it is created
// empty only if the stage succeeded.
func (l *lazyOutput) Close(succeeded bool) error {
	if l.dst == nil {
		if !succeeded {
			return nil
		}
		if err := l.open(); err != nil {
			return err
		}
	}
	return l.dst.Close()
}

// checkOutput rejects an output file that is also one of the inputs
func checkOutput(output string, inputs []string) error {
	if output == "" || output == "-" {
		return nil
	}
	out, err := filepath.Abs(output)
	if err != nil {
		return errors.Wrapf(err, "resolve %s", output)
	}
	for _, path := range inputs {
		if path == "-" {
			continue
		}
		in, err := filepath.Abs(path)
		if err != nil {
			return errors.Wrapf(err, "resolve %s", path)
		}
		if in == out {
			return errors.Errorf("output %s would overwrite an input", output)
		}
	}
	return nil
}

// stream runs a record-emitting stage
func (a *app) stream(cmd *cobra.Command, name string, inputs []string, output string, fn stageFunc) error {
	if err := a.checkInputs(cmd, inputs); err != nil {
		return err
	}
	if err := checkOutput(output, inputs); err != nil {
		return err
	}

	return a.run(cmd, name, func(ctx context.Context, tracker *metrics.Tracker) error {
		dst := &lazyOutput{path: output, stdout: cmd.OutOrStdout()}
		out := record.NewWriter(dst)

		err := fn(ctx, tracker, out)
		// Flush whatever was produced even when the stage failed midway
		if ferr := out.Flush(); ferr != nil && err == nil {
			err = ferr
		}
		if cerr := dst.Close(err == nil); cerr != nil && err == nil {
			err = cerr
		}
		return err
	})
}

// run executes a stage with progress logging and writes its run summary on exit
func (a *app) run(cmd *cobra.Command, name string, fn func(ctx context.Context, tracker *metrics.Tracker) error) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tracker := metrics.NewTracker(name)
	a.log.Infof("Stage %s starting (run %s)", name, tracker.GetSnapshot().RunID)

	// Start progress logger
	stopProgress := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(a.cfg.ProgressInterval())
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				a.log.Info(tracker.LogProgress())
			case <-stopProgress:
				return
			}
		}
	}()

	err := fn(ctx, tracker)

	close(stopProgress)
	wg.Wait()

	terminationReason := "completed"
	switch {
	case ctx.Err() != nil:
		terminationReason = "signal"
	case err != nil:
		terminationReason = "error"
	}

	a.log.Info("Final stats: " + tracker.LogProgress())

	if a.metricsPath != "" {
		if werr := tracker.WriteToFile(a.metricsPath, terminationReason); werr != nil {
			a.log.Errorf("Failed to write metrics: %v", werr)
		} else {
			a.log.Debugf("Metrics written to %s", a.metricsPath)
		}
	}
	if a.cfg.PromTextfile != "" {
		if werr := tracker.WriteTextfile(a.cfg.PromTextfile); werr != nil {
			a.log.Errorf("Failed to write metrics textfile: %v", werr)
		}
	}

	if err != nil {
		return err
	}
	a.log.Infof("Stage %s complete", name)
	return nil
}
