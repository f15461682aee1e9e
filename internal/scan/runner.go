package scan

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/onewhl/kute/internal/logging"
	"github.com/onewhl/kute/internal/metrics"
	"github.com/onewhl/kute/internal/model"
	"github.com/onewhl/kute/internal/sink"
)

// Summary reports what one run did.
type Summary struct {
	// Submitted counts accepted locators; Skipped counts rejected lines.
	Submitted int
	Skipped   int
	Succeeded int
	Failed    int
	// Written counts test methods handed to the sink without error.
	Written int
}

// Runner feeds a project list through a Scanner and emits the results in
// input order, whatever order the projects finish in.
type Runner struct {
	scanner *Scanner
	writer  sink.ResultWriter
	logger  *slog.Logger
}

// NewRunner creates a runner writing to w. A Runner runs once: its
// executor is drained at the end of Run.
func NewRunner(scanner *Scanner, w sink.ResultWriter, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{scanner: scanner, writer: w, logger: logger}
}

// Run reads one locator per line from in. Blank lines and lines starting
// with '#' are ignored; invalid locators are logged and skipped. Run returns
// after every accepted project has been processed and written. The returned
// error reports an unreadable project list or failed writes; failed
// projects only show up in the Summary.
func (r *Runner) Run(ctx context.Context, in io.Reader) (Summary, error) {
	var (
		sum       Summary
		writeErrs []error
	)
	exec := r.scanner.exec
	pending := newQueue[*Pending]()
	drained := make(chan struct{})

	go func() {
		defer close(drained)
		for {
			p, ok := pending.Pop()
			if !ok {
				return
			}
			records, err := p.Wait()
			if err != nil {
				sum.Failed++
				r.logger.Warn("scan.project_failed", "project", p.Locator.Raw, "error", err)
				continue
			}
			sum.Succeeded++
			if len(records) == 0 {
				continue
			}
			exec.Sink(func() {
				if err := r.emit(p.Locator, records); err != nil {
					writeErrs = append(writeErrs, err)
					return
				}
				sum.Written += len(records)
			})
		}
	}()

	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	var readErr error
	for sc.Scan() {
		if ctx.Err() != nil {
			break
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		loc, err := ParseLocator(line)
		if err != nil {
			sum.Skipped++
			r.scanner.metrics.Project(metrics.OutcomeSkipped)
			r.logger.Warn("scan.locator_invalid", "line", line, "error", err)
			continue
		}
		sum.Submitted++
		r.logger.Info("scan.dispatch", "project", loc.Task(), "remote", loc.Remote)
		pending.Push(r.scanner.Submit(ctx, loc))
	}
	if err := sc.Err(); err != nil {
		readErr = fmt.Errorf("reading project list: %w", err)
	}

	pending.Close()
	<-drained
	exec.Wait()

	r.logger.Info("scan.done",
		"submitted", sum.Submitted,
		"skipped", sum.Skipped,
		"succeeded", sum.Succeeded,
		"failed", sum.Failed,
		"written", sum.Written,
	)
	return sum, errors.Join(append([]error{readErr}, writeErrs...)...)
}

func (r *Runner) emit(loc Locator, records []*model.TestMethodInfo) error {
	logger := logging.Task(r.logger, loc.Task(), "writer")
	if err := r.writer.WriteTestMethods(records); err != nil {
		logger.Error("write.failed", "test_methods", len(records), "error", err)
		return fmt.Errorf("writing results of %s: %w", loc.Raw, err)
	}
	logger.Info("write.done", "test_methods", len(records))
	return nil
}
