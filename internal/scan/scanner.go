// Package scan drives projects through fetching, processing and emission.
package scan

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"time"

	"github.com/onewhl/kute/internal/buildsys"
	"github.com/onewhl/kute/internal/discover"
	"github.com/onewhl/kute/internal/extract"
	"github.com/onewhl/kute/internal/gitio"
	"github.com/onewhl/kute/internal/ignore"
	"github.com/onewhl/kute/internal/logging"
	"github.com/onewhl/kute/internal/mapper"
	"github.com/onewhl/kute/internal/metrics"
	"github.com/onewhl/kute/internal/model"
	"github.com/onewhl/kute/internal/parse"
)

// Options control how projects are fetched and processed.
type Options struct {
	// Storage is the directory remote projects are cloned into.
	Storage string
	// Cleanup removes fetched working copies after processing. Local
	// projects are never removed.
	Cleanup   bool
	Languages []model.Lang
	// PathFilter limits Gradle and Maven projects to test-source roots.
	PathFilter bool
	// Ignore holds extra gitignore-style patterns pruned during discovery.
	Ignore []string
	// ParseWorkers bounds concurrent file parsing inside one module. Zero
	// picks one worker when the CPU pool is bounded, so at most CPUBound
	// files are parsed at once, and GOMAXPROCS workers otherwise.
	ParseWorkers int
}

// Pending is the eventual outcome of one submitted project.
type Pending struct {
	Locator Locator

	done    chan struct{}
	records []*model.TestMethodInfo
	err     error
}

func newPending(loc Locator) *Pending {
	return &Pending{Locator: loc, done: make(chan struct{})}
}

func (p *Pending) resolve(records []*model.TestMethodInfo, err error) {
	p.records, p.err = records, err
	close(p.done)
}

// Wait blocks until the project has been processed or has failed.
func (p *Pending) Wait() ([]*model.TestMethodInfo, error) {
	<-p.done
	return p.records, p.err
}

// Scanner schedules the fetch and processing stages of projects on an
// Executor.
type Scanner struct {
	exec    *Executor
	fetcher gitio.Fetcher
	methods mapper.MethodMapper
	opts    Options
	logger  *slog.Logger
	metrics *metrics.Metrics

	frontEnd func(model.Lang) parse.FrontEnd
}

// NewScanner creates a scanner. A nil fetcher clones with go-git.
func NewScanner(exec *Executor, fetcher gitio.Fetcher, methods mapper.MethodMapper, opts Options, logger *slog.Logger, m *metrics.Metrics) *Scanner {
	if fetcher == nil {
		fetcher = gitio.ShallowCloner{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if len(opts.Languages) == 0 {
		opts.Languages = model.Languages
	}
	return &Scanner{exec: exec, fetcher: fetcher, methods: methods, opts: opts, logger: logger, metrics: m, frontEnd: parse.For}
}

// Submit schedules loc and returns immediately.
func (s *Scanner) Submit(ctx context.Context, loc Locator) *Pending {
	p := newPending(loc)
	cancelled := func(err error) {
		s.metrics.Project(metrics.OutcomeSkipped)
		p.resolve(nil, err)
	}

	if !loc.Remote {
		s.exec.CPU(ctx, func() { s.runProcess(ctx, p, loc.Dir, "", false) }, cancelled)
		return p
	}

	dir, err := storageDir(s.opts.Storage, loc)
	if err != nil {
		s.metrics.Project(metrics.OutcomeFailed)
		p.resolve(nil, err)
		return p
	}
	loc.Dir = dir
	p.Locator = loc
	s.exec.IO(ctx, func() {
		revision, err := s.fetch(ctx, loc)
		if err != nil {
			s.metrics.Project(metrics.OutcomeFailed)
			p.resolve(nil, err)
			return
		}
		s.exec.CPU(ctx, func() { s.runProcess(ctx, p, loc.Dir, revision, s.opts.Cleanup) }, func(err error) {
			s.removeWorkingCopy(loc, s.opts.Cleanup)
			cancelled(err)
		})
	}, cancelled)
	return p
}

func (s *Scanner) fetch(ctx context.Context, loc Locator) (revision string, err error) {
	logger := logging.Task(s.logger, loc.Task(), "downloader")
	defer func() {
		if r := recover(); r != nil {
			logger.Error("fetch.panic", "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("fetching %s: panic: %v", loc.Raw, r)
		}
		if err != nil {
			// a partial clone is never processed
			os.RemoveAll(loc.Dir)
		}
	}()

	logger.Info("fetch.start", "url", loc.Raw, "dest", loc.Dir)
	start := time.Now()
	progress := logging.NewLineWriter(logger, "fetch.progress")
	revision, err = s.fetcher.Fetch(ctx, loc.Raw, loc.Dir, progress)
	progress.Close()
	s.metrics.Fetch(time.Since(start))
	if err != nil {
		logger.Error("fetch.failed", "url", loc.Raw, "error", err)
		return "", err
	}
	logger.Info("fetch.done", "revision", revision, "duration", time.Since(start))
	return revision, nil
}

func (s *Scanner) runProcess(ctx context.Context, p *Pending, dir, revision string, cleanup bool) {
	loc := p.Locator
	logger := logging.Task(s.logger, loc.Task(), "processor")
	var (
		records []*model.TestMethodInfo
		err     error
	)
	defer func() {
		if r := recover(); r != nil {
			logger.Error("process.panic", "panic", r, "stack", string(debug.Stack()))
			records, err = nil, fmt.Errorf("processing %s: panic: %v", loc.Raw, r)
		}
		s.removeWorkingCopy(loc, cleanup)
		if err != nil {
			s.metrics.Project(metrics.OutcomeFailed)
		} else {
			s.metrics.Project(metrics.OutcomeSucceeded)
		}
		p.resolve(records, err)
	}()

	start := time.Now()
	records, err = s.Process(ctx, loc, dir, revision, logger)
	s.metrics.Process(time.Since(start))
	if err != nil {
		logger.Error("process.failed", "error", err)
		return
	}
	logger.Info("process.done", "test_methods", len(records), "duration", time.Since(start))
}

func (s *Scanner) removeWorkingCopy(loc Locator, cleanup bool) {
	if !cleanup || !loc.Remote {
		return
	}
	if err := os.RemoveAll(loc.Dir); err != nil {
		s.logger.Warn("cleanup.failed", "dir", loc.Dir, "error", err)
	}
}

// Process mines the project checked out in dir. An empty revision is
// resolved from the Git HEAD of dir, or from a digest of its sources.
func (s *Scanner) Process(ctx context.Context, loc Locator, dir, revision string, logger *slog.Logger) ([]*model.TestMethodInfo, error) {
	if logger == nil {
		logger = s.logger
	}
	bs := buildsys.Detect(dir)
	mods := buildsys.Modules(bs, dir, logger)
	logger.Info("process.start", "build_system", bs.String(), "modules", len(mods))

	files := make([]discover.Files, len(mods))
	var all []string
	for i, mod := range mods {
		f, err := discover.Walk(mod.Dir, s.moduleMatcher(mod, mods), s.opts.Languages)
		if err != nil {
			return nil, fmt.Errorf("discovering module %s: %w", mod.Name, err)
		}
		files[i] = f
		all = append(all, f.All()...)
	}

	if revision == "" {
		rev, err := gitio.HeadRevision(dir)
		if err != nil {
			logger.Warn("process.revision_failed", "error", err)
		}
		if rev == "" {
			if rev, err = discover.Digest(dir, all); err != nil {
				return nil, fmt.Errorf("computing revision: %w", err)
			}
		}
		revision = rev
	}

	project := model.NewProjectInfo(loc.Name, bs, loc.Raw, revision)
	modules := make([]*model.ModuleInfo, len(mods))
	index := model.ClassIndex{}
	for i, mod := range mods {
		modules[i] = model.NewModuleInfo(mod.Name, project)
		for _, lang := range s.opts.Languages {
			index.Add(modules[i], files[i][lang]...)
		}
	}

	classes := mapper.NewClassMapper(index, nil)
	filter := discover.NewTestDirFilter(bs, s.opts.PathFilter)

	var out []*model.TestMethodInfo
	for i, module := range modules {
		for _, lang := range s.opts.Languages {
			ex := extract.New(s.frontEnd(lang), module, classes, s.methods,
				extract.WithWorkers(s.parseWorkers()),
				extract.WithLogger(logger),
				extract.WithMetrics(s.metrics),
				extract.WithPathFilter(filter),
			)
			recs, err := ex.Process(ctx, files[i][lang])
			if err != nil {
				return nil, err
			}
			out = append(out, recs...)
		}
	}
	return out, nil
}

func (s *Scanner) parseWorkers() int {
	if s.opts.ParseWorkers > 0 {
		return s.opts.ParseWorkers
	}
	if s.exec.CPUBound() > 0 {
		return 1
	}
	return 0
}

// moduleMatcher prunes configured patterns plus the directories of other
// modules nested inside mod, so every file belongs to exactly one module.
func (s *Scanner) moduleMatcher(mod buildsys.Module, all []buildsys.Module) *ignore.Matcher {
	m := ignore.Default(s.opts.Ignore...)
	for _, other := range all {
		if other.Dir == mod.Dir {
			continue
		}
		rel, err := filepath.Rel(mod.Dir, other.Dir)
		if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			continue
		}
		m.AddPattern("/" + filepath.ToSlash(rel) + "/")
	}
	return m
}
