// Package extract finds test methods in a module's sources and links them to
// production code.
package extract

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/onewhl/kute/internal/discover"
	"github.com/onewhl/kute/internal/mapper"
	"github.com/onewhl/kute/internal/metrics"
	"github.com/onewhl/kute/internal/model"
	"github.com/onewhl/kute/internal/parse"
)

const progressEvery = 100

// Extractor processes the files of one language in one module.
type Extractor struct {
	frontEnd parse.FrontEnd
	module   *model.ModuleInfo
	classes  *mapper.ClassMapper
	methods  mapper.MethodMapper
	filter   *discover.TestDirFilter
	workers  int
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithWorkers bounds the number of files parsed concurrently.
func WithWorkers(n int) Option {
	return func(e *Extractor) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Extractor) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithMetrics records extraction counters.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Extractor) { e.metrics = m }
}

// WithPathFilter restricts processing to test-source roots.
func WithPathFilter(f *discover.TestDirFilter) Option {
	return func(e *Extractor) { e.filter = f }
}

// New creates an extractor for module.
func New(fe parse.FrontEnd, module *model.ModuleInfo, classes *mapper.ClassMapper, methods mapper.MethodMapper, opts ...Option) *Extractor {
	e := &Extractor{
		frontEnd: fe,
		module:   module,
		classes:  classes,
		methods:  methods,
		workers:  runtime.GOMAXPROCS(0),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Process extracts test methods from files. Files are handled concurrently;
// the result keeps the order of files, then classes, then methods. Files
// that cannot be read or parsed are skipped.
func (e *Extractor) Process(ctx context.Context, files []string) ([]*model.TestMethodInfo, error) {
	if e.filter != nil {
		files = e.filter.Apply(files)
	}
	if len(files) == 0 {
		return nil, nil
	}

	logger := e.logger.With("module", e.module.Name, "lang", e.frontEnd.Language().String())
	logger.Debug("extract.start", "files", len(files))

	results := make([][]*model.TestMethodInfo, len(files))
	var done atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i, path := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = e.processFile(gctx, logger, path)
			if n := done.Add(1); n%progressEvery == 0 {
				logger.Info("extract.progress", "done", n, "total", len(files))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("extracting %s: %w", e.module.Name, err)
	}

	var out []*model.TestMethodInfo
	for _, r := range results {
		out = append(out, r...)
	}
	logger.Debug("extract.done", "files", len(files), "test_methods", len(out))
	return out, nil
}

func (e *Extractor) processFile(ctx context.Context, logger *slog.Logger, path string) []*model.TestMethodInfo {
	content, err := os.ReadFile(path)
	if err != nil {
		logger.Warn("extract.read_failed", "file", path, "error", err)
		return nil
	}
	fw, ok := DetectFramework(content)
	if !ok {
		return nil
	}
	classes, err := e.frontEnd.ParseClasses(ctx, path, content)
	if err != nil {
		logger.Warn("extract.parse_failed", "file", path, "error", err)
		return nil
	}
	e.metrics.TestFile()

	var out []*model.TestMethodInfo
	for _, c := range classes {
		out = append(out, e.processClass(ctx, logger, fw, c)...)
	}
	return out
}

func (e *Extractor) processClass(ctx context.Context, logger *slog.Logger, fw model.TestFramework, c parse.ClassMeta) []*model.TestMethodInfo {
	var tests []parse.MethodMeta
	for _, m := range c.Methods() {
		if isTestMethod(fw, c, m) {
			tests = append(tests, m)
		}
	}
	if len(tests) == 0 {
		return nil
	}

	source := e.classes.FindSourceClass(c)
	if source != nil {
		e.metrics.ClassMapped()
	}
	testClass := model.NewTestClassInfo(c.Name(), c.Package(), e.module, c.Language(), fw, source)
	candidates := e.candidateMethods(ctx, logger, source)
	traits := traitsOf(fw, c)

	out := make([]*model.TestMethodInfo, 0, len(tests))
	for _, m := range tests {
		var sourceMethod *model.SourceMethodInfo
		if source != nil {
			sourceMethod = e.methods.FindSourceMethod(m, source, candidates)
		}
		e.metrics.TestMethod(sourceMethod != nil)
		out = append(out, model.NewTestMethodInfo(model.TestMethodInfo{
			Name:           m.Name(),
			Body:           m.Body(),
			Comment:        m.Comment(),
			DisplayName:    displayName(fw, m),
			IsParametrised: isParametrised(fw, traits, m),
			IsDisabled:     isDisabled(fw, traits, m),
			Class:          testClass,
			SourceMethod:   sourceMethod,
		}))
	}
	return out
}

// candidateMethods parses the production file once per test class.
func (e *Extractor) candidateMethods(ctx context.Context, logger *slog.Logger, source *model.SourceClassInfo) []parse.MethodMeta {
	if source == nil {
		return nil
	}
	methods, err := parse.For(source.Language).ParseMethods(ctx, source.File)
	if err != nil {
		logger.Warn("extract.source_parse_failed", "file", source.File, "error", err)
		return nil
	}
	return methods
}
