// Package main provides the kute CLI.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/onewhl/kute/internal/buildsys"
	"github.com/onewhl/kute/internal/config"
	"github.com/onewhl/kute/internal/logging"
	"github.com/onewhl/kute/internal/mapper"
	"github.com/onewhl/kute/internal/metrics"
	"github.com/onewhl/kute/internal/model"
	"github.com/onewhl/kute/internal/scan"
	"github.com/onewhl/kute/internal/sink"
)

var version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:           "kute",
	Short:         "Mine test methods and the production methods they exercise",
	Long:          `kute clones or opens JVM projects, finds their JUnit, TestNG and kotlin.test methods, links each one to the production class and method it tests, and writes the dataset as CSV, JSON or SQLite.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Mine every project listed in the projects file",
	Args:  cobra.NoArgs,
	RunE:  runScan,
}

var modulesCmd = &cobra.Command{
	Use:   "modules <dir>",
	Short: "Show the build system and modules detected in a project",
	Args:  cobra.ExactArgs(1),
	RunE:  runModules,
}

var showCmd = &cobra.Command{
	Use:   "show <results-file>",
	Short: "Summarize a results file written by scan",
	Args:  cobra.ExactArgs(1),
	RunE:  runShow,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), "kute", version)
	},
}

var (
	configPath     string
	projectsFile   string
	outputFormats  string
	outputPath     string
	compressJSON   bool
	repoStorage    string
	ioThreads      int
	cpuThreads     int
	parseWorkers   int
	cleanup        bool
	methodStrategy string
	languages      []string
	pathPrefilter  bool
	ignorePatterns []string
	logLevel       string
	logFormat      string
	metricsFile    string
)

func init() {
	f := scanCmd.Flags()
	f.StringVarP(&projectsFile, "projects", "p", "", "File with one project URL or directory per line")
	f.StringVarP(&outputFormats, "format", "f", "", "Output formats: csv, json, sqlite (comma-separated)")
	f.StringVarP(&outputPath, "output", "o", "", "Output file, or directory for several formats")
	f.BoolVar(&compressJSON, "compress-json", false, "Write JSON output zstd-compressed")
	f.StringVar(&repoStorage, "repo-storage", "", "Directory remote projects are cloned into")
	f.IntVar(&ioThreads, "io-threads", 0, "Concurrent fetches (0 = unbounded)")
	f.IntVar(&cpuThreads, "cpu-threads", 0, "Concurrent project processing (0 = unbounded)")
	f.IntVar(&parseWorkers, "parse-workers", 0, "Concurrent file parses per project (0 = 1 when --cpu-threads is bounded, else one per CPU)")
	f.BoolVar(&cleanup, "cleanup", true, "Delete cloned projects after processing")
	f.StringVar(&methodStrategy, "method-strategy", "", "Method mapping strategy: "+strings.Join(mapper.Strategies, ", "))
	f.StringSliceVar(&languages, "lang", nil, "Languages to mine (java, kotlin)")
	f.BoolVar(&pathPrefilter, "path-prefilter", true, "Only read test-source roots of Gradle and Maven projects")
	f.StringSliceVar(&ignorePatterns, "ignore", nil, "Extra gitignore-style patterns to skip")
	f.StringVar(&metricsFile, "metrics-file", "", "Write Prometheus metrics to this file at the end of the run")

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Log format: text or json")

	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(modulesCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig layers explicitly set flags over file and environment settings.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	flags := cmd.Flags()
	set := func(name string, apply func()) {
		if flags.Lookup(name) != nil && flags.Changed(name) {
			apply()
		}
	}
	set("projects", func() { cfg.Projects = projectsFile })
	set("format", func() { cfg.OutputFormats = outputFormats })
	set("output", func() { cfg.OutputPath = outputPath })
	set("compress-json", func() { cfg.CompressJSON = compressJSON })
	set("repo-storage", func() { cfg.RepoStorage = repoStorage })
	set("io-threads", func() { cfg.IOThreads = ioThreads })
	set("cpu-threads", func() { cfg.CPUThreads = cpuThreads })
	set("parse-workers", func() { cfg.ParseWorkers = parseWorkers })
	set("cleanup", func() { cfg.Cleanup = cleanup })
	set("method-strategy", func() { cfg.MethodStrategy = methodStrategy })
	set("lang", func() { cfg.Languages = languages })
	set("path-prefilter", func() { cfg.PathPrefilter = pathPrefilter })
	set("ignore", func() { cfg.Ignore = append(cfg.Ignore, ignorePatterns...) })
	set("log-level", func() { cfg.LogLevel = logLevel })
	set("log-format", func() { cfg.LogFormat = logFormat })
	set("metrics-file", func() { cfg.MetricsFile = metricsFile })

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runScan(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := logging.Setup(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	logger = logger.With("run", uuid.NewString())

	in, err := os.Open(cfg.Projects)
	if err != nil {
		return fmt.Errorf("opening project list: %w", err)
	}
	defer in.Close()

	types, _ := cfg.OutputTypes()
	langs, _ := cfg.Langs()
	methods, _ := mapper.NewMethodMapper(cfg.MethodStrategy)

	writer, err := sink.Open(types, cfg.OutputPath, sink.Options{CompressJSON: cfg.CompressJSON})
	if err != nil {
		return err
	}

	m := metrics.New()
	exec := scan.NewExecutor(cfg.IOThreads, cfg.CPUThreads)
	scanner := scan.NewScanner(exec, nil, methods, scan.Options{
		Storage:      cfg.RepoStorage,
		Cleanup:      cfg.Cleanup,
		Languages:    langs,
		PathFilter:   cfg.PathPrefilter,
		Ignore:       cfg.Ignore,
		ParseWorkers: cfg.ParseWorkers,
	}, logger, m)

	logger.Info("scan.start",
		"projects", cfg.Projects,
		"output", cfg.OutputPath,
		"formats", cfg.OutputFormats,
		"io_threads", cfg.IOThreads,
		"cpu_threads", cfg.CPUThreads,
		"parse_workers", cfg.ParseWorkers,
		"strategy", cfg.MethodStrategy,
	)
	sum, runErr := scan.NewRunner(scanner, writer, logger).Run(cmd.Context(), in)
	if err := writer.Close(); err != nil && runErr == nil {
		runErr = fmt.Errorf("closing output: %w", err)
	}

	if cfg.MetricsFile != "" {
		if err := m.WriteTextfile(cfg.MetricsFile); err != nil {
			logger.Warn("metrics.write_failed", "file", cfg.MetricsFile, "error", err)
		}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "projects: %d submitted, %d succeeded, %d failed, %d skipped; test methods written: %d\n",
		sum.Submitted, sum.Succeeded, sum.Failed, sum.Skipped, sum.Written)
	return runErr
}

func runModules(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := logging.Setup(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	root, err := filepath.Abs(args[0])
	if err != nil {
		return err
	}
	if info, err := os.Stat(root); err != nil || !info.IsDir() {
		return fmt.Errorf("%w: %s", scan.ErrNotDirectory, args[0])
	}

	bs := buildsys.Detect(root)
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "build system: %s\n", bs)
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "MODULE\tDIR")
	for _, mod := range buildsys.Modules(bs, root, logger) {
		rel, err := filepath.Rel(root, mod.Dir)
		if err != nil {
			rel = mod.Dir
		}
		fmt.Fprintf(tw, "%s\t%s\n", mod.Name, rel)
	}
	return tw.Flush()
}

func runShow(cmd *cobra.Command, args []string) error {
	path := args[0]
	var (
		methods []*model.TestMethodInfo
		err     error
	)
	switch {
	case strings.HasSuffix(path, ".csv"):
		methods, err = sink.ReadCSV(path)
	case strings.HasSuffix(path, ".json"), strings.HasSuffix(path, ".json.zst"):
		methods, err = sink.ReadJSON(path)
	case strings.HasSuffix(path, ".db"), strings.HasSuffix(path, ".sqlite"):
		methods, err = sink.ReadSQLite(path)
	default:
		return fmt.Errorf("unrecognized results file %s", path)
	}
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	type stats struct{ tests, classes, methods int }
	var order []string
	byProject := map[string]*stats{}
	for _, m := range methods {
		key := m.Class.Project.Name
		st, ok := byProject[key]
		if !ok {
			st = &stats{}
			byProject[key] = st
			order = append(order, key)
		}
		st.tests++
		if m.Class.SourceClass != nil {
			st.classes++
		}
		if m.SourceMethod != nil {
			st.methods++
		}
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PROJECT\tTESTS\tCLASS MAPPED\tMETHOD MAPPED")
	for _, key := range order {
		st := byProject[key]
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\n", key, st.tests, st.classes, st.methods)
	}
	return tw.Flush()
}
