package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/user/crosscheck/pkg/adapter"
	"github.com/user/crosscheck/pkg/adapters"
	"github.com/user/crosscheck/pkg/adapters/aiverify"
	"github.com/user/crosscheck/pkg/adapters/codeql"
	"github.com/user/crosscheck/pkg/cache"
	"github.com/user/crosscheck/pkg/config"
	"github.com/user/crosscheck/pkg/engine"
	"github.com/user/crosscheck/pkg/model"
	"github.com/user/crosscheck/pkg/orchestrator"
	"github.com/user/crosscheck/pkg/report"
	"github.com/user/crosscheck/pkg/taxonomy"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [paths...]",
	Short: "Run the enabled adapters and correlate their findings",
	Long: `Run every enabled adapter (or those named with --adapters) over the given
paths, then print the correlated result.

Press Ctrl-C once to cancel running adapters and report what finished;
press it again to kill their processes immediately.`,
	RunE: runAnalyze,
}

func init() {
	f := analyzeCmd.Flags()
	f.String("root", "", "Project root (default: current directory)")
	f.StringSlice("adapters", nil, "Adapters to run (default: all enabled)")
	f.String("format", "text", "Output format: text, json or sarif")
	f.StringP("output", "o", "", "Write the report to a file instead of stdout")
	f.Int("max-concurrent", 0, "Adapters run at once (default from config)")
	f.Int("bucket-size", 0, "Line bucket size for same-location correlation (default from config)")
	f.String("save-snapshot", "", "Also save the JSON result for later diffs")
	f.Bool("no-cache", false, "Do not use the shared artifact cache")
	rootCmd.AddCommand(analyzeCmd)
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log := newLogger()
	defer log.Sync()

	format, _ := cmd.Flags().GetString("format")
	if format != "text" && format != "json" && format != "sarif" {
		return fmt.Errorf("unknown format %q", format)
	}

	root, _ := cmd.Flags().GetString("root")
	if root == "" {
		if root, err = os.Getwd(); err != nil {
			return err
		}
	}
	if root, err = filepath.Abs(root); err != nil {
		return err
	}
	targets := make([]string, 0, len(args))
	for _, a := range args {
		if !filepath.IsAbs(a) {
			a = filepath.Join(root, a)
		}
		targets = append(targets, a)
	}

	names, _ := cmd.Flags().GetStringSlice("adapters")
	list, err := adapters.Default().Build(names, cfg.Enabled)
	if err != nil {
		return err
	}

	tables, err := tablesFor(cfg)
	if err != nil {
		return err
	}
	if n, _ := cmd.Flags().GetInt("max-concurrent"); n > 0 {
		cfg.Analysis.MaxConcurrent = n
	}
	if n, _ := cmd.Flags().GetInt("bucket-size"); n > 0 {
		cfg.Analysis.BucketSize = n
	}

	var artifacts *cache.Cache
	if noCache, _ := cmd.Flags().GetBool("no-cache"); !noCache {
		if artifacts, err = openCache(cfg); err != nil {
			log.Warnw("artifact cache disabled", "error", err)
		} else {
			defer artifacts.Close()
		}
	}

	ctx, force, stop := interruptible(cmd.Context(), log)
	defer stop()

	res := engine.Analyze(ctx, engine.Config{
		ProjectRoot:      root,
		Targets:          targets,
		Adapters:         list,
		Tables:           tables,
		BucketSize:       cfg.Analysis.BucketSize,
		HotspotThreshold: cfg.Analysis.HotspotThreshold,
		Logger:           log,
		Run: orchestrator.Options{
			MaxConcurrent: cfg.Analysis.MaxConcurrent,
			OutputCap:     cfg.Analysis.OutputCapBytes,
			Timeouts: orchestrator.Timeouts{
				LocalPerFile: cfg.Analysis.Timeouts.LocalPerFile,
				Database:     cfg.Analysis.Timeouts.Database,
				Network:      cfg.Analysis.Timeouts.Network,
				PerAdapter:   cfg.Analysis.Timeouts.PerAdapter,
			},
			Settings:    adapterSettings(cfg),
			Credentials: credentials(cfg),
			Cache:       artifacts,
			Force:       force,
			Logger:      log,
		},
	})
	if err := engine.Validate(&res); err != nil {
		log.Errorw("result failed validation", "error", err)
	}

	if path, _ := cmd.Flags().GetString("save-snapshot"); path != "" {
		if err := engine.SaveSnapshot(path, &res); err != nil {
			return fmt.Errorf("saving snapshot: %w", err)
		}
	}

	out := cmd.OutOrStdout()
	if path, _ := cmd.Flags().GetString("output"); path != "" {
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}
	return writeResult(out, format, &res)
}

func writeResult(w io.Writer, format string, res *model.AnalysisResult) error {
	switch format {
	case "json":
		return report.WriteJSON(w, res)
	case "sarif":
		return report.WriteSARIF(w, res)
	default:
		playbooks, err := report.DefaultPlaybooks()
		if err != nil {
			return err
		}
		_, err = io.WriteString(w, report.Summary(res, playbooks))
		return err
	}
}

// interruptible cancels ctx on the first SIGINT/SIGTERM and closes force on
// the second.
func interruptible(parent context.Context, log *zap.SugaredLogger) (context.Context, <-chan struct{}, func()) {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	force := make(chan struct{})
	sigs := make(chan os.Signal, 2)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	done := make(chan struct{})
	go func() {
		select {
		case <-sigs:
			log.Warn("interrupted, cancelling adapters (interrupt again to kill)")
			cancel()
		case <-done:
			return
		}
		select {
		case <-sigs:
			log.Warn("killing adapter processes")
			close(force)
		case <-done:
		}
	}()
	return ctx, force, func() {
		signal.Stop(sigs)
		close(done)
		cancel()
	}
}

func tablesFor(cfg *config.Config) (*taxonomy.Set, error) {
	if cfg.Analysis.TaxonomyDir == "" {
		return taxonomy.Default()
	}
	return taxonomy.Load(cfg.Analysis.TaxonomyDir)
}

func openCache(cfg *config.Config) (*cache.Cache, error) {
	dir := cfg.Analysis.CacheDir
	if dir == "" {
		base, err := config.Dir()
		if err != nil {
			return nil, err
		}
		dir = filepath.Join(base, "cache")
	}
	return cache.Open(dir)
}

// adapterSettings merges config-level defaults into the per-adapter blocks.
func adapterSettings(cfg *config.Config) map[string]adapter.Settings {
	settings := cfg.AdapterSettings()
	withDefault := func(name, key string, v any) {
		s := settings[name]
		if s == nil {
			s = adapter.Settings{}
			settings[name] = s
		}
		if _, ok := s[key]; !ok {
			s[key] = v
		}
	}
	if p := strings.ToLower(cfg.SelectedProvider); p != "" {
		withDefault(aiverify.Name, "provider", p)
		// The selected model only makes sense for the selected provider.
		if cfg.SelectedModel != "" && settings[aiverify.Name].String("provider", "") == p {
			withDefault(aiverify.Name, "model", cfg.SelectedModel)
		}
	}
	if cfg.Analysis.CacheMaxAge > 0 {
		withDefault(codeql.Name, "max_age", cfg.Analysis.CacheMaxAge.String())
	}
	return settings
}
