package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/user/crosscheck/pkg/config"
	"github.com/user/crosscheck/pkg/logging"
)

var rootCmd = &cobra.Command{
	Use:   "crosscheck",
	Short: "Cross-tool code analysis correlation",
	Long: `crosscheck runs static analyzers, secret scanners, formal verifiers and
AI reviewers over a codebase, normalizes what they report into one model,
and correlates their findings into ranked groups and file hotspots.`,
	SilenceUsage: true,
}

var (
	DebugMode  bool
	ConfigPath string
)

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	cobra.CheckErr(rootCmd.Execute())
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&DebugMode, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&ConfigPath, "config", "", "Config file (default ~/.crosscheck/config.yaml)")
}

// loadConfig reads --config when given, otherwise the default file.
func loadConfig() (*config.Config, error) {
	if ConfigPath != "" {
		return config.Load(ConfigPath)
	}
	return config.LoadConfig()
}

func saveConfig(cfg *config.Config) error {
	if ConfigPath != "" {
		return config.Save(ConfigPath, cfg)
	}
	return config.SaveConfig(cfg)
}

func newLogger() *zap.SugaredLogger {
	log, err := logging.New(DebugMode)
	if err != nil {
		return zap.NewNop().Sugar()
	}
	return log
}
