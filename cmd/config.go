package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/user/crosscheck/pkg/llm"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration (AI provider, model, keys)",
}

var setKeyCmd = &cobra.Command{
	Use:   "set-key",
	Short: "Store an API key or token for a provider or adapter",
	Long: `Store a credential in the config file. Names are LLM providers
(gemini, openai, anthropic) or adapters that need a token (sonarqube).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		provider, _ := cmd.Flags().GetString("provider")
		key, _ := cmd.Flags().GetString("key")
		if provider == "" || key == "" {
			return fmt.Errorf("--provider and --key are required")
		}

		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		cfg.SetAPIKey(strings.ToLower(provider), key)
		if err := saveConfig(cfg); err != nil {
			return fmt.Errorf("saving config: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Key saved for: %s\n", provider)
		return nil
	},
}

var setModelCmd = &cobra.Command{
	Use:   "set-model",
	Short: "Set the provider and model used by the AI verifier",
	RunE: func(cmd *cobra.Command, args []string) error {
		provider, _ := cmd.Flags().GetString("provider")
		model, _ := cmd.Flags().GetString("model")

		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		if provider != "" {
			cfg.SelectedProvider = strings.ToLower(provider)
		}
		if model != "" {
			cfg.SelectedModel = model
		}
		if err := saveConfig(cfg); err != nil {
			return fmt.Errorf("saving config: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Active configuration updated: Provider=%s, Model=%s\n", cfg.SelectedProvider, cfg.SelectedModel)
		return nil
	},
}

var listModelsCmd = &cobra.Command{
	Use:   "list-models",
	Short: "List available models from the configured provider",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		provider := cfg.SelectedProvider
		if provider == "" {
			return fmt.Errorf("no provider selected, run 'crosscheck config setup'")
		}
		apiKey, _ := credentials(cfg).Credential(provider)

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		p, err := llm.NewProvider(ctx, provider, apiKey, "")
		if err != nil {
			return err
		}
		defer p.Close()
		models, err := p.ListModels(ctx)
		if err != nil {
			return fmt.Errorf("fetching models: %w", err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Available Models (%s):\n", provider)
		for _, m := range models {
			mark := " "
			if m == cfg.SelectedModel {
				mark = "*"
			}
			fmt.Fprintf(out, "%s %s\n", mark, m)
		}
		return nil
	},
}

func init() {
	providers := strings.Join(llm.Providers(), ", ")
	setKeyCmd.Flags().StringP("provider", "p", "", "Provider or adapter ("+providers+", sonarqube)")
	setKeyCmd.Flags().StringP("key", "k", "", "API key or token")

	setModelCmd.Flags().StringP("provider", "p", "", "Provider ("+providers+")")
	setModelCmd.Flags().StringP("model", "m", "", "Model name")

	configCmd.AddCommand(setKeyCmd)
	configCmd.AddCommand(setModelCmd)
	configCmd.AddCommand(listModelsCmd)
	rootCmd.AddCommand(configCmd)
}
