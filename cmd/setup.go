package cmd

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/user/crosscheck/pkg/llm"
)

// question is one line of the setup wizard.
type question struct {
	prompt string
	secret bool
}

// promptModel asks its questions one at a time.
type promptModel struct {
	questions []question
	idx       int
	inputs    []textinput.Model
	done      bool
}

func newPromptModel(questions []question) promptModel {
	inputs := make([]textinput.Model, len(questions))
	for i, q := range questions {
		ti := textinput.New()
		ti.Placeholder = q.prompt
		ti.CharLimit = 512
		if q.secret {
			ti.EchoMode = textinput.EchoPassword
			ti.EchoCharacter = '*'
		}
		inputs[i] = ti
	}
	m := promptModel{questions: questions, inputs: inputs}
	if len(inputs) > 0 {
		m.inputs[0].Focus()
	}
	return m
}

func (m promptModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m promptModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			if m.idx < len(m.inputs)-1 {
				m.inputs[m.idx].Blur()
				m.idx++
				m.inputs[m.idx].Focus()
				return m, textinput.Blink
			}
			m.done = true
			return m, tea.Quit
		}
	}
	var cmd tea.Cmd
	m.inputs[m.idx], cmd = m.inputs[m.idx].Update(msg)
	return m, cmd
}

func (m promptModel) View() string {
	if m.done || len(m.questions) == 0 {
		return ""
	}
	return fmt.Sprintf("%s: %s\n", m.questions[m.idx].prompt, m.inputs[m.idx].View())
}

// ask runs the prompt and returns the answers in question order.
func ask(questions ...question) ([]string, error) {
	result, err := tea.NewProgram(newPromptModel(questions)).Run()
	if err != nil {
		return nil, err
	}
	final, ok := result.(promptModel)
	if !ok || !final.done {
		return nil, fmt.Errorf("setup cancelled")
	}
	answers := make([]string, len(questions))
	for i := range questions {
		answers[i] = strings.TrimSpace(final.inputs[i].Value())
	}
	return answers, nil
}

func parseProvider(choice string) (string, bool) {
	providers := llm.Providers()
	choice = strings.ToLower(strings.TrimSpace(choice))
	if n, err := strconv.Atoi(choice); err == nil && n >= 1 && n <= len(providers) {
		return providers[n-1], true
	}
	for _, p := range providers {
		if p == choice {
			return p, true
		}
	}
	return "", false
}

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Interactive setup wizard for the AI verifier",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, "crosscheck setup")
		fmt.Fprintln(out, "----------------")
		fmt.Fprintln(out, "AI providers:")
		for i, p := range llm.Providers() {
			fmt.Fprintf(out, "%d. %s\n", i+1, p)
		}

		answers, err := ask(
			question{prompt: "Provider (number or name)"},
			question{prompt: "API key", secret: true},
		)
		if err != nil {
			return err
		}
		provider, ok := parseProvider(answers[0])
		if !ok {
			return fmt.Errorf("invalid provider %q", answers[0])
		}
		apiKey := answers[1]
		if apiKey == "" {
			return fmt.Errorf("API key cannot be empty")
		}

		fmt.Fprintln(out, "\nValidating key and fetching available models...")
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		selected := ""
		p, err := llm.NewProvider(ctx, provider, apiKey, "")
		if err != nil {
			return fmt.Errorf("initializing provider: %w", err)
		}
		models, err := p.ListModels(ctx)
		p.Close()
		if err != nil || len(models) == 0 {
			fmt.Fprintf(out, "Warning: could not fetch models: %v\n", err)
			answers, err := ask(question{prompt: "Model name"})
			if err != nil {
				return err
			}
			selected = answers[0]
		} else {
			for i, m := range models {
				fmt.Fprintf(out, "%d. %s\n", i+1, m)
			}
			answers, err := ask(question{prompt: "Model (number)"})
			if err != nil {
				return err
			}
			n, err := strconv.Atoi(answers[0])
			if err != nil || n < 1 || n > len(models) {
				fmt.Fprintln(out, "Invalid selection, using the first model.")
				n = 1
			}
			selected = models[n-1]
		}

		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		cfg.SelectedProvider = provider
		cfg.SelectedModel = selected
		cfg.SetAPIKey(provider, apiKey)
		if err := saveConfig(cfg); err != nil {
			return fmt.Errorf("saving config: %w", err)
		}

		fmt.Fprintln(out, "----------------")
		fmt.Fprintln(out, "Setup complete.")
		fmt.Fprintf(out, "Provider: %s\n", provider)
		fmt.Fprintf(out, "Model:    %s\n", selected)
		fmt.Fprintln(out, "The aiverify adapter will use these settings on the next 'crosscheck analyze'.")
		return nil
	},
}

func init() {
	configCmd.AddCommand(setupCmd)
}
