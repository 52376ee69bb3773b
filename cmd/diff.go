package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/user/crosscheck/pkg/engine"
	"github.com/user/crosscheck/pkg/report"
)

var diffCmd = &cobra.Command{
	Use:   "diff <baseline.json> <current.json>",
	Short: "Compare two saved analysis results",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		baseline, err := engine.LoadSnapshot(args[0])
		if err != nil {
			return fmt.Errorf("loading baseline: %w", err)
		}
		current, err := engine.LoadSnapshot(args[1])
		if err != nil {
			return fmt.Errorf("loading current result: %w", err)
		}
		d := engine.Compare(current, baseline)
		if _, err := io.WriteString(cmd.OutOrStdout(), report.DiffText(d, args[0])); err != nil {
			return err
		}
		if fail, _ := cmd.Flags().GetBool("fail-on-new"); fail && len(d.New) > 0 {
			return fmt.Errorf("%d new issues", len(d.New))
		}
		return nil
	},
}

func init() {
	diffCmd.Flags().Bool("fail-on-new", false, "Exit non-zero when the current result has new issues")
	rootCmd.AddCommand(diffCmd)
}
