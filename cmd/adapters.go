package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/user/crosscheck/pkg/adapters"
)

var adaptersCmd = &cobra.Command{
	Use:   "adapters",
	Short: "List registered adapters with availability and capabilities",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		reg := adapters.Default()
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tENABLED\tAVAILABLE\tVERSION\tCLASS\tLANGUAGES\tNOTES")
		for _, name := range reg.Names() {
			a, err := reg.New(name)
			if err != nil {
				return err
			}
			caps := a.Capabilities()
			available, version := a.IsAvailable(), "-"
			if available {
				version = a.Version()
			}
			langs := "*"
			if !caps.Any() {
				langs = strings.Join(caps.Languages, ",")
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
				name, yesNo(cfg.Enabled(name)), yesNo(available), version, caps.Class, langs, caps.Notes)
		}
		return w.Flush()
	},
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func init() {
	rootCmd.AddCommand(adaptersCmd)
}
