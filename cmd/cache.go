package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and prune the shared artifact cache",
}

var cacheListCmd = &cobra.Command{
	Use:   "list",
	Short: "List cached artifacts",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		c, err := openCache(cfg)
		if err != nil {
			return err
		}
		defer c.Close()
		entries, err := c.Entries()
		if err != nil {
			return err
		}
		now := time.Now()
		for _, e := range entries {
			state := "fresh"
			if e.Expired(now) {
				state = "expired"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\t%s\n", e.Key, e.Created.Format(time.RFC3339), state, e.Path)
		}
		return nil
	},
}

var cachePruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Evict expired cache entries that no analysis is using",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		c, err := openCache(cfg)
		if err != nil {
			return err
		}
		defer c.Close()
		evicted, err := c.Prune(cmd.Context())
		for _, key := range evicted {
			fmt.Fprintf(cmd.OutOrStdout(), "evicted %s\n", key)
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d entries evicted\n", len(evicted))
		return nil
	},
}

func init() {
	cacheCmd.AddCommand(cacheListCmd)
	cacheCmd.AddCommand(cachePruneCmd)
	rootCmd.AddCommand(cacheCmd)
}
