package cmd

import (
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"github.com/flownity-dev/flownity-backend-sub000/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	Long:  `Validates the AUTH_* environment variables and prints the resulting values.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"Variable", "Value"})
		t.AppendRows([]table.Row{
			{config.EnvCacheTTL, cfg.CacheTTL},
			{config.EnvRequestTimeout, cfg.RequestTimeout},
			{config.EnvMaxRetries, cfg.MaxRetries},
			{config.EnvRetryBackoff, cfg.RetryBackoff},
			{config.EnvCacheMaxSize, cfg.CacheMaxSize},
			{config.EnvCacheSweepInterval, cfg.CacheSweepInterval},
			{config.EnvVerboseLogging, cfg.VerboseLogging},
			{config.EnvAllowedProviders, fmt.Sprint(cfg.AllowedProviders)},
		})

		s := table.StyleRounded
		s.Format.Header = text.FormatDefault
		t.SetStyle(s)
		t.Render()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
}
