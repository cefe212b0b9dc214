package cmd

import (
	"os"

	"github.com/dreamerjackson/leadcrawler/cmd/enrich"
	"github.com/dreamerjackson/leadcrawler/cmd/scrape"
	"github.com/dreamerjackson/leadcrawler/cmd/serve"
	"github.com/dreamerjackson/leadcrawler/cmd/targets"
	"github.com/dreamerjackson/leadcrawler/version"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "print version.",
	Long:  "print version.",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		version.Printer(cmd.OutOrStdout())
	},
}

func Execute() {
	var rootCmd = &cobra.Command{
		Use:          "leadcrawler",
		Short:        "scrape event listings and enrich the discovered leads.",
		SilenceUsage: true,
	}
	rootCmd.AddCommand(serve.ServeCmd, scrape.ScrapeCmd, enrich.EnrichCmd, targets.TargetsCmd, versionCmd)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
