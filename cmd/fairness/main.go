package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Criminal-Justice-Comps/Fairness/internal/api"
	"github.com/Criminal-Justice-Comps/Fairness/internal/config"
	"github.com/Criminal-Justice-Comps/Fairness/internal/logging"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

var (
	configPath string

	rootCmd = &cobra.Command{
		Use:   "fairness",
		Short: "Measure disparate impact of binary classifiers across protected groups",
		Long: `fairness builds a 2x2 contingency table of group membership against prediction
for every classifier and comparison, derives likelihood ratios, and flags
disparate impact when the likelihood ratio falls below 0.8.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "fairness", version)
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file (defaults plus environment when omitted)")

	rootCmd.AddCommand(measureCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

// errClassifiersFailed makes measure exit 1 after writing what it could.
var errClassifiersFailed = errors.New("one or more classifiers failed")

func main() {
	api.Version = version
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// loadConfig reads the config file and environment, then starts logging.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return cfg, err
	}
	logging.Init(cfg.Logging.Format, cfg.Logging.Level)
	return cfg, nil
}
