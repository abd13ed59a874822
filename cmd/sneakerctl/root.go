package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"sneaker-hunter/pkg/app"
	"sneaker-hunter/pkg/config"
)

var (
	configPath string
	timeout    time.Duration
	logLevel   string

	core *app.App
)

var rootCmd = &cobra.Command{
	Use:           "sneakerctl",
	Short:         "Search sneaker prices across resale and retail sources.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if logLevel != "" {
			cfg.Log.Level = logLevel
		}
		// Logs go to stderr so tables can be piped.
		cfg.Log.Format = "text"

		core, err = app.New(cmd.Context(), cfg, os.Stderr)
		return err
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.toml", "path to the TOML config file")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 90*time.Second, "overall deadline for one command")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "debug, info, warn or error")

	rootCmd.AddCommand(searchCmd, sourcesCmd, pricesCmd)
}

// commandContext bounds a command by --timeout.
func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), timeout)
}

func Execute() {
	if err := execute(rootCmd); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// execute runs cmd and releases the core afterwards, also when the command
// failed.
func execute(cmd *cobra.Command) (err error) {
	defer func() {
		if core != nil {
			err = errors.Join(err, core.Close())
			core = nil
		}
	}()
	return cmd.Execute()
}
