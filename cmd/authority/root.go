// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/holomush/authority/internal/config"
	"github.com/holomush/authority/internal/logging"
	"github.com/holomush/authority/internal/xdg"
)

// serviceName tags every log line.
const serviceName = "authority"

// Global flags available to all subcommands.
var (
	configFile string
	envFiles   []string
)

// NewRootCmd creates the root command for the authority CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "authority",
		Short: "Authority - credential and session service",
		Long: `Authority issues and verifies credentials: password logins, access
tokens, rotating refresh tokens, password resets and email verification.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (default: first authority/config.yaml in the XDG config dirs)")
	cmd.PersistentFlags().StringSliceVar(&envFiles, "env-file", []string{".env"}, "dotenv files loaded before reading the environment")
	config.RegisterFlags(cmd.PersistentFlags())

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewStatusCmd())
	cmd.AddCommand(NewUserCmd())
	cmd.AddCommand(NewTokensCmd())
	cmd.AddCommand(NewConfigCmd())

	return cmd
}

// loadConfig reads the configuration for cmd from the --config file, the
// dotenv files, the environment and the command line.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	return config.Load(loadOptions(cmd))
}

// loadOptions falls back to the first XDG config file when --config is not
// given.
func loadOptions(cmd *cobra.Command) config.LoadOptions {
	file := configFile
	if file == "" {
		file = xdg.FindConfigFile()
	}
	return config.LoadOptions{
		File:     file,
		EnvFiles: envFiles,
		Flags:    cmd.Flags(),
	}
}

// setupLogging installs the default logger described by cfg.
func setupLogging(cfg *config.Config) *slog.Logger {
	return logging.SetDefault(serviceName, version, cfg.Log.Format, logging.ParseLevel(cfg.Log.Level))
}
