/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/acronis/go-quotakit/internal/appinfo"
)

type rootFlags struct {
	configPath string
}

func newRootCommand() *cobra.Command {
	var flags rootFlags
	rootCmd := &cobra.Command{
		Use:           "quotad",
		Short:         "Distributed quota service backed by Redis",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "",
		"path to the configuration file (YAML or JSON); only environment variables are used if empty")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadAppConfig(flags.configPath)
			if err != nil {
				return err
			}
			return runApp(cmd.Context(), cfg)
		},
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadAppConfig(flags.configPath)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "configuration is valid: namespace %q, %d limit(s), %d throttling rule(s)\n",
				cfg.Quota.Namespace, len(cfg.Quota.Limits), len(cfg.Throttle.Rules))
			return err
		},
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "quotad %s (%s)\n", appinfo.Version(), runtime.Version())
			return err
		},
	})

	return rootCmd
}
