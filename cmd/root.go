/*
 * Qrflow
 * Copyright (C) 2026. Nlwallet community
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License
 * along with this program.  If not, see <https://www.gnu.org/licenses/>.
 */

package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/nlwallet/qrflow/configuration"
	"github.com/nlwallet/qrflow/logging"
	"github.com/nlwallet/qrflow/pkg/session"
	"github.com/nlwallet/qrflow/pkg/store"
)

var (
	configPath string
	configName string
)

var rootCmd = &cobra.Command{
	Use:   "qrflow",
	Short: "QR handoff session service",
	Long:  `Coordinates QR-based handoff sessions between presenter and scanner surfaces.`,
}

// InitConfig loads the global configuration, wired as PersistentPreRun on the
// commands that need it.
func InitConfig(cmd *cobra.Command, args []string) {
	if err := configuration.Initialize(configPath, configName); err != nil {
		logging.Log().WithError(err).Fatal("Could not load configuration")
	}
}

// Execute runs the root command. This is called by main.main() and only needs
// to happen once.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

// FlagSet holds the global flags, shared by every subcommand.
func FlagSet() *pflag.FlagSet {
	flags := pflag.NewFlagSet("qrflow", pflag.ContinueOnError)
	flags.StringVar(&configPath, "configpath", ".", "Directory holding the config file")
	flags.StringVar(&configName, "configname", "qrflow", "Config file name without extension")
	return flags
}

func init() {
	rootCmd.PersistentFlags().AddFlagSet(FlagSet())
}

// buildAdapter opens the configured session store backend.
func buildAdapter(config *configuration.QrflowConfiguration) (*session.Adapter, error) {
	if config.StorePath == "" {
		logging.Log().Info("no store_path configured, using in-memory session store")
		return session.NewAdapter(store.NewMemoryTree()), nil
	}
	tree, err := store.CreateBoltTree(config.StorePath)
	if err != nil {
		return nil, err
	}
	return session.NewAdapter(tree), nil
}
