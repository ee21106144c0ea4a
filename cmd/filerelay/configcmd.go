// SPDX-FileCopyrightText: © 2025 DSLab - Fondazione Bruno Kessler
//
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/scc-digitalhub/filerelay/sdk/utils"
)

func newConfigCommand(cli *CLI) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or persist the relay configuration",
	}

	var keys bool
	show := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration (secrets omitted)",
		Long: `Print the effective configuration. With --keys the flat INI/env keys are
printed instead, with credentials masked.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cli.initialize(); err != nil {
				return err
			}
			if keys {
				return cli.print(utils.EffectiveSettings())
			}
			return cli.print(cli.conf)
		},
	}
	show.Flags().BoolVar(&keys, "keys", false, "Print the flat settings keys, secrets masked")
	cmd.AddCommand(show)

	cmd.AddCommand(&cobra.Command{
		Use:   "save",
		Short: "Write the persisted settings into the INI file",
		Long: `Write the settings currently in effect (INI, environment and flags) into
the selected section of the INI file, credentials included.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cli.initialize(); err != nil {
				return err
			}
			env := cli.envName
			if env == "" {
				env = viper.GetString(utils.CurrentEnvironment)
			}
			if err := utils.UpdateIniFromStruct(cli.iniPath, env); err != nil {
				return fmt.Errorf("failed to save %s: %w", cli.iniPath, err)
			}
			cli.log.WithField("section", env).Info("configuration saved")
			_, err := fmt.Fprintf(cli.out, "saved section [%s] to %s\n", env, cli.iniPath)
			return err
		},
	})
	return cmd
}
