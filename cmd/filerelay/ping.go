// SPDX-FileCopyrightText: © 2025 DSLab - Fondazione Bruno Kessler
//
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newPingCommand(cli *CLI) *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check that the upstream storage service answers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cli.initialize(); err != nil {
				return err
			}
			svc, err := cli.newRelay(cmd.Context())
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), cli.conf.Upstream.ResponseHeaderTimeout)
			defer cancel()

			msg, err := svc.Ping(ctx)
			if err != nil {
				return fmt.Errorf("upstream ping failed: %w", err)
			}
			return cli.print(map[string]string{
				"upstream": cli.conf.Upstream.Kind,
				"message":  msg,
			})
		},
	}
}
