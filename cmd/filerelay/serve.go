// SPDX-FileCopyrightText: © 2025 DSLab - Fondazione Bruno Kessler
//
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/scc-digitalhub/filerelay/sdk/server"
	"github.com/scc-digitalhub/filerelay/sdk/services/relay"
)

func newServeCommand(cli *CLI) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP relay",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cli.initialize(); err != nil {
				return err
			}
			if addr != "" {
				cli.conf.Server.Addr = addr
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			metrics, err := relay.NewMetrics("", prometheus.DefaultRegisterer)
			if err != nil {
				return err
			}
			svc, err := cli.newRelay(ctx, relay.WithMetrics(metrics))
			if err != nil {
				return err
			}
			srv := server.NewServer(svc, cli.conf.Server, cli.log, prometheus.DefaultGatherer)

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				return srv.Run(gctx)
			})
			g.Go(func() error {
				// sonda iniziale: solo informativa, non blocca l'avvio
				pctx, cancel := context.WithTimeout(gctx, cli.conf.Upstream.ConnectTimeout)
				defer cancel()
				if _, err := svc.Ping(pctx); err != nil {
					cli.log.WithError(err).Warn("upstream not reachable at startup")
					return nil
				}
				cli.log.WithField("kind", cli.conf.Upstream.Kind).Info("upstream reachable")
				return nil
			})
			return g.Wait()
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides server_addr)")
	return cmd
}
