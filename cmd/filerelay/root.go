// SPDX-FileCopyrightText: © 2025 DSLab - Fondazione Bruno Kessler
//
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"sigs.k8s.io/yaml"

	"github.com/scc-digitalhub/filerelay/sdk/config"
	"github.com/scc-digitalhub/filerelay/sdk/services/relay"
	"github.com/scc-digitalhub/filerelay/sdk/utils"
)

// CLI holds the command line state shared by subcommands.
type CLI struct {
	configPath string
	envName    string
	logLevel   string
	output     string

	iniPath string
	section string
	conf    config.Config
	log     *logrus.Logger

	out    io.Writer
	errOut io.Writer
}

func NewRootCommand(out, errOut io.Writer) *cobra.Command {
	cli := &CLI{out: out, errOut: errOut}

	rootCmd := &cobra.Command{
		Use:   "filerelay",
		Short: "File transfer relay between clients and an upstream storage service",
		Long: `filerelay moves files between clients and an upstream storage service,
either buffering each payload in memory or streaming it through a fixed window.

Examples:
  filerelay serve                          # start the HTTP relay
  filerelay download report.pdf -o out.pdf # fetch a file through the relay
  filerelay upload ./data.csv --mode buffered
  filerelay config show --output json`,
		SilenceUsage: true,
	}
	rootCmd.SetOut(out)
	rootCmd.SetErr(errOut)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cli.configPath, "config", "", "INI file (default $FILERELAY_CONFIG or ~/"+utils.IniName+")")
	rootCmd.PersistentFlags().StringVar(&cli.envName, "env", "", "INI section to use")
	rootCmd.PersistentFlags().StringVar(&cli.logLevel, "log-level", "", "Log level override (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&cli.output, "output", "yaml", "Output format (yaml, json)")

	rootCmd.AddCommand(newServeCommand(cli))
	rootCmd.AddCommand(newDownloadCommand(cli))
	rootCmd.AddCommand(newUploadCommand(cli))
	rootCmd.AddCommand(newPingCommand(cli))
	rootCmd.AddCommand(newConfigCommand(cli))
	return rootCmd
}

// initialize loads .env, the INI section and env overrides, then builds the logger.
func (cli *CLI) initialize() error {
	dotenvErr := godotenv.Load()

	viper.Reset()
	cli.iniPath = cli.configPath
	if cli.iniPath == "" {
		cli.iniPath = utils.IniPath()
	}
	section, err := utils.RegisterIniCfgWithViper(cli.iniPath, cli.envName)
	if err != nil {
		return err
	}
	cli.section = section
	if cli.logLevel != "" {
		viper.Set(utils.LogLevel, cli.logLevel)
	}

	conf, err := utils.LoadConfig()
	if err != nil {
		return err
	}
	log, err := utils.NewLogger(cli.errOut, conf.Log.Level, conf.Log.Format)
	if err != nil {
		return err
	}
	cli.conf, cli.log = conf, log

	entry := log.WithFields(logrus.Fields{"ini": cli.iniPath, "section": section})
	if dotenvErr != nil {
		entry = entry.WithField("dotenv", "not found")
	}
	entry.Debug("configuration loaded")
	return nil
}

func (cli *CLI) newRelay(ctx context.Context, opts ...relay.Option) (*relay.RelayService, error) {
	opts = append([]relay.Option{relay.WithLogger(cli.log)}, opts...)
	svc, err := relay.NewRelayService(ctx, cli.conf, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to init relay: %w", err)
	}
	return svc, nil
}

// print renders v in the selected output format.
func (cli *CLI) print(v any) error {
	var (
		b   []byte
		err error
	)
	switch strings.ToLower(cli.output) {
	case "json":
		b, err = json.MarshalIndent(v, "", "  ")
		b = append(b, '\n')
	case "yaml", "":
		b, err = yaml.Marshal(v)
	default:
		return fmt.Errorf("unsupported output format %q", cli.output)
	}
	if err != nil {
		return fmt.Errorf("failed to render output: %w", err)
	}
	_, err = cli.out.Write(b)
	return err
}

func parseModeFlag(raw string) (relay.Mode, error) {
	return relay.ParseMode(raw, "")
}
