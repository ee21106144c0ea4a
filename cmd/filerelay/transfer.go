// SPDX-FileCopyrightText: © 2025 DSLab - Fondazione Bruno Kessler
//
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/scc-digitalhub/filerelay/sdk/services/relay"
	"github.com/scc-digitalhub/filerelay/sdk/utils"
)

func newDownloadCommand(cli *CLI) *cobra.Command {
	var (
		target   string
		mode     string
		progress bool
	)
	cmd := &cobra.Command{
		Use:   "download <filename>",
		Short: "Download a file from the upstream through the relay",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cli.initialize(); err != nil {
				return err
			}
			m, err := parseModeFlag(mode)
			if err != nil {
				return err
			}
			svc, err := cli.newRelay(cmd.Context())
			if err != nil {
				return err
			}

			filename := args[0]
			if target == "" {
				target = filepath.Base(filename)
			}

			var (
				dst     io.Writer
				partial string
				file    *os.File
			)
			if target == "-" {
				dst = cli.out
			} else {
				partial = utils.PartialPath(target)
				file, err = os.Create(partial)
				if err != nil {
					return fmt.Errorf("failed to create %s: %w", partial, err)
				}
				dst = file
			}

			var p *utils.Progress
			if progress && target != "-" {
				p = utils.NewProgress(cli.errOut, "downloading", -1)
			}
			w := newFileResponseWriter(dst, p)
			out := svc.Download(cmd.Context(), relay.DownloadRequest{Filename: filename, Mode: m}, w)
			if p != nil {
				p.Done()
			}

			if file != nil {
				closeErr := file.Close()
				if out.Err == nil && closeErr != nil {
					_ = os.Remove(partial)
					return fmt.Errorf("failed to close %s: %w", partial, closeErr)
				}
				if out.Err != nil {
					_ = os.Remove(partial)
				} else if err := os.Rename(partial, target); err != nil {
					_ = os.Remove(partial)
					return fmt.Errorf("failed to move %s into place: %w", target, err)
				}
			}
			if out.Err != nil && out.Message == "" {
				out.Message = w.ErrorBody()
			}
			if target != "-" {
				if err := cli.print(out); err != nil {
					return err
				}
			}
			if out.Err != nil {
				return out.Err
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&target, "out", "o", "", "Destination path, - for stdout (default: base name of <filename>)")
	cmd.Flags().StringVar(&mode, "mode", "", "Transfer mode (buffered, streaming); default from config")
	cmd.Flags().BoolVar(&progress, "progress", false, "Show a progress line on stderr")
	return cmd
}

func newUploadCommand(cli *CLI) *cobra.Command {
	var (
		name     string
		mode     string
		progress bool
	)
	cmd := &cobra.Command{
		Use:   "upload <path>",
		Short: "Upload a local file to the upstream through the relay",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cli.initialize(); err != nil {
				return err
			}
			m, err := parseModeFlag(mode)
			if err != nil {
				return err
			}

			path := args[0]
			f, err := os.Open(path)
			if err != nil {
				return fmt.Errorf("failed to open %s: %w", path, err)
			}
			defer f.Close()
			st, err := f.Stat()
			if err != nil {
				return err
			}
			if st.IsDir() {
				return errors.New("upload of directories is not supported")
			}
			if name == "" {
				name = filepath.Base(path)
			}

			svc, err := cli.newRelay(cmd.Context())
			if err != nil {
				return err
			}

			var body io.Reader = f
			var p *utils.Progress
			if progress {
				p = utils.NewProgress(cli.errOut, "uploading", st.Size())
				body = p.Reader(f)
			}
			out := svc.Upload(cmd.Context(), relay.UploadRequest{Filename: name, Mode: m, Body: body})
			if p != nil {
				p.Done()
			}
			if err := cli.print(out); err != nil {
				return err
			}
			if out.Err != nil {
				return out.Err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Remote filename (default: base name of <path>)")
	cmd.Flags().StringVar(&mode, "mode", "", "Transfer mode (buffered, streaming); default from config")
	cmd.Flags().BoolVar(&progress, "progress", false, "Show a progress line on stderr")
	return cmd
}
