// SPDX-FileCopyrightText: © 2025 DSLab - Fondazione Bruno Kessler
//
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"io"
	"net/http"
	"strconv"

	"github.com/scc-digitalhub/filerelay/sdk/utils"
)

// fileResponseWriter lets the relay deliver a download into a local writer.
// Non-2xx bodies are kept aside as the error message.
type fileResponseWriter struct {
	header   http.Header
	dst      io.Writer
	progress *utils.Progress
	status   int
	errBody  bytes.Buffer
}

func newFileResponseWriter(dst io.Writer, progress *utils.Progress) *fileResponseWriter {
	return &fileResponseWriter{header: http.Header{}, dst: dst, progress: progress}
}

func (w *fileResponseWriter) Header() http.Header { return w.header }

func (w *fileResponseWriter) WriteHeader(status int) {
	if w.status != 0 {
		return
	}
	w.status = status
	if w.progress == nil || !w.ok() {
		return
	}
	if n, err := strconv.ParseInt(w.header.Get("Content-Length"), 10, 64); err == nil {
		w.progress.SetTotal(n)
	}
}

func (w *fileResponseWriter) Write(p []byte) (int, error) {
	if w.status == 0 {
		w.WriteHeader(http.StatusOK)
	}
	if !w.ok() {
		// limite sul corpo d'errore
		if w.errBody.Len() < 4096 {
			w.errBody.Write(p)
		}
		return len(p), nil
	}
	n, err := w.dst.Write(p)
	if w.progress != nil && n > 0 {
		w.progress.Add(int64(n))
	}
	return n, err
}

func (w *fileResponseWriter) Flush() {}

func (w *fileResponseWriter) ok() bool {
	return w.status >= 200 && w.status < 300
}

func (w *fileResponseWriter) ErrorBody() string {
	return w.errBody.String()
}
