// SPDX-FileCopyrightText: © 2025 DSLab - Fondazione Bruno Kessler
//
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/scc-digitalhub/filerelay/sdk/config"
)

const (
	opDownload = "download"
	opUpload   = "upload"

	// upstream error bodies are read up to this size for the message
	maxUpstreamMessage = 4 * 1024
)

// Download relays GET /file/download from the upstream into w. Errors found
// before the headers go out become a JSON error response; later ones abort
// the response (Outcome.Aborted) since the status line is already sent.
func (s *RelayService) Download(ctx context.Context, req DownloadRequest, w http.ResponseWriter) Outcome {
	out, started, done := s.start(DirectionDownload, req.Filename, req.Mode)
	resp := NewClientResponse(w)
	_ = resp.SetHeader(HeaderTransferID, out.ID)

	fail := func(err *RelayError) Outcome {
		out.Err = err
		resp.WriteError(err)
		out.Status = resp.Status()
		out.Aborted = resp.State() == Aborted
		return s.finish(out, started, done)
	}

	if err := ValidateFilename(req.Filename); err != nil {
		return fail(newError(KindProtocolViolation, opDownload, req.Filename, err))
	}
	strategy, err := s.strategyFor(req.Mode)
	if err != nil {
		return fail(newError(KindProtocolViolation, opDownload, req.Filename, err))
	}

	upResp, err := strategy.Upstream().Send(ctx, config.UpstreamRequest{
		Method: http.MethodGet,
		Path:   config.PathDownload,
		Query:  url.Values{"filename": []string{req.Filename}},
	})
	if err != nil {
		return fail(classifySend(ctx, opDownload, req.Filename, err))
	}
	defer upResp.Close()

	if !upResp.OK() {
		return fail(rejectedError(upResp.StatusCode, opDownload, req.Filename, upstreamMessage(upResp.Body)))
	}

	length := upResp.ContentLength()
	if strategy.Mode() == ModeBuffered && length > s.threshold {
		s.log.WithFields(logrus.Fields{
			"transfer_id": out.ID,
			"filename":    req.Filename,
			"length":      length,
			"threshold":   s.threshold,
		}).Info("payload above buffer threshold, switching to streaming")
		strategy = s.streaming
	}
	out.Mode = strategy.Mode()

	desc := NewTransferDescriptor(req.Filename, length)
	if err := strategy.LoadDownload(desc, upResp.Body); err != nil {
		return fail(classifyRead(ctx, opDownload, req.Filename, err))
	}
	if err := resp.MergeHeaders(ForDownloadResponse(upResp.Header, req.Filename)); err != nil {
		return fail(newError(KindStreamReadFailure, opDownload, req.Filename, err))
	}

	n, err := strategy.Deliver(ctx, desc, resp)
	out.BytesTransferred = resp.Written()
	if err != nil {
		if isWriteSide(err) {
			return fail(newError(KindClientAborted, opDownload, req.Filename, err))
		}
		return fail(classifyRead(ctx, opDownload, req.Filename, err))
	}
	if desc.ContentLength >= 0 && n != desc.ContentLength {
		return fail(newError(KindStreamReadFailure, opDownload, req.Filename,
			fmt.Errorf("upstream announced %d bytes, relayed %d", desc.ContentLength, n)))
	}

	resp.Complete()
	out.Status = resp.Status()
	return s.finish(out, started, done)
}

// upstreamMessage reads a short error text from a rejected response; the
// body is never treated as file content.
func upstreamMessage(body io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(body, maxUpstreamMessage))
	return strings.TrimSpace(string(b))
}
