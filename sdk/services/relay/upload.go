// SPDX-FileCopyrightText: © 2025 DSLab - Fondazione Bruno Kessler
//
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"bytes"
	"context"
	"io"
)

// Upload relays req.Body to the upstream: one fixed-length multipart request
// in buffered mode, a chunked raw stream in streaming mode. No retries.
func (s *RelayService) Upload(ctx context.Context, req UploadRequest) Outcome {
	out, started, done := s.start(DirectionUpload, req.Filename, req.Mode)

	fail := func(err *RelayError) Outcome {
		out.Err = err
		out.Status = err.Status
		return s.finish(out, started, done)
	}

	if err := ValidateFilename(req.Filename); err != nil {
		return fail(newError(KindProtocolViolation, opUpload, req.Filename, err))
	}
	strategy, err := s.strategyFor(req.Mode)
	if err != nil {
		return fail(newError(KindProtocolViolation, opUpload, req.Filename, err))
	}

	var body io.Reader = req.Body
	if body == nil {
		body = bytes.NewReader(nil)
	}
	in := &trackingReader{r: body}

	desc := NewTransferDescriptor(req.Filename, -1)
	if err := strategy.LoadUpload(desc, in); err != nil {
		out.BytesTransferred = in.n
		return fail(classifyRead(ctx, opUpload, req.Filename, err))
	}
	upReq, err := strategy.UploadRequest(desc)
	if err != nil {
		return fail(newError(KindStreamReadFailure, opUpload, req.Filename, err))
	}

	upResp, err := strategy.Upstream().Send(ctx, upReq)
	out.BytesTransferred = in.n
	if in.err != nil {
		// l'errore è lato client, anche se il trasporto lo riporta come suo
		if upResp != nil {
			_ = upResp.Close()
		}
		return fail(classifyRead(ctx, opUpload, req.Filename, in.err))
	}
	if err != nil {
		return fail(classifySend(ctx, opUpload, req.Filename, err))
	}
	defer upResp.Close()

	msg := upstreamMessage(upResp.Body)
	// drain the rest so the connection goes back to the pool
	_, _ = io.Copy(io.Discard, io.LimitReader(upResp.Body, 64*1024))

	if !upResp.OK() {
		return fail(rejectedError(upResp.StatusCode, opUpload, req.Filename, msg))
	}
	out.Status = upResp.StatusCode
	out.Message = msg
	return s.finish(out, started, done)
}
