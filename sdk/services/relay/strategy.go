// SPDX-FileCopyrightText: © 2025 DSLab - Fondazione Bruno Kessler
//
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/scc-digitalhub/filerelay/sdk/config"
)

// MultipartField is the form field carrying the file in buffered uploads.
const MultipartField = "file"

// BodyTransferStrategy moves a payload between the client and the upstream.
// The strategy is chosen before the descriptor body is populated.
type BodyTransferStrategy interface {
	Mode() Mode
	// Upstream is the client instance whose submission mode fits the strategy.
	Upstream() config.Upstream

	LoadDownload(desc *TransferDescriptor, body io.ReadCloser) error
	Deliver(ctx context.Context, desc *TransferDescriptor, resp *ClientResponse) (int64, error)

	LoadUpload(desc *TransferDescriptor, inbound io.Reader) error
	UploadRequest(desc *TransferDescriptor) (config.UpstreamRequest, error)
}

/* -------------------- BUFFERED -------------------- */

type bufferedStrategy struct {
	upstream  config.Upstream
	threshold int64
}

func (s *bufferedStrategy) Mode() Mode                { return ModeBuffered }
func (s *bufferedStrategy) Upstream() config.Upstream { return s.upstream }

func (s *bufferedStrategy) LoadDownload(desc *TransferDescriptor, body io.ReadCloser) error {
	data, err := config.ReadAllWithLimit(body, s.threshold)
	// il buffer è pieno: la connessione può tornare al pool
	_ = body.Close()
	if err != nil {
		return &readError{err}
	}
	return desc.SetBuffer(data)
}

func (s *bufferedStrategy) Deliver(_ context.Context, desc *TransferDescriptor, resp *ClientResponse) (int64, error) {
	if desc.Kind() != BodyBuffer {
		return 0, fmt.Errorf("buffered delivery needs a buffer body, got %d", desc.Kind())
	}
	data := desc.Buffer()
	if err := resp.SetHeader("Content-Length", strconv.Itoa(len(data))); err != nil {
		return 0, err
	}
	if err := resp.WriteHeader(http.StatusOK); err != nil {
		return 0, err
	}
	n, err := resp.Write(data)
	if err == nil {
		err = resp.Flush()
	}
	if err != nil {
		return int64(n), &writeError{err}
	}
	return int64(n), nil
}

func (s *bufferedStrategy) LoadUpload(desc *TransferDescriptor, inbound io.Reader) error {
	data, err := config.ReadAllWithLimit(inbound, s.threshold)
	if err != nil {
		return &readError{err}
	}
	return desc.SetBuffer(data)
}

// UploadRequest encodes the buffer as a one-part multipart form.
func (s *bufferedStrategy) UploadRequest(desc *TransferDescriptor) (config.UpstreamRequest, error) {
	if desc.Kind() != BodyBuffer {
		return config.UpstreamRequest{}, errors.New("buffered upload needs a buffer body")
	}
	var buf bytes.Buffer
	buf.Grow(len(desc.Buffer()) + 512)
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile(MultipartField, desc.Filename)
	if err != nil {
		return config.UpstreamRequest{}, fmt.Errorf("failed to create multipart part: %w", err)
	}
	if _, err := part.Write(desc.Buffer()); err != nil {
		return config.UpstreamRequest{}, fmt.Errorf("failed to write multipart part: %w", err)
	}
	if err := mw.Close(); err != nil {
		return config.UpstreamRequest{}, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	h := http.Header{}
	h.Set("Content-Type", mw.FormDataContentType())
	return config.UpstreamRequest{
		Method: http.MethodPost,
		Path:   config.PathUploadMultipart,
		Header: h,
		Body:   config.RequestBody{Payload: buf.Bytes()},
	}, nil
}

/* -------------------- STREAMING -------------------- */

type streamingStrategy struct {
	upstream  config.Upstream
	chunkSize int
}

func (s *streamingStrategy) Mode() Mode                { return ModeStreaming }
func (s *streamingStrategy) Upstream() config.Upstream { return s.upstream }

func (s *streamingStrategy) LoadDownload(desc *TransferDescriptor, body io.ReadCloser) error {
	return desc.SetStream(body)
}

func (s *streamingStrategy) Deliver(ctx context.Context, desc *TransferDescriptor, resp *ClientResponse) (int64, error) {
	if desc.Kind() != BodyStream {
		return 0, fmt.Errorf("streaming delivery needs a stream body, got %d", desc.Kind())
	}
	src := desc.Stream()
	defer src.Close()

	if err := resp.WriteHeader(http.StatusOK); err != nil {
		return 0, err
	}
	if err := resp.Flush(); err != nil {
		return 0, &writeError{err}
	}
	return copyWindow(ctx, resp, src, make([]byte, s.chunkSize))
}

func (s *streamingStrategy) LoadUpload(desc *TransferDescriptor, inbound io.Reader) error {
	return desc.SetStream(io.NopCloser(inbound))
}

func (s *streamingStrategy) UploadRequest(desc *TransferDescriptor) (config.UpstreamRequest, error) {
	if desc.Kind() != BodyStream {
		return config.UpstreamRequest{}, errors.New("streaming upload needs a stream body")
	}
	return config.UpstreamRequest{
		Method: http.MethodPost,
		Path:   config.PathUploadStream,
		Header: ForUploadRequest(desc.Filename),
		Body:   config.RequestBody{Stream: desc.Stream()},
	}, nil
}
